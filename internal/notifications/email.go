package notifications

import (
	"context"
	"fmt"
	"strings"

	"gopkg.in/gomail.v2"
)

// SMTPConfig holds the outgoing mail settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	ShopName string
}

type mailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailNotifier renders events as plain text mail and sends them over SMTP.
type EmailNotifier struct {
	from     string
	shopName string
	sender   mailSender
}

func NewEmailNotifier(cfg SMTPConfig) *EmailNotifier {
	shop := cfg.ShopName
	if shop == "" {
		shop = "Repair Shop"
	}
	return &EmailNotifier{
		from:     cfg.From,
		shopName: shop,
		sender:   gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

func (n *EmailNotifier) Notify(_ context.Context, event Event) error {
	if event.ClientEmail == nil || strings.TrimSpace(*event.ClientEmail) == "" {
		return ErrNoRecipient
	}
	subject, body, err := n.render(event)
	if err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", n.from)
	msg.SetHeader("To", *event.ClientEmail)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if err := n.sender.DialAndSend(msg); err != nil {
		return fmt.Errorf("sending %s mail for ticket %s: %w", event.Kind, event.TicketCode, err)
	}
	return nil
}

func (n *EmailNotifier) render(event Event) (string, string, error) {
	var b strings.Builder
	name := event.ClientName
	if name == "" {
		name = "customer"
	}
	fmt.Fprintf(&b, "Hello %s,\n\n", name)

	var subject string
	switch event.Kind {
	case EventTicketCreated:
		subject = fmt.Sprintf("%s: ticket %s received", n.shopName, event.TicketCode)
		fmt.Fprintf(&b, "We have received your equipment. Your ticket number is %s.\n", event.TicketCode)
		b.WriteString("Keep this number to check the status of your repair.\n")
	case EventBudgetQuoted:
		subject = fmt.Sprintf("%s: budget ready for ticket %s", n.shopName, event.TicketCode)
		fmt.Fprintf(&b, "The diagnosis for ticket %s is complete.\n", event.TicketCode)
		if event.Diagnosis != nil {
			fmt.Fprintf(&b, "Diagnosis: %s\n", *event.Diagnosis)
		}
		if event.Total.Valid {
			fmt.Fprintf(&b, "Budget: %s\n", event.Total.Decimal.StringFixed(2))
		}
		if event.EstimatedDays != nil {
			fmt.Fprintf(&b, "Estimated repair time: %d day(s)\n", *event.EstimatedDays)
		}
		b.WriteString("Please let us know whether you approve it.\n")
	case EventReadyForPickup:
		subject = fmt.Sprintf("%s: ticket %s is ready for pickup", n.shopName, event.TicketCode)
		fmt.Fprintf(&b, "Your equipment (ticket %s) is ready for pickup.\n", event.TicketCode)
		if event.Total.Valid {
			fmt.Fprintf(&b, "Amount due: %s\n", event.Total.Decimal.StringFixed(2))
		}
	default:
		return "", "", fmt.Errorf("unknown notification event %q", event.Kind)
	}

	fmt.Fprintf(&b, "\n%s\n", n.shopName)
	return subject, b.String(), nil
}
