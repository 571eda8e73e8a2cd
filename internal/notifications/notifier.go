// Package notifications delivers client-facing messages at a few points of
// the ticket lifecycle. Delivery is best-effort: callers log failures and move on.
package notifications

import (
	"context"
	"errors"
	"time"

	"repair_shop_backend/internal/models"
	"repair_shop_backend/pkg/utils"

	"github.com/shopspring/decimal"
)

// EventKind names the lifecycle point that triggered a notification.
type EventKind string

const (
	EventTicketCreated  EventKind = "ticket_created"
	EventBudgetQuoted   EventKind = "budget_quoted"
	EventReadyForPickup EventKind = "ready_for_pickup"
)

// ErrNoRecipient is returned when the client has no address to write to.
var ErrNoRecipient = errors.New("client has no email address")

// Event is the data a notifier needs to render a message.
type Event struct {
	Kind          EventKind
	TicketID      int64
	TicketCode    string
	State         models.TicketState
	ClientName    string
	ClientEmail   *string
	Diagnosis     *string
	Total         decimal.NullDecimal
	EstimatedDays *int
	OccurredAt    time.Time
}

// NewTicketEvent fills an Event from a ticket and its client. client may be nil.
func NewTicketEvent(kind EventKind, ticket *models.Ticket, client *models.Client) Event {
	ev := Event{
		Kind:          kind,
		TicketID:      ticket.ID,
		TicketCode:    ticket.Code,
		State:         ticket.State,
		Diagnosis:     ticket.Diagnosis,
		Total:         ticket.Total,
		EstimatedDays: ticket.EstimatedDays,
		OccurredAt:    time.Now().UTC(),
	}
	if client != nil {
		ev.ClientName = client.FullName
		ev.ClientEmail = client.Email
	}
	return ev
}

// Notifier sends one event.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// LogNotifier only writes the event to the log. Used when SMTP is not configured.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, event Event) error {
	utils.LogInfo("Notification", map[string]interface{}{
		"event":       string(event.Kind),
		"ticket_id":   event.TicketID,
		"ticket_code": event.TicketCode,
		"state":       string(event.State),
		"client":      event.ClientName,
	})
	return nil
}
