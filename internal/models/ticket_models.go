package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TicketState is the workflow state of a repair ticket.
type TicketState string

const (
	StateIntake     TicketState = "INTAKE"
	StateDiagnosing TicketState = "DIAGNOSING"
	StateQuoted     TicketState = "QUOTED"
	StateApproved   TicketState = "APPROVED"
	StateRejected   TicketState = "REJECTED"
	StateRepairing  TicketState = "REPAIRING"
	StateTesting    TicketState = "TESTING"
	StateReady      TicketState = "READY"
	StateDelivered  TicketState = "DELIVERED"
	StateCancelled  TicketState = "CANCELLED"
)

// ClosedTicketStates are the states a ticket never leaves.
var ClosedTicketStates = []TicketState{StateDelivered, StateCancelled}

// AllTicketStates lists the states in workflow order.
var AllTicketStates = []TicketState{
	StateIntake, StateDiagnosing, StateQuoted, StateApproved, StateRejected,
	StateRepairing, StateTesting, StateReady, StateDelivered, StateCancelled,
}

var stateLabels = map[TicketState][2]string{
	StateIntake:     {"Intake", "Equipment received, waiting for a technician"},
	StateDiagnosing: {"Diagnosing", "Technician is diagnosing the fault"},
	StateQuoted:     {"Quoted", "Budget issued, waiting for the client's answer"},
	StateApproved:   {"Approved", "Client approved the budget"},
	StateRejected:   {"Rejected", "Client rejected the budget"},
	StateRepairing:  {"Repairing", "Repair in progress"},
	StateTesting:    {"Testing", "Repair finished, running tests"},
	StateReady:      {"Ready", "Ready for pickup"},
	StateDelivered:  {"Delivered", "Equipment delivered to the client"},
	StateCancelled:  {"Cancelled", "Ticket cancelled"},
}

func (s TicketState) Valid() bool {
	_, ok := stateLabels[s]
	return ok
}

func (s TicketState) DisplayName() string {
	if l, ok := stateLabels[s]; ok {
		return l[0]
	}
	return string(s)
}

func (s TicketState) Description() string {
	return stateLabels[s][1]
}

// ParseTicketState accepts any letter case and surrounding spaces.
func ParseTicketState(raw string) (TicketState, error) {
	s := TicketState(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown ticket state %q", raw)
	}
	return s, nil
}

// DiscountType selects how Ticket.DiscountValue is interpreted.
type DiscountType string

const (
	DiscountPercentage DiscountType = "PERCENTAGE"
	DiscountAmount     DiscountType = "AMOUNT"
)

var hundred = decimal.NewFromInt(100)

// Ticket is a repair work order.
type Ticket struct {
	ID                 int64               `json:"id" db:"id"`
	Code               string              `json:"code" db:"code"`
	State              TicketState         `json:"state" db:"state"`
	ClientID           int64               `json:"client_id" db:"client_id"`
	TechnicianID       *int64              `json:"technician_id,omitempty" db:"technician_id"`
	IntakeUserID       int64               `json:"intake_user_id" db:"intake_user_id"`
	ReportedFault      string              `json:"reported_fault" db:"reported_fault"`
	Accessories        *string             `json:"accessories,omitempty" db:"accessories"`
	Diagnosis          *string             `json:"diagnosis,omitempty" db:"diagnosis"`
	LaborCost          decimal.NullDecimal `json:"labor_cost" db:"labor_cost"`
	PartsCost          decimal.NullDecimal `json:"parts_cost" db:"parts_cost"`
	Subtotal           decimal.NullDecimal `json:"subtotal" db:"subtotal"`
	DiscountType       *DiscountType       `json:"discount_type,omitempty" db:"discount_type"`
	DiscountValue      decimal.NullDecimal `json:"discount_value" db:"discount_value"`
	DiscountAmount     decimal.NullDecimal `json:"discount_amount" db:"discount_amount"`
	DiscountReason     *string             `json:"discount_reason,omitempty" db:"discount_reason"`
	Total              decimal.NullDecimal `json:"total" db:"total"`
	EstimatedDays      *int                `json:"estimated_days,omitempty" db:"estimated_days"`
	RejectionReason    *string             `json:"rejection_reason,omitempty" db:"rejection_reason"`
	CancellationReason *string             `json:"cancellation_reason,omitempty" db:"cancellation_reason"`
	RepairNotes        *string             `json:"repair_notes,omitempty" db:"repair_notes"`
	TestResult         *string             `json:"test_result,omitempty" db:"test_result"`
	TestPassed         *bool               `json:"test_passed,omitempty" db:"test_passed"`
	DeliveryNotes      *string             `json:"delivery_notes,omitempty" db:"delivery_notes"`
	BudgetAt           *time.Time          `json:"budget_at,omitempty" db:"budget_at"`
	ClientResponseAt   *time.Time          `json:"client_response_at,omitempty" db:"client_response_at"`
	RepairStartedAt    *time.Time          `json:"repair_started_at,omitempty" db:"repair_started_at"`
	RepairEndedAt      *time.Time          `json:"repair_ended_at,omitempty" db:"repair_ended_at"`
	DeliveredAt        *time.Time          `json:"delivered_at,omitempty" db:"delivered_at"`
	CreatedAt          time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at" db:"updated_at"`

	Equipment []Equipment `json:"equipment,omitempty"`
	Parts     []PartUsage `json:"parts,omitempty"`
}

// Equipment is a free-form description of a device left with a ticket.
type Equipment struct {
	ID           int64   `json:"id" db:"id"`
	TicketID     int64   `json:"ticket_id" db:"ticket_id"`
	Type         string  `json:"type" db:"type" binding:"required"`
	Brand        *string `json:"brand,omitempty" db:"brand"`
	Model        *string `json:"model,omitempty" db:"model"`
	SerialNumber *string `json:"serial_number,omitempty" db:"serial_number"`
	Notes        *string `json:"notes,omitempty" db:"notes"`
}

// RecalculateTotals re-derives subtotal, discount amount and total from labor,
// parts and the discount definition. Budget figures stay null while neither
// labor nor parts cost is known.
func (t *Ticket) RecalculateTotals() {
	if !t.LaborCost.Valid && !t.PartsCost.Valid {
		t.Subtotal = decimal.NullDecimal{}
		t.DiscountAmount = decimal.NullDecimal{}
		t.Total = decimal.NullDecimal{}
		return
	}

	subtotal := decimal.Zero
	if t.LaborCost.Valid {
		subtotal = subtotal.Add(t.LaborCost.Decimal)
	}
	if t.PartsCost.Valid {
		subtotal = subtotal.Add(t.PartsCost.Decimal)
	}

	discount := decimal.Zero
	if t.DiscountType != nil && t.DiscountValue.Valid {
		switch *t.DiscountType {
		case DiscountPercentage:
			discount = subtotal.Mul(t.DiscountValue.Decimal).Div(hundred).Round(2)
		case DiscountAmount:
			discount = t.DiscountValue.Decimal
		}
	}

	total := subtotal.Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	t.Subtotal = decimal.NewNullDecimal(subtotal)
	t.DiscountAmount = decimal.NewNullDecimal(discount)
	t.Total = decimal.NewNullDecimal(total)
}

// TicketFilters defines the available filters for querying tickets.
type TicketFilters struct {
	State        *TicketState `form:"state"`
	ClientID     *int64       `form:"client_id"`
	TechnicianID *int64       `form:"technician_id"`
	// Active keeps only tickets that are not delivered or cancelled.
	Active bool `form:"active"`
	// Query matches code, fault, diagnosis, client and equipment details.
	Query    *string `form:"q"`
	Page     int     `form:"page"`
	PageSize int     `form:"page_size"`
}

// TicketPublicView is what a client can see when looking a ticket up by its code.
type TicketPublicView struct {
	Code             string              `json:"code"`
	State            TicketState         `json:"state"`
	StateName        string              `json:"state_name"`
	StateDescription string              `json:"state_description"`
	Equipment        []Equipment         `json:"equipment,omitempty"`
	Total            decimal.NullDecimal `json:"total"`
	EstimatedDays    *int                `json:"estimated_days,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	BudgetAt         *time.Time          `json:"budget_at,omitempty"`
	DeliveredAt      *time.Time          `json:"delivered_at,omitempty"`
}

// StateOption describes one destination a ticket may move to.
type StateOption struct {
	State       TicketState `json:"state"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
}
