package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PurchaseState is the lifecycle of a supplier purchase order.
type PurchaseState string

const (
	PurchasePending   PurchaseState = "PENDING"
	PurchaseReceived  PurchaseState = "RECEIVED"
	PurchaseCancelled PurchaseState = "CANCELLED"
)

// Purchase is an order placed with a supplier.
type Purchase struct {
	ID                 int64              `json:"id" db:"id"`
	Code               string             `json:"code" db:"code"`
	Supplier           string             `json:"supplier" db:"supplier"`
	State              PurchaseState      `json:"state" db:"state"`
	Total              decimal.Decimal    `json:"total" db:"total"`
	Notes              *string            `json:"notes,omitempty" db:"notes"`
	CancellationReason *string            `json:"cancellation_reason,omitempty" db:"cancellation_reason"`
	CreatedBy          *int64             `json:"created_by,omitempty" db:"created_by"`
	ReceivedAt         *time.Time         `json:"received_at,omitempty" db:"received_at"`
	CreatedAt          time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at" db:"updated_at"`
	Lines              []PurchaseLineItem `json:"lines,omitempty"`
}

// PurchaseLineItem is one part line of a purchase.
type PurchaseLineItem struct {
	ID         int64           `json:"id" db:"id"`
	PurchaseID int64           `json:"purchase_id" db:"purchase_id"`
	PartID     int64           `json:"part_id" db:"part_id"`
	Quantity   int             `json:"quantity" db:"quantity"`
	UnitCost   decimal.Decimal `json:"unit_cost" db:"unit_cost"`
	Subtotal   decimal.Decimal `json:"subtotal" db:"subtotal"`
}

// PurchaseFilters defines the available filters for querying purchases.
type PurchaseFilters struct {
	State    *PurchaseState `form:"state"`
	Supplier *string        `form:"supplier"`
	Page     int            `form:"page"`
	PageSize int            `form:"page_size"`
}
