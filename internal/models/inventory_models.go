package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Part represents a spare part kept in stock.
type Part struct {
	ID          int64           `json:"id" db:"id"`
	Code        string          `json:"code" db:"code"`
	Name        string          `json:"name" db:"name"`
	Category    *string         `json:"category,omitempty" db:"category"`
	Description *string         `json:"description,omitempty" db:"description"`
	UnitCost    decimal.Decimal `json:"unit_cost" db:"unit_cost"`
	SalePrice   decimal.Decimal `json:"sale_price" db:"sale_price"`
	Quantity    int             `json:"quantity" db:"quantity"`
	MinQuantity int             `json:"min_quantity" db:"min_quantity"`
	IsActive    bool            `json:"is_active" db:"is_active"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// IsLowStock reports quantity at or below the minimum threshold.
func (p *Part) IsLowStock() bool {
	return p.Quantity <= p.MinQuantity
}

// HasStock reports whether qty units can be taken right now.
func (p *Part) HasStock(qty int) bool {
	return qty > 0 && p.Quantity >= qty
}

// PartFilters defines the available filters for querying parts.
type PartFilters struct {
	Search     *string `form:"search"`
	Category   *string `form:"category"`
	ActiveOnly bool    `form:"active_only"`
	Page       int     `form:"page"`
	PageSize   int     `form:"page_size"`
}

// PartUsage is a quantity of one part assigned to one ticket.
type PartUsage struct {
	ID            int64           `json:"id" db:"id"`
	TicketID      int64           `json:"ticket_id" db:"ticket_id"`
	PartID        int64           `json:"part_id" db:"part_id"`
	Quantity      int             `json:"quantity" db:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price" db:"unit_price"`
	Subtotal      decimal.Decimal `json:"subtotal" db:"subtotal"`
	StockDeducted bool            `json:"stock_deducted" db:"stock_deducted"`
	Notes         *string         `json:"notes,omitempty" db:"notes"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
	PartCode      string          `json:"part_code,omitempty"`
	PartName      string          `json:"part_name,omitempty"`
}

// SetQuantity updates the quantity and keeps the subtotal in step.
func (u *PartUsage) SetQuantity(qty int) {
	u.Quantity = qty
	u.Subtotal = u.UnitPrice.Mul(decimal.NewFromInt(int64(qty)))
}

// SumSubtotals adds up usage subtotals.
func SumSubtotals(usages []PartUsage) decimal.Decimal {
	sum := decimal.Zero
	for _, u := range usages {
		sum = sum.Add(u.Subtotal)
	}
	return sum
}

// MovementKind classifies a stock movement.
type MovementKind string

const (
	MovementPurchaseReceipt     MovementKind = "PURCHASE_RECEIPT"
	MovementManualIncrease      MovementKind = "MANUAL_INCREASE"
	MovementManualDecrease      MovementKind = "MANUAL_DECREASE"
	MovementTicketConsumption   MovementKind = "TICKET_CONSUMPTION"
	MovementTicketReintegration MovementKind = "TICKET_REINTEGRATION"
)

// Sign is +1 for kinds that add stock and -1 for kinds that remove it.
func (k MovementKind) Sign() int {
	switch k {
	case MovementManualDecrease, MovementTicketConsumption:
		return -1
	default:
		return 1
	}
}

func (k MovementKind) Valid() bool {
	switch k {
	case MovementPurchaseReceipt, MovementManualIncrease, MovementManualDecrease,
		MovementTicketConsumption, MovementTicketReintegration:
		return true
	}
	return false
}

// StockMovement is an append-only audit record of one change to a part's quantity.
type StockMovement struct {
	ID             int64        `json:"id" db:"id"`
	PartID         int64        `json:"part_id" db:"part_id"`
	Kind           MovementKind `json:"kind" db:"kind"`
	Quantity       int          `json:"quantity" db:"quantity"`
	QuantityBefore int          `json:"quantity_before" db:"quantity_before"`
	QuantityAfter  int          `json:"quantity_after" db:"quantity_after"`
	TicketID       *int64       `json:"ticket_id,omitempty" db:"ticket_id"`
	PurchaseID     *int64       `json:"purchase_id,omitempty" db:"purchase_id"`
	UserID         *int64       `json:"user_id,omitempty" db:"user_id"`
	Reason         *string      `json:"reason,omitempty" db:"reason"`
	CreatedAt      time.Time    `json:"created_at" db:"created_at"`
	PartCode       string       `json:"part_code,omitempty"`
	PartName       string       `json:"part_name,omitempty"`
}

// MovementRef carries what caused a movement.
type MovementRef struct {
	TicketID   *int64
	PurchaseID *int64
	UserID     *int64
	Reason     string
}

// MovementFilters defines the available filters for querying stock movements.
type MovementFilters struct {
	PartID     *int64        `form:"part_id"`
	TicketID   *int64        `form:"ticket_id"`
	PurchaseID *int64        `form:"purchase_id"`
	Kind       *MovementKind `form:"kind"`
	From       *time.Time    `form:"from" time_format:"2006-01-02"`
	To         *time.Time    `form:"to" time_format:"2006-01-02"`
	Page       int           `form:"page"`
	PageSize   int           `form:"page_size"`
}
