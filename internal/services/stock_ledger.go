package services

import (
	"context"

	"repair_shop_backend/internal/metrics"
	"repair_shop_backend/internal/models"
	"repair_shop_backend/internal/repositories"
	"repair_shop_backend/pkg/apperrors"
	"repair_shop_backend/pkg/utils"
)

// StockLedger is the only writer of part quantities. Both operations run inside
// the caller's transaction, lock the part row, and append one StockMovement.
type StockLedger interface {
	Decrease(ctx context.Context, tx repositories.SQLExecutor, partID int64, qty int, kind models.MovementKind, ref models.MovementRef) (*models.StockMovement, error)
	Increase(ctx context.Context, tx repositories.SQLExecutor, partID int64, qty int, kind models.MovementKind, ref models.MovementRef) (*models.StockMovement, error)
}

type stockLedger struct {
	partRepo     repositories.PartRepository
	movementRepo repositories.StockMovementRepository
	metrics      *metrics.Metrics
}

// NewStockLedger creates a new StockLedger.
func NewStockLedger(partRepo repositories.PartRepository, movementRepo repositories.StockMovementRepository, m *metrics.Metrics) StockLedger {
	return &stockLedger{partRepo: partRepo, movementRepo: movementRepo, metrics: m}
}

func (l *stockLedger) Decrease(ctx context.Context, tx repositories.SQLExecutor, partID int64, qty int, kind models.MovementKind, ref models.MovementRef) (*models.StockMovement, error) {
	if kind.Sign() >= 0 {
		return nil, apperrors.Validation("movement kind %s does not decrease stock", kind)
	}
	return l.apply(ctx, tx, partID, qty, kind, ref)
}

func (l *stockLedger) Increase(ctx context.Context, tx repositories.SQLExecutor, partID int64, qty int, kind models.MovementKind, ref models.MovementRef) (*models.StockMovement, error) {
	if !kind.Valid() || kind.Sign() <= 0 {
		return nil, apperrors.Validation("movement kind %s does not increase stock", kind)
	}
	return l.apply(ctx, tx, partID, qty, kind, ref)
}

func (l *stockLedger) apply(ctx context.Context, tx repositories.SQLExecutor, partID int64, qty int, kind models.MovementKind, ref models.MovementRef) (*models.StockMovement, error) {
	if qty <= 0 {
		return nil, apperrors.Validation("quantity must be greater than zero, got %d", qty)
	}

	part, err := l.partRepo.GetByIDForUpdate(ctx, tx, partID)
	if err != nil {
		return nil, mapRepoErr(err, "part", partID)
	}

	before := part.Quantity
	after := before + kind.Sign()*qty
	if after < 0 {
		l.metrics.RecordInsufficientStock()
		return nil, apperrors.InsufficientStock(part.ID, part.Code, before, qty)
	}

	if err := l.partRepo.SetQuantity(ctx, tx, part.ID, after); err != nil {
		return nil, mapRepoErr(err, "part", part.ID)
	}

	movement := &models.StockMovement{
		PartID:         part.ID,
		Kind:           kind,
		Quantity:       qty,
		QuantityBefore: before,
		QuantityAfter:  after,
		TicketID:       ref.TicketID,
		PurchaseID:     ref.PurchaseID,
		UserID:         ref.UserID,
		PartCode:       part.Code,
		PartName:       part.Name,
	}
	movement.Reason = utils.NewNullString(ref.Reason)
	if err := l.movementRepo.Create(ctx, tx, movement); err != nil {
		return nil, mapRepoErr(err, "stock movement", part.ID)
	}

	l.metrics.RecordMovement(string(kind), qty)
	utils.LogDebug("Stock movement recorded", map[string]interface{}{
		"part_id": part.ID,
		"kind":    string(kind),
		"qty":     qty,
		"before":  before,
		"after":   after,
	})
	return movement, nil
}
