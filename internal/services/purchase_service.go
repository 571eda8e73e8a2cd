package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"repair_shop_backend/internal/models"
	"repair_shop_backend/internal/repositories"
	"repair_shop_backend/internal/ticketcode"
	"repair_shop_backend/pkg/apperrors"
	"repair_shop_backend/pkg/utils"

	"github.com/shopspring/decimal"
)

// --- Purchase DTOs ---
type PurchaseLineRequest struct {
	PartID   int64           `json:"part_id" binding:"required,gt=0"`
	Quantity int             `json:"quantity" binding:"required,gt=0"`
	UnitCost decimal.Decimal `json:"unit_cost"`
}

type CreatePurchaseRequest struct {
	Supplier string                `json:"supplier" binding:"required"`
	Notes    *string               `json:"notes"`
	Lines    []PurchaseLineRequest `json:"lines" binding:"required,min=1,dive"`
}

// PurchaseService manages supplier purchases. Receiving a purchase is the
// only way purchased stock enters the ledger.
type PurchaseService interface {
	CreatePurchase(ctx context.Context, req CreatePurchaseRequest) (*models.Purchase, error)
	GetPurchase(ctx context.Context, id int64) (*models.Purchase, error)
	ListPurchases(ctx context.Context, filters models.PurchaseFilters) ([]models.Purchase, int, error)
	Receive(ctx context.Context, id int64) (*models.Purchase, error)
	Cancel(ctx context.Context, id int64, reason string) (*models.Purchase, error)
}

type purchaseService struct {
	tx           repositories.Transactor
	purchaseRepo repositories.PurchaseRepository
	partRepo     repositories.PartRepository
	ledger       StockLedger
	codes        *ticketcode.Generator
	now          func() time.Time
}

// NewPurchaseService creates a new instance of PurchaseService.
func NewPurchaseService(
	tx repositories.Transactor,
	purchaseRepo repositories.PurchaseRepository,
	partRepo repositories.PartRepository,
	ledger StockLedger,
	codes *ticketcode.Generator,
) PurchaseService {
	return &purchaseService{
		tx:           tx,
		purchaseRepo: purchaseRepo,
		partRepo:     partRepo,
		ledger:       ledger,
		codes:        codes,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *purchaseService) CreatePurchase(ctx context.Context, req CreatePurchaseRequest) (*models.Purchase, error) {
	supplier := strings.TrimSpace(req.Supplier)
	if supplier == "" {
		return nil, apperrors.Validation("supplier cannot be empty")
	}
	if len(req.Lines) == 0 {
		return nil, apperrors.Validation("a purchase needs at least one line")
	}

	purchase := &models.Purchase{
		Supplier:  supplier,
		State:     models.PurchasePending,
		Notes:     utils.TrimmedPtr(req.Notes),
		CreatedBy: utils.ActorID(ctx),
		Total:     decimal.Zero,
	}
	for i, l := range req.Lines {
		if l.Quantity <= 0 {
			return nil, apperrors.Validation("line %d: quantity must be greater than zero", i+1)
		}
		if l.UnitCost.IsNegative() {
			return nil, apperrors.Validation("line %d: unit cost cannot be negative", i+1)
		}
		line := models.PurchaseLineItem{
			PartID:   l.PartID,
			Quantity: l.Quantity,
			UnitCost: l.UnitCost,
			Subtotal: l.UnitCost.Mul(decimal.NewFromInt(int64(l.Quantity))),
		}
		purchase.Total = purchase.Total.Add(line.Subtotal)
		purchase.Lines = append(purchase.Lines, line)
	}

	err := s.tx.WithinTx(ctx, func(tx repositories.SQLExecutor) error {
		for _, l := range purchase.Lines {
			if _, err := s.partRepo.GetByID(ctx, tx, l.PartID); err != nil {
				return mapRepoErr(err, "part", l.PartID)
			}
		}
		code, err := s.codes.Generate(ctx, tx)
		if err != nil {
			return err
		}
		purchase.Code = code
		return mapRepoErr(s.purchaseRepo.Create(ctx, tx, purchase), "purchase", code)
	})
	if err != nil {
		return nil, err
	}

	utils.LogInfo("Purchase created", map[string]interface{}{
		"purchase_id": purchase.ID,
		"code":        purchase.Code,
		"lines":       len(purchase.Lines),
	})
	return purchase, nil
}

func (s *purchaseService) GetPurchase(ctx context.Context, id int64) (*models.Purchase, error) {
	purchase, err := s.purchaseRepo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, mapRepoErr(err, "purchase", id)
	}
	return purchase, nil
}

func (s *purchaseService) ListPurchases(ctx context.Context, filters models.PurchaseFilters) ([]models.Purchase, int, error) {
	if filters.Page <= 0 {
		filters.Page = 1
	}
	if filters.PageSize <= 0 {
		filters.PageSize = 20
	}
	purchases, total, err := s.purchaseRepo.List(ctx, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list purchases: %w", err)
	}
	return purchases, total, nil
}

// Receive adds every line to stock and marks the purchase received, all or nothing.
func (s *purchaseService) Receive(ctx context.Context, id int64) (*models.Purchase, error) {
	var received *models.Purchase
	err := s.tx.WithinTx(ctx, func(tx repositories.SQLExecutor) error {
		purchase, err := s.purchaseRepo.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return mapRepoErr(err, "purchase", id)
		}
		if purchase.State != models.PurchasePending {
			return purchaseTransitionError(purchase, models.PurchaseReceived)
		}

		purchaseID := purchase.ID
		ref := models.MovementRef{PurchaseID: &purchaseID, UserID: utils.ActorID(ctx), Reason: "purchase " + purchase.Code}
		for _, line := range purchase.Lines {
			part, err := s.partRepo.GetByIDForUpdate(ctx, tx, line.PartID)
			if err != nil {
				return mapRepoErr(err, "part", line.PartID)
			}
			if !part.UnitCost.Equal(line.UnitCost) {
				if err := s.partRepo.UpdateUnitCost(ctx, tx, part.ID, line.UnitCost); err != nil {
					return mapRepoErr(err, "part", part.ID)
				}
			}
			if _, err := s.ledger.Increase(ctx, tx, line.PartID, line.Quantity, models.MovementPurchaseReceipt, ref); err != nil {
				return err
			}
		}

		now := s.now()
		purchase.State = models.PurchaseReceived
		purchase.ReceivedAt = &now
		if err := s.purchaseRepo.UpdateState(ctx, tx, purchase); err != nil {
			return mapRepoErr(err, "purchase", purchase.ID)
		}
		received = purchase
		return nil
	})
	if err != nil {
		return nil, err
	}

	utils.LogInfo("Purchase received", map[string]interface{}{"purchase_id": received.ID, "code": received.Code})
	return received, nil
}

func (s *purchaseService) Cancel(ctx context.Context, id int64, reason string) (*models.Purchase, error) {
	var cancelled *models.Purchase
	err := s.tx.WithinTx(ctx, func(tx repositories.SQLExecutor) error {
		purchase, err := s.purchaseRepo.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return mapRepoErr(err, "purchase", id)
		}
		if purchase.State != models.PurchasePending {
			return purchaseTransitionError(purchase, models.PurchaseCancelled)
		}
		reason = strings.TrimSpace(reason)
		if reason == "" {
			return apperrors.Validation("cancellation reason cannot be empty")
		}
		purchase.State = models.PurchaseCancelled
		purchase.CancellationReason = &reason
		if err := s.purchaseRepo.UpdateState(ctx, tx, purchase); err != nil {
			return mapRepoErr(err, "purchase", purchase.ID)
		}
		cancelled = purchase
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

func purchaseTransitionError(p *models.Purchase, to models.PurchaseState) error {
	var legal []string
	if p.State == models.PurchasePending {
		legal = []string{string(models.PurchaseReceived), string(models.PurchaseCancelled)}
	}
	return apperrors.InvalidTransition("purchase", p.ID, string(p.State), string(to), legal)
}
