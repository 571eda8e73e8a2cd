package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"repair_shop_backend/internal/models"
	"repair_shop_backend/internal/repositories"
	"repair_shop_backend/pkg/apperrors"
	"repair_shop_backend/pkg/utils"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// Stock adjustment directions.
const (
	AdjustIn  = "IN"
	AdjustOut = "OUT"
)

const movementSheet = "Movements"

// --- Part DTOs ---
type CreatePartRequest struct {
	Code            string          `json:"code" binding:"required"`
	Name            string          `json:"name" binding:"required"`
	Category        *string         `json:"category"`
	Description     *string         `json:"description"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
	SalePrice       decimal.Decimal `json:"sale_price"`
	MinQuantity     int             `json:"min_quantity" binding:"min=0"`
	InitialQuantity int             `json:"initial_quantity" binding:"min=0"`
}

type UpdatePartRequest struct {
	Code        *string          `json:"code"`
	Name        *string          `json:"name"`
	Category    *string          `json:"category"`
	Description *string          `json:"description"`
	UnitCost    *decimal.Decimal `json:"unit_cost"`
	SalePrice   *decimal.Decimal `json:"sale_price"`
	MinQuantity *int             `json:"min_quantity" binding:"omitempty,min=0"`
	IsActive    *bool            `json:"is_active"`
}

type AdjustStockRequest struct {
	Direction string `json:"direction" binding:"required,adjustdirection"`
	Quantity  int    `json:"quantity" binding:"required,gt=0"`
	Reason    string `json:"reason" binding:"required"`
}

// PartService is the parts catalog plus manual stock adjustments and the movement audit.
type PartService interface {
	CreatePart(ctx context.Context, req CreatePartRequest) (*models.Part, error)
	GetPart(ctx context.Context, id int64) (*models.Part, error)
	ListParts(ctx context.Context, filters models.PartFilters) ([]models.Part, int, error)
	UpdatePart(ctx context.Context, id int64, req UpdatePartRequest) (*models.Part, error)
	LowStock(ctx context.Context) ([]models.Part, error)
	OutOfStock(ctx context.Context) ([]models.Part, error)
	AdjustStock(ctx context.Context, id int64, req AdjustStockRequest) (*models.StockMovement, error)
	ListMovements(ctx context.Context, filters models.MovementFilters) ([]models.StockMovement, int, error)
	ExportMovements(ctx context.Context, filters models.MovementFilters, w io.Writer) error
}

type partService struct {
	tx           repositories.Transactor
	partRepo     repositories.PartRepository
	movementRepo repositories.StockMovementRepository
	ledger       StockLedger
}

// NewPartService creates a new instance of PartService.
func NewPartService(
	tx repositories.Transactor,
	partRepo repositories.PartRepository,
	movementRepo repositories.StockMovementRepository,
	ledger StockLedger,
) PartService {
	return &partService{tx: tx, partRepo: partRepo, movementRepo: movementRepo, ledger: ledger}
}

func validatePrices(cost, price decimal.Decimal) error {
	if cost.IsNegative() {
		return apperrors.Validation("unit cost cannot be negative")
	}
	if price.IsNegative() {
		return apperrors.Validation("sale price cannot be negative")
	}
	return nil
}

// CreatePart registers a part. An initial quantity goes through the ledger
// so the opening balance has a movement like any other change.
func (s *partService) CreatePart(ctx context.Context, req CreatePartRequest) (*models.Part, error) {
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	name := strings.TrimSpace(req.Name)
	if code == "" || name == "" {
		return nil, apperrors.Validation("part code and name are required")
	}
	if err := validatePrices(req.UnitCost, req.SalePrice); err != nil {
		return nil, err
	}
	if req.MinQuantity < 0 || req.InitialQuantity < 0 {
		return nil, apperrors.Validation("quantities cannot be negative")
	}

	part := &models.Part{
		Code:        code,
		Name:        name,
		Category:    utils.TrimmedPtr(req.Category),
		Description: utils.TrimmedPtr(req.Description),
		UnitCost:    req.UnitCost,
		SalePrice:   req.SalePrice,
		MinQuantity: req.MinQuantity,
		IsActive:    true,
	}
	err := s.tx.WithinTx(ctx, func(tx repositories.SQLExecutor) error {
		if err := s.partRepo.Create(ctx, tx, part); err != nil {
			if errors.Is(err, repositories.ErrDuplicateKey) {
				return apperrors.Validation("part code %s is already in use", code).WithCause(err)
			}
			return mapRepoErr(err, "part", code)
		}
		if req.InitialQuantity == 0 {
			return nil
		}
		m, err := s.ledger.Increase(ctx, tx, part.ID, req.InitialQuantity, models.MovementManualIncrease,
			models.MovementRef{UserID: utils.ActorID(ctx), Reason: "opening balance"})
		if err != nil {
			return err
		}
		part.Quantity = m.QuantityAfter
		return nil
	})
	if err != nil {
		return nil, err
	}
	return part, nil
}

func (s *partService) GetPart(ctx context.Context, id int64) (*models.Part, error) {
	part, err := s.partRepo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, mapRepoErr(err, "part", id)
	}
	return part, nil
}

func (s *partService) ListParts(ctx context.Context, filters models.PartFilters) ([]models.Part, int, error) {
	if filters.Page <= 0 {
		filters.Page = 1
	}
	if filters.PageSize <= 0 {
		filters.PageSize = 20
	}
	parts, total, err := s.partRepo.List(ctx, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list parts: %w", err)
	}
	return parts, total, nil
}

func (s *partService) UpdatePart(ctx context.Context, id int64, req UpdatePartRequest) (*models.Part, error) {
	var part *models.Part
	err := s.tx.WithinTx(ctx, func(tx repositories.SQLExecutor) error {
		p, err := s.partRepo.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return mapRepoErr(err, "part", id)
		}
		if req.Code != nil {
			if p.Code = strings.ToUpper(strings.TrimSpace(*req.Code)); p.Code == "" {
				return apperrors.Validation("part code cannot be empty")
			}
		}
		if req.Name != nil {
			if p.Name = strings.TrimSpace(*req.Name); p.Name == "" {
				return apperrors.Validation("part name cannot be empty")
			}
		}
		if req.Category != nil {
			p.Category = utils.TrimmedPtr(req.Category)
		}
		if req.Description != nil {
			p.Description = utils.TrimmedPtr(req.Description)
		}
		if req.UnitCost != nil {
			p.UnitCost = *req.UnitCost
		}
		if req.SalePrice != nil {
			p.SalePrice = *req.SalePrice
		}
		if req.MinQuantity != nil {
			if *req.MinQuantity < 0 {
				return apperrors.Validation("minimum quantity cannot be negative")
			}
			p.MinQuantity = *req.MinQuantity
		}
		if req.IsActive != nil {
			p.IsActive = *req.IsActive
		}
		if err := validatePrices(p.UnitCost, p.SalePrice); err != nil {
			return err
		}
		if err := s.partRepo.Update(ctx, tx, p); err != nil {
			return mapRepoErr(err, "part", id)
		}
		part = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return part, nil
}

func (s *partService) LowStock(ctx context.Context) ([]models.Part, error) {
	parts, err := s.partRepo.ListLowStock(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list low stock parts: %w", err)
	}
	return parts, nil
}

func (s *partService) OutOfStock(ctx context.Context) ([]models.Part, error) {
	parts, err := s.partRepo.ListOutOfStock(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list out of stock parts: %w", err)
	}
	return parts, nil
}

// AdjustStock records a manual correction made by the caller.
func (s *partService) AdjustStock(ctx context.Context, id int64, req AdjustStockRequest) (*models.StockMovement, error) {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, apperrors.Validation("adjustment reason cannot be empty")
	}
	ref := models.MovementRef{UserID: utils.ActorID(ctx), Reason: reason}

	var movement *models.StockMovement
	err := s.tx.WithinTx(ctx, func(tx repositories.SQLExecutor) error {
		var err error
		switch strings.ToUpper(req.Direction) {
		case AdjustIn:
			movement, err = s.ledger.Increase(ctx, tx, id, req.Quantity, models.MovementManualIncrease, ref)
		case AdjustOut:
			movement, err = s.ledger.Decrease(ctx, tx, id, req.Quantity, models.MovementManualDecrease, ref)
		default:
			err = apperrors.Validation("direction must be %s or %s", AdjustIn, AdjustOut)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	utils.LogInfo("Manual stock adjustment", map[string]interface{}{
		"part_id":  id,
		"kind":     string(movement.Kind),
		"quantity": movement.Quantity,
		"after":    movement.QuantityAfter,
	})
	return movement, nil
}

func (s *partService) ListMovements(ctx context.Context, filters models.MovementFilters) ([]models.StockMovement, int, error) {
	if filters.Page <= 0 {
		filters.Page = 1
	}
	if filters.PageSize <= 0 {
		filters.PageSize = 50
	}
	if filters.Kind != nil && !filters.Kind.Valid() {
		return nil, 0, apperrors.Validation("unknown movement kind %q", *filters.Kind)
	}
	movements, total, err := s.movementRepo.List(ctx, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list stock movements: %w", err)
	}
	return movements, total, nil
}

// ExportMovements writes every movement matching filters as an xlsx workbook.
func (s *partService) ExportMovements(ctx context.Context, filters models.MovementFilters, w io.Writer) error {
	filters.Page, filters.PageSize = 1, 0
	movements, _, err := s.movementRepo.List(ctx, filters)
	if err != nil {
		return fmt.Errorf("failed to load stock movements: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", movementSheet); err != nil {
		return fmt.Errorf("failed to prepare workbook: %w", err)
	}

	headers := []interface{}{"Date", "Part Code", "Part Name", "Kind", "Quantity", "Before", "After", "Ticket", "Purchase", "User", "Reason"}
	if err := f.SetSheetRow(movementSheet, "A1", &headers); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i, m := range movements {
		row := []interface{}{
			m.CreatedAt.Format("2006-01-02 15:04:05"),
			m.PartCode,
			m.PartName,
			string(m.Kind),
			m.Kind.Sign() * m.Quantity,
			m.QuantityBefore,
			m.QuantityAfter,
			optionalID(m.TicketID),
			optionalID(m.PurchaseID),
			optionalID(m.UserID),
			optionalString(m.Reason),
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(movementSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write movement %d: %w", m.ID, err)
		}
	}
	return f.Write(w)
}

func optionalID(id *int64) interface{} {
	if id == nil {
		return ""
	}
	return *id
}

func optionalString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
