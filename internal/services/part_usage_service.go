package services

import (
	"context"
	"fmt"

	"repair_shop_backend/internal/metrics"
	"repair_shop_backend/internal/models"
	"repair_shop_backend/internal/repositories"
	"repair_shop_backend/internal/workflow"
	"repair_shop_backend/pkg/apperrors"
	"repair_shop_backend/pkg/utils"

	"github.com/shopspring/decimal"
)

// --- Part usage DTOs ---
type AssignPartRequest struct {
	PartID    int64            `json:"part_id" binding:"required,gt=0"`
	Quantity  int              `json:"quantity" binding:"required,gt=0"`
	UnitPrice *decimal.Decimal `json:"unit_price"`
	Notes     *string          `json:"notes"`
}

type UpdateUsageQuantityRequest struct {
	Quantity int `json:"quantity" binding:"required,gt=0"`
}

// PartUsageService tracks parts assigned to tickets and keeps the deducted
// flag of every usage in step with the stock ledger.
type PartUsageService interface {
	AssignPart(ctx context.Context, ticketID int64, req AssignPartRequest) (*models.PartUsage, error)
	RemoveUsage(ctx context.Context, usageID int64) error
	UpdateQuantity(ctx context.Context, usageID int64, quantity int) (*models.PartUsage, error)
	ListUsages(ctx context.Context, ticketID int64) ([]models.PartUsage, error)

	// DecrementAll deducts stock for every usage of the ticket not yet deducted.
	// The first failure is returned and the caller must roll back.
	DecrementAll(ctx context.Context, tx repositories.SQLExecutor, ticket *models.Ticket) error
	// ReintegrateAll returns stock for every deducted usage. A failing record is
	// logged and skipped; the count of reintegrated records is returned.
	ReintegrateAll(ctx context.Context, tx repositories.SQLExecutor, ticket *models.Ticket) (int, error)
}

type partUsageService struct {
	tx         repositories.Transactor
	ticketRepo repositories.TicketRepository
	partRepo   repositories.PartRepository
	usageRepo  repositories.PartUsageRepository
	ledger     StockLedger
	metrics    *metrics.Metrics
}

// NewPartUsageService creates a new instance of PartUsageService.
func NewPartUsageService(
	tx repositories.Transactor,
	ticketRepo repositories.TicketRepository,
	partRepo repositories.PartRepository,
	usageRepo repositories.PartUsageRepository,
	ledger StockLedger,
	m *metrics.Metrics,
) PartUsageService {
	return &partUsageService{
		tx:         tx,
		ticketRepo: ticketRepo,
		partRepo:   partRepo,
		usageRepo:  usageRepo,
		ledger:     ledger,
		metrics:    m,
	}
}

// stockHeld reports states in which assigned parts have already left the shelf.
func stockHeld(s models.TicketState) bool {
	switch s {
	case models.StateApproved, models.StateRepairing, models.StateTesting, models.StateReady:
		return true
	}
	return false
}

func (s *partUsageService) AssignPart(ctx context.Context, ticketID int64, req AssignPartRequest) (*models.PartUsage, error) {
	if req.Quantity <= 0 {
		return nil, apperrors.Validation("quantity must be greater than zero, got %d", req.Quantity)
	}
	if req.UnitPrice != nil && req.UnitPrice.IsNegative() {
		return nil, apperrors.Validation("unit price cannot be negative")
	}

	var usage *models.PartUsage
	err := s.tx.WithinTx(ctx, func(tx repositories.SQLExecutor) error {
		ticket, err := s.ticketRepo.GetByIDForUpdate(ctx, tx, ticketID)
		if err != nil {
			return mapRepoErr(err, "ticket", ticketID)
		}
		if ticket.State == models.StateRejected || workflow.IsTerminal(ticket.State) {
			return apperrors.PreconditionInState("ticket", ticket.ID, string(ticket.State),
				"parts cannot be assigned to a ticket in state %s", ticket.State)
		}

		part, err := s.partRepo.GetByID(ctx, tx, req.PartID)
		if err != nil {
			return mapRepoErr(err, "part", req.PartID)
		}
		if !part.IsActive {
			return apperrors.Precondition("part", part.ID, "part %s is inactive", part.Code)
		}
		if !part.HasStock(req.Quantity) {
			s.metrics.RecordInsufficientStock()
			return apperrors.InsufficientStock(part.ID, part.Code, part.Quantity, req.Quantity)
		}

		price := part.SalePrice
		if req.UnitPrice != nil {
			price = *req.UnitPrice
		}
		usage = &models.PartUsage{
			TicketID:  ticket.ID,
			PartID:    part.ID,
			UnitPrice: price,
			Notes:     utils.TrimmedPtr(req.Notes),
			PartCode:  part.Code,
			PartName:  part.Name,
		}
		usage.SetQuantity(req.Quantity)
		if err := s.usageRepo.Create(ctx, tx, usage); err != nil {
			return mapRepoErr(err, "part usage", part.ID)
		}

		if stockHeld(ticket.State) {
			if err := s.DecrementAll(ctx, tx, ticket); err != nil {
				return err
			}
			usage.StockDeducted = true
		}
		return s.refreshPartsCost(ctx, tx, ticket)
	})
	if err != nil {
		return nil, err
	}

	utils.LogInfo("Part assigned to ticket", map[string]interface{}{
		"ticket_id": ticketID,
		"part_id":   usage.PartID,
		"quantity":  usage.Quantity,
		"deducted":  usage.StockDeducted,
	})
	return usage, nil
}

func (s *partUsageService) RemoveUsage(ctx context.Context, usageID int64) error {
	return s.withLockedUsage(ctx, usageID, func(tx repositories.SQLExecutor, ticket *models.Ticket, usage *models.PartUsage) error {
		if usage.StockDeducted {
			_, err := s.ledger.Increase(ctx, tx, usage.PartID, usage.Quantity, models.MovementTicketReintegration, s.ticketRef(ctx, ticket, "part removed from ticket"))
			if err != nil {
				return err
			}
		}
		if err := s.usageRepo.Delete(ctx, tx, usage.ID); err != nil {
			return mapRepoErr(err, "part usage", usage.ID)
		}
		return s.refreshPartsCost(ctx, tx, ticket)
	})
}

func (s *partUsageService) UpdateQuantity(ctx context.Context, usageID int64, quantity int) (*models.PartUsage, error) {
	if quantity <= 0 {
		return nil, apperrors.Validation("quantity must be greater than zero, got %d", quantity)
	}

	var updated *models.PartUsage
	err := s.withLockedUsage(ctx, usageID, func(tx repositories.SQLExecutor, ticket *models.Ticket, usage *models.PartUsage) error {
		delta := quantity - usage.Quantity
		switch {
		case delta == 0:
		case usage.StockDeducted && delta > 0:
			if _, err := s.ledger.Decrease(ctx, tx, usage.PartID, delta, models.MovementTicketConsumption, s.ticketRef(ctx, ticket, "usage quantity increased")); err != nil {
				return err
			}
		case usage.StockDeducted && delta < 0:
			if _, err := s.ledger.Increase(ctx, tx, usage.PartID, -delta, models.MovementTicketReintegration, s.ticketRef(ctx, ticket, "usage quantity reduced")); err != nil {
				return err
			}
		default:
			part, err := s.partRepo.GetByID(ctx, tx, usage.PartID)
			if err != nil {
				return mapRepoErr(err, "part", usage.PartID)
			}
			if !part.HasStock(quantity) {
				s.metrics.RecordInsufficientStock()
				return apperrors.InsufficientStock(part.ID, part.Code, part.Quantity, quantity)
			}
		}

		usage.SetQuantity(quantity)
		if err := s.usageRepo.Update(ctx, tx, usage); err != nil {
			return mapRepoErr(err, "part usage", usage.ID)
		}
		updated = usage
		return s.refreshPartsCost(ctx, tx, ticket)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *partUsageService) ListUsages(ctx context.Context, ticketID int64) ([]models.PartUsage, error) {
	if _, err := s.ticketRepo.GetByID(ctx, nil, ticketID); err != nil {
		return nil, mapRepoErr(err, "ticket", ticketID)
	}
	usages, err := s.usageRepo.ListByTicket(ctx, nil, ticketID)
	if err != nil {
		return nil, fmt.Errorf("failed to list parts of ticket %d: %w", ticketID, err)
	}
	return usages, nil
}

func (s *partUsageService) DecrementAll(ctx context.Context, tx repositories.SQLExecutor, ticket *models.Ticket) error {
	usages, err := s.usageRepo.ListByTicket(ctx, tx, ticket.ID)
	if err != nil {
		return fmt.Errorf("failed to list parts of ticket %d: %w", ticket.ID, err)
	}
	ref := s.ticketRef(ctx, ticket, "")
	for i := range usages {
		u := &usages[i]
		if u.StockDeducted {
			continue
		}
		if _, err := s.ledger.Decrease(ctx, tx, u.PartID, u.Quantity, models.MovementTicketConsumption, ref); err != nil {
			return err
		}
		u.StockDeducted = true
		if err := s.usageRepo.Update(ctx, tx, u); err != nil {
			return mapRepoErr(err, "part usage", u.ID)
		}
	}
	return nil
}

func (s *partUsageService) ReintegrateAll(ctx context.Context, tx repositories.SQLExecutor, ticket *models.Ticket) (int, error) {
	usages, err := s.usageRepo.ListByTicket(ctx, tx, ticket.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to list parts of ticket %d: %w", ticket.ID, err)
	}
	ref := s.ticketRef(ctx, ticket, "ticket cancelled")
	done := 0
	for i := range usages {
		u := &usages[i]
		if !u.StockDeducted {
			continue
		}
		err := s.tx.Savepoint(ctx, tx, fmt.Sprintf("reintegrate_%d", u.ID), func() error {
			if _, err := s.ledger.Increase(ctx, tx, u.PartID, u.Quantity, models.MovementTicketReintegration, ref); err != nil {
				return err
			}
			u.StockDeducted = false
			return mapRepoErr(s.usageRepo.Update(ctx, tx, u), "part usage", u.ID)
		})
		if err != nil {
			u.StockDeducted = true
			s.metrics.RecordReintegrationError()
			utils.LogError(err, "Failed to reintegrate part, skipping", map[string]interface{}{
				"ticket_id": ticket.ID,
				"usage_id":  u.ID,
				"part_id":   u.PartID,
				"quantity":  u.Quantity,
			})
			continue
		}
		done++
	}
	return done, nil
}

// withLockedUsage locks the owning ticket and re-reads the usage under that lock.
func (s *partUsageService) withLockedUsage(ctx context.Context, usageID int64, fn func(tx repositories.SQLExecutor, ticket *models.Ticket, usage *models.PartUsage) error) error {
	return s.tx.WithinTx(ctx, func(tx repositories.SQLExecutor) error {
		owner, err := s.usageRepo.GetByID(ctx, tx, usageID)
		if err != nil {
			return mapRepoErr(err, "part usage", usageID)
		}
		ticket, err := s.ticketRepo.GetByIDForUpdate(ctx, tx, owner.TicketID)
		if err != nil {
			return mapRepoErr(err, "ticket", owner.TicketID)
		}
		if workflow.IsTerminal(ticket.State) {
			return apperrors.PreconditionInState("ticket", ticket.ID, string(ticket.State),
				"parts of a ticket in state %s can no longer change", ticket.State)
		}
		usage, err := s.usageRepo.GetByID(ctx, tx, usageID)
		if err != nil {
			return mapRepoErr(err, "part usage", usageID)
		}
		return fn(tx, ticket, usage)
	})
}

// refreshPartsCost re-derives the ticket's parts cost from its usages once a
// budget exists, then persists the totals.
func (s *partUsageService) refreshPartsCost(ctx context.Context, tx repositories.SQLExecutor, ticket *models.Ticket) error {
	if ticket.BudgetAt == nil {
		return nil
	}
	usages, err := s.usageRepo.ListByTicket(ctx, tx, ticket.ID)
	if err != nil {
		return fmt.Errorf("failed to list parts of ticket %d: %w", ticket.ID, err)
	}
	ticket.PartsCost = decimal.NewNullDecimal(models.SumSubtotals(usages))
	ticket.RecalculateTotals()
	if err := s.ticketRepo.Update(ctx, tx, ticket); err != nil {
		return mapRepoErr(err, "ticket", ticket.ID)
	}
	return nil
}

func (s *partUsageService) ticketRef(ctx context.Context, ticket *models.Ticket, reason string) models.MovementRef {
	id := ticket.ID
	if reason == "" {
		reason = "ticket " + ticket.Code
	}
	return models.MovementRef{TicketID: &id, UserID: utils.ActorID(ctx), Reason: reason}
}
