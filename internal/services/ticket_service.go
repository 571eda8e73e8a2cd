package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"repair_shop_backend/internal/metrics"
	"repair_shop_backend/internal/models"
	"repair_shop_backend/internal/notifications"
	"repair_shop_backend/internal/repositories"
	"repair_shop_backend/internal/ticketcode"
	"repair_shop_backend/internal/workflow"
	"repair_shop_backend/pkg/apperrors"
	"repair_shop_backend/pkg/utils"

	"github.com/shopspring/decimal"
)

const createTicketAttempts = 3

// --- Ticket DTOs ---
type CreateTicketRequest struct {
	ClientID      int64              `json:"client_id" binding:"required,gt=0"`
	ReportedFault string             `json:"reported_fault" binding:"required"`
	Accessories   *string            `json:"accessories"`
	Equipment     []models.Equipment `json:"equipment" binding:"dive"`
}

type AssignTechnicianRequest struct {
	TechnicianID int64 `json:"technician_id" binding:"required,gt=0"`
}

type DiagnosisRequest struct {
	Diagnosis     string           `json:"diagnosis" binding:"required"`
	LaborCost     decimal.Decimal  `json:"labor_cost"`
	PartsCost     *decimal.Decimal `json:"parts_cost"` // defaults to the sum of assigned parts
	EstimatedDays *int             `json:"estimated_days" binding:"omitempty,min=0"`
}

type ReasonRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type NoteRequest struct {
	Note string `json:"note" binding:"required"`
}

type TestResultRequest struct {
	Result string `json:"result" binding:"required"`
	Passed *bool  `json:"passed" binding:"required"`
}

type DeliverRequest struct {
	Notes *string `json:"notes"`
}

type DiscountRequest struct {
	Type   models.DiscountType `json:"type" binding:"required,oneof=PERCENTAGE AMOUNT"`
	Value  decimal.Decimal     `json:"value"`
	Reason string              `json:"reason" binding:"required"`
}

// TicketService drives repair tickets through the workflow. Every mutating
// operation locks the ticket row, checks the state, applies its changes and
// commits in one transaction; notifications go out after commit.
type TicketService interface {
	CreateTicket(ctx context.Context, req CreateTicketRequest) (*models.Ticket, error)
	GetTicket(ctx context.Context, id int64) (*models.Ticket, error)
	ListTickets(ctx context.Context, filters models.TicketFilters) ([]models.Ticket, int, error)
	LookupByCode(ctx context.Context, code string) (*models.TicketPublicView, error)
	AvailableTransitions(ctx context.Context, id int64) ([]models.StateOption, error)
	CanTransition(ctx context.Context, id int64, to models.TicketState) (bool, error)

	AssignTechnician(ctx context.Context, id int64, technicianID int64) (*models.Ticket, error)
	RecordDiagnosis(ctx context.Context, id int64, req DiagnosisRequest) (*models.Ticket, error)
	ApproveBudget(ctx context.Context, id int64) (*models.Ticket, error)
	RejectBudget(ctx context.Context, id int64, reason string) (*models.Ticket, error)
	StartRepair(ctx context.Context, id int64) (*models.Ticket, error)
	AddNote(ctx context.Context, id int64, note string) (*models.Ticket, error)
	CompleteRepair(ctx context.Context, id int64) (*models.Ticket, error)
	RecordTestResult(ctx context.Context, id int64, req TestResultRequest) (*models.Ticket, error)
	MarkReady(ctx context.Context, id int64) (*models.Ticket, error)
	Deliver(ctx context.Context, id int64, req DeliverRequest) (*models.Ticket, error)
	Cancel(ctx context.Context, id int64, reason string) (*models.Ticket, error)
	ApplyDiscount(ctx context.Context, id int64, req DiscountRequest) (*models.Ticket, error)
}

type ticketService struct {
	tx         repositories.Transactor
	ticketRepo repositories.TicketRepository
	clientRepo repositories.ClientRepository
	authRepo   repositories.AuthRepository
	usageRepo  repositories.PartUsageRepository
	parts      PartUsageService
	codes      *ticketcode.Generator
	notifier   notifications.Notifier
	metrics    *metrics.Metrics
	now        func() time.Time
}

// NewTicketService creates a new instance of TicketService. notifier may be nil.
func NewTicketService(
	tx repositories.Transactor,
	ticketRepo repositories.TicketRepository,
	clientRepo repositories.ClientRepository,
	authRepo repositories.AuthRepository,
	usageRepo repositories.PartUsageRepository,
	parts PartUsageService,
	codes *ticketcode.Generator,
	notifier notifications.Notifier,
	m *metrics.Metrics,
) TicketService {
	return &ticketService{
		tx:         tx,
		ticketRepo: ticketRepo,
		clientRepo: clientRepo,
		authRepo:   authRepo,
		usageRepo:  usageRepo,
		parts:      parts,
		codes:      codes,
		notifier:   notifier,
		metrics:    m,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *ticketService) CreateTicket(ctx context.Context, req CreateTicketRequest) (*models.Ticket, error) {
	principal, ok := utils.PrincipalFromContext(ctx)
	if !ok {
		return nil, apperrors.Precondition("ticket", "new", "opening a ticket requires an authenticated user")
	}
	fault := strings.TrimSpace(req.ReportedFault)
	if fault == "" {
		return nil, apperrors.Validation("reported fault cannot be empty")
	}
	for i, eq := range req.Equipment {
		if utils.IsEmpty(eq.Type) {
			return nil, apperrors.Validation("equipment %d: type cannot be empty", i+1)
		}
	}

	var ticket *models.Ticket
	var err error
	for attempt := 1; attempt <= createTicketAttempts; attempt++ {
		ticket, err = s.createOnce(ctx, principal.UserID, fault, req)
		if err == nil || !errors.Is(err, apperrors.ErrConflictRetryable) {
			break
		}
		utils.LogWarn(err, "Ticket code collision, retrying", map[string]interface{}{"attempt": attempt})
	}
	if err != nil {
		return nil, err
	}

	s.metrics.RecordTicketCreated()
	utils.LogInfo("Ticket created", map[string]interface{}{
		"ticket_id": ticket.ID,
		"code":      ticket.Code,
		"client_id": ticket.ClientID,
	})
	s.notify(ctx, notifications.EventTicketCreated, ticket)
	return ticket, nil
}

func (s *ticketService) createOnce(ctx context.Context, userID int64, fault string, req CreateTicketRequest) (*models.Ticket, error) {
	ticket := &models.Ticket{
		State:         models.StateIntake,
		ClientID:      req.ClientID,
		IntakeUserID:  userID,
		ReportedFault: fault,
		Accessories:   utils.TrimmedPtr(req.Accessories),
		Equipment:     req.Equipment,
	}
	err := s.tx.WithinTx(ctx, func(tx repositories.SQLExecutor) error {
		exists, err := s.clientRepo.ExistsByID(ctx, tx, req.ClientID)
		if err != nil {
			return fmt.Errorf("failed to check client %d: %w", req.ClientID, err)
		}
		if !exists {
			return apperrors.NotFound("client", req.ClientID)
		}
		code, err := s.codes.Generate(ctx, tx)
		if err != nil {
			return err
		}
		ticket.Code = code
		if err := s.ticketRepo.Create(ctx, tx, ticket); err != nil {
			return mapRepoErr(err, "ticket", code)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

func (s *ticketService) GetTicket(ctx context.Context, id int64) (*models.Ticket, error) {
	ticket, err := s.ticketRepo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, mapRepoErr(err, "ticket", id)
	}
	if ticket.Equipment, err = s.ticketRepo.ListEquipment(ctx, nil, id); err != nil {
		return nil, fmt.Errorf("failed to load equipment of ticket %d: %w", id, err)
	}
	if ticket.Parts, err = s.usageRepo.ListByTicket(ctx, nil, id); err != nil {
		return nil, fmt.Errorf("failed to load parts of ticket %d: %w", id, err)
	}
	return ticket, nil
}

func (s *ticketService) ListTickets(ctx context.Context, filters models.TicketFilters) ([]models.Ticket, int, error) {
	if filters.Page <= 0 {
		filters.Page = 1
	}
	if filters.PageSize <= 0 {
		filters.PageSize = 20
	}
	if filters.State != nil && !filters.State.Valid() {
		return nil, 0, apperrors.Validation("unknown ticket state %q", *filters.State)
	}
	filters.Query = utils.TrimmedPtr(filters.Query)
	tickets, total, err := s.ticketRepo.List(ctx, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list tickets: %w", err)
	}
	return tickets, total, nil
}

func (s *ticketService) LookupByCode(ctx context.Context, code string) (*models.TicketPublicView, error) {
	normalized := ticketcode.Normalize(code)
	if !ticketcode.IsValidFormat(normalized) {
		return nil, apperrors.Validation("%q is not a ticket code", code)
	}
	ticket, err := s.ticketRepo.GetByCode(ctx, nil, normalized)
	if err != nil {
		return nil, mapRepoErr(err, "ticket", normalized)
	}
	equipment, err := s.ticketRepo.ListEquipment(ctx, nil, ticket.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load equipment of ticket %d: %w", ticket.ID, err)
	}
	return &models.TicketPublicView{
		Code:             ticket.Code,
		State:            ticket.State,
		StateName:        ticket.State.DisplayName(),
		StateDescription: ticket.State.Description(),
		Equipment:        equipment,
		Total:            ticket.Total,
		EstimatedDays:    ticket.EstimatedDays,
		CreatedAt:        ticket.CreatedAt,
		BudgetAt:         ticket.BudgetAt,
		DeliveredAt:      ticket.DeliveredAt,
	}, nil
}

func (s *ticketService) AvailableTransitions(ctx context.Context, id int64) ([]models.StateOption, error) {
	ticket, err := s.ticketRepo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, mapRepoErr(err, "ticket", id)
	}
	return workflow.Options(ticket.State), nil
}

func (s *ticketService) CanTransition(ctx context.Context, id int64, to models.TicketState) (bool, error) {
	ticket, err := s.ticketRepo.GetByID(ctx, nil, id)
	if err != nil {
		return false, mapRepoErr(err, "ticket", id)
	}
	return workflow.IsLegal(ticket.State, to), nil
}

func (s *ticketService) AssignTechnician(ctx context.Context, id int64, technicianID int64) (*models.Ticket, error) {
	return s.mutate(ctx, id, func(tx repositories.SQLExecutor, t *models.Ticket) error {
		if err := requireState(t, models.StateIntake, models.StateDiagnosing); err != nil {
			return err
		}
		user, err := s.authRepo.FindUserByID(ctx, tx, technicianID)
		if err != nil {
			return mapRepoErr(err, "user", technicianID)
		}
		if !user.IsTechnician() {
			return apperrors.Precondition("user", user.ID, "user %s is not a technician", user.Username)
		}
		if !user.IsActive {
			return apperrors.Precondition("user", user.ID, "technician %s is inactive", user.Username)
		}
		t.TechnicianID = &user.ID
		t.State = models.StateDiagnosing
		return nil
	})
}

func (s *ticketService) RecordDiagnosis(ctx context.Context, id int64, req DiagnosisRequest) (*models.Ticket, error) {
	ticket, err := s.mutate(ctx, id, func(tx repositories.SQLExecutor, t *models.Ticket) error {
		if err := requireState(t, models.StateDiagnosing, models.StateQuoted); err != nil {
			return err
		}
		if t.TechnicianID == nil {
			return apperrors.PreconditionInState("ticket", t.ID, string(t.State), "no technician assigned")
		}
		diagnosis := strings.TrimSpace(req.Diagnosis)
		if diagnosis == "" {
			return apperrors.Validation("diagnosis cannot be empty")
		}
		if req.LaborCost.IsNegative() {
			return apperrors.Validation("labor cost cannot be negative")
		}
		if req.EstimatedDays != nil && *req.EstimatedDays < 0 {
			return apperrors.Validation("estimated days cannot be negative")
		}

		partsCost := decimal.Zero
		if req.PartsCost != nil {
			if req.PartsCost.IsNegative() {
				return apperrors.Validation("parts cost cannot be negative")
			}
			partsCost = *req.PartsCost
		} else {
			usages, err := s.usageRepo.ListByTicket(ctx, tx, t.ID)
			if err != nil {
				return fmt.Errorf("failed to list parts of ticket %d: %w", t.ID, err)
			}
			partsCost = models.SumSubtotals(usages)
		}

		now := s.now()
		t.Diagnosis = &diagnosis
		t.LaborCost = decimal.NewNullDecimal(req.LaborCost)
		t.PartsCost = decimal.NewNullDecimal(partsCost)
		t.EstimatedDays = req.EstimatedDays
		setOnce(&t.BudgetAt, now)
		t.State = models.StateQuoted
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, notifications.EventBudgetQuoted, ticket)
	return ticket, nil
}

func (s *ticketService) ApproveBudget(ctx context.Context, id int64) (*models.Ticket, error) {
	return s.mutate(ctx, id, func(tx repositories.SQLExecutor, t *models.Ticket) error {
		if err := requireState(t, models.StateQuoted, models.StateApproved); err != nil {
			return err
		}
		if !t.Total.Valid {
			return apperrors.PreconditionInState("ticket", t.ID, string(t.State), "ticket has no budget total")
		}
		setOnce(&t.ClientResponseAt, s.now())
		t.State = models.StateApproved
		return s.parts.DecrementAll(ctx, tx, t)
	})
}

func (s *ticketService) RejectBudget(ctx context.Context, id int64, reason string) (*models.Ticket, error) {
	return s.mutate(ctx, id, func(tx repositories.SQLExecutor, t *models.Ticket) error {
		if err := requireState(t, models.StateQuoted, models.StateRejected); err != nil {
			return err
		}
		reason = strings.TrimSpace(reason)
		if reason == "" {
			return apperrors.Validation("rejection reason cannot be empty")
		}
		t.RejectionReason = &reason
		setOnce(&t.ClientResponseAt, s.now())
		t.State = models.StateRejected
		return nil
	})
}

func (s *ticketService) StartRepair(ctx context.Context, id int64) (*models.Ticket, error) {
	return s.mutate(ctx, id, func(tx repositories.SQLExecutor, t *models.Ticket) error {
		if err := requireState(t, models.StateApproved, models.StateRepairing); err != nil {
			return err
		}
		if t.TechnicianID == nil {
			return apperrors.PreconditionInState("ticket", t.ID, string(t.State), "no technician assigned")
		}
		setOnce(&t.RepairStartedAt, s.now())
		t.State = models.StateRepairing
		return nil
	})
}

func (s *ticketService) AddNote(ctx context.Context, id int64, note string) (*models.Ticket, error) {
	return s.mutate(ctx, id, func(tx repositories.SQLExecutor, t *models.Ticket) error {
		if t.State != models.StateRepairing {
			return apperrors.PreconditionInState("ticket", t.ID, string(t.State),
				"notes can only be added while the ticket is %s", models.StateRepairing)
		}
		note = strings.TrimSpace(note)
		if note == "" {
			return apperrors.Validation("note cannot be empty")
		}
		entry := fmt.Sprintf("--- %s ---\n%s", s.now().Format("2006-01-02 15:04"), note)
		if t.RepairNotes != nil && *t.RepairNotes != "" {
			entry = *t.RepairNotes + "\n\n" + entry
		}
		t.RepairNotes = &entry
		return nil
	})
}

func (s *ticketService) CompleteRepair(ctx context.Context, id int64) (*models.Ticket, error) {
	return s.mutate(ctx, id, func(tx repositories.SQLExecutor, t *models.Ticket) error {
		if err := requireState(t, models.StateRepairing, models.StateTesting); err != nil {
			return err
		}
		setOnce(&t.RepairEndedAt, s.now())
		t.State = models.StateTesting
		return nil
	})
}

func (s *ticketService) RecordTestResult(ctx context.Context, id int64, req TestResultRequest) (*models.Ticket, error) {
	passed := req.Passed != nil && *req.Passed
	target := models.StateRepairing
	if passed {
		target = models.StateReady
	}
	ticket, err := s.mutate(ctx, id, func(tx repositories.SQLExecutor, t *models.Ticket) error {
		if err := requireState(t, models.StateTesting, target); err != nil {
			return err
		}
		result := strings.TrimSpace(req.Result)
		if result == "" {
			return apperrors.Validation("test result cannot be empty")
		}
		t.TestResult = &result
		t.TestPassed = &passed
		t.State = target
		return nil
	})
	if err != nil {
		return nil, err
	}
	if passed {
		s.notify(ctx, notifications.EventReadyForPickup, ticket)
	}
	return ticket, nil
}

func (s *ticketService) MarkReady(ctx context.Context, id int64) (*models.Ticket, error) {
	ticket, err := s.mutate(ctx, id, func(tx repositories.SQLExecutor, t *models.Ticket) error {
		if err := requireState(t, models.StateTesting, models.StateReady); err != nil {
			return err
		}
		t.State = models.StateReady
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, notifications.EventReadyForPickup, ticket)
	return ticket, nil
}

func (s *ticketService) Deliver(ctx context.Context, id int64, req DeliverRequest) (*models.Ticket, error) {
	return s.mutate(ctx, id, func(tx repositories.SQLExecutor, t *models.Ticket) error {
		if err := requireState(t, models.StateReady, models.StateDelivered); err != nil {
			return err
		}
		t.DeliveryNotes = utils.TrimmedPtr(req.Notes)
		setOnce(&t.DeliveredAt, s.now())
		t.State = models.StateDelivered
		return nil
	})
}

func (s *ticketService) Cancel(ctx context.Context, id int64, reason string) (*models.Ticket, error) {
	return s.mutate(ctx, id, func(tx repositories.SQLExecutor, t *models.Ticket) error {
		if workflow.IsTerminal(t.State) {
			return workflow.Reject(t.ID, t.State, models.StateCancelled)
		}
		reason = strings.TrimSpace(reason)
		if reason == "" {
			return apperrors.Validation("cancellation reason cannot be empty")
		}
		t.CancellationReason = &reason
		t.State = models.StateCancelled
		returned, err := s.parts.ReintegrateAll(ctx, tx, t)
		if err != nil {
			return err
		}
		if returned > 0 {
			utils.LogInfo("Parts returned to stock on cancellation", map[string]interface{}{
				"ticket_id": t.ID,
				"usages":    returned,
			})
		}
		return nil
	})
}

func (s *ticketService) ApplyDiscount(ctx context.Context, id int64, req DiscountRequest) (*models.Ticket, error) {
	return s.mutate(ctx, id, func(tx repositories.SQLExecutor, t *models.Ticket) error {
		if t.State != models.StateDiagnosing && t.State != models.StateQuoted {
			return apperrors.PreconditionInState("ticket", t.ID, string(t.State),
				"discounts can only be applied while %s or %s", models.StateDiagnosing, models.StateQuoted)
		}
		switch req.Type {
		case models.DiscountPercentage:
			if req.Value.GreaterThan(decimal.NewFromInt(100)) {
				return apperrors.Validation("percentage discount cannot exceed 100")
			}
		case models.DiscountAmount:
		default:
			return apperrors.Validation("unknown discount type %q", req.Type)
		}
		if !req.Value.IsPositive() {
			return apperrors.Validation("discount value must be greater than zero")
		}
		reason := strings.TrimSpace(req.Reason)
		if reason == "" {
			return apperrors.Validation("discount reason cannot be empty")
		}
		dt := req.Type
		t.DiscountType = &dt
		t.DiscountValue = decimal.NewNullDecimal(req.Value)
		t.DiscountReason = &reason
		return nil
	})
}

// mutate loads and locks the ticket, applies fn, checks the resulting move
// against the transition table, re-derives totals and persists, all in one
// transaction.
func (s *ticketService) mutate(ctx context.Context, id int64, fn func(tx repositories.SQLExecutor, t *models.Ticket) error) (*models.Ticket, error) {
	var ticket *models.Ticket
	var from models.TicketState
	err := s.tx.WithinTx(ctx, func(tx repositories.SQLExecutor) error {
		t, err := s.ticketRepo.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return mapRepoErr(err, "ticket", id)
		}
		from = t.State
		if err := fn(tx, t); err != nil {
			return err
		}
		if err := workflow.Validate(t.ID, from, t.State); err != nil {
			return err
		}
		t.RecalculateTotals()
		if err := s.ticketRepo.Update(ctx, tx, t); err != nil {
			return mapRepoErr(err, "ticket", id)
		}
		ticket = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	if from != ticket.State {
		s.metrics.RecordTransition(string(from), string(ticket.State))
		utils.LogInfo("Ticket state changed", map[string]interface{}{
			"ticket_id": ticket.ID,
			"code":      ticket.Code,
			"from":      string(from),
			"to":        string(ticket.State),
		})
	}
	return ticket, nil
}

// notify sends an event after commit. Failures never reach the caller.
func (s *ticketService) notify(ctx context.Context, kind notifications.EventKind, ticket *models.Ticket) {
	if s.notifier == nil {
		return
	}
	client, err := s.clientRepo.GetClientByID(ctx, nil, ticket.ClientID)
	if err != nil {
		utils.LogWarn(err, "Could not load client for notification", map[string]interface{}{"ticket_id": ticket.ID})
		client = nil
	}
	event := notifications.NewTicketEvent(kind, ticket, client)
	err = s.notifier.Notify(context.WithoutCancel(ctx), event)
	s.metrics.RecordNotification(string(kind), err)
	if err != nil {
		utils.LogWarn(err, "Notification not sent", map[string]interface{}{
			"event":     string(kind),
			"ticket_id": ticket.ID,
		})
	}
}

// requireState rejects the move to target unless the ticket is in required.
func requireState(t *models.Ticket, required, target models.TicketState) error {
	if t.State != required {
		return workflow.Reject(t.ID, t.State, target)
	}
	return nil
}

func setOnce(field **time.Time, now time.Time) {
	if *field == nil {
		*field = &now
	}
}
