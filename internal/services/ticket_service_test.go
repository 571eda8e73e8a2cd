package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"repair_shop_backend/internal/models"
	"repair_shop_backend/internal/notifications"
	"repair_shop_backend/internal/ticketcode"
	"repair_shop_backend/pkg/apperrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

func TestCreateTicket(t *testing.T) {
	f := newFixture()

	ticket, err := f.tickets.CreateTicket(f.ctx, CreateTicketRequest{
		ClientID:      f.clientID,
		ReportedFault: "  Screen flickers ",
		Equipment:     []models.Equipment{{Type: "Monitor"}, {Type: "Cable"}},
	})
	require.NoError(t, err)

	assert.Equal(t, models.StateIntake, ticket.State)
	assert.Equal(t, "Screen flickers", ticket.ReportedFault)
	assert.True(t, ticketcode.IsValidFormat(ticket.Code), ticket.Code)
	assert.True(t, strings.HasPrefix(ticket.Code, ticketcode.DefaultTicketPrefix+"-"))
	assert.False(t, ticket.Total.Valid, "no budget before diagnosis")
	assert.Nil(t, ticket.BudgetAt)
	assert.Nil(t, ticket.DeliveredAt)
	assert.Len(t, ticket.Equipment, 2)
	assert.Equal(t, []notifications.EventKind{notifications.EventTicketCreated}, f.notifier.kinds())

	second := f.newTicket()
	assert.NotEqual(t, ticket.Code, second.Code)
}

func TestCreateTicket_Rejections(t *testing.T) {
	f := newFixture()

	_, err := f.tickets.CreateTicket(f.ctx, CreateTicketRequest{ClientID: 999, ReportedFault: "x"})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.tickets.CreateTicket(f.ctx, CreateTicketRequest{ClientID: f.clientID, ReportedFault: "   "})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = f.tickets.CreateTicket(context.Background(), CreateTicketRequest{ClientID: f.clientID, ReportedFault: "x"})
	assert.ErrorIs(t, err, apperrors.ErrPreconditionFailed)

	assert.Empty(t, f.notifier.kinds())
}

func TestCreateTicket_ConcurrentCodesAreUnique(t *testing.T) {
	f := newFixture()
	const n = 50

	codes := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticket, err := f.tickets.CreateTicket(f.ctx, CreateTicketRequest{ClientID: f.clientID, ReportedFault: "noise"})
			if assert.NoError(t, err) {
				codes <- ticket.Code
			}
		}()
	}
	wg.Wait()
	close(codes)

	seen := map[string]bool{}
	for c := range codes {
		assert.False(t, seen[c], "duplicate code %s", c)
		seen[c] = true
	}
	assert.Len(t, seen, n)
}

func TestCreateTicket_SkipsCodesIssuedElsewhere(t *testing.T) {
	f := newFixture()
	day := time.Now()
	f.store.mu.Lock()
	for seq := int64(1); seq <= 10; seq++ {
		id := f.store.id()
		f.store.data.tickets[id] = models.Ticket{
			ID:       id,
			Code:     ticketcode.Format(ticketcode.DefaultTicketPrefix, day, seq),
			State:    models.StateIntake,
			ClientID: f.clientID,
		}
	}
	f.store.mu.Unlock()

	for i := int64(11); i <= 15; i++ {
		ticket, err := f.tickets.CreateTicket(f.ctx, CreateTicketRequest{ClientID: f.clientID, ReportedFault: "imported day"})
		require.NoError(t, err)
		assert.Equal(t, ticketcode.Format(ticketcode.DefaultTicketPrefix, day, i), ticket.Code)
	}
}

// Full lifecycle with one part, ending in delivery.
func TestTicketLifecycle_HappyPath(t *testing.T) {
	f := newFixture()
	part := f.addPart("PSU-01", 5, "25.00")
	ticket := f.newTicket()

	ticket, err := f.tickets.AssignTechnician(f.ctx, ticket.ID, f.technicianID)
	require.NoError(t, err)
	assert.Equal(t, models.StateDiagnosing, ticket.State)

	_, err = f.usages.AssignPart(f.ctx, ticket.ID, AssignPartRequest{PartID: part.ID, Quantity: 2})
	require.NoError(t, err)

	days := 3
	ticket, err = f.tickets.RecordDiagnosis(f.ctx, ticket.ID, DiagnosisRequest{
		Diagnosis:     "Power supply failure",
		LaborCost:     dec("100"),
		EstimatedDays: &days,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StateQuoted, ticket.State)
	assert.True(t, dec("50").Equal(ticket.PartsCost.Decimal))
	assert.True(t, dec("150").Equal(ticket.Total.Decimal))
	assert.NotNil(t, ticket.BudgetAt)

	ticket, err = f.tickets.ApproveBudget(f.ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateApproved, ticket.State)
	assert.NotNil(t, ticket.ClientResponseAt)
	assert.Equal(t, 3, f.quantity(part.ID))

	ticket, err = f.tickets.StartRepair(f.ctx, ticket.ID)
	require.NoError(t, err)
	started := *ticket.RepairStartedAt

	ticket, err = f.tickets.AddNote(f.ctx, ticket.ID, "Replaced PSU")
	require.NoError(t, err)
	ticket, err = f.tickets.AddNote(f.ctx, ticket.ID, "Cleaned fans")
	require.NoError(t, err)
	require.NotNil(t, ticket.RepairNotes)
	assert.True(t, strings.HasPrefix(*ticket.RepairNotes, "--- "))
	assert.Contains(t, *ticket.RepairNotes, "---\nReplaced PSU\n\n--- ")
	assert.True(t, strings.HasSuffix(*ticket.RepairNotes, "---\nCleaned fans"))

	ticket, err = f.tickets.CompleteRepair(f.ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateTesting, ticket.State)

	ticket, err = f.tickets.RecordTestResult(f.ctx, ticket.ID, TestResultRequest{Result: "Boots fine", Passed: boolPtr(true)})
	require.NoError(t, err)
	assert.Equal(t, models.StateReady, ticket.State)

	notes := "Picked up by owner"
	ticket, err = f.tickets.Deliver(f.ctx, ticket.ID, DeliverRequest{Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, models.StateDelivered, ticket.State)
	assert.NotNil(t, ticket.DeliveredAt)
	assert.Equal(t, started, *ticket.RepairStartedAt)

	assert.Equal(t, []notifications.EventKind{
		notifications.EventTicketCreated,
		notifications.EventBudgetQuoted,
		notifications.EventReadyForPickup,
	}, f.notifier.kinds())

	opts, err := f.tickets.AvailableTransitions(f.ctx, ticket.ID)
	require.NoError(t, err)
	assert.Empty(t, opts)
}

func TestApproveBudget_InsufficientStockKeepsQuote(t *testing.T) {
	f := newFixture()
	part := f.addPart("GPU-01", 3, "200.00")
	ticket := f.newTicket()
	_, err := f.usages.AssignPart(f.ctx, ticket.ID, AssignPartRequest{PartID: part.ID, Quantity: 2})
	require.NoError(t, err)
	_, err = f.tickets.AssignTechnician(f.ctx, ticket.ID, f.technicianID)
	require.NoError(t, err)
	_, err = f.tickets.RecordDiagnosis(f.ctx, ticket.ID, DiagnosisRequest{Diagnosis: "GPU dead", LaborCost: dec("40")})
	require.NoError(t, err)

	_, err = f.parts.AdjustStock(f.ctx, part.ID, AdjustStockRequest{Direction: AdjustOut, Quantity: 2, Reason: "damaged in storage"})
	require.NoError(t, err)

	_, err = f.tickets.ApproveBudget(f.ctx, ticket.ID)
	require.ErrorIs(t, err, apperrors.ErrInsufficientStock)

	got, err := f.tickets.GetTicket(f.ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateQuoted, got.State)
	assert.Nil(t, got.ClientResponseAt)
	assert.Equal(t, 1, f.quantity(part.ID))
	require.Len(t, got.Parts, 1)
	assert.False(t, got.Parts[0].StockDeducted)
}

func TestApproveBudget_ConcurrentSameTicket(t *testing.T) {
	f := newFixture()
	part := f.addPart("CPU-01", 5, "90.00")
	ticket := f.newTicket()
	_, err := f.usages.AssignPart(f.ctx, ticket.ID, AssignPartRequest{PartID: part.ID, Quantity: 2})
	require.NoError(t, err)
	_, err = f.tickets.AssignTechnician(f.ctx, ticket.ID, f.technicianID)
	require.NoError(t, err)
	_, err = f.tickets.RecordDiagnosis(f.ctx, ticket.ID, DiagnosisRequest{Diagnosis: "CPU", LaborCost: dec("10")})
	require.NoError(t, err)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.tickets.ApproveBudget(f.ctx, ticket.ID)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 3, f.quantity(part.ID), "stock deducted exactly once")
}

func TestApproveBudget_TwoTicketsCompeteForLastUnit(t *testing.T) {
	f := newFixture()
	part := f.addPart("CPU-02", 1, "90.00")

	var ids []int64
	for i := 0; i < 2; i++ {
		ticket := f.newTicket()
		_, err := f.usages.AssignPart(f.ctx, ticket.ID, AssignPartRequest{PartID: part.ID, Quantity: 1})
		require.NoError(t, err)
		_, err = f.tickets.AssignTechnician(f.ctx, ticket.ID, f.technicianID)
		require.NoError(t, err)
		_, err = f.tickets.RecordDiagnosis(f.ctx, ticket.ID, DiagnosisRequest{Diagnosis: "CPU", LaborCost: dec("10")})
		require.NoError(t, err)
		ids = append(ids, ticket.ID)
	}

	errs := make([]error, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()
			_, errs[i] = f.tickets.ApproveBudget(f.ctx, id)
		}(i, id)
	}
	wg.Wait()

	var ok, short int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, apperrors.ErrInsufficientStock):
			short++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, short)
	assert.Equal(t, 0, f.quantity(part.ID))
}

func TestCancel_ReintegratesDeductedParts(t *testing.T) {
	f := newFixture()
	part := f.addPart("HDD-01", 4, "60.00")
	ticket := f.newTicket()
	_, err := f.usages.AssignPart(f.ctx, ticket.ID, AssignPartRequest{PartID: part.ID, Quantity: 3})
	require.NoError(t, err)
	_, err = f.tickets.AssignTechnician(f.ctx, ticket.ID, f.technicianID)
	require.NoError(t, err)
	_, err = f.tickets.RecordDiagnosis(f.ctx, ticket.ID, DiagnosisRequest{Diagnosis: "disk", LaborCost: dec("20")})
	require.NoError(t, err)
	_, err = f.tickets.ApproveBudget(f.ctx, ticket.ID)
	require.NoError(t, err)
	_, err = f.tickets.StartRepair(f.ctx, ticket.ID)
	require.NoError(t, err)
	require.Equal(t, 1, f.quantity(part.ID))

	_, err = f.tickets.Cancel(f.ctx, ticket.ID, "   ")
	require.ErrorIs(t, err, apperrors.ErrValidation)

	cancelled, err := f.tickets.Cancel(f.ctx, ticket.ID, "client abandoned repair")
	require.NoError(t, err)
	assert.Equal(t, models.StateCancelled, cancelled.State)
	require.NotNil(t, cancelled.CancellationReason)
	assert.Equal(t, 4, f.quantity(part.ID))

	moves := f.movements(part.ID)
	require.Len(t, moves, 2)
	assert.Equal(t, models.MovementTicketReintegration, moves[1].Kind)

	got, err := f.tickets.GetTicket(f.ctx, ticket.ID)
	require.NoError(t, err)
	assert.False(t, got.Parts[0].StockDeducted)
}

func TestCancel_ReintegrationIsBestEffort(t *testing.T) {
	f := newFixture()
	a := f.addPart("MB-01", 2, "150.00")
	b := f.addPart("MB-02", 2, "15.00")
	ticket := f.newTicket()
	for _, p := range []*models.Part{a, b} {
		_, err := f.usages.AssignPart(f.ctx, ticket.ID, AssignPartRequest{PartID: p.ID, Quantity: 1})
		require.NoError(t, err)
	}
	_, err := f.tickets.AssignTechnician(f.ctx, ticket.ID, f.technicianID)
	require.NoError(t, err)
	_, err = f.tickets.RecordDiagnosis(f.ctx, ticket.ID, DiagnosisRequest{Diagnosis: "board", LaborCost: dec("20")})
	require.NoError(t, err)
	_, err = f.tickets.ApproveBudget(f.ctx, ticket.ID)
	require.NoError(t, err)

	f.store.failSetQuantity[a.ID] = errors.New("row is corrupted")
	cancelled, err := f.tickets.Cancel(f.ctx, ticket.ID, "client changed mind")
	require.NoError(t, err)
	assert.Equal(t, models.StateCancelled, cancelled.State)

	assert.Equal(t, 1, f.quantity(a.ID), "failed record left as it was")
	assert.Equal(t, 2, f.quantity(b.ID))

	got, err := f.tickets.GetTicket(f.ctx, ticket.ID)
	require.NoError(t, err)
	for _, u := range got.Parts {
		assert.Equal(t, u.PartID == a.ID, u.StockDeducted, "usage of part %d", u.PartID)
	}
}

func TestRejectThenCancel_StockUntouched(t *testing.T) {
	f := newFixture()
	part := f.addPart("LCD-15", 5, "80.00")
	ticket := f.newTicket()
	_, err := f.usages.AssignPart(f.ctx, ticket.ID, AssignPartRequest{PartID: part.ID, Quantity: 2})
	require.NoError(t, err)
	_, err = f.tickets.AssignTechnician(f.ctx, ticket.ID, f.technicianID)
	require.NoError(t, err)
	quoted, err := f.tickets.RecordDiagnosis(f.ctx, ticket.ID, DiagnosisRequest{Diagnosis: "panel cracked", LaborCost: dec("30")})
	require.NoError(t, err)
	require.Equal(t, models.StateQuoted, quoted.State)

	rejected, err := f.tickets.RejectBudget(f.ctx, ticket.ID, "too expensive")
	require.NoError(t, err)
	assert.Equal(t, models.StateRejected, rejected.State)
	require.NotNil(t, rejected.RejectionReason)
	assert.Equal(t, "too expensive", *rejected.RejectionReason)
	assert.NotNil(t, rejected.ClientResponseAt)
	assert.Equal(t, 5, f.quantity(part.ID))
	assert.Empty(t, f.movements(part.ID))

	cancelled, err := f.tickets.Cancel(f.ctx, ticket.ID, "client picked the device up unrepaired")
	require.NoError(t, err)
	assert.Equal(t, models.StateCancelled, cancelled.State)
	assert.Equal(t, 5, f.quantity(part.ID))
	assert.Empty(t, f.movements(part.ID))
}

func TestRejectBudget_BlankReason(t *testing.T) {
	f := newFixture()
	ticket := f.quoted("40")

	_, err := f.tickets.RejectBudget(f.ctx, ticket.ID, "  ")
	require.ErrorIs(t, err, apperrors.ErrValidation)

	got, err := f.tickets.GetTicket(f.ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateQuoted, got.State)
	assert.Nil(t, got.RejectionReason)
}

func TestCancel_TerminalTickets(t *testing.T) {
	f := newFixture()
	ticket := f.newTicket()
	_, err := f.tickets.Cancel(f.ctx, ticket.ID, "duplicate")
	require.NoError(t, err)

	_, err = f.tickets.Cancel(f.ctx, ticket.ID, "again")
	require.ErrorIs(t, err, apperrors.ErrInvalidTransition)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, "none (terminal)", appErr.Details()["legal_destinations"])
	assert.Equal(t, string(models.StateCancelled), appErr.State)
}

func TestTestingLoop_KeepsFirstTimestamps(t *testing.T) {
	f := newFixture()
	ticket := f.quoted("80")
	_, err := f.tickets.ApproveBudget(f.ctx, ticket.ID)
	require.NoError(t, err)
	ticket, err = f.tickets.StartRepair(f.ctx, ticket.ID)
	require.NoError(t, err)
	started := *ticket.RepairStartedAt
	ticket, err = f.tickets.CompleteRepair(f.ctx, ticket.ID)
	require.NoError(t, err)
	ended := *ticket.RepairEndedAt

	ticket, err = f.tickets.RecordTestResult(f.ctx, ticket.ID, TestResultRequest{Result: "Still overheats", Passed: boolPtr(false)})
	require.NoError(t, err)
	assert.Equal(t, models.StateRepairing, ticket.State)
	assert.Equal(t, started, *ticket.RepairStartedAt)

	ticket, err = f.tickets.CompleteRepair(f.ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, ended, *ticket.RepairEndedAt)

	ticket, err = f.tickets.MarkReady(f.ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateReady, ticket.State)
}

func TestWrongStateIsInvalidTransition(t *testing.T) {
	f := newFixture()
	ticket := f.quoted("30")

	_, err := f.tickets.StartRepair(f.ctx, ticket.ID)
	require.ErrorIs(t, err, apperrors.ErrInvalidTransition)
	appErr, _ := apperrors.As(err)
	assert.Equal(t, "QUOTED", appErr.State)
	assert.Equal(t, "REPAIRING", appErr.Attempted)
	assert.Equal(t, "APPROVED, REJECTED, CANCELLED", appErr.Details()["legal_destinations"])

	_, err = f.tickets.Deliver(f.ctx, ticket.ID, DeliverRequest{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)

	_, err = f.tickets.AddNote(f.ctx, ticket.ID, "note")
	assert.ErrorIs(t, err, apperrors.ErrPreconditionFailed)

	got, err := f.tickets.GetTicket(f.ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateQuoted, got.State)
}

func TestAssignTechnician_Checks(t *testing.T) {
	f := newFixture()
	ticket := f.newTicket()

	_, err := f.tickets.AssignTechnician(f.ctx, ticket.ID, f.clerkID)
	assert.ErrorIs(t, err, apperrors.ErrPreconditionFailed)

	f.store.mu.Lock()
	tech := f.store.data.users[f.technicianID]
	tech.IsActive = false
	f.store.data.users[f.technicianID] = tech
	f.store.mu.Unlock()
	_, err = f.tickets.AssignTechnician(f.ctx, ticket.ID, f.technicianID)
	assert.ErrorIs(t, err, apperrors.ErrPreconditionFailed)

	_, err = f.tickets.AssignTechnician(f.ctx, ticket.ID, 31337)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	got, err := f.tickets.GetTicket(f.ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateIntake, got.State)
	assert.Nil(t, got.TechnicianID)
}

func TestRecordDiagnosis_Validation(t *testing.T) {
	f := newFixture()
	ticket := f.newTicket()
	_, err := f.tickets.AssignTechnician(f.ctx, ticket.ID, f.technicianID)
	require.NoError(t, err)

	_, err = f.tickets.RecordDiagnosis(f.ctx, ticket.ID, DiagnosisRequest{Diagnosis: "x", LaborCost: dec("-1")})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	negative := dec("-5")
	_, err = f.tickets.RecordDiagnosis(f.ctx, ticket.ID, DiagnosisRequest{Diagnosis: "x", LaborCost: dec("1"), PartsCost: &negative})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	got, err := f.tickets.GetTicket(f.ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateDiagnosing, got.State)
	assert.False(t, got.LaborCost.Valid)
	assert.Nil(t, got.BudgetAt)

	estimate := dec("70")
	q, err := f.tickets.RecordDiagnosis(f.ctx, ticket.ID, DiagnosisRequest{Diagnosis: "x", LaborCost: dec("30"), PartsCost: &estimate})
	require.NoError(t, err)
	assert.True(t, dec("100").Equal(q.Total.Decimal))
}

func TestApplyDiscount(t *testing.T) {
	f := newFixture()
	intake := f.newTicket()
	_, err := f.tickets.ApplyDiscount(f.ctx, intake.ID, DiscountRequest{Type: models.DiscountAmount, Value: dec("5"), Reason: "loyal"})
	assert.ErrorIs(t, err, apperrors.ErrPreconditionFailed)

	ticket := f.quoted("200")
	got, err := f.tickets.ApplyDiscount(f.ctx, ticket.ID, DiscountRequest{Type: models.DiscountPercentage, Value: dec("12.5"), Reason: "loyal"})
	require.NoError(t, err)
	assert.True(t, dec("25").Equal(got.DiscountAmount.Decimal))
	assert.True(t, dec("175").Equal(got.Total.Decimal))

	got, err = f.tickets.ApplyDiscount(f.ctx, ticket.ID, DiscountRequest{Type: models.DiscountAmount, Value: dec("500"), Reason: "warranty"})
	require.NoError(t, err)
	assert.True(t, got.Total.Decimal.IsZero(), "total floored at zero")

	_, err = f.tickets.ApplyDiscount(f.ctx, ticket.ID, DiscountRequest{Type: models.DiscountPercentage, Value: dec("101"), Reason: "x"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	_, err = f.tickets.ApplyDiscount(f.ctx, ticket.ID, DiscountRequest{Type: models.DiscountAmount, Value: dec("0"), Reason: "x"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	_, err = f.tickets.ApplyDiscount(f.ctx, ticket.ID, DiscountRequest{Type: models.DiscountAmount, Value: dec("1"), Reason: " "})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestNotificationFailureDoesNotRollBack(t *testing.T) {
	f := newFixture()
	f.notifier.err = errors.New("smtp unreachable")

	ticket, err := f.tickets.CreateTicket(f.ctx, CreateTicketRequest{ClientID: f.clientID, ReportedFault: "dead"})
	require.NoError(t, err)

	got, err := f.tickets.GetTicket(f.ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, ticket.Code, got.Code)
	assert.Len(t, f.notifier.kinds(), 1)
}

func TestLookupByCode(t *testing.T) {
	f := newFixture()
	ticket := f.newTicket()

	view, err := f.tickets.LookupByCode(f.ctx, "  "+strings.ToLower(ticket.Code)+" ")
	require.NoError(t, err)
	assert.Equal(t, ticket.Code, view.Code)
	assert.Equal(t, "Intake", view.StateName)
	assert.Len(t, view.Equipment, 1)

	_, err = f.tickets.LookupByCode(f.ctx, "not-a-code")
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = f.tickets.LookupByCode(f.ctx, "TES-MAT-20000101-0001")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCanTransition(t *testing.T) {
	f := newFixture()
	ticket := f.newTicket()

	ok, err := f.tickets.CanTransition(f.ctx, ticket.ID, models.StateDiagnosing)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.tickets.CanTransition(f.ctx, ticket.ID, models.StateReady)
	require.NoError(t, err)
	assert.False(t, ok)

	opts, err := f.tickets.AvailableTransitions(f.ctx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, opts, 2)
	assert.Equal(t, models.StateDiagnosing, opts[0].State)
	assert.Equal(t, models.StateCancelled, opts[1].State)

	_, err = f.tickets.CanTransition(f.ctx, 4040, models.StateReady)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
