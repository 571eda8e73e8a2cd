package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"repair_shop_backend/internal/models"
)

// TicketRepository defines the interface for ticket-related database operations.
type TicketRepository interface {
	Create(ctx context.Context, executor SQLExecutor, ticket *models.Ticket) error
	GetByID(ctx context.Context, executor SQLExecutor, id int64) (*models.Ticket, error)
	// GetByIDForUpdate locks the ticket row until the surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, executor SQLExecutor, id int64) (*models.Ticket, error)
	GetByCode(ctx context.Context, executor SQLExecutor, code string) (*models.Ticket, error)
	ExistsByCode(ctx context.Context, executor SQLExecutor, code string) (bool, error)
	// LatestCode returns the highest code issued under prefix on day, "" if none.
	LatestCode(ctx context.Context, executor SQLExecutor, prefix string, day time.Time) (string, error)
	Update(ctx context.Context, executor SQLExecutor, ticket *models.Ticket) error
	List(ctx context.Context, filters models.TicketFilters) ([]models.Ticket, int, error)
	// CountActiveByClient counts the client's tickets that are neither delivered nor cancelled.
	CountActiveByClient(ctx context.Context, executor SQLExecutor, clientID int64) (int, error)
	ListEquipment(ctx context.Context, executor SQLExecutor, ticketID int64) ([]models.Equipment, error)
}

type ticketRepository struct {
	db *sql.DB
}

// NewTicketRepository creates a new instance of TicketRepository.
func NewTicketRepository(db *sql.DB) TicketRepository {
	return &ticketRepository{db: db}
}

const ticketColumns = `t.id, t.code, t.state, t.client_id, t.technician_id, t.intake_user_id,
	t.reported_fault, t.accessories, t.diagnosis, t.labor_cost, t.parts_cost, t.subtotal,
	t.discount_type, t.discount_value, t.discount_amount, t.discount_reason, t.total, t.estimated_days,
	t.rejection_reason, t.cancellation_reason, t.repair_notes, t.test_result, t.test_passed, t.delivery_notes,
	t.budget_at, t.client_response_at, t.repair_started_at, t.repair_ended_at, t.delivered_at,
	t.created_at, t.updated_at`

func scanTicket(s scanner, extra ...interface{}) (*models.Ticket, error) {
	var t models.Ticket
	var technicianID sql.NullInt64
	var estimatedDays sql.NullInt32
	var testPassed sql.NullBool
	var discountType, accessories, diagnosis, rejection, cancellation, notes, testResult, delivery, discountReason sql.NullString
	var budgetAt, responseAt, startedAt, endedAt, deliveredAt sql.NullTime

	dest := []interface{}{
		&t.ID, &t.Code, &t.State, &t.ClientID, &technicianID, &t.IntakeUserID,
		&t.ReportedFault, &accessories, &diagnosis, &t.LaborCost, &t.PartsCost, &t.Subtotal,
		&discountType, &t.DiscountValue, &t.DiscountAmount, &discountReason, &t.Total, &estimatedDays,
		&rejection, &cancellation, &notes, &testResult, &testPassed, &delivery,
		&budgetAt, &responseAt, &startedAt, &endedAt, &deliveredAt,
		&t.CreatedAt, &t.UpdatedAt,
	}
	dest = append(dest, extra...)
	if err := s.Scan(dest...); err != nil {
		return nil, err
	}

	if technicianID.Valid {
		t.TechnicianID = &technicianID.Int64
	}
	if estimatedDays.Valid {
		d := int(estimatedDays.Int32)
		t.EstimatedDays = &d
	}
	if testPassed.Valid {
		t.TestPassed = &testPassed.Bool
	}
	if discountType.Valid {
		dt := models.DiscountType(discountType.String)
		t.DiscountType = &dt
	}
	t.Accessories = nullStringPtr(accessories)
	t.Diagnosis = nullStringPtr(diagnosis)
	t.DiscountReason = nullStringPtr(discountReason)
	t.RejectionReason = nullStringPtr(rejection)
	t.CancellationReason = nullStringPtr(cancellation)
	t.RepairNotes = nullStringPtr(notes)
	t.TestResult = nullStringPtr(testResult)
	t.DeliveryNotes = nullStringPtr(delivery)
	t.BudgetAt = nullTimePtr(budgetAt)
	t.ClientResponseAt = nullTimePtr(responseAt)
	t.RepairStartedAt = nullTimePtr(startedAt)
	t.RepairEndedAt = nullTimePtr(endedAt)
	t.DeliveredAt = nullTimePtr(deliveredAt)
	return &t, nil
}

func (r *ticketRepository) Create(ctx context.Context, executor SQLExecutor, ticket *models.Ticket) error {
	query := `INSERT INTO tickets (code, state, client_id, technician_id, intake_user_id, reported_fault, accessories,
	              created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	          RETURNING id, created_at, updated_at`

	now := time.Now().UTC()
	err := executor.QueryRowContext(ctx, query,
		ticket.Code, ticket.State, ticket.ClientID, ticket.TechnicianID, ticket.IntakeUserID,
		ticket.ReportedFault, ticket.Accessories, now,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
	if err != nil {
		return mapDBError(err, "creating ticket")
	}

	for i := range ticket.Equipment {
		eq := &ticket.Equipment[i]
		eq.TicketID = ticket.ID
		err := executor.QueryRowContext(ctx,
			`INSERT INTO ticket_equipment (ticket_id, type, brand, model, serial_number, notes)
			 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
			eq.TicketID, eq.Type, eq.Brand, eq.Model, eq.SerialNumber, eq.Notes,
		).Scan(&eq.ID)
		if err != nil {
			return mapDBError(err, "creating ticket equipment")
		}
	}
	return nil
}

func (r *ticketRepository) getOne(ctx context.Context, executor SQLExecutor, where string, suffix string, arg interface{}) (*models.Ticket, error) {
	if executor == nil {
		executor = r.db
	}
	query := "SELECT " + ticketColumns + " FROM tickets t WHERE " + where + " AND t.deleted_at IS NULL" + suffix
	t, err := scanTicket(executor.QueryRowContext(ctx, query, arg))
	if err != nil {
		return nil, mapDBError(err, "getting ticket")
	}
	return t, nil
}

func (r *ticketRepository) GetByID(ctx context.Context, executor SQLExecutor, id int64) (*models.Ticket, error) {
	return r.getOne(ctx, executor, "t.id = $1", "", id)
}

func (r *ticketRepository) GetByIDForUpdate(ctx context.Context, executor SQLExecutor, id int64) (*models.Ticket, error) {
	return r.getOne(ctx, executor, "t.id = $1", " FOR UPDATE", id)
}

func (r *ticketRepository) GetByCode(ctx context.Context, executor SQLExecutor, code string) (*models.Ticket, error) {
	return r.getOne(ctx, executor, "t.code = $1", "", code)
}

func (r *ticketRepository) ExistsByCode(ctx context.Context, executor SQLExecutor, code string) (bool, error) {
	if executor == nil {
		executor = r.db
	}
	var exists bool
	err := executor.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM tickets WHERE code = $1)`, code).Scan(&exists)
	if err != nil {
		return false, mapDBError(err, "checking ticket code")
	}
	return exists, nil
}

func (r *ticketRepository) LatestCode(ctx context.Context, executor SQLExecutor, prefix string, day time.Time) (string, error) {
	if executor == nil {
		executor = r.db
	}
	pattern := prefix + "-" + day.Format("20060102") + "-%"
	var code string
	err := executor.QueryRowContext(ctx,
		`SELECT code FROM tickets WHERE code LIKE $1 ORDER BY LENGTH(code) DESC, code DESC LIMIT 1`, pattern).Scan(&code)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", mapDBError(err, "finding latest ticket code")
	}
	return code, nil
}

func (r *ticketRepository) Update(ctx context.Context, executor SQLExecutor, ticket *models.Ticket) error {
	query := `UPDATE tickets SET
	              state = $1, technician_id = $2, diagnosis = $3, labor_cost = $4, parts_cost = $5, subtotal = $6,
	              discount_type = $7, discount_value = $8, discount_amount = $9, discount_reason = $10, total = $11,
	              estimated_days = $12, rejection_reason = $13, cancellation_reason = $14, repair_notes = $15,
	              test_result = $16, test_passed = $17, delivery_notes = $18, budget_at = $19, client_response_at = $20,
	              repair_started_at = $21, repair_ended_at = $22, delivered_at = $23, updated_at = $24
	          WHERE id = $25 AND deleted_at IS NULL
	          RETURNING updated_at`

	var discountType *string
	if ticket.DiscountType != nil {
		s := string(*ticket.DiscountType)
		discountType = &s
	}

	err := executor.QueryRowContext(ctx, query,
		ticket.State, ticket.TechnicianID, ticket.Diagnosis, ticket.LaborCost, ticket.PartsCost, ticket.Subtotal,
		discountType, ticket.DiscountValue, ticket.DiscountAmount, ticket.DiscountReason, ticket.Total,
		ticket.EstimatedDays, ticket.RejectionReason, ticket.CancellationReason, ticket.RepairNotes,
		ticket.TestResult, ticket.TestPassed, ticket.DeliveryNotes, ticket.BudgetAt, ticket.ClientResponseAt,
		ticket.RepairStartedAt, ticket.RepairEndedAt, ticket.DeliveredAt, time.Now().UTC(),
		ticket.ID,
	).Scan(&ticket.UpdatedAt)
	if err != nil {
		return mapDBError(err, "updating ticket")
	}
	return nil
}

func (r *ticketRepository) List(ctx context.Context, filters models.TicketFilters) ([]models.Ticket, int, error) {
	tickets := []models.Ticket{}
	totalCount := 0

	var queryBuilder strings.Builder
	queryBuilder.WriteString("SELECT " + ticketColumns + ", COUNT(*) OVER() AS total_count FROM tickets t")

	conditions := []string{"t.deleted_at IS NULL"}
	var args []interface{}
	argCount := 1

	if filters.State != nil {
		conditions = append(conditions, fmt.Sprintf("t.state = $%d", argCount))
		args = append(args, *filters.State)
		argCount++
	}
	if filters.ClientID != nil {
		conditions = append(conditions, fmt.Sprintf("t.client_id = $%d", argCount))
		args = append(args, *filters.ClientID)
		argCount++
	}
	if filters.TechnicianID != nil {
		conditions = append(conditions, fmt.Sprintf("t.technician_id = $%d", argCount))
		args = append(args, *filters.TechnicianID)
		argCount++
	}
	if filters.Active {
		placeholders := make([]string, len(models.ClosedTicketStates))
		for i, state := range models.ClosedTicketStates {
			placeholders[i] = fmt.Sprintf("$%d", argCount)
			args = append(args, state)
			argCount++
		}
		conditions = append(conditions, "t.state NOT IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filters.Query != nil && *filters.Query != "" {
		conditions = append(conditions, fmt.Sprintf(`(t.code ILIKE $%[1]d OR t.reported_fault ILIKE $%[1]d OR t.diagnosis ILIKE $%[1]d
			OR EXISTS (SELECT 1 FROM clients c WHERE c.id = t.client_id
				AND (c.full_name ILIKE $%[1]d OR c.phone_number ILIKE $%[1]d OR c.document_number ILIKE $%[1]d))
			OR EXISTS (SELECT 1 FROM ticket_equipment e WHERE e.ticket_id = t.id
				AND (e.type ILIKE $%[1]d OR e.brand ILIKE $%[1]d OR e.model ILIKE $%[1]d OR e.serial_number ILIKE $%[1]d)))`, argCount))
		args = append(args, "%"+*filters.Query+"%")
		argCount++
	}

	queryBuilder.WriteString(" WHERE ")
	queryBuilder.WriteString(strings.Join(conditions, " AND "))
	queryBuilder.WriteString(" ORDER BY t.created_at DESC, t.id DESC")
	queryBuilder.WriteString(fmt.Sprintf(" LIMIT $%d OFFSET $%d", argCount, argCount+1))
	args = append(args, filters.PageSize, (filters.Page-1)*filters.PageSize)

	rows, err := r.db.QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, 0, mapDBError(err, "listing tickets")
	}
	defer rows.Close()

	for rows.Next() {
		t, err := scanTicket(rows, &totalCount)
		if err != nil {
			return nil, 0, mapDBError(err, "scanning ticket")
		}
		tickets = append(tickets, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, mapDBError(err, "iterating tickets")
	}
	return tickets, totalCount, nil
}

func (r *ticketRepository) CountActiveByClient(ctx context.Context, executor SQLExecutor, clientID int64) (int, error) {
	if executor == nil {
		executor = r.db
	}
	var count int
	err := executor.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tickets WHERE client_id = $1 AND deleted_at IS NULL AND state NOT IN ($2, $3)`,
		clientID, models.StateDelivered, models.StateCancelled,
	).Scan(&count)
	if err != nil {
		return 0, mapDBError(err, "counting active tickets")
	}
	return count, nil
}

func (r *ticketRepository) ListEquipment(ctx context.Context, executor SQLExecutor, ticketID int64) ([]models.Equipment, error) {
	if executor == nil {
		executor = r.db
	}
	rows, err := executor.QueryContext(ctx,
		`SELECT id, ticket_id, type, brand, model, serial_number, notes
		 FROM ticket_equipment WHERE ticket_id = $1 ORDER BY id`, ticketID)
	if err != nil {
		return nil, mapDBError(err, "listing ticket equipment")
	}
	defer rows.Close()

	equipment := []models.Equipment{}
	for rows.Next() {
		var eq models.Equipment
		var brand, model, serial, notes sql.NullString
		if err := rows.Scan(&eq.ID, &eq.TicketID, &eq.Type, &brand, &model, &serial, &notes); err != nil {
			return nil, mapDBError(err, "scanning ticket equipment")
		}
		eq.Brand = nullStringPtr(brand)
		eq.Model = nullStringPtr(model)
		eq.SerialNumber = nullStringPtr(serial)
		eq.Notes = nullStringPtr(notes)
		equipment = append(equipment, eq)
	}
	return equipment, rows.Err()
}
