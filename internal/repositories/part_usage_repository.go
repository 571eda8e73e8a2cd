package repositories

import (
	"context"
	"database/sql"
	"time"

	"repair_shop_backend/internal/models"
)

// PartUsageRepository stores the parts assigned to tickets. Usage rows are
// only written while the owning ticket row is locked.
type PartUsageRepository interface {
	Create(ctx context.Context, executor SQLExecutor, usage *models.PartUsage) error
	GetByID(ctx context.Context, executor SQLExecutor, id int64) (*models.PartUsage, error)
	// ListByTicket returns the usages ordered by part id, which is also the order
	// in which part rows get locked.
	ListByTicket(ctx context.Context, executor SQLExecutor, ticketID int64) ([]models.PartUsage, error)
	Update(ctx context.Context, executor SQLExecutor, usage *models.PartUsage) error
	Delete(ctx context.Context, executor SQLExecutor, id int64) error
}

type partUsageRepository struct {
	db *sql.DB
}

// NewPartUsageRepository creates a new instance of PartUsageRepository.
func NewPartUsageRepository(db *sql.DB) PartUsageRepository {
	return &partUsageRepository{db: db}
}

const usageColumns = `u.id, u.ticket_id, u.part_id, u.quantity, u.unit_price, u.subtotal, u.stock_deducted,
	u.notes, u.created_at, u.updated_at, p.code, p.name`

func scanUsage(s scanner) (*models.PartUsage, error) {
	var u models.PartUsage
	var notes sql.NullString
	if err := s.Scan(
		&u.ID, &u.TicketID, &u.PartID, &u.Quantity, &u.UnitPrice, &u.Subtotal, &u.StockDeducted,
		&notes, &u.CreatedAt, &u.UpdatedAt, &u.PartCode, &u.PartName,
	); err != nil {
		return nil, err
	}
	u.Notes = nullStringPtr(notes)
	return &u, nil
}

func (r *partUsageRepository) Create(ctx context.Context, executor SQLExecutor, usage *models.PartUsage) error {
	query := `INSERT INTO ticket_parts (ticket_id, part_id, quantity, unit_price, subtotal, stock_deducted, notes,
	              created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	          RETURNING id, created_at, updated_at`
	err := executor.QueryRowContext(ctx, query,
		usage.TicketID, usage.PartID, usage.Quantity, usage.UnitPrice, usage.Subtotal, usage.StockDeducted,
		usage.Notes, time.Now().UTC(),
	).Scan(&usage.ID, &usage.CreatedAt, &usage.UpdatedAt)
	if err != nil {
		return mapDBError(err, "creating part usage")
	}
	return nil
}

func (r *partUsageRepository) GetByID(ctx context.Context, executor SQLExecutor, id int64) (*models.PartUsage, error) {
	if executor == nil {
		executor = r.db
	}
	query := "SELECT " + usageColumns + " FROM ticket_parts u JOIN parts p ON p.id = u.part_id WHERE u.id = $1"
	u, err := scanUsage(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapDBError(err, "getting part usage")
	}
	return u, nil
}

func (r *partUsageRepository) ListByTicket(ctx context.Context, executor SQLExecutor, ticketID int64) ([]models.PartUsage, error) {
	if executor == nil {
		executor = r.db
	}
	query := "SELECT " + usageColumns + " FROM ticket_parts u JOIN parts p ON p.id = u.part_id WHERE u.ticket_id = $1 ORDER BY u.part_id, u.id"
	rows, err := executor.QueryContext(ctx, query, ticketID)
	if err != nil {
		return nil, mapDBError(err, "listing part usages")
	}
	defer rows.Close()

	usages := []models.PartUsage{}
	for rows.Next() {
		u, err := scanUsage(rows)
		if err != nil {
			return nil, mapDBError(err, "scanning part usage")
		}
		usages = append(usages, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, mapDBError(err, "iterating part usages")
	}
	return usages, nil
}

func (r *partUsageRepository) Update(ctx context.Context, executor SQLExecutor, usage *models.PartUsage) error {
	query := `UPDATE ticket_parts SET quantity = $1, subtotal = $2, stock_deducted = $3, updated_at = $4
	          WHERE id = $5
	          RETURNING updated_at`
	err := executor.QueryRowContext(ctx, query,
		usage.Quantity, usage.Subtotal, usage.StockDeducted, time.Now().UTC(), usage.ID,
	).Scan(&usage.UpdatedAt)
	if err != nil {
		return mapDBError(err, "updating part usage")
	}
	return nil
}

func (r *partUsageRepository) Delete(ctx context.Context, executor SQLExecutor, id int64) error {
	res, err := executor.ExecContext(ctx, `DELETE FROM ticket_parts WHERE id = $1`, id)
	if err != nil {
		return mapDBError(err, "deleting part usage")
	}
	return expectOneRow(res, "deleting part usage")
}
