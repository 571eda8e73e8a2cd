package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"repair_shop_backend/internal/models"
)

// PurchaseRepository defines the interface for supplier purchase operations.
type PurchaseRepository interface {
	Create(ctx context.Context, executor SQLExecutor, purchase *models.Purchase) error
	GetByID(ctx context.Context, executor SQLExecutor, id int64) (*models.Purchase, error)
	GetByIDForUpdate(ctx context.Context, executor SQLExecutor, id int64) (*models.Purchase, error)
	UpdateState(ctx context.Context, executor SQLExecutor, purchase *models.Purchase) error
	List(ctx context.Context, filters models.PurchaseFilters) ([]models.Purchase, int, error)
}

type purchaseRepository struct {
	db *sql.DB
}

// NewPurchaseRepository creates a new instance of PurchaseRepository.
func NewPurchaseRepository(db *sql.DB) PurchaseRepository {
	return &purchaseRepository{db: db}
}

const purchaseColumns = `pu.id, pu.code, pu.supplier, pu.state, pu.total, pu.notes, pu.cancellation_reason,
	pu.created_by, pu.received_at, pu.created_at, pu.updated_at`

func scanPurchase(s scanner, extra ...interface{}) (*models.Purchase, error) {
	var p models.Purchase
	var notes, reason sql.NullString
	var createdBy sql.NullInt64
	var receivedAt sql.NullTime
	dest := []interface{}{
		&p.ID, &p.Code, &p.Supplier, &p.State, &p.Total, &notes, &reason,
		&createdBy, &receivedAt, &p.CreatedAt, &p.UpdatedAt,
	}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	p.Notes = nullStringPtr(notes)
	p.CancellationReason = nullStringPtr(reason)
	p.CreatedBy = nullInt64Ptr(createdBy)
	p.ReceivedAt = nullTimePtr(receivedAt)
	return &p, nil
}

func (r *purchaseRepository) Create(ctx context.Context, executor SQLExecutor, purchase *models.Purchase) error {
	query := `INSERT INTO purchases (code, supplier, state, total, notes, created_by, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	          RETURNING id, created_at, updated_at`
	err := executor.QueryRowContext(ctx, query,
		purchase.Code, purchase.Supplier, purchase.State, purchase.Total, purchase.Notes, purchase.CreatedBy,
		time.Now().UTC(),
	).Scan(&purchase.ID, &purchase.CreatedAt, &purchase.UpdatedAt)
	if err != nil {
		return mapDBError(err, "creating purchase")
	}

	for i := range purchase.Lines {
		line := &purchase.Lines[i]
		line.PurchaseID = purchase.ID
		err := executor.QueryRowContext(ctx,
			`INSERT INTO purchase_lines (purchase_id, part_id, quantity, unit_cost, subtotal)
			 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			line.PurchaseID, line.PartID, line.Quantity, line.UnitCost, line.Subtotal,
		).Scan(&line.ID)
		if err != nil {
			return mapDBError(err, "creating purchase line")
		}
	}
	return nil
}

func (r *purchaseRepository) get(ctx context.Context, executor SQLExecutor, id int64, lock bool) (*models.Purchase, error) {
	if executor == nil {
		executor = r.db
	}
	query := "SELECT " + purchaseColumns + " FROM purchases pu WHERE pu.id = $1"
	if lock {
		query += " FOR UPDATE"
	}
	p, err := scanPurchase(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapDBError(err, "getting purchase")
	}

	rows, err := executor.QueryContext(ctx,
		`SELECT id, purchase_id, part_id, quantity, unit_cost, subtotal
		 FROM purchase_lines WHERE purchase_id = $1 ORDER BY part_id, id`, id)
	if err != nil {
		return nil, mapDBError(err, "listing purchase lines")
	}
	defer rows.Close()
	for rows.Next() {
		var line models.PurchaseLineItem
		if err := rows.Scan(&line.ID, &line.PurchaseID, &line.PartID, &line.Quantity, &line.UnitCost, &line.Subtotal); err != nil {
			return nil, mapDBError(err, "scanning purchase line")
		}
		p.Lines = append(p.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, mapDBError(err, "iterating purchase lines")
	}
	return p, nil
}

func (r *purchaseRepository) GetByID(ctx context.Context, executor SQLExecutor, id int64) (*models.Purchase, error) {
	return r.get(ctx, executor, id, false)
}

func (r *purchaseRepository) GetByIDForUpdate(ctx context.Context, executor SQLExecutor, id int64) (*models.Purchase, error) {
	return r.get(ctx, executor, id, true)
}

func (r *purchaseRepository) UpdateState(ctx context.Context, executor SQLExecutor, purchase *models.Purchase) error {
	query := `UPDATE purchases SET state = $1, cancellation_reason = $2, received_at = $3, updated_at = $4
	          WHERE id = $5
	          RETURNING updated_at`
	err := executor.QueryRowContext(ctx, query,
		purchase.State, purchase.CancellationReason, purchase.ReceivedAt, time.Now().UTC(), purchase.ID,
	).Scan(&purchase.UpdatedAt)
	if err != nil {
		return mapDBError(err, "updating purchase state")
	}
	return nil
}

func (r *purchaseRepository) List(ctx context.Context, filters models.PurchaseFilters) ([]models.Purchase, int, error) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString("SELECT " + purchaseColumns + ", COUNT(*) OVER() AS total_count FROM purchases pu")

	var conditions []string
	var args []interface{}
	argCount := 1
	if filters.State != nil {
		conditions = append(conditions, fmt.Sprintf("pu.state = $%d", argCount))
		args = append(args, *filters.State)
		argCount++
	}
	if filters.Supplier != nil && *filters.Supplier != "" {
		conditions = append(conditions, fmt.Sprintf("pu.supplier ILIKE $%d", argCount))
		args = append(args, "%"+*filters.Supplier+"%")
		argCount++
	}
	if len(conditions) > 0 {
		queryBuilder.WriteString(" WHERE " + strings.Join(conditions, " AND "))
	}
	queryBuilder.WriteString(" ORDER BY pu.created_at DESC, pu.id DESC")
	queryBuilder.WriteString(fmt.Sprintf(" LIMIT $%d OFFSET $%d", argCount, argCount+1))
	args = append(args, filters.PageSize, (filters.Page-1)*filters.PageSize)

	rows, err := r.db.QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, 0, mapDBError(err, "listing purchases")
	}
	defer rows.Close()

	purchases := []models.Purchase{}
	totalCount := 0
	for rows.Next() {
		p, err := scanPurchase(rows, &totalCount)
		if err != nil {
			return nil, 0, mapDBError(err, "scanning purchase")
		}
		purchases = append(purchases, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, mapDBError(err, "iterating purchases")
	}
	return purchases, totalCount, nil
}
