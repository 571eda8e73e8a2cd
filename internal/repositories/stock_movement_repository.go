package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"repair_shop_backend/internal/models"
)

// StockMovementRepository appends and reads the stock audit trail.
// Movements are append-only.
type StockMovementRepository interface {
	Create(ctx context.Context, executor SQLExecutor, movement *models.StockMovement) error
	// List returns one page of movements; PageSize 0 returns every match.
	List(ctx context.Context, filters models.MovementFilters) ([]models.StockMovement, int, error)
}

type stockMovementRepository struct {
	db *sql.DB
}

// NewStockMovementRepository creates a new instance of StockMovementRepository.
func NewStockMovementRepository(db *sql.DB) StockMovementRepository {
	return &stockMovementRepository{db: db}
}

func (r *stockMovementRepository) Create(ctx context.Context, executor SQLExecutor, movement *models.StockMovement) error {
	query := `INSERT INTO stock_movements
	          (part_id, kind, quantity, quantity_before, quantity_after, ticket_id, purchase_id, user_id, reason, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	          RETURNING id`
	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = time.Now().UTC()
	}
	err := executor.QueryRowContext(ctx, query,
		movement.PartID, movement.Kind, movement.Quantity, movement.QuantityBefore, movement.QuantityAfter,
		movement.TicketID, movement.PurchaseID, movement.UserID, movement.Reason, movement.CreatedAt,
	).Scan(&movement.ID)
	if err != nil {
		return mapDBError(err, "creating stock movement")
	}
	return nil
}

func (r *stockMovementRepository) List(ctx context.Context, filters models.MovementFilters) ([]models.StockMovement, int, error) {
	movements := []models.StockMovement{}
	totalCount := 0

	var queryBuilder strings.Builder
	queryBuilder.WriteString(`SELECT
	    m.id, m.part_id, m.kind, m.quantity, m.quantity_before, m.quantity_after,
	    m.ticket_id, m.purchase_id, m.user_id, m.reason, m.created_at,
	    p.code, p.name,
	    COUNT(*) OVER() AS total_count
	  FROM stock_movements m
	  JOIN parts p ON p.id = m.part_id`)

	var conditions []string
	var args []interface{}
	argCount := 1

	if filters.PartID != nil {
		conditions = append(conditions, fmt.Sprintf("m.part_id = $%d", argCount))
		args = append(args, *filters.PartID)
		argCount++
	}
	if filters.TicketID != nil {
		conditions = append(conditions, fmt.Sprintf("m.ticket_id = $%d", argCount))
		args = append(args, *filters.TicketID)
		argCount++
	}
	if filters.PurchaseID != nil {
		conditions = append(conditions, fmt.Sprintf("m.purchase_id = $%d", argCount))
		args = append(args, *filters.PurchaseID)
		argCount++
	}
	if filters.Kind != nil && *filters.Kind != "" {
		conditions = append(conditions, fmt.Sprintf("m.kind = $%d", argCount))
		args = append(args, *filters.Kind)
		argCount++
	}
	if filters.From != nil {
		conditions = append(conditions, fmt.Sprintf("m.created_at >= $%d", argCount))
		args = append(args, *filters.From)
		argCount++
	}
	if filters.To != nil {
		conditions = append(conditions, fmt.Sprintf("m.created_at < $%d", argCount))
		args = append(args, filters.To.AddDate(0, 0, 1))
		argCount++
	}

	if len(conditions) > 0 {
		queryBuilder.WriteString(" WHERE ")
		queryBuilder.WriteString(strings.Join(conditions, " AND "))
	}
	queryBuilder.WriteString(" ORDER BY m.created_at DESC, m.id DESC")
	if filters.PageSize > 0 {
		queryBuilder.WriteString(fmt.Sprintf(" LIMIT $%d OFFSET $%d", argCount, argCount+1))
		args = append(args, filters.PageSize, (filters.Page-1)*filters.PageSize)
	}

	rows, err := r.db.QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, 0, mapDBError(err, "listing stock movements")
	}
	defer rows.Close()

	for rows.Next() {
		var m models.StockMovement
		var ticketID, purchaseID, userID sql.NullInt64
		var reason sql.NullString
		if err := rows.Scan(
			&m.ID, &m.PartID, &m.Kind, &m.Quantity, &m.QuantityBefore, &m.QuantityAfter,
			&ticketID, &purchaseID, &userID, &reason, &m.CreatedAt,
			&m.PartCode, &m.PartName,
			&totalCount,
		); err != nil {
			return nil, 0, mapDBError(err, "scanning stock movement")
		}
		m.TicketID = nullInt64Ptr(ticketID)
		m.PurchaseID = nullInt64Ptr(purchaseID)
		m.UserID = nullInt64Ptr(userID)
		m.Reason = nullStringPtr(reason)
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, mapDBError(err, "iterating stock movements")
	}
	return movements, totalCount, nil
}
