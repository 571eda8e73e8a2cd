package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"repair_shop_backend/internal/models"

	"github.com/shopspring/decimal"
)

// PartRepository defines the interface for spare part database operations.
type PartRepository interface {
	Create(ctx context.Context, executor SQLExecutor, part *models.Part) error
	GetByID(ctx context.Context, executor SQLExecutor, id int64) (*models.Part, error)
	// GetByIDForUpdate locks the part row so that the read-check-write on quantity
	// cannot interleave with another writer.
	GetByIDForUpdate(ctx context.Context, executor SQLExecutor, id int64) (*models.Part, error)
	Update(ctx context.Context, executor SQLExecutor, part *models.Part) error
	SetQuantity(ctx context.Context, executor SQLExecutor, id int64, quantity int) error
	UpdateUnitCost(ctx context.Context, executor SQLExecutor, id int64, cost decimal.Decimal) error
	List(ctx context.Context, filters models.PartFilters) ([]models.Part, int, error)
	ListLowStock(ctx context.Context) ([]models.Part, error)
	ListOutOfStock(ctx context.Context) ([]models.Part, error)
}

type partRepository struct {
	db *sql.DB
}

// NewPartRepository creates a new instance of PartRepository.
func NewPartRepository(db *sql.DB) PartRepository {
	return &partRepository{db: db}
}

const partColumns = `p.id, p.code, p.name, p.category, p.description, p.unit_cost, p.sale_price,
	p.quantity, p.min_quantity, p.is_active, p.created_at, p.updated_at`

func scanPart(s scanner, extra ...interface{}) (*models.Part, error) {
	var p models.Part
	var category, description sql.NullString
	dest := []interface{}{
		&p.ID, &p.Code, &p.Name, &category, &description, &p.UnitCost, &p.SalePrice,
		&p.Quantity, &p.MinQuantity, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	p.Category = nullStringPtr(category)
	p.Description = nullStringPtr(description)
	return &p, nil
}

func (r *partRepository) Create(ctx context.Context, executor SQLExecutor, part *models.Part) error {
	if executor == nil {
		executor = r.db
	}
	query := `INSERT INTO parts (code, name, category, description, unit_cost, sale_price, quantity, min_quantity,
	              is_active, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
	          RETURNING id, created_at, updated_at`
	err := executor.QueryRowContext(ctx, query,
		part.Code, part.Name, part.Category, part.Description, part.UnitCost, part.SalePrice,
		part.Quantity, part.MinQuantity, part.IsActive, time.Now().UTC(),
	).Scan(&part.ID, &part.CreatedAt, &part.UpdatedAt)
	if err != nil {
		return mapDBError(err, "creating part")
	}
	return nil
}

func (r *partRepository) GetByID(ctx context.Context, executor SQLExecutor, id int64) (*models.Part, error) {
	if executor == nil {
		executor = r.db
	}
	query := "SELECT " + partColumns + " FROM parts p WHERE p.id = $1 AND p.deleted_at IS NULL"
	p, err := scanPart(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapDBError(err, "getting part")
	}
	return p, nil
}

func (r *partRepository) GetByIDForUpdate(ctx context.Context, executor SQLExecutor, id int64) (*models.Part, error) {
	query := "SELECT " + partColumns + " FROM parts p WHERE p.id = $1 AND p.deleted_at IS NULL FOR UPDATE"
	p, err := scanPart(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapDBError(err, "locking part")
	}
	return p, nil
}

// Update writes catalog fields only. Quantity is owned by the stock ledger.
func (r *partRepository) Update(ctx context.Context, executor SQLExecutor, part *models.Part) error {
	if executor == nil {
		executor = r.db
	}
	query := `UPDATE parts SET code = $1, name = $2, category = $3, description = $4, unit_cost = $5,
	              sale_price = $6, min_quantity = $7, is_active = $8, updated_at = $9
	          WHERE id = $10 AND deleted_at IS NULL
	          RETURNING updated_at`
	err := executor.QueryRowContext(ctx, query,
		part.Code, part.Name, part.Category, part.Description, part.UnitCost,
		part.SalePrice, part.MinQuantity, part.IsActive, time.Now().UTC(), part.ID,
	).Scan(&part.UpdatedAt)
	if err != nil {
		return mapDBError(err, "updating part")
	}
	return nil
}

func (r *partRepository) SetQuantity(ctx context.Context, executor SQLExecutor, id int64, quantity int) error {
	res, err := executor.ExecContext(ctx,
		`UPDATE parts SET quantity = $1, updated_at = $2 WHERE id = $3`, quantity, time.Now().UTC(), id)
	if err != nil {
		return mapDBError(err, "setting part quantity")
	}
	return expectOneRow(res, "setting part quantity")
}

func (r *partRepository) UpdateUnitCost(ctx context.Context, executor SQLExecutor, id int64, cost decimal.Decimal) error {
	res, err := executor.ExecContext(ctx,
		`UPDATE parts SET unit_cost = $1, updated_at = $2 WHERE id = $3`, cost, time.Now().UTC(), id)
	if err != nil {
		return mapDBError(err, "updating part cost")
	}
	return expectOneRow(res, "updating part cost")
}

func (r *partRepository) List(ctx context.Context, filters models.PartFilters) ([]models.Part, int, error) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString("SELECT " + partColumns + ", COUNT(*) OVER() AS total_count FROM parts p")

	conditions := []string{"p.deleted_at IS NULL"}
	var args []interface{}
	argCount := 1

	if filters.Search != nil && *filters.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(p.code ILIKE $%d OR p.name ILIKE $%d)", argCount, argCount))
		args = append(args, "%"+*filters.Search+"%")
		argCount++
	}
	if filters.Category != nil && *filters.Category != "" {
		conditions = append(conditions, fmt.Sprintf("p.category = $%d", argCount))
		args = append(args, *filters.Category)
		argCount++
	}
	if filters.ActiveOnly {
		conditions = append(conditions, "p.is_active")
	}

	queryBuilder.WriteString(" WHERE " + strings.Join(conditions, " AND "))
	queryBuilder.WriteString(" ORDER BY p.code")
	queryBuilder.WriteString(fmt.Sprintf(" LIMIT $%d OFFSET $%d", argCount, argCount+1))
	args = append(args, filters.PageSize, (filters.Page-1)*filters.PageSize)

	return r.queryParts(ctx, queryBuilder.String(), true, args...)
}

func (r *partRepository) ListLowStock(ctx context.Context) ([]models.Part, error) {
	parts, _, err := r.queryParts(ctx, "SELECT "+partColumns+" FROM parts p"+
		" WHERE p.deleted_at IS NULL AND p.is_active AND p.quantity <= p.min_quantity ORDER BY p.quantity, p.code", false)
	return parts, err
}

func (r *partRepository) ListOutOfStock(ctx context.Context) ([]models.Part, error) {
	parts, _, err := r.queryParts(ctx, "SELECT "+partColumns+" FROM parts p"+
		" WHERE p.deleted_at IS NULL AND p.is_active AND p.quantity = 0 ORDER BY p.code", false)
	return parts, err
}

func (r *partRepository) queryParts(ctx context.Context, query string, counted bool, args ...interface{}) ([]models.Part, int, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, mapDBError(err, "listing parts")
	}
	defer rows.Close()

	parts := []models.Part{}
	totalCount := 0
	for rows.Next() {
		var extra []interface{}
		if counted {
			extra = append(extra, &totalCount)
		}
		p, err := scanPart(rows, extra...)
		if err != nil {
			return nil, 0, mapDBError(err, "scanning part")
		}
		parts = append(parts, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, mapDBError(err, "iterating parts")
	}
	if !counted {
		totalCount = len(parts)
	}
	return parts, totalCount, nil
}
