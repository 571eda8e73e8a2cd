package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"repair_shop_backend/internal/models"
)

// ClientRepository defines the interface for client-related database operations.
type ClientRepository interface {
	CreateClient(ctx context.Context, executor SQLExecutor, client *models.Client) error
	GetClientByID(ctx context.Context, executor SQLExecutor, id int64) (*models.Client, error)
	GetClientByIDForUpdate(ctx context.Context, executor SQLExecutor, id int64) (*models.Client, error)
	UpdateClient(ctx context.Context, executor SQLExecutor, client *models.Client) error
	// SoftDeleteClient hides the client; its tickets keep pointing at the row.
	SoftDeleteClient(ctx context.Context, executor SQLExecutor, id int64) error
	ExistsByID(ctx context.Context, executor SQLExecutor, id int64) (bool, error)
	GetClients(ctx context.Context, filters models.ClientFilters) ([]models.Client, int, error)
}

type clientRepository struct {
	db *sql.DB
}

// NewClientRepository creates a new instance of ClientRepository.
func NewClientRepository(db *sql.DB) ClientRepository {
	return &clientRepository{db: db}
}

const clientColumns = `c.id, c.full_name, c.document_number, c.phone_number, c.email, c.address, c.notes, c.created_at, c.updated_at`

func scanClient(s scanner, extra ...interface{}) (*models.Client, error) {
	var c models.Client
	dest := []interface{}{
		&c.ID, &c.FullName, &c.DocumentNumber, &c.PhoneNumber, &c.Email, &c.Address, &c.Notes, &c.CreatedAt, &c.UpdatedAt,
	}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *clientRepository) CreateClient(ctx context.Context, executor SQLExecutor, client *models.Client) error {
	if executor == nil {
		executor = r.db
	}
	query := `INSERT INTO clients (full_name, document_number, phone_number, email, address, notes, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	          RETURNING id, created_at, updated_at`
	err := executor.QueryRowContext(ctx, query,
		client.FullName, client.DocumentNumber, client.PhoneNumber, client.Email, client.Address, client.Notes,
		time.Now().UTC(),
	).Scan(&client.ID, &client.CreatedAt, &client.UpdatedAt)
	if err != nil {
		return mapDBError(err, "creating client")
	}
	return nil
}

func (r *clientRepository) GetClientByID(ctx context.Context, executor SQLExecutor, id int64) (*models.Client, error) {
	return r.getClient(ctx, executor, id, "")
}

func (r *clientRepository) GetClientByIDForUpdate(ctx context.Context, executor SQLExecutor, id int64) (*models.Client, error) {
	return r.getClient(ctx, executor, id, " FOR UPDATE")
}

func (r *clientRepository) getClient(ctx context.Context, executor SQLExecutor, id int64, suffix string) (*models.Client, error) {
	if executor == nil {
		executor = r.db
	}
	query := "SELECT " + clientColumns + " FROM clients c WHERE c.id = $1 AND c.deleted_at IS NULL" + suffix
	c, err := scanClient(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapDBError(err, "getting client")
	}
	return c, nil
}

func (r *clientRepository) UpdateClient(ctx context.Context, executor SQLExecutor, client *models.Client) error {
	if executor == nil {
		executor = r.db
	}
	query := `UPDATE clients SET full_name = $1, document_number = $2, phone_number = $3, email = $4,
	              address = $5, notes = $6, updated_at = $7
	          WHERE id = $8 AND deleted_at IS NULL
	          RETURNING updated_at`
	err := executor.QueryRowContext(ctx, query,
		client.FullName, client.DocumentNumber, client.PhoneNumber, client.Email, client.Address, client.Notes,
		time.Now().UTC(), client.ID,
	).Scan(&client.UpdatedAt)
	if err != nil {
		return mapDBError(err, "updating client")
	}
	return nil
}

func (r *clientRepository) SoftDeleteClient(ctx context.Context, executor SQLExecutor, id int64) error {
	if executor == nil {
		executor = r.db
	}
	res, err := executor.ExecContext(ctx,
		`UPDATE clients SET deleted_at = $1, updated_at = $1 WHERE id = $2 AND deleted_at IS NULL`, time.Now().UTC(), id)
	if err != nil {
		return mapDBError(err, "deleting client")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return mapDBError(err, "deleting client")
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *clientRepository) ExistsByID(ctx context.Context, executor SQLExecutor, id int64) (bool, error) {
	if executor == nil {
		executor = r.db
	}
	var exists bool
	err := executor.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM clients WHERE id = $1 AND deleted_at IS NULL)`, id).Scan(&exists)
	if err != nil {
		return false, mapDBError(err, "checking client")
	}
	return exists, nil
}

func (r *clientRepository) GetClients(ctx context.Context, filters models.ClientFilters) ([]models.Client, int, error) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString("SELECT " + clientColumns + ", COUNT(*) OVER() AS total_count FROM clients c WHERE c.deleted_at IS NULL")

	var args []interface{}
	argCount := 1
	if filters.Search != nil && *filters.Search != "" {
		queryBuilder.WriteString(fmt.Sprintf(" AND (c.full_name ILIKE $%d OR c.phone_number ILIKE $%d OR c.document_number ILIKE $%d)",
			argCount, argCount, argCount))
		args = append(args, "%"+*filters.Search+"%")
		argCount++
	}
	queryBuilder.WriteString(" ORDER BY c.full_name")
	queryBuilder.WriteString(fmt.Sprintf(" LIMIT $%d OFFSET $%d", argCount, argCount+1))
	args = append(args, filters.PageSize, (filters.Page-1)*filters.PageSize)

	rows, err := r.db.QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, 0, mapDBError(err, "listing clients")
	}
	defer rows.Close()

	clients := []models.Client{}
	totalCount := 0
	for rows.Next() {
		c, err := scanClient(rows, &totalCount)
		if err != nil {
			return nil, 0, mapDBError(err, "scanning client")
		}
		clients = append(clients, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, mapDBError(err, "iterating clients")
	}
	return clients, totalCount, nil
}
