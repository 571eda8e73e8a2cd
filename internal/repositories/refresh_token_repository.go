package repositories

import (
	"context"
	"database/sql"
	"time"

	"repair_shop_backend/internal/models"
)

// RefreshTokenRepository stores refresh tokens by hash.
type RefreshTokenRepository interface {
	Create(ctx context.Context, executor SQLExecutor, token *models.RefreshToken) error
	// GetByHashForUpdate locks the token row so a token is exchanged at most once.
	GetByHashForUpdate(ctx context.Context, executor SQLExecutor, hash string) (*models.RefreshToken, error)
	Revoke(ctx context.Context, executor SQLExecutor, id int64, at time.Time) error
}

type refreshTokenRepository struct {
	db *sql.DB
}

// NewRefreshTokenRepository creates a new instance of RefreshTokenRepository.
func NewRefreshTokenRepository(db *sql.DB) RefreshTokenRepository {
	return &refreshTokenRepository{db: db}
}

func (r *refreshTokenRepository) Create(ctx context.Context, executor SQLExecutor, token *models.RefreshToken) error {
	if executor == nil {
		executor = r.db
	}
	query := `INSERT INTO refresh_tokens (user_id, token_hash, expires_at, created_at)
	          VALUES ($1, $2, $3, $4)
	          RETURNING id, created_at`
	err := executor.QueryRowContext(ctx, query, token.UserID, token.TokenHash, token.ExpiresAt, time.Now().UTC()).
		Scan(&token.ID, &token.CreatedAt)
	if err != nil {
		return mapDBError(err, "creating refresh token")
	}
	return nil
}

func (r *refreshTokenRepository) GetByHashForUpdate(ctx context.Context, executor SQLExecutor, hash string) (*models.RefreshToken, error) {
	if executor == nil {
		executor = r.db
	}
	query := `SELECT id, user_id, token_hash, expires_at, revoked_at, created_at
	          FROM refresh_tokens WHERE token_hash = $1 FOR UPDATE`
	var t models.RefreshToken
	var revokedAt sql.NullTime
	err := executor.QueryRowContext(ctx, query, hash).
		Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &revokedAt, &t.CreatedAt)
	if err != nil {
		return nil, mapDBError(err, "getting refresh token")
	}
	t.RevokedAt = nullTimePtr(revokedAt)
	return &t, nil
}

func (r *refreshTokenRepository) Revoke(ctx context.Context, executor SQLExecutor, id int64, at time.Time) error {
	if executor == nil {
		executor = r.db
	}
	_, err := executor.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = $1 WHERE id = $2 AND revoked_at IS NULL`, at, id)
	if err != nil {
		return mapDBError(err, "revoking refresh token")
	}
	return nil
}
