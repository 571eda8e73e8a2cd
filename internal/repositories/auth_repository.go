package repositories

import (
	"context"
	"database/sql"
	"time"

	"repair_shop_backend/internal/models"
)

// AuthRepository defines the interface for user accounts.
type AuthRepository interface {
	CreateUser(ctx context.Context, executor SQLExecutor, user *models.User, hashedPassword string) (int64, error)
	FindUserByUsername(ctx context.Context, username string) (*models.User, string, error) // Returns User, HashedPassword, Error
	FindUserByID(ctx context.Context, executor SQLExecutor, userID int64) (*models.User, error)
	ListUsersByRole(ctx context.Context, role string, activeOnly bool) ([]models.User, error)
}

// authRepository implements the AuthRepository interface.
type authRepository struct {
	db *sql.DB
}

// NewAuthRepository creates a new instance of AuthRepository.
func NewAuthRepository(db *sql.DB) AuthRepository {
	return &authRepository{db: db}
}

// CreateUser inserts a new user. IsActive is honoured as given.
func (r *authRepository) CreateUser(ctx context.Context, executor SQLExecutor, user *models.User, hashedPassword string) (int64, error) {
	if executor == nil {
		executor = r.db
	}
	query := `INSERT INTO users (username, password_hash, email, full_name, role, is_active, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	          RETURNING id, created_at, updated_at`

	err := executor.QueryRowContext(ctx, query,
		user.Username,
		hashedPassword,
		user.Email,
		user.FullName,
		user.Role,
		user.IsActive,
		time.Now().UTC(),
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return 0, mapDBError(err, "creating user")
	}
	return user.ID, nil
}

const userColumns = `u.id, u.username, u.password_hash, u.email, u.full_name, u.role, u.is_active, u.created_at, u.updated_at`

func scanUser(s scanner) (*models.User, error) {
	user := &models.User{}
	err := s.Scan(
		&user.ID, &user.Username, &user.PasswordHash, &user.Email, &user.FullName,
		&user.Role, &user.IsActive, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// FindUserByUsername retrieves a user by their username together with the password hash.
func (r *authRepository) FindUserByUsername(ctx context.Context, username string) (*models.User, string, error) {
	query := "SELECT " + userColumns + " FROM users u WHERE u.username = $1"
	user, err := scanUser(r.db.QueryRowContext(ctx, query, username))
	if err != nil {
		return nil, "", mapDBError(err, "finding user by username")
	}
	hash := user.PasswordHash
	user.PasswordHash = ""
	return user, hash, nil
}

// FindUserByID retrieves a user by their ID. The password hash is not returned.
func (r *authRepository) FindUserByID(ctx context.Context, executor SQLExecutor, userID int64) (*models.User, error) {
	if executor == nil {
		executor = r.db
	}
	query := "SELECT " + userColumns + " FROM users u WHERE u.id = $1"
	user, err := scanUser(executor.QueryRowContext(ctx, query, userID))
	if err != nil {
		return nil, mapDBError(err, "finding user by id")
	}
	user.PasswordHash = ""
	return user, nil
}

// ListUsersByRole returns users holding role ordered by username.
func (r *authRepository) ListUsersByRole(ctx context.Context, role string, activeOnly bool) ([]models.User, error) {
	query := "SELECT " + userColumns + " FROM users u WHERE u.role = $1"
	if activeOnly {
		query += " AND u.is_active"
	}
	query += " ORDER BY u.username"

	rows, err := r.db.QueryContext(ctx, query, role)
	if err != nil {
		return nil, mapDBError(err, "listing users by role")
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, mapDBError(err, "scanning user")
		}
		user.PasswordHash = ""
		users = append(users, *user)
	}
	return users, rows.Err()
}
