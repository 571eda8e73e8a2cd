package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when a specific record is not found.
	ErrNotFound = errors.New("requested record not found")

	// ErrDatabaseError is returned for unexpected database errors.
	ErrDatabaseError = errors.New("database error")

	// ErrDuplicateKey is returned when an insert/update violates a unique constraint.
	ErrDuplicateKey = errors.New("duplicate key value violates unique constraint")

	// ErrForeignKey is returned when a referenced row does not exist.
	ErrForeignKey = errors.New("referenced record does not exist")

	// ErrCheckViolation is returned when a CHECK constraint rejects a write.
	ErrCheckViolation = errors.New("check constraint violated")

	// ErrConflict covers serialization failures, deadlocks and lock timeouts.
	// The whole transaction may be retried.
	ErrConflict = errors.New("concurrent update conflict")
)

// SQLExecutor defines an interface that can be satisfied by *sql.DB or *sql.Tx
// This allows repository methods to be used within transactions or with a direct DB connection.
type SQLExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// scanner is an interface satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// mapDBError translates driver errors into repository sentinels. op names the
// failing operation and ends up in the message.
func mapDBError(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s: %s (constraint: %s)", ErrDuplicateKey, op, pqErr.Message, pqErr.Constraint)
		case "23503":
			return fmt.Errorf("%w: %s: %s (constraint: %s)", ErrForeignKey, op, pqErr.Message, pqErr.Constraint)
		case "23514":
			return fmt.Errorf("%w: %s: %s (constraint: %s)", ErrCheckViolation, op, pqErr.Message, pqErr.Constraint)
		case "40001", "40P01", "55P03":
			return fmt.Errorf("%w: %s: %s", ErrConflict, op, pqErr.Message)
		}
	}
	return fmt.Errorf("%w: %s: %v", ErrDatabaseError, op, err)
}

// expectOneRow turns a zero RowsAffected into ErrNotFound.
func expectOneRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %s: reading rows affected: %v", ErrDatabaseError, op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
