package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Transactor runs a unit of work inside one database transaction.
type Transactor interface {
	// WithinTx commits when fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(tx SQLExecutor) error) error
	// Savepoint runs fn so that its failure only undoes fn's own writes.
	Savepoint(ctx context.Context, tx SQLExecutor, name string, fn func() error) error
}

type sqlTransactor struct {
	db          *sql.DB
	lockTimeout time.Duration
}

// NewTransactor creates a Transactor over db. A positive lockTimeout bounds how long
// a statement waits for a row lock before failing with ErrConflict.
func NewTransactor(db *sql.DB, lockTimeout time.Duration) Transactor {
	return &sqlTransactor{db: db, lockTimeout: lockTimeout}
}

func (t *sqlTransactor) WithinTx(ctx context.Context, fn func(tx SQLExecutor) error) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return mapDBError(err, "begin transaction")
	}
	defer tx.Rollback() // no-op after commit

	if t.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", t.lockTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return mapDBError(err, "set lock timeout")
		}
	}

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapDBError(err, "commit transaction")
	}
	return nil
}

func (t *sqlTransactor) Savepoint(ctx context.Context, tx SQLExecutor, name string, fn func() error) error {
	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return mapDBError(err, "create savepoint")
	}
	if err := fn(); err != nil {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return mapDBError(rbErr, "rollback to savepoint")
		}
		return err
	}
	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return mapDBError(err, "release savepoint")
	}
	return nil
}
