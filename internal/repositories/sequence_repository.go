package repositories

import (
	"context"
	"database/sql"
	"time"
)

// SequenceRepository hands out per-prefix, per-day counters. The upsert keeps
// the counter row locked until the caller's transaction ends, so concurrent
// callers are served one after another and never see the same value.
type SequenceRepository interface {
	Next(ctx context.Context, executor SQLExecutor, prefix string, day time.Time) (int64, error)
	// AdvanceTo raises the counter to value; a higher counter is left alone.
	AdvanceTo(ctx context.Context, executor SQLExecutor, prefix string, day time.Time, value int64) error
}

type sequenceRepository struct {
	db *sql.DB
}

// NewSequenceRepository creates a new instance of SequenceRepository.
func NewSequenceRepository(db *sql.DB) SequenceRepository {
	return &sequenceRepository{db: db}
}

func (r *sequenceRepository) Next(ctx context.Context, executor SQLExecutor, prefix string, day time.Time) (int64, error) {
	if executor == nil {
		executor = r.db
	}
	query := `INSERT INTO code_sequences (prefix, day, last_value)
	          VALUES ($1, $2, 1)
	          ON CONFLICT (prefix, day) DO UPDATE SET last_value = code_sequences.last_value + 1
	          RETURNING last_value`
	var next int64
	if err := executor.QueryRowContext(ctx, query, prefix, day.Format("2006-01-02")).Scan(&next); err != nil {
		return 0, mapDBError(err, "advancing code sequence")
	}
	return next, nil
}

func (r *sequenceRepository) AdvanceTo(ctx context.Context, executor SQLExecutor, prefix string, day time.Time, value int64) error {
	if executor == nil {
		executor = r.db
	}
	query := `INSERT INTO code_sequences (prefix, day, last_value)
	          VALUES ($1, $2, $3)
	          ON CONFLICT (prefix, day) DO UPDATE SET last_value = GREATEST(code_sequences.last_value, EXCLUDED.last_value)`
	if _, err := executor.ExecContext(ctx, query, prefix, day.Format("2006-01-02"), value); err != nil {
		return mapDBError(err, "advancing code sequence")
	}
	return nil
}
