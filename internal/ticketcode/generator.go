package ticketcode

import (
	"context"
	"fmt"
	"time"

	"repair_shop_backend/internal/repositories"
	"repair_shop_backend/pkg/apperrors"
	"repair_shop_backend/pkg/utils"
)

const defaultMaxAttempts = 10

// Counter hands out strictly increasing values per prefix and day. Values are
// never reused, gaps are allowed.
type Counter interface {
	Next(ctx context.Context, executor repositories.SQLExecutor, prefix string, day time.Time) (int64, error)
}

// Advancer is implemented by counters that can be moved forward to a known
// value. The counter never goes backwards.
type Advancer interface {
	AdvanceTo(ctx context.Context, executor repositories.SQLExecutor, prefix string, day time.Time, value int64) error
}

// LatestFunc returns the highest stored code for prefix and day, or "" when
// the day has none.
type LatestFunc func(ctx context.Context, executor repositories.SQLExecutor, prefix string, day time.Time) (string, error)

// ExistsFunc reports whether a code is already taken.
type ExistsFunc func(ctx context.Context, executor repositories.SQLExecutor, code string) (bool, error)

// Generator produces unique codes for one prefix.
type Generator struct {
	prefix      string
	counter     Counter
	exists      ExistsFunc
	latest      LatestFunc
	now         func() time.Time
	maxAttempts int
}

// NewGenerator builds a Generator. exists may be nil when the counter alone is trusted.
func NewGenerator(prefix string, counter Counter, exists ExistsFunc) (*Generator, error) {
	if !ValidPrefix(prefix) {
		return nil, fmt.Errorf("invalid code prefix %q: want COMPANY-BRANCH, e.g. %s", prefix, DefaultTicketPrefix)
	}
	if counter == nil {
		return nil, fmt.Errorf("code generator for %s needs a counter", prefix)
	}
	return &Generator{
		prefix:      prefix,
		counter:     counter,
		exists:      exists,
		now:         time.Now,
		maxAttempts: defaultMaxAttempts,
	}, nil
}

// WithClock replaces the time source. Intended for tests.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// WithLatest lets the generator jump past codes it did not issue itself
// (a backend switch mid-day, imports) instead of trying them one by one.
// It only takes effect when the counter implements Advancer.
func (g *Generator) WithLatest(latest LatestFunc) *Generator {
	g.latest = latest
	return g
}

func (g *Generator) Prefix() string { return g.prefix }

// Generate returns a code not yet present in storage. When executor is a
// transaction, the Postgres counter keeps its row locked until commit, so a
// concurrent caller cannot draw the same value; the existence check guards
// against codes written by other means (imports, manual fixes).
func (g *Generator) Generate(ctx context.Context, executor repositories.SQLExecutor) (string, error) {
	day := g.now()
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		seq, err := g.counter.Next(ctx, executor, g.prefix, day)
		if err != nil {
			return "", fmt.Errorf("drawing sequence for %s: %w", g.prefix, err)
		}
		code := Format(g.prefix, day, seq)
		if g.exists == nil {
			return code, nil
		}
		taken, err := g.exists(ctx, executor, code)
		if err != nil {
			return "", fmt.Errorf("checking code %s: %w", code, err)
		}
		if !taken {
			return code, nil
		}
		if err := g.skipTaken(ctx, executor, day, seq); err != nil {
			return "", err
		}
	}
	return "", apperrors.Conflict("could not find a free code for %s after %d attempts", g.prefix, g.maxAttempts)
}

// skipTaken moves the counter to the highest stored code of the day. It runs
// on the caller's executor, so the jump commits together with the code that
// is eventually issued.
func (g *Generator) skipTaken(ctx context.Context, executor repositories.SQLExecutor, day time.Time, seq int64) error {
	advancer, ok := g.counter.(Advancer)
	if !ok || g.latest == nil {
		return nil
	}
	latest, err := g.latest(ctx, executor, g.prefix, day)
	if err != nil {
		return fmt.Errorf("finding latest code for %s: %w", g.prefix, err)
	}
	if latest == "" {
		return nil
	}
	highest, err := ExtractSequence(latest)
	if err != nil || highest <= seq {
		return nil
	}
	if err := advancer.AdvanceTo(ctx, executor, g.prefix, day, highest); err != nil {
		return fmt.Errorf("advancing sequence for %s to %d: %w", g.prefix, highest, err)
	}
	utils.LogInfo("Code sequence moved past existing codes", map[string]interface{}{
		"prefix": g.prefix,
		"from":   seq,
		"to":     highest,
	})
	return nil
}
