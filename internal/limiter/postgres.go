package limiter

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/and161185/chartkeeper/internal/clock"
)

// PG is a PostgreSQL-backed fixed-window limiter shared by all server instances.
type PG struct {
	pool   pgxQuerier
	window time.Duration
	max    int
	clk    clock.Clock
}

var _ Limiter = (*PG)(nil)

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG allows max operations per key in each window.
func NewPG(q pgxQuerier, window time.Duration, max int, clk clock.Clock) *PG {
	if clk == nil {
		clk = clock.New()
	}
	return &PG{pool: q, window: window, max: max, clk: clk}
}

// Allow counts a hit in the key's current window.
func (l *PG) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	now := l.clk.Now()
	const q = `
INSERT INTO write_limiter (key, window_start, hits)
VALUES ($1, $2, 1)
ON CONFLICT (key) DO UPDATE
SET
  window_start = CASE WHEN write_limiter.window_start <= $2 - $3::interval THEN $2 ELSE write_limiter.window_start END,
  hits = CASE WHEN write_limiter.window_start <= $2 - $3::interval THEN 1 ELSE write_limiter.hits + 1 END
RETURNING window_start, hits`
	var start time.Time
	var hits int
	if err := l.pool.QueryRow(ctx, q, key, now, l.window).Scan(&start, &hits); err != nil {
		return false, 0, err
	}
	if hits <= l.max {
		return true, 0, nil
	}
	retry := start.Add(l.window).Sub(now)
	if retry < 0 {
		retry = 0
	}
	return false, retry, nil
}

// Sweep removes windows that ended before now.
func (l *PG) Sweep(ctx context.Context) error {
	_, err := l.pool.Exec(ctx, `DELETE FROM write_limiter WHERE window_start < $1`, l.clk.Now().Add(-l.window))
	return err
}
