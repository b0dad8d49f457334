// Package limiter defines per-key write rate limiting for the record store.
package limiter

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/and161185/chartkeeper/internal/clock"
)

// Limiter decides whether a keyed operation may proceed now.
type Limiter interface {
	// Allow consumes one unit for key and reports whether it was available, with a retry hint otherwise.
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
}

// Memory is a process-local token bucket per key.
type Memory struct {
	mu      sync.Mutex
	perMin  int
	burst   int
	idleTTL time.Duration
	clk     clock.Clock
	buckets map[string]*bucket
	sweptAt time.Time
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

var _ Limiter = (*Memory)(nil)

// NewMemory allows perMinute operations per key with the given burst.
func NewMemory(perMinute, burst int, clk clock.Clock) *Memory {
	if clk == nil {
		clk = clock.New()
	}
	if burst <= 0 {
		burst = perMinute
	}
	return &Memory{
		perMin:  perMinute,
		burst:   burst,
		idleTTL: 10 * time.Minute,
		clk:     clk,
		buckets: make(map[string]*bucket),
	}
}

func (m *Memory) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	now := m.clk.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweepLocked(now)
	b, ok := m.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rate.Limit(float64(m.perMin)/60), m.burst)}
		m.buckets[key] = b
	}
	b.lastSeen = now
	r := b.lim.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Minute, nil
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return false, d, nil
	}
	return true, 0, nil
}

func (m *Memory) sweepLocked(now time.Time) {
	if now.Sub(m.sweptAt) < m.idleTTL {
		return
	}
	m.sweptAt = now
	for k, b := range m.buckets {
		if now.Sub(b.lastSeen) > m.idleTTL {
			delete(m.buckets, k)
		}
	}
}
