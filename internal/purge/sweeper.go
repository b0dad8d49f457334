// Package purge runs the scheduled permanent deletion of notes whose grace period has ended.
package purge

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron"
	"go.uber.org/zap"
)

// Purger removes up to limit expired notes and reports how many were purged.
type Purger interface {
	PurgeExpired(ctx context.Context, limit int) (int, error)
}

// Sweeper calls a Purger on a cron schedule, draining all due notes in batches.
type Sweeper struct {
	purger  Purger
	cron    *cron.Cron
	batch   int
	timeout time.Duration
	log     *zap.Logger
	running atomic.Bool
}

// New validates spec (cron expression or descriptor such as "@every 1h") and builds a stopped sweeper.
func New(p Purger, spec string, batch int, log *zap.Logger) (*Sweeper, error) {
	if batch <= 0 {
		batch = 100
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Sweeper{purger: p, cron: cron.New(), batch: batch, timeout: 5 * time.Minute, log: log}
	if err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("purge schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start begins scheduling in the background.
func (s *Sweeper) Start() { s.cron.Start() }

// Stop halts scheduling. A sweep in progress runs to completion.
func (s *Sweeper) Stop() { s.cron.Stop() }

func (s *Sweeper) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	n, err := s.RunOnce(ctx)
	if err != nil {
		s.log.Error("purge sweep failed", zap.Int("purged", n), zap.Error(err))
		return
	}
	if n > 0 {
		s.log.Info("purge sweep", zap.Int("purged", n))
	}
}

// RunOnce purges batches until a batch comes back short. Overlapping calls return immediately.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	if !s.running.CompareAndSwap(false, true) {
		return 0, nil
	}
	defer s.running.Store(false)

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := s.purger.PurgeExpired(ctx, s.batch)
		total += n
		if err != nil {
			return total, err
		}
		if n < s.batch {
			return total, nil
		}
	}
}
