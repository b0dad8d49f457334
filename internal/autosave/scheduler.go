// Package autosave debounces note edits into the local write-ahead cache and the record store.
package autosave

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/chartkeeper/internal/clock"
	"github.com/and161185/chartkeeper/internal/errs"
	"github.com/and161185/chartkeeper/internal/lifecycle"
	"github.com/and161185/chartkeeper/internal/model"
	"github.com/and161185/chartkeeper/internal/remote"
)

// Status is the per-note sync indicator.
type Status int

const (
	StatusSynced Status = iota
	StatusPending
	StatusError
	StatusOffline
)

func (s Status) String() string {
	switch s {
	case StatusSynced:
		return "synced"
	case StatusPending:
		return "pending"
	case StatusError:
		return "error"
	case StatusOffline:
		return "offline"
	}
	return "unknown"
}

// Cache is the writing side of the local cache store.
type Cache interface {
	Write(ctx context.Context, noteID uuid.UUID, content model.Content, ts time.Time, ver int64) error
	Clear(ctx context.Context, noteID uuid.UUID) error
}

// Connectivity reports the online state and its transitions.
type Connectivity interface {
	Online() bool
	Subscribe(f func(online bool)) (unsubscribe func())
}

// Options tunes a Scheduler.
type Options struct {
	// Debounce is the quiet period after the last edit before a remote write.
	Debounce time.Duration
	// WriteTimeout bounds each remote write; zero leaves it to the client.
	WriteTimeout time.Duration
}

// Snapshot is a point-in-time view of one open note.
type Snapshot struct {
	Status  Status
	Err     error
	Dirty   bool
	Local   model.Content
	Version int64
}

// Scheduler owns the single logical writer per open note.
type Scheduler struct {
	remote remote.Client
	cache  Cache
	conn   Connectivity
	clk    clock.Clock
	opts   Options
	log    *zap.Logger

	// mu is taken before any noteState.mu.
	mu       sync.Mutex
	notes    map[uuid.UUID]*noteState
	draining map[uuid.UUID]*noteState // stopped notes with a write still in flight
	unsub    func()
}

type noteState struct {
	id uuid.UUID

	mu       sync.Mutex
	route    lifecycle.Route
	local    model.Content
	pending  model.Patch
	dirty    bool
	version  int64
	timer    clock.Timer
	inflight bool
	rerun    bool
	waiters  []chan error
	stopped  bool
	gone     bool
	status   Status
	lastErr  error
	onSaved  func(model.Note)
}

// New constructs a scheduler and subscribes it to connectivity transitions.
func New(rc remote.Client, cache Cache, conn Connectivity, clk clock.Clock, opts Options, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Scheduler{
		remote:   rc,
		cache:    cache,
		conn:     conn,
		clk:      clk,
		opts:     opts,
		log:      log,
		notes:    make(map[uuid.UUID]*noteState),
		draining: make(map[uuid.UUID]*noteState),
	}
	s.unsub = conn.Subscribe(s.onConnectivity)
	return s
}

// Open starts tracking n. onSaved, if set, receives every acknowledged server record.
// If a write for n is still in flight, from an open or a stopped session, the new session takes over
// that writer so the note keeps a single one; its unsent edits carry over.
func (s *Scheduler) Open(n model.Note, onSaved func(model.Note)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.notes[n.ID]
	if old == nil {
		old = s.draining[n.ID]
	}
	delete(s.draining, n.ID)
	if old != nil {
		old.mu.Lock()
		if old.inflight {
			old.stopped, old.gone = false, false
			old.route = lifecycle.WriteRoute(n.State())
			old.local = n.Content.Apply(old.pending)
			old.onSaved = onSaved
			old.mu.Unlock()
			s.notes[n.ID] = old
			return
		}
		old.stopLocked()
		old.mu.Unlock()
	}
	s.notes[n.ID] = &noteState{
		id:      n.ID,
		route:   lifecycle.WriteRoute(n.State()),
		local:   n.Content.Clone(),
		status:  StatusSynced,
		onSaved: onSaved,
	}
}

// Reset rebases an open note on a fresh server record after a lifecycle transition.
// Unsent edits are kept and follow the new write route.
func (s *Scheduler) Reset(n model.Note) error {
	st, err := s.get(n.ID)
	if err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.route = lifecycle.WriteRoute(n.State())
	st.local = n.Content.Apply(st.pending)
	return nil
}

// Discard drops unsent edits and rebases the note on n. A write already in flight is not recalled.
func (s *Scheduler) Discard(n model.Note) error {
	st, err := s.get(n.ID)
	if err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}
	st.pending, st.dirty = model.Patch{}, false
	st.local = n.Content.Clone()
	if !st.inflight {
		st.status, st.lastErr = StatusSynced, nil
	}
	return nil
}

// Schedule records an edit. The local cache is written before it returns; the remote write follows
// once the debounce window closes.
func (s *Scheduler) Schedule(ctx context.Context, id uuid.UUID, patch model.Patch) error {
	if err := patch.Validate(); err != nil {
		return err
	}
	st, err := s.get(id)
	if err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.gone {
		return fmt.Errorf("note %s: %w", id, errs.ErrNotFound)
	}
	if st.route == lifecycle.RouteNone {
		return fmt.Errorf("edit note %s: %w", id, errs.ErrInvalidTransition)
	}

	st.local = st.local.Apply(patch)
	st.pending = st.pending.Merge(patch)
	st.dirty = true
	st.version++
	s.writeCacheLocked(ctx, st, s.clk.Now())

	if s.conn.Online() {
		st.status = StatusPending
	} else {
		st.status = StatusOffline
	}
	s.armLocked(st)
	return nil
}

// FlushNow cancels the debounce timer and waits for the remote write of everything edited so far.
// Cancelling ctx stops the wait, not the write.
func (s *Scheduler) FlushNow(ctx context.Context, id uuid.UUID) error {
	st, err := s.get(id)
	if err != nil {
		return err
	}
	st.mu.Lock()
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}
	if !st.dirty && !st.inflight {
		st.mu.Unlock()
		return nil
	}
	ch := make(chan error, 1)
	st.waiters = append(st.waiters, ch)
	st.mu.Unlock()

	s.drive(st)

	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop cancels the pending timer without writing. An in-flight write still completes and clears the
// cache on success, unless a later Open has taken the note over and edited it since.
func (s *Scheduler) Stop(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.notes[id]
	delete(s.notes, id)
	if st == nil {
		return
	}
	st.mu.Lock()
	st.stopLocked()
	if st.inflight {
		s.draining[id] = st
	}
	st.mu.Unlock()
}

// State reports the sync state of an open note.
func (s *Scheduler) State(id uuid.UUID) (Snapshot, error) {
	st, err := s.get(id)
	if err != nil {
		return Snapshot{}, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return Snapshot{
		Status:  st.status,
		Err:     st.lastErr,
		Dirty:   st.dirty || st.inflight,
		Local:   st.local.Clone(),
		Version: st.version,
	}, nil
}

// Close stops every open note and the connectivity subscription.
func (s *Scheduler) Close() {
	s.unsub()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.notes {
		st.mu.Lock()
		st.stopLocked()
		st.mu.Unlock()
	}
	s.notes = make(map[uuid.UUID]*noteState)
	s.draining = make(map[uuid.UUID]*noteState)
}

func (s *Scheduler) get(id uuid.UUID) (*noteState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.notes[id]
	if !ok {
		return nil, fmt.Errorf("note %s: %w", id, errs.ErrNotOpen)
	}
	return st, nil
}

func (st *noteState) stopLocked() {
	st.stopped = true
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}
	st.notifyLocked(fmt.Errorf("note %s: %w", st.id, errs.ErrNotOpen))
}

func (st *noteState) notifyLocked(err error) {
	for _, ch := range st.waiters {
		ch <- err
	}
	st.waiters = nil
}

func (s *Scheduler) armLocked(st *noteState) {
	if st.timer != nil {
		st.timer.Stop()
	}
	var t clock.Timer
	t = s.clk.AfterFunc(s.opts.Debounce, func() {
		st.mu.Lock()
		if st.timer == t {
			st.timer = nil
		}
		st.mu.Unlock()
		s.drive(st)
	})
	st.timer = t
}

func (s *Scheduler) writeCacheLocked(ctx context.Context, st *noteState, ts time.Time) {
	if err := s.cache.Write(ctx, st.id, st.local, ts, st.version); err != nil {
		s.log.Warn("local backup write failed", zap.String("note_id", st.id.String()), zap.Error(err))
	}
}

func (s *Scheduler) onConnectivity(online bool) {
	s.mu.Lock()
	notes := make([]*noteState, 0, len(s.notes))
	for _, st := range s.notes {
		notes = append(notes, st)
	}
	s.mu.Unlock()

	for _, st := range notes {
		st.mu.Lock()
		due := st.dirty && !st.gone && !st.stopped
		if due && !online {
			st.status = StatusOffline
		}
		if due && online && st.timer != nil {
			st.timer.Stop()
			st.timer = nil
		}
		st.mu.Unlock()
		if due && online {
			go s.drive(st)
		}
	}
}

// drive sends pending edits until nothing is left that a caller is waiting for. Only one goroutine
// drives a note at a time; others leave a rerun mark and return.
func (s *Scheduler) drive(st *noteState) {
	st.mu.Lock()
	if st.inflight {
		st.rerun = true
		st.mu.Unlock()
		return
	}
	st.inflight = true
	s.driveLocked(st)
	st.inflight = false
	stopped := st.stopped
	st.mu.Unlock()

	if stopped {
		s.mu.Lock()
		if s.draining[st.id] == st {
			delete(s.draining, st.id)
		}
		s.mu.Unlock()
	}
}

func (s *Scheduler) driveLocked(st *noteState) {
	for {
		st.rerun = false
		switch {
		case !st.dirty:
			st.notifyLocked(nil)
			return
		case st.gone:
			st.notifyLocked(fmt.Errorf("note %s: %w", st.id, errs.ErrNotFound))
			return
		case st.route == lifecycle.RouteNone:
			st.notifyLocked(fmt.Errorf("write note %s: %w", st.id, errs.ErrInvalidTransition))
			return
		case !s.conn.Online():
			st.status = StatusOffline
			st.notifyLocked(fmt.Errorf("write note %s: %w", st.id, errs.ErrOffline))
			return
		}

		sent, route := st.pending, st.route
		st.pending, st.dirty = model.Patch{}, false
		st.mu.Unlock()
		n, err := s.send(route, st.id, sent)
		st.mu.Lock()

		if err != nil {
			st.pending = sent.Merge(st.pending)
			st.dirty = true
			st.lastErr = err
			st.status = s.statusFor(err)
			if errors.Is(err, errs.ErrNotFound) {
				st.gone = true
				if st.timer != nil {
					st.timer.Stop()
					st.timer = nil
				}
			}
			s.log.Warn("remote write failed", zap.String("note_id", st.id.String()),
				zap.Stringer("route", route), zap.String("kind", errs.KindOf(err).String()), zap.Error(err))
			st.notifyLocked(err)
			return
		}

		st.lastErr = nil
		st.local = n.Content.Apply(st.pending)
		ctx := context.Background()
		if st.dirty {
			ts := s.clk.Now()
			if ack := n.LastPersistedAt().Add(time.Microsecond); ts.Before(ack) {
				ts = ack
			}
			s.writeCacheLocked(ctx, st, ts)
			st.status = StatusPending
			if !s.conn.Online() {
				st.status = StatusOffline
			}
		} else {
			if err := s.cache.Clear(ctx, st.id); err != nil {
				s.log.Warn("local backup clear failed", zap.String("note_id", st.id.String()), zap.Error(err))
			}
			st.status = StatusSynced
		}
		if st.onSaved != nil {
			f := st.onSaved
			st.mu.Unlock()
			f(n)
			st.mu.Lock()
		}
		if st.stopped || !(st.rerun || len(st.waiters) > 0) {
			return
		}
	}
}

func (s *Scheduler) send(route lifecycle.Route, id uuid.UUID, p model.Patch) (model.Note, error) {
	ctx := context.Background()
	if s.opts.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.WriteTimeout)
		defer cancel()
	}
	if route == lifecycle.RouteAmend {
		return s.remote.Amend(ctx, id, p)
	}
	return s.remote.PatchDraft(ctx, id, p)
}

func (s *Scheduler) statusFor(err error) Status {
	switch errs.KindOf(err) {
	case errs.KindOffline:
		return StatusOffline
	case errs.KindTransient:
		if !s.conn.Online() {
			return StatusOffline
		}
	}
	return StatusError
}
