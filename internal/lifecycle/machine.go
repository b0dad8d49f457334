// Package lifecycle enforces the note state machine and serializes lifecycle operations per note.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/chartkeeper/internal/clock"
	"github.com/and161185/chartkeeper/internal/errs"
	"github.com/and161185/chartkeeper/internal/model"
	"github.com/and161185/chartkeeper/internal/remote"
)

// Route is the remote write path legal for a note's content edits.
type Route int

const (
	RouteNone Route = iota
	RouteDraft
	RouteAmend
)

func (r Route) String() string {
	switch r {
	case RouteDraft:
		return "draft"
	case RouteAmend:
		return "amend"
	}
	return "none"
}

// WriteRoute derives the write path for content edits in state s.
func WriteRoute(s model.State) Route {
	switch s {
	case model.StateDraft:
		return RouteDraft
	case model.StateFinalized, model.StateAmended:
		return RouteAmend
	}
	return RouteNone
}

// CanFinalize checks the draft state and the content guard against the content about to be finalized.
func CanFinalize(n model.Note, content model.Content) error {
	if n.State() != model.StateDraft {
		return fmt.Errorf("%w: finalize from %s", errs.ErrInvalidTransition, n.State())
	}
	if !content.HasText() {
		return fmt.Errorf("%w: all content fields are empty", errs.ErrValidation)
	}
	return nil
}

// CanDelete rejects deleted notes and notes carrying amendments.
func CanDelete(n model.Note) error {
	switch n.State() {
	case model.StateDraft, model.StateFinalized:
		return nil
	case model.StateAmended:
		return fmt.Errorf("%w: note has %d amendments", errs.ErrValidation, n.AmendmentCount)
	}
	return fmt.Errorf("%w: delete from %s", errs.ErrInvalidTransition, n.State())
}

// CanRestore allows restore only while now is before permanent_delete_after.
func CanRestore(n model.Note, now time.Time) error {
	if n.State() != model.StateDeleted {
		return fmt.Errorf("%w: restore from %s", errs.ErrInvalidTransition, n.State())
	}
	if n.PermanentDeleteAfter != nil && !now.Before(*n.PermanentDeleteAfter) {
		return fmt.Errorf("%w: grace period ended at %s", errs.ErrGone, n.PermanentDeleteAfter.Format(time.RFC3339))
	}
	return nil
}

// CanPurge allows purge only of soft-deleted notes.
func CanPurge(n model.Note) error {
	if n.State() != model.StateDeleted {
		return fmt.Errorf("%w: purge from %s", errs.ErrInvalidTransition, n.State())
	}
	return nil
}

// Machine runs lifecycle transitions against the record store, one at a time per note.
type Machine struct {
	remote remote.Client
	clk    clock.Clock
	locks  *KeyLock
	log    *zap.Logger
}

// NewMachine constructs a state machine.
func NewMachine(rc remote.Client, clk clock.Clock, log *zap.Logger) *Machine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Machine{remote: rc, clk: clk, locks: NewKeyLock(), log: log}
}

// Guard holds the per-note lock for the duration of fn. It orders lifecycle transitions of one note
// against each other; autosave content writes do not take it, so Finalize flushes them from inside.
func (m *Machine) Guard(ctx context.Context, id uuid.UUID, fn func(ctx context.Context) error) error {
	unlock, err := m.locks.Lock(ctx, id)
	if err != nil {
		return fmt.Errorf("lock note %s: %w", id, err)
	}
	defer unlock()
	return fn(ctx)
}

// Finalize checks the guard against local content, flushes pending edits, then finalizes.
func (m *Machine) Finalize(ctx context.Context, n model.Note, local model.Content, flush func(context.Context) error) (model.Note, error) {
	var out model.Note
	err := m.Guard(ctx, n.ID, func(ctx context.Context) error {
		if err := CanFinalize(n, local); err != nil {
			return err
		}
		if flush != nil {
			if err := flush(ctx); err != nil {
				return fmt.Errorf("flush before finalize: %w", err)
			}
		}
		res, err := m.remote.Finalize(ctx, n.ID)
		if err != nil {
			return fmt.Errorf("finalize: %w", err)
		}
		out = res
		return nil
	})
	m.logTransition("finalize", n, err)
	return out, err
}

// Delete soft-deletes n.
func (m *Machine) Delete(ctx context.Context, n model.Note, reason *string) (model.Note, error) {
	var out model.Note
	err := m.Guard(ctx, n.ID, func(ctx context.Context) error {
		if err := CanDelete(n); err != nil {
			return err
		}
		res, err := m.remote.Delete(ctx, n.ID, reason)
		if err != nil {
			return fmt.Errorf("delete: %w", err)
		}
		out = res
		return nil
	})
	m.logTransition("delete", n, err)
	return out, err
}

// Restore brings a soft-deleted note back to its prior state.
func (m *Machine) Restore(ctx context.Context, n model.Note) (model.Note, error) {
	var out model.Note
	err := m.Guard(ctx, n.ID, func(ctx context.Context) error {
		if err := CanRestore(n, m.clk.Now()); err != nil {
			return err
		}
		res, err := m.remote.Restore(ctx, n.ID)
		if err != nil {
			return fmt.Errorf("restore: %w", err)
		}
		out = res
		return nil
	})
	m.logTransition("restore", n, err)
	return out, err
}

// Purge permanently removes a soft-deleted note.
func (m *Machine) Purge(ctx context.Context, n model.Note) error {
	err := m.Guard(ctx, n.ID, func(ctx context.Context) error {
		if err := CanPurge(n); err != nil {
			return err
		}
		if err := m.remote.Purge(ctx, n.ID); err != nil {
			return fmt.Errorf("purge: %w", err)
		}
		return nil
	})
	m.logTransition("purge", n, err)
	return err
}

func (m *Machine) logTransition(op string, n model.Note, err error) {
	if err == nil {
		m.log.Info("lifecycle transition", zap.String("op", op), zap.String("note_id", n.ID.String()), zap.Stringer("from", n.State()))
		return
	}
	m.log.Warn("lifecycle transition rejected", zap.String("op", op), zap.String("note_id", n.ID.String()),
		zap.Stringer("from", n.State()), zap.String("kind", errs.KindOf(err).String()), zap.Error(err))
}
