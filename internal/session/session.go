// Package session ties the editing core together behind one explicit handle per open note.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/chartkeeper/internal/autosave"
	"github.com/and161185/chartkeeper/internal/clock"
	"github.com/and161185/chartkeeper/internal/conflict"
	"github.com/and161185/chartkeeper/internal/errs"
	"github.com/and161185/chartkeeper/internal/history"
	"github.com/and161185/chartkeeper/internal/lifecycle"
	"github.com/and161185/chartkeeper/internal/model"
	"github.com/and161185/chartkeeper/internal/remote"
)

// Cache is the local write-ahead cache as seen by a session.
type Cache interface {
	Write(ctx context.Context, noteID uuid.UUID, content model.Content, ts time.Time, ver int64) error
	Read(ctx context.Context, noteID uuid.UUID) *model.LocalBackup
	Clear(ctx context.Context, noteID uuid.UUID) error
}

// Manager opens notes for editing. Each note may have at most one open handle.
type Manager struct {
	remote    remote.Client
	cache     Cache
	scheduler *autosave.Scheduler
	machine   *lifecycle.Machine
	resolver  *conflict.Resolver
	history   *history.Store
	log       *zap.Logger

	mu   sync.Mutex
	open map[uuid.UUID]*Handle
}

// NewManager wires the scheduler, state machine, resolver and history reader over rc and cache.
func NewManager(rc remote.Client, cache Cache, conn autosave.Connectivity, clk clock.Clock, opts autosave.Options, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		remote:    rc,
		cache:     cache,
		scheduler: autosave.New(rc, cache, conn, clk, opts, log.Named("autosave")),
		machine:   lifecycle.NewMachine(rc, clk, log.Named("lifecycle")),
		resolver:  conflict.NewResolver(cache, log.Named("conflict")),
		history:   history.New(rc),
		log:       log,
		open:      make(map[uuid.UUID]*Handle),
	}
}

// Create creates a draft on the record store and opens it.
func (m *Manager) Create(ctx context.Context, in model.NewNote) (*Handle, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	n, err := m.remote.CreateNote(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("create note: %w", err)
	}
	return m.attach(ctx, n)
}

// Open loads id from the record store and resolves it against the local backup.
func (m *Manager) Open(ctx context.Context, id uuid.UUID) (*Handle, error) {
	m.mu.Lock()
	_, busy := m.open[id]
	m.mu.Unlock()
	if busy {
		return nil, fmt.Errorf("open note %s: %w: already open", id, errs.ErrConflict)
	}
	n, err := m.remote.GetNote(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load note %s: %w", id, err)
	}
	return m.attach(ctx, n)
}

func (m *Manager) attach(ctx context.Context, n model.Note) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.open[n.ID]; busy {
		return nil, fmt.Errorf("open note %s: %w: already open", n.ID, errs.ErrConflict)
	}

	d := m.resolver.Resolve(ctx, n)
	h := &Handle{m: m, id: n.ID, note: n, decision: d.Outcome}
	if d.Outcome == conflict.LocalNewer {
		h.backup = d.Backup
	}
	m.scheduler.Open(n, h.onSaved)
	m.open[n.ID] = h
	m.log.Debug("note opened", zap.String("note_id", n.ID.String()),
		zap.Stringer("state", n.State()), zap.Stringer("conflict", d.Outcome))
	return h, nil
}

// Close disposes every open handle.
func (m *Manager) Close() {
	m.mu.Lock()
	hs := make([]*Handle, 0, len(m.open))
	for _, h := range m.open {
		hs = append(hs, h)
	}
	m.mu.Unlock()
	for _, h := range hs {
		h.Dispose()
	}
	m.scheduler.Close()
}

// Handle is an open editing session for one note.
type Handle struct {
	m  *Manager
	id uuid.UUID

	mu       sync.Mutex
	note     model.Note
	decision conflict.Outcome
	backup   *model.LocalBackup
	purged   bool
	disposed bool
}

// ID returns the note ID.
func (h *Handle) ID() uuid.UUID { return h.id }

// Note returns the latest server-acknowledged record.
func (h *Handle) Note() model.Note {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.note.Clone()
}

// Content returns the content as edited locally, including unsent edits.
func (h *Handle) Content() model.Content {
	if st, err := h.m.scheduler.State(h.id); err == nil {
		return st.Local
	}
	return h.Note().Content
}

// State returns the lifecycle state.
func (h *Handle) State() model.State {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.purged {
		return model.StatePurged
	}
	return h.note.State()
}

// Conflict returns the load-time outcome and, while a decision is pending, the newer local backup.
func (h *Handle) Conflict() (conflict.Outcome, *model.LocalBackup) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.decision, h.backup
}

// Status returns the sync indicator of the note.
func (h *Handle) Status() autosave.Snapshot {
	st, err := h.m.scheduler.State(h.id)
	if err != nil {
		return autosave.Snapshot{Status: autosave.StatusSynced}
	}
	return st
}

func (h *Handle) onSaved(n model.Note) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n.Version >= h.note.Version {
		h.note = n
	}
}

func (h *Handle) setNote(n model.Note) {
	h.mu.Lock()
	h.note = n
	h.mu.Unlock()
}

func (h *Handle) check() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch {
	case h.disposed:
		return fmt.Errorf("note %s: %w", h.id, errs.ErrNotOpen)
	case h.purged:
		return fmt.Errorf("note %s: %w", h.id, errs.ErrGone)
	case h.backup != nil:
		return fmt.Errorf("note %s: %w", h.id, errs.ErrRestorePending)
	}
	return nil
}

// Edit applies a content patch locally and schedules its remote write.
func (h *Handle) Edit(ctx context.Context, p model.Patch) error {
	if err := h.check(); err != nil {
		return err
	}
	return h.m.scheduler.Schedule(ctx, h.id, p)
}

// SetField edits one text field by name.
func (h *Handle) SetField(ctx context.Context, field, value string) error {
	p, err := model.PatchField(field, value)
	if err != nil {
		return err
	}
	return h.Edit(ctx, p)
}

// RestoreBackup applies the pending local backup over the server content and flushes it.
func (h *Handle) RestoreBackup(ctx context.Context) error {
	h.mu.Lock()
	b := h.backup
	h.backup = nil
	h.mu.Unlock()
	if b == nil {
		return fmt.Errorf("restore backup of %s: %w: no backup pending", h.id, errs.ErrInvalidTransition)
	}
	if err := h.Edit(ctx, b.Content.ReplacePatch()); err != nil {
		h.mu.Lock()
		h.backup = b
		h.mu.Unlock()
		return err
	}
	return h.Flush(ctx)
}

// DiscardBackup drops the pending local backup and keeps the server content.
func (h *Handle) DiscardBackup(ctx context.Context) error {
	h.mu.Lock()
	b := h.backup
	h.backup = nil
	h.mu.Unlock()
	if b == nil {
		return fmt.Errorf("discard backup of %s: %w: no backup pending", h.id, errs.ErrInvalidTransition)
	}
	if err := h.m.scheduler.Discard(h.Note()); err != nil && !errors.Is(err, errs.ErrNotOpen) {
		return err
	}
	if err := h.m.cache.Clear(ctx, h.id); err != nil {
		h.m.log.Warn("discard local backup", zap.String("note_id", h.id.String()), zap.Error(err))
	}
	return nil
}

// Flush writes every local edit to the record store before returning.
func (h *Handle) Flush(ctx context.Context) error {
	return h.m.scheduler.FlushNow(ctx, h.id)
}

// Finalize flushes pending edits and locks the note's original content.
func (h *Handle) Finalize(ctx context.Context) (model.Note, error) {
	if err := h.check(); err != nil {
		return model.Note{}, err
	}
	n, err := h.m.machine.Finalize(ctx, h.Note(), h.Content(), h.Flush)
	if err != nil {
		return model.Note{}, err
	}
	h.transitioned(n)
	return n, nil
}

// Delete soft-deletes the note. Unsent edits stay in the local backup.
func (h *Handle) Delete(ctx context.Context, reason *string) (model.Note, error) {
	if err := h.check(); err != nil && !errors.Is(err, errs.ErrRestorePending) {
		return model.Note{}, err
	}
	n, err := h.m.machine.Delete(ctx, h.Note(), reason)
	if err != nil {
		return model.Note{}, err
	}
	h.transitioned(n)
	return n, nil
}

// Restore undoes a soft delete within the grace period.
func (h *Handle) Restore(ctx context.Context) (model.Note, error) {
	if err := h.check(); err != nil && !errors.Is(err, errs.ErrRestorePending) {
		return model.Note{}, err
	}
	n, err := h.m.machine.Restore(ctx, h.Note())
	if err != nil {
		return model.Note{}, err
	}
	h.transitioned(n)
	return n, nil
}

// Purge permanently removes the note and its local backup.
func (h *Handle) Purge(ctx context.Context) error {
	if err := h.check(); err != nil && !errors.Is(err, errs.ErrRestorePending) {
		return err
	}
	if err := h.m.machine.Purge(ctx, h.Note()); err != nil {
		return err
	}
	h.m.scheduler.Stop(h.id)
	if err := h.m.cache.Clear(ctx, h.id); err != nil {
		h.m.log.Warn("clear backup of purged note", zap.String("note_id", h.id.String()), zap.Error(err))
	}
	h.mu.Lock()
	h.purged = true
	h.backup = nil
	h.mu.Unlock()
	return nil
}

// Versions returns the note's version history.
func (h *Handle) Versions(ctx context.Context) ([]model.VersionSnapshot, error) {
	return h.m.history.List(ctx, h.id)
}

// Dispose cancels pending timers and releases the note. In-flight writes still complete.
func (h *Handle) Dispose() {
	h.mu.Lock()
	if h.disposed {
		h.mu.Unlock()
		return
	}
	h.disposed = true
	h.mu.Unlock()

	h.m.scheduler.Stop(h.id)
	h.m.mu.Lock()
	if h.m.open[h.id] == h {
		delete(h.m.open, h.id)
	}
	h.m.mu.Unlock()
}

func (h *Handle) transitioned(n model.Note) {
	h.setNote(n)
	if err := h.m.scheduler.Reset(n); err != nil && !errors.Is(err, errs.ErrNotOpen) {
		h.m.log.Warn("rebase autosave", zap.String("note_id", h.id.String()), zap.Error(err))
	}
}
