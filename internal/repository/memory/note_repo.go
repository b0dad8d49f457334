// Package memory is an in-process NoteRepository used when no database is configured and in tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/chartkeeper/internal/errs"
	"github.com/and161185/chartkeeper/internal/model"
	"github.com/and161185/chartkeeper/internal/repository"
)

// NoteRepo keeps notes, snapshots and tombstones in maps guarded by one mutex.
type NoteRepo struct {
	mu         sync.Mutex
	notes      map[uuid.UUID]model.Note
	versions   map[uuid.UUID][]model.VersionSnapshot
	tombstones map[uuid.UUID]repository.Tombstone
}

var _ repository.NoteRepository = (*NoteRepo)(nil)

// NewNoteRepo returns an empty repository.
func NewNoteRepo() *NoteRepo {
	return &NoteRepo{
		notes:      make(map[uuid.UUID]model.Note),
		versions:   make(map[uuid.UUID][]model.VersionSnapshot),
		tombstones: make(map[uuid.UUID]repository.Tombstone),
	}
}

func (r *NoteRepo) Create(_ context.Context, n model.Note) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.notes[n.ID]; ok {
		return fmt.Errorf("note %s: %w", n.ID, errs.ErrConflict)
	}
	r.notes[n.ID] = n.Clone()
	return nil
}

func (r *NoteRepo) Get(_ context.Context, id uuid.UUID) (*model.Note, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.notes[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	out := n.Clone()
	return &out, nil
}

func (r *NoteRepo) Update(_ context.Context, id uuid.UUID, fn repository.Mutator) (*model.Note, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.notes[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	work := cur.Clone()
	snap, err := fn(&work)
	if err != nil {
		return nil, err
	}
	if snap != nil {
		hist := r.versions[id]
		if n := len(hist); n > 0 && hist[n-1].Version >= snap.Version {
			return nil, fmt.Errorf("snapshot %d not after %d: %w", snap.Version, hist[n-1].Version, errs.ErrConflict)
		}
		r.versions[id] = append(hist, *snap)
	}
	r.notes[id] = work
	out := work.Clone()
	return &out, nil
}

func (r *NoteRepo) Purge(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.notes[id]
	if !ok {
		return errs.ErrNotFound
	}
	delete(r.notes, id)
	delete(r.versions, id)
	r.tombstones[id] = repository.Tombstone{ID: id, WorkspaceID: n.WorkspaceID, PurgedAt: at}
	return nil
}

func (r *NoteRepo) Tombstone(_ context.Context, id uuid.UUID) (*repository.Tombstone, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tombstones[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &t, nil
}

func (r *NoteRepo) Versions(_ context.Context, id uuid.UUID) ([]model.VersionSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	hist := r.versions[id]
	out := make([]model.VersionSnapshot, len(hist))
	copy(out, hist)
	return out, nil
}

func (r *NoteRepo) ListExpired(_ context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	type due struct {
		id  uuid.UUID
		pda time.Time
	}
	var all []due
	for id, n := range r.notes {
		if n.DeletedAt != nil && n.PermanentDeleteAfter != nil && !n.PermanentDeleteAfter.After(now) {
			all = append(all, due{id, *n.PermanentDeleteAfter})
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].pda.Before(all[j].pda) })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	out := make([]uuid.UUID, 0, len(all))
	for _, d := range all {
		out = append(out, d.id)
	}
	return out, nil
}
