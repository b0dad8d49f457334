// Package repository declares the persistence contracts of the record store.
package repository

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/chartkeeper/internal/model"
)

// Mutator edits a row-locked note in place. A returned snapshot is appended in the same transaction.
// Returning an error aborts the update.
type Mutator func(n *model.Note) (*model.VersionSnapshot, error)

// Tombstone records a permanently deleted note.
type Tombstone struct {
	ID          uuid.UUID
	WorkspaceID uuid.UUID
	PurgedAt    time.Time
}

// NoteRepository persists notes and their append-only version history.
type NoteRepository interface {
	// Create inserts a new note.
	Create(ctx context.Context, n model.Note) error

	// Get returns a note by ID, or errs.ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (*model.Note, error)

	// Update applies fn to the note under a row lock and persists the result.
	Update(ctx context.Context, id uuid.UUID, fn Mutator) (*model.Note, error)

	// Purge removes the note and its history and leaves a tombstone.
	Purge(ctx context.Context, id uuid.UUID, at time.Time) error

	// Tombstone returns the purge record of a note, or errs.ErrNotFound.
	Tombstone(ctx context.Context, id uuid.UUID) (*Tombstone, error)

	// Versions lists the snapshots of a note ordered by version ascending.
	Versions(ctx context.Context, id uuid.UUID) ([]model.VersionSnapshot, error)

	// ListExpired returns soft-deleted notes whose grace period ended at or before now.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}
