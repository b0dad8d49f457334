// Package remote is the Remote Sync Client: authenticated calls against the record store with classified outcomes.
package remote

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/chartkeeper/internal/model"
)

// Client is the record-store API consumed by the editing core.
// Every error wraps one of the errs sentinels.
type Client interface {
	GetNote(ctx context.Context, id uuid.UUID) (model.Note, error)
	CreateNote(ctx context.Context, in model.NewNote) (model.Note, error)
	PatchDraft(ctx context.Context, id uuid.UUID, p model.Patch) (model.Note, error)
	Amend(ctx context.Context, id uuid.UUID, p model.Patch) (model.Note, error)
	Finalize(ctx context.Context, id uuid.UUID) (model.Note, error)
	Delete(ctx context.Context, id uuid.UUID, reason *string) (model.Note, error)
	Restore(ctx context.Context, id uuid.UUID) (model.Note, error)
	Purge(ctx context.Context, id uuid.UUID) error
	Versions(ctx context.Context, id uuid.UUID) ([]model.VersionSnapshot, error)
}
