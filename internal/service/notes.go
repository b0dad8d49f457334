package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/chartkeeper/internal/clock"
	"github.com/and161185/chartkeeper/internal/errs"
	"github.com/and161185/chartkeeper/internal/limiter"
	"github.com/and161185/chartkeeper/internal/model"
	"github.com/and161185/chartkeeper/internal/repository"
)

// NoteService defines the record-store operations on clinical notes.
type NoteService interface {
	Get(ctx context.Context, p Principal, id uuid.UUID) (*model.Note, error)
	Create(ctx context.Context, p Principal, in model.NewNote) (*model.Note, error)
	// PatchDraft applies a patch to a draft note.
	PatchDraft(ctx context.Context, p Principal, id uuid.UUID, patch model.Patch) (*model.Note, error)
	// Amend applies a patch to a finalized note, preserving the prior content as a snapshot.
	Amend(ctx context.Context, p Principal, id uuid.UUID, patch model.Patch) (*model.Note, error)
	Finalize(ctx context.Context, p Principal, id uuid.UUID) (*model.Note, error)
	Delete(ctx context.Context, p Principal, id uuid.UUID, reason *string) (*model.Note, error)
	Restore(ctx context.Context, p Principal, id uuid.UUID) (*model.Note, error)
	Purge(ctx context.Context, p Principal, id uuid.UUID) error
	Versions(ctx context.Context, p Principal, id uuid.UUID) ([]model.VersionSnapshot, error)
	// PurgeExpired purges up to limit notes whose grace period has ended.
	PurgeExpired(ctx context.Context, limit int) (int, error)
}

// NoteServiceImpl implements NoteService over a NoteRepository.
type NoteServiceImpl struct {
	repo  repository.NoteRepository
	lim   limiter.Limiter
	clk   clock.Clock
	grace time.Duration
	log   *zap.Logger
}

var _ NoteService = (*NoteServiceImpl)(nil)

// NewNoteService constructs the service. lim may be nil to disable write limiting.
func NewNoteService(repo repository.NoteRepository, lim limiter.Limiter, clk clock.Clock, grace time.Duration, log *zap.Logger) *NoteServiceImpl {
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &NoteServiceImpl{repo: repo, lim: lim, clk: clk, grace: grace, log: log}
}

func (s *NoteServiceImpl) now() time.Time { return s.clk.Now().UTC() }

func authorize(p Principal, ws uuid.UUID) error {
	if !p.CanAccess(ws) {
		return errs.ErrForbidden
	}
	return nil
}

func (s *NoteServiceImpl) allowWrite(ctx context.Context, p Principal) error {
	if s.lim == nil {
		return nil
	}
	ok, retry, err := s.lim.Allow(ctx, "write:"+p.UserID.String())
	if err != nil {
		// fail open
		s.log.Warn("write limiter unavailable", zap.Error(err))
		return nil
	}
	if !ok {
		return fmt.Errorf("%w: retry in %s", errs.ErrRateLimited, retry.Round(time.Second))
	}
	return nil
}

// gone reports ErrGone for purged notes the caller may see, ErrNotFound otherwise.
func (s *NoteServiceImpl) gone(ctx context.Context, p Principal, id uuid.UUID) error {
	t, err := s.repo.Tombstone(ctx, id)
	if err != nil || !p.CanAccess(t.WorkspaceID) {
		return errs.ErrNotFound
	}
	return fmt.Errorf("note %s purged at %s: %w", id, t.PurgedAt.Format(time.RFC3339), errs.ErrGone)
}

// Get returns a live or soft-deleted note.
func (s *NoteServiceImpl) Get(ctx context.Context, p Principal, id uuid.UUID) (*model.Note, error) {
	n, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(p, n.WorkspaceID); err != nil {
		return nil, err
	}
	return n, nil
}

// Create inserts a draft with version 1.
func (s *NoteServiceImpl) Create(ctx context.Context, p Principal, in model.NewNote) (*model.Note, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if err := authorize(p, in.WorkspaceID); err != nil {
		return nil, err
	}
	if err := s.allowWrite(ctx, p); err != nil {
		return nil, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	now := s.now()
	n := model.Note{
		ID:               id,
		ClientID:         in.ClientID,
		WorkspaceID:      in.WorkspaceID,
		SessionAt:        in.SessionAt,
		Content:          in.Content.Normalized(),
		IsDraft:          true,
		DraftLastSavedAt: &now,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return nil, err
	}
	return &n, nil
}

// update runs fn under the repository lock after the common rate-limit, tombstone and access checks.
func (s *NoteServiceImpl) update(ctx context.Context, p Principal, id uuid.UUID, op string, fn func(n *model.Note, now time.Time) (*model.VersionSnapshot, error)) (*model.Note, error) {
	if err := s.allowWrite(ctx, p); err != nil {
		return nil, err
	}
	n, err := s.repo.Update(ctx, id, func(n *model.Note) (*model.VersionSnapshot, error) {
		if err := authorize(p, n.WorkspaceID); err != nil {
			return nil, err
		}
		return fn(n, s.now())
	})
	if errors.Is(err, errs.ErrNotFound) {
		err = s.gone(ctx, p, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

func applyPatch(n *model.Note, patch model.Patch) error {
	next := n.Content.Apply(patch).Normalized()
	if err := next.Validate(); err != nil {
		return err
	}
	n.Content = next
	return nil
}

// PatchDraft writes a draft patch. Last writer wins.
func (s *NoteServiceImpl) PatchDraft(ctx context.Context, p Principal, id uuid.UUID, patch model.Patch) (*model.Note, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	return s.update(ctx, p, id, "patch draft", func(n *model.Note, now time.Time) (*model.VersionSnapshot, error) {
		if n.IsDeleted() {
			return nil, fmt.Errorf("note is deleted: %w", errs.ErrConflict)
		}
		if !n.IsDraft {
			return nil, fmt.Errorf("note is finalized, use amend: %w", errs.ErrConflict)
		}
		if err := applyPatch(n, patch); err != nil {
			return nil, err
		}
		n.DraftLastSavedAt = &now
		n.Version++
		n.UpdatedAt = now
		return nil, nil
	})
}

// Amend snapshots the pre-amendment content, then applies the patch.
func (s *NoteServiceImpl) Amend(ctx context.Context, p Principal, id uuid.UUID, patch model.Patch) (*model.Note, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	return s.update(ctx, p, id, "amend", func(n *model.Note, now time.Time) (*model.VersionSnapshot, error) {
		if n.IsDeleted() {
			return nil, fmt.Errorf("note is deleted: %w", errs.ErrConflict)
		}
		if n.IsDraft {
			return nil, fmt.Errorf("note is a draft, use patch: %w", errs.ErrConflict)
		}
		// v1 is the finalized original; k prior amendments produced v2..v(k+1).
		snap := n.Snapshot(int64(n.AmendmentCount)+2, now)
		if err := applyPatch(n, patch); err != nil {
			return nil, err
		}
		n.AmendedAt = &now
		n.AmendmentCount++
		n.Version++
		n.UpdatedAt = now
		return &snap, nil
	})
}

// Finalize locks the original content as version 1.
func (s *NoteServiceImpl) Finalize(ctx context.Context, p Principal, id uuid.UUID) (*model.Note, error) {
	return s.update(ctx, p, id, "finalize", func(n *model.Note, now time.Time) (*model.VersionSnapshot, error) {
		if n.IsDeleted() {
			return nil, fmt.Errorf("note is deleted: %w", errs.ErrConflict)
		}
		if !n.IsDraft {
			return nil, fmt.Errorf("note already finalized: %w", errs.ErrConflict)
		}
		if !n.Content.HasText() {
			return nil, fmt.Errorf("%w: at least one content field must be non-empty", errs.ErrValidation)
		}
		n.IsDraft = false
		n.FinalizedAt = &now
		n.Version++
		n.UpdatedAt = now
		snap := n.Snapshot(1, now)
		return &snap, nil
	})
}

// Delete soft-deletes a note. Amended notes are protected.
func (s *NoteServiceImpl) Delete(ctx context.Context, p Principal, id uuid.UUID, reason *string) (*model.Note, error) {
	return s.update(ctx, p, id, "delete", func(n *model.Note, now time.Time) (*model.VersionSnapshot, error) {
		if n.IsDeleted() {
			return nil, fmt.Errorf("note already deleted: %w", errs.ErrConflict)
		}
		if n.AmendmentCount > 0 {
			return nil, fmt.Errorf("%w: notes with amendments cannot be deleted", errs.ErrValidation)
		}
		pda := now.Add(s.grace)
		n.DeletedAt = &now
		n.PermanentDeleteAfter = &pda
		n.DeletedReason = reason
		n.Version++
		n.UpdatedAt = now
		return nil, nil
	})
}

// Restore undoes a soft delete while the grace period is running.
func (s *NoteServiceImpl) Restore(ctx context.Context, p Principal, id uuid.UUID) (*model.Note, error) {
	return s.update(ctx, p, id, "restore", func(n *model.Note, now time.Time) (*model.VersionSnapshot, error) {
		if !n.IsDeleted() {
			return nil, fmt.Errorf("note is not deleted: %w", errs.ErrConflict)
		}
		if !now.Before(*n.PermanentDeleteAfter) {
			return nil, fmt.Errorf("grace period ended at %s: %w", n.PermanentDeleteAfter.Format(time.RFC3339), errs.ErrGone)
		}
		n.DeletedAt = nil
		n.PermanentDeleteAfter = nil
		n.DeletedReason = nil
		n.Version++
		n.UpdatedAt = now
		return nil, nil
	})
}

// Purge irreversibly removes a soft-deleted note.
func (s *NoteServiceImpl) Purge(ctx context.Context, p Principal, id uuid.UUID) error {
	if err := s.allowWrite(ctx, p); err != nil {
		return err
	}
	n, err := s.repo.Get(ctx, id)
	if errors.Is(err, errs.ErrNotFound) {
		return fmt.Errorf("purge: %w", s.gone(ctx, p, id))
	}
	if err != nil {
		return err
	}
	if err := authorize(p, n.WorkspaceID); err != nil {
		return fmt.Errorf("purge: %w", err)
	}
	if !n.IsDeleted() {
		return fmt.Errorf("purge: note is not deleted: %w", errs.ErrConflict)
	}
	if err := s.repo.Purge(ctx, id, s.now()); err != nil {
		return fmt.Errorf("purge: %w", err)
	}
	s.log.Info("note purged", zap.String("note_id", id.String()), zap.String("user_id", p.UserID.String()))
	return nil
}

// Versions returns the snapshot history ordered by version.
func (s *NoteServiceImpl) Versions(ctx context.Context, p Principal, id uuid.UUID) ([]model.VersionSnapshot, error) {
	if _, err := s.Get(ctx, p, id); err != nil {
		return nil, err
	}
	return s.repo.Versions(ctx, id)
}

// PurgeExpired purges soft-deleted notes past their grace period.
func (s *NoteServiceImpl) PurgeExpired(ctx context.Context, limit int) (int, error) {
	now := s.now()
	ids, err := s.repo.ListExpired(ctx, now, limit)
	if err != nil {
		return 0, fmt.Errorf("list expired: %w", err)
	}
	purged := 0
	for _, id := range ids {
		if err := s.repo.Purge(ctx, id, now); err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				continue
			}
			return purged, fmt.Errorf("purge %s: %w", id, err)
		}
		purged++
	}
	return purged, nil
}
