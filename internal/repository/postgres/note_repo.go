package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/chartkeeper/internal/errs"
	"github.com/and161185/chartkeeper/internal/model"
	"github.com/and161185/chartkeeper/internal/repository"
)

// NoteRepo implements NoteRepository using PostgreSQL.
type NoteRepo struct{ db *DB }

var _ repository.NoteRepository = (*NoteRepo)(nil)

// NewNoteRepo constructs a note repository.
func NewNoteRepo(db *DB) *NoteRepo { return &NoteRepo{db: db} }

const noteColumns = `id, client_id, workspace_id, session_at,
subjective, objective, assessment, plan, duration_minutes,
is_draft, draft_last_saved_at, finalized_at, amended_at, amendment_count, version,
deleted_at, permanent_delete_after, deleted_reason, created_at, updated_at`

func scanNote(row pgx.Row) (*model.Note, error) {
	var n model.Note
	err := row.Scan(
		&n.ID, &n.ClientID, &n.WorkspaceID, &n.SessionAt,
		&n.Subjective, &n.Objective, &n.Assessment, &n.Plan, &n.DurationMinutes,
		&n.IsDraft, &n.DraftLastSavedAt, &n.FinalizedAt, &n.AmendedAt, &n.AmendmentCount, &n.Version,
		&n.DeletedAt, &n.PermanentDeleteAfter, &n.DeletedReason, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &n, nil
}

// Create inserts a note.
func (r *NoteRepo) Create(ctx context.Context, n model.Note) error {
	const q = `INSERT INTO notes (` + noteColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`
	_, err := r.db.Pool.Exec(ctx, q,
		n.ID, n.ClientID, n.WorkspaceID, n.SessionAt,
		n.Subjective, n.Objective, n.Assessment, n.Plan, n.DurationMinutes,
		n.IsDraft, n.DraftLastSavedAt, n.FinalizedAt, n.AmendedAt, n.AmendmentCount, n.Version,
		n.DeletedAt, n.PermanentDeleteAfter, n.DeletedReason, n.CreatedAt, n.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("note %s: %w", n.ID, errs.ErrConflict)
	}
	return err
}

// Get returns a note by id.
func (r *NoteRepo) Get(ctx context.Context, id uuid.UUID) (*model.Note, error) {
	return scanNote(r.db.Pool.QueryRow(ctx, `SELECT `+noteColumns+` FROM notes WHERE id=$1`, id))
}

// Update locks the row, applies fn and writes the note plus an optional snapshot in one transaction.
func (r *NoteRepo) Update(ctx context.Context, id uuid.UUID, fn repository.Mutator) (out *model.Note, err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			out, err = nil, e
		}
	}()

	n, err := scanNote(tx.QueryRow(ctx, `SELECT `+noteColumns+` FROM notes WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	snap, err := fn(n)
	if err != nil {
		return nil, err
	}

	const upd = `
UPDATE notes SET
  subjective=$2, objective=$3, assessment=$4, plan=$5, duration_minutes=$6,
  is_draft=$7, draft_last_saved_at=$8, finalized_at=$9, amended_at=$10, amendment_count=$11, version=$12,
  deleted_at=$13, permanent_delete_after=$14, deleted_reason=$15, updated_at=$16
WHERE id=$1`
	if _, err = tx.Exec(ctx, upd, id,
		n.Subjective, n.Objective, n.Assessment, n.Plan, n.DurationMinutes,
		n.IsDraft, n.DraftLastSavedAt, n.FinalizedAt, n.AmendedAt, n.AmendmentCount, n.Version,
		n.DeletedAt, n.PermanentDeleteAfter, n.DeletedReason, n.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if snap != nil {
		const ins = `
INSERT INTO note_versions (note_id, version, subjective, objective, assessment, plan, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)`
		if _, err = tx.Exec(ctx, ins, id, snap.Version,
			snap.Subjective, snap.Objective, snap.Assessment, snap.Plan, snap.CreatedAt,
		); err != nil {
			if isUniqueViolation(err) {
				return nil, fmt.Errorf("snapshot %d: %w", snap.Version, errs.ErrConflict)
			}
			return nil, err
		}
	}
	return n, nil
}

// Purge deletes the note with its history and records a tombstone.
func (r *NoteRepo) Purge(ctx context.Context, id uuid.UUID, at time.Time) (err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		err = tx.Commit(ctx)
	}()

	var ws uuid.UUID
	if err = tx.QueryRow(ctx, `SELECT workspace_id FROM notes WHERE id=$1 FOR UPDATE`, id).Scan(&ws); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return errs.ErrNotFound
		}
		return err
	}
	if _, err = tx.Exec(ctx, `DELETE FROM note_versions WHERE note_id=$1`, id); err != nil {
		return err
	}
	if _, err = tx.Exec(ctx, `DELETE FROM notes WHERE id=$1`, id); err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `INSERT INTO purged_notes (id, workspace_id, purged_at) VALUES ($1,$2,$3)`, id, ws, at)
	return err
}

// Tombstone returns the purge record of a note.
func (r *NoteRepo) Tombstone(ctx context.Context, id uuid.UUID) (*repository.Tombstone, error) {
	var t repository.Tombstone
	err := r.db.Pool.QueryRow(ctx, `SELECT id, workspace_id, purged_at FROM purged_notes WHERE id=$1`, id).
		Scan(&t.ID, &t.WorkspaceID, &t.PurgedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// Versions lists snapshots ordered by version.
func (r *NoteRepo) Versions(ctx context.Context, id uuid.UUID) ([]model.VersionSnapshot, error) {
	const q = `
SELECT note_id, version, subjective, objective, assessment, plan, created_at
FROM note_versions WHERE note_id=$1 ORDER BY version ASC`
	rows, err := r.db.Pool.Query(ctx, q, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.VersionSnapshot{}
	for rows.Next() {
		var v model.VersionSnapshot
		if err := rows.Scan(&v.NoteID, &v.Version, &v.Subjective, &v.Objective, &v.Assessment, &v.Plan, &v.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ListExpired returns ids of soft-deleted notes due for purge, oldest deadline first.
func (r *NoteRepo) ListExpired(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	const q = `
SELECT id FROM notes
WHERE deleted_at IS NOT NULL AND permanent_delete_after <= $1
ORDER BY permanent_delete_after ASC
LIMIT $2`
	rows, err := r.db.Pool.Query(ctx, q, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
