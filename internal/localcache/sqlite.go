package localcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/uuid/v5"
	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS backups (
	note_id    TEXT PRIMARY KEY,
	version    INTEGER NOT NULL,
	blob       BLOB NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);`

// SQLiteBackend stores entries in a single-file SQLite database.
type SQLiteBackend struct {
	db *sql.DB
}

var _ Backend = (*SQLiteBackend)(nil)

// OpenSQLite opens (creating if needed) the cache database at path and applies the schema.
func OpenSQLite(path string) (*SQLiteBackend, error) {
	if dir := filepath.Dir(path); dir != "." && !isMemoryDSN(path) {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply cache schema: %w", err)
	}
	return &SQLiteBackend{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteBackend) Close() error { return s.db.Close() }

func (s *SQLiteBackend) Put(ctx context.Context, e Entry) error {
	const q = `
INSERT INTO backups (note_id, version, blob, updated_at)
VALUES (?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(note_id) DO UPDATE SET version = excluded.version, blob = excluded.blob, updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, q, e.NoteID.String(), e.Version, e.Blob); err != nil {
		return fmt.Errorf("put backup: %w", err)
	}
	return nil
}

func (s *SQLiteBackend) Get(ctx context.Context, noteID uuid.UUID) (Entry, error) {
	e := Entry{NoteID: noteID}
	err := s.db.QueryRowContext(ctx, `SELECT version, blob FROM backups WHERE note_id = ?`, noteID.String()).
		Scan(&e.Version, &e.Blob)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNoEntry
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get backup: %w", err)
	}
	return e, nil
}

func (s *SQLiteBackend) Delete(ctx context.Context, noteID uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM backups WHERE note_id = ?`, noteID.String()); err != nil {
		return fmt.Errorf("delete backup: %w", err)
	}
	return nil
}

func (s *SQLiteBackend) List(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT note_id FROM backups ORDER BY updated_at`)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	defer rows.Close()
	var out []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan backup id: %w", err)
		}
		id, err := uuid.FromString(raw)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func isMemoryDSN(path string) bool {
	return path == ":memory:" || (len(path) > 5 && path[:5] == "file:")
}
