package localcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/chartkeeper/internal/model"
)

// Cipher is the encryption capability the store needs. Blobs are bound to note ID and version.
type Cipher interface {
	Seal(noteID uuid.UUID, ver int64, plaintext []byte) ([]byte, error)
	Open(noteID uuid.UUID, ver int64, blob []byte) ([]byte, error)
}

// Store is the Local Cache Store. Plaintext never reaches the backend.
type Store struct {
	backend Backend
	cipher  Cipher
	log     *zap.Logger
}

// NewStore wires a backend and a cipher.
func NewStore(backend Backend, cipher Cipher, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{backend: backend, cipher: cipher, log: log}
}

// Write replaces the cached draft of a note.
func (s *Store) Write(ctx context.Context, noteID uuid.UUID, content model.Content, ts time.Time, ver int64) error {
	pt, err := json.Marshal(model.LocalBackup{NoteID: noteID, Content: content, Timestamp: ts, Version: ver})
	if err != nil {
		return fmt.Errorf("marshal backup: %w", err)
	}
	blob, err := s.cipher.Seal(noteID, ver, pt)
	if err != nil {
		return fmt.Errorf("seal backup: %w", err)
	}
	return s.backend.Put(ctx, Entry{NoteID: noteID, Version: ver, Blob: blob})
}

// Read returns the cached draft or nil. Unreadable entries are logged and reported as absent.
func (s *Store) Read(ctx context.Context, noteID uuid.UUID) *model.LocalBackup {
	e, err := s.backend.Get(ctx, noteID)
	if errors.Is(err, ErrNoEntry) {
		return nil
	}
	if err != nil {
		s.log.Warn("local cache read failed", zap.String("note_id", noteID.String()), zap.Error(err))
		return nil
	}
	pt, err := s.cipher.Open(noteID, e.Version, e.Blob)
	if err != nil {
		s.log.Warn("local cache entry undecryptable", zap.String("note_id", noteID.String()), zap.Error(err))
		return nil
	}
	var b model.LocalBackup
	if err := json.Unmarshal(pt, &b); err != nil || b.NoteID != noteID {
		s.log.Warn("local cache entry corrupted", zap.String("note_id", noteID.String()), zap.Error(err))
		return nil
	}
	return &b
}

// Clear removes the cached draft of a note.
func (s *Store) Clear(ctx context.Context, noteID uuid.UUID) error {
	return s.backend.Delete(ctx, noteID)
}

// Pending lists note IDs that still hold an unsynced draft.
func (s *Store) Pending(ctx context.Context) ([]uuid.UUID, error) {
	return s.backend.List(ctx)
}
