// Package localcache is the encrypted write-ahead cache of unsynced note drafts.
package localcache

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
)

// ErrNoEntry is returned by backends when a note has no cached entry.
var ErrNoEntry = errors.New("no cache entry")

// Entry is the opaque persisted form of a backup. Blob is always ciphertext.
type Entry struct {
	NoteID  uuid.UUID
	Version int64
	Blob    []byte
}

// Backend persists entries keyed by note ID, last write wins.
type Backend interface {
	Put(ctx context.Context, e Entry) error
	Get(ctx context.Context, noteID uuid.UUID) (Entry, error)
	Delete(ctx context.Context, noteID uuid.UUID) error
	List(ctx context.Context) ([]uuid.UUID, error)
}
