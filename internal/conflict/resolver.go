// Package conflict decides, at note load, between the local write-ahead backup and the server record.
package conflict

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/chartkeeper/internal/model"
)

// Outcome is the result of comparing a local backup against the server's last save.
type Outcome int

const (
	// NoConflict means there was no local backup.
	NoConflict Outcome = iota
	// ServerNewer means the server saved at or after the backup; the backup is dropped.
	ServerNewer
	// LocalNewer means the backup holds edits the server never acknowledged; the caller must choose.
	LocalNewer
)

func (o Outcome) String() string {
	switch o {
	case NoConflict:
		return "no-conflict"
	case ServerNewer:
		return "server-newer"
	case LocalNewer:
		return "local-newer"
	}
	return "unknown"
}

// Decide compares the backup timestamp with the server save time. A zero serverSavedAt means never saved.
// Equal timestamps go to the server.
func Decide(serverSavedAt time.Time, backup *model.LocalBackup) Outcome {
	if backup == nil {
		return NoConflict
	}
	if backup.Timestamp.After(serverSavedAt) {
		return LocalNewer
	}
	return ServerNewer
}

// Cache is the part of the local cache store the resolver needs.
type Cache interface {
	Read(ctx context.Context, noteID uuid.UUID) *model.LocalBackup
	Clear(ctx context.Context, noteID uuid.UUID) error
}

// Decision is a resolved outcome together with the backup it was based on.
type Decision struct {
	Outcome Outcome
	Backup  *model.LocalBackup
}

// Resolver reads the backup of a freshly loaded note and clears it when the server is authoritative.
type Resolver struct {
	cache Cache
	log   *zap.Logger
}

// NewResolver constructs a resolver.
func NewResolver(cache Cache, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{cache: cache, log: log}
}

// Resolve decides for n. On ServerNewer the backup is cleared; on LocalNewer it is returned untouched.
func (r *Resolver) Resolve(ctx context.Context, n model.Note) Decision {
	b := r.cache.Read(ctx, n.ID)
	out := Decide(n.LastPersistedAt(), b)
	if out == ServerNewer {
		if err := r.cache.Clear(ctx, n.ID); err != nil {
			r.log.Warn("clear stale backup", zap.String("note_id", n.ID.String()), zap.Error(err))
		}
		return Decision{Outcome: out}
	}
	return Decision{Outcome: out, Backup: b}
}
