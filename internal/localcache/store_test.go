package localcache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/chartkeeper/internal/crypto/clientcrypto"
	"github.com/and161185/chartkeeper/internal/model"
)

func newCipher(t *testing.T) *clientcrypto.NoteCipher {
	t.Helper()
	dek, err := clientcrypto.Rand(clientcrypto.DEKLen)
	require.NoError(t, err)
	c, err := clientcrypto.NewNoteCipher(dek, "test")
	require.NoError(t, err)
	return c
}

func backends(t *testing.T) map[string]Backend {
	t.Helper()
	sq, err := OpenSQLite(filepath.Join(t.TempDir(), "cache", "backups.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sq.Close() })
	return map[string]Backend{"memory": NewMemoryBackend(), "sqlite": sq}
}

func TestStore_WriteReadClear(t *testing.T) {
	for name, be := range backends(t) {
		be := be
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := NewStore(be, newCipher(t), zaptest.NewLogger(t))
			id := uuid.Must(uuid.NewV4())

			require.Nil(t, s.Read(ctx, id), "read before write must be absent")

			ts := time.Date(2025, 3, 1, 9, 0, 5, 0, time.UTC)
			c := model.Content{Plan: model.String("recheck in 2 weeks"), DurationMinutes: model.Int(50)}
			require.NoError(t, s.Write(ctx, id, c, ts, 1))

			c2 := model.Content{Plan: model.String("recheck in 3 weeks")}
			require.NoError(t, s.Write(ctx, id, c2, ts.Add(time.Second), 2))

			got := s.Read(ctx, id)
			require.NotNil(t, got)
			require.Equal(t, "recheck in 3 weeks", *got.Content.Plan)
			require.Nil(t, got.Content.DurationMinutes)
			require.Equal(t, int64(2), got.Version)
			require.True(t, got.Timestamp.Equal(ts.Add(time.Second)))

			ids, err := s.Pending(ctx)
			require.NoError(t, err)
			require.Equal(t, []uuid.UUID{id}, ids)

			require.NoError(t, s.Clear(ctx, id))
			require.Nil(t, s.Read(ctx, id))
			require.NoError(t, s.Clear(ctx, id), "clearing an absent entry is not an error")
		})
	}
}

func TestStore_CiphertextOnly(t *testing.T) {
	ctx := context.Background()
	be := NewMemoryBackend()
	s := NewStore(be, newCipher(t), zaptest.NewLogger(t))
	id := uuid.Must(uuid.NewV4())
	require.NoError(t, s.Write(ctx, id, model.Content{Subjective: model.String("panic attacks")}, time.Now(), 1))

	raw, ok := be.Raw(id)
	require.True(t, ok)
	require.NotContains(t, string(raw), "panic attacks")
}

func TestStore_CorruptedEntryIsAbsent(t *testing.T) {
	ctx := context.Background()
	be := NewMemoryBackend()
	s := NewStore(be, newCipher(t), zaptest.NewLogger(t))
	id := uuid.Must(uuid.NewV4())

	require.NoError(t, be.Put(ctx, Entry{NoteID: id, Version: 1, Blob: []byte("garbage")}))
	require.Nil(t, s.Read(ctx, id))

	require.NoError(t, s.Write(ctx, id, model.Content{Plan: model.String("x")}, time.Now(), 4))
	e, err := be.Get(ctx, id)
	require.NoError(t, err)
	e.Version = 5
	require.NoError(t, be.Put(ctx, e))
	require.Nil(t, s.Read(ctx, id), "version mismatch must fail authentication")
}

func TestStore_WrongKeyIsAbsent(t *testing.T) {
	ctx := context.Background()
	be := NewMemoryBackend()
	id := uuid.Must(uuid.NewV4())
	require.NoError(t, NewStore(be, newCipher(t), nil).Write(ctx, id, model.Content{}, time.Now(), 1))
	require.Nil(t, NewStore(be, newCipher(t), zaptest.NewLogger(t)).Read(ctx, id))
}
