package conflict

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/chartkeeper/internal/crypto/clientcrypto"
	"github.com/and161185/chartkeeper/internal/localcache"
	"github.com/and161185/chartkeeper/internal/model"
)

func TestDecide(t *testing.T) {
	t.Parallel()
	t0 := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	cases := []struct {
		name   string
		server time.Time
		backup *model.LocalBackup
		want   Outcome
	}{
		{"absent backup", t0, nil, NoConflict},
		{"backup newer", t0, &model.LocalBackup{Timestamp: t0.Add(5 * time.Second)}, LocalNewer},
		{"equal goes to server", t0, &model.LocalBackup{Timestamp: t0}, ServerNewer},
		{"backup older", t0, &model.LocalBackup{Timestamp: t0.Add(-time.Nanosecond)}, ServerNewer},
		{"never saved", time.Time{}, &model.LocalBackup{Timestamp: t0}, LocalNewer},
	}
	for _, c := range cases {
		if got := Decide(c.server, c.backup); got != c.want {
			t.Fatalf("%s: got %s, want %s", c.name, got, c.want)
		}
	}
}

func newCache(t *testing.T) *localcache.Store {
	t.Helper()
	key, err := clientcrypto.Rand(32)
	require.NoError(t, err)
	c, err := clientcrypto.NewNoteCipher(key, "test")
	require.NoError(t, err)
	return localcache.NewStore(localcache.NewMemoryBackend(), c, zaptest.NewLogger(t))
}

func TestResolver_ServerNewerClearsBackup(t *testing.T) {
	ctx := context.Background()
	cache := newCache(t)
	t0 := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	n := model.Note{ID: uuid.Must(uuid.NewV4()), IsDraft: true, DraftLastSavedAt: &t0}
	require.NoError(t, cache.Write(ctx, n.ID, model.Content{Plan: model.String("old")}, t0, 3))

	d := NewResolver(cache, nil).Resolve(ctx, n)
	require.Equal(t, ServerNewer, d.Outcome)
	require.Nil(t, d.Backup)
	require.Nil(t, cache.Read(ctx, n.ID), "backup cleared without prompting")
}

func TestResolver_LocalNewerKeepsBackup(t *testing.T) {
	ctx := context.Background()
	cache := newCache(t)
	t0 := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	n := model.Note{ID: uuid.Must(uuid.NewV4()), IsDraft: true, DraftLastSavedAt: &t0}
	require.NoError(t, cache.Write(ctx, n.ID, model.Content{Plan: model.String("recheck in 2 weeks")}, t0.Add(5*time.Second), 1))

	d := NewResolver(cache, nil).Resolve(ctx, n)
	require.Equal(t, LocalNewer, d.Outcome)
	require.Equal(t, "recheck in 2 weeks", *d.Backup.Content.Plan)
	require.NotNil(t, cache.Read(ctx, n.ID))
}

func TestResolver_FinalizeAfterBackupIsServerNewer(t *testing.T) {
	ctx := context.Background()
	cache := newCache(t)
	t0 := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	fin := t0.Add(time.Minute)
	n := model.Note{ID: uuid.Must(uuid.NewV4()), DraftLastSavedAt: &t0, FinalizedAt: &fin}
	require.NoError(t, cache.Write(ctx, n.ID, model.Content{}, t0.Add(time.Second), 1))

	require.Equal(t, ServerNewer, NewResolver(cache, nil).Resolve(ctx, n).Outcome)
}

func TestResolver_NoBackup(t *testing.T) {
	d := NewResolver(newCache(t), nil).Resolve(context.Background(), model.Note{ID: uuid.Must(uuid.NewV4())})
	require.Equal(t, NoConflict, d.Outcome)
}
