package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/chartkeeper/internal/autosave"
	"github.com/and161185/chartkeeper/internal/clock"
	"github.com/and161185/chartkeeper/internal/conflict"
	"github.com/and161185/chartkeeper/internal/connectivity"
	"github.com/and161185/chartkeeper/internal/crypto/clientcrypto"
	"github.com/and161185/chartkeeper/internal/errs"
	"github.com/and161185/chartkeeper/internal/localcache"
	"github.com/and161185/chartkeeper/internal/model"
	"github.com/and161185/chartkeeper/internal/remote/remotetest"
)

const (
	debounce = 750 * time.Millisecond
	grace    = 30 * 24 * time.Hour
)

type env struct {
	clk     *clock.Mock
	fake    *remotetest.Fake
	backend *localcache.MemoryBackend
	cache   *localcache.Store
	mon     *connectivity.Monitor
	key     []byte
}

func newEnv(t *testing.T) *env {
	t.Helper()
	key, err := clientcrypto.Rand(32)
	require.NoError(t, err)
	clk := clock.NewMock()
	e := &env{clk: clk, fake: remotetest.New(clk, grace), backend: localcache.NewMemoryBackend(), mon: connectivity.NewMonitor(true), key: key}
	e.cache = e.newCache(t)
	return e
}

func (e *env) newCache(t *testing.T) *localcache.Store {
	t.Helper()
	c, err := clientcrypto.NewNoteCipher(e.key, "session-test")
	require.NoError(t, err)
	return localcache.NewStore(e.backend, c, zaptest.NewLogger(t))
}

// manager simulates one client process; a second call simulates a restart over the same disk.
func (e *env) manager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(e.fake, e.newCache(t), e.mon, e.clk, autosave.Options{Debounce: debounce}, zaptest.NewLogger(t))
	t.Cleanup(m.Close)
	return m
}

func TestOpen_LocalNewerOffersRestore(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	n, err := e.fake.Draft(ctx, model.Content{Subjective: model.String("intake")})
	require.NoError(t, err)
	t0 := *n.DraftLastSavedAt
	require.NoError(t, e.cache.Write(ctx, n.ID, model.Content{Subjective: model.String("intake"), Plan: model.String("recheck in 2 weeks")}, t0.Add(5*time.Second), 4))
	e.clk.Advance(5 * time.Second)

	h, err := e.manager(t).Open(ctx, n.ID)
	require.NoError(t, err)
	out, b := h.Conflict()
	require.Equal(t, conflict.LocalNewer, out)
	require.Equal(t, "recheck in 2 weeks", *b.Content.Plan)
	require.Nil(t, h.Note().Plan, "neither side is applied silently")

	require.ErrorIs(t, h.Edit(ctx, model.Patch{Plan: model.String("x")}), errs.ErrRestorePending)
	_, err = h.Finalize(ctx)
	require.ErrorIs(t, err, errs.ErrRestorePending)

	require.NoError(t, h.RestoreBackup(ctx))
	got, err := e.fake.GetNote(ctx, n.ID)
	require.NoError(t, err)
	require.Equal(t, "recheck in 2 weeks", *got.Plan)
	require.False(t, got.DraftLastSavedAt.Before(t0.Add(5*time.Second)))
	require.Nil(t, e.cache.Read(ctx, n.ID))
	require.Equal(t, autosave.StatusSynced, h.Status().Status)
	require.NoError(t, h.Edit(ctx, model.Patch{Objective: model.String("o")}))
}

func TestOpen_DiscardKeepsServer(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	n, err := e.fake.Draft(ctx, model.Content{Plan: model.String("server")})
	require.NoError(t, err)
	require.NoError(t, e.cache.Write(ctx, n.ID, model.Content{Plan: model.String("local")}, n.DraftLastSavedAt.Add(time.Second), 1))

	h, err := e.manager(t).Open(ctx, n.ID)
	require.NoError(t, err)
	require.NoError(t, h.DiscardBackup(ctx))
	require.Nil(t, e.cache.Read(ctx, n.ID))
	require.Equal(t, "server", *h.Content().Plan)
	require.ErrorIs(t, h.DiscardBackup(ctx), errs.ErrInvalidTransition)
	require.Zero(t, e.fake.Calls(remotetest.OpPatch))
}

func TestOpen_EqualTimestampClearsSilently(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	n, err := e.fake.Draft(ctx, model.Content{})
	require.NoError(t, err)
	require.NoError(t, e.cache.Write(ctx, n.ID, model.Content{Plan: model.String("stale")}, *n.DraftLastSavedAt, 1))

	h, err := e.manager(t).Open(ctx, n.ID)
	require.NoError(t, err)
	out, b := h.Conflict()
	require.Equal(t, conflict.ServerNewer, out)
	require.Nil(t, b)
	require.Nil(t, e.cache.Read(ctx, n.ID))
	require.NoError(t, h.Edit(ctx, model.Patch{Plan: model.String("fresh")}))
}

func TestDurability_CrashBeforeAckOffersRecovery(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	first := e.manager(t)
	h, err := first.Create(ctx, model.NewNote{ClientID: e.fake.Workspace(), WorkspaceID: e.fake.Workspace()})
	require.NoError(t, err)

	e.clk.Advance(time.Second)
	require.NoError(t, h.SetField(ctx, model.FieldSubjective, "headache x3 days"))
	e.clk.Advance(100 * time.Millisecond)
	require.NoError(t, h.SetField(ctx, model.FieldPlan, "recheck in 2 weeks"))
	require.Zero(t, e.fake.Calls(remotetest.OpPatch), "process dies inside the debounce window")

	// Restart: a new manager over the same backing store; the old one is never flushed.
	h2, err := e.manager(t).Open(ctx, h.ID())
	require.NoError(t, err)
	out, b := h2.Conflict()
	require.Equal(t, conflict.LocalNewer, out)
	require.Equal(t, "headache x3 days", *b.Content.Subjective)
	require.Equal(t, "recheck in 2 weeks", *b.Content.Plan)
}

func TestFinalize_FlushesThenLocks(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	h, err := e.manager(t).Create(ctx, model.NewNote{ClientID: e.fake.Workspace(), WorkspaceID: e.fake.Workspace()})
	require.NoError(t, err)

	_, err = h.Finalize(ctx)
	require.ErrorIs(t, err, errs.ErrValidation)
	require.Equal(t, model.StateDraft, h.State())
	require.Zero(t, e.fake.Calls(remotetest.OpFinalize))

	require.NoError(t, h.SetField(ctx, model.FieldAssessment, "improving"))
	n, err := h.Finalize(ctx)
	require.NoError(t, err)
	require.Equal(t, model.StateFinalized, h.State())
	require.Equal(t, "improving", *n.Assessment)
	require.Equal(t, 1, e.fake.Calls(remotetest.OpPatch))

	require.NoError(t, h.SetField(ctx, model.FieldPlan, "follow up"))
	require.NoError(t, h.Flush(ctx))
	require.Equal(t, 1, e.fake.Calls(remotetest.OpAmend))
	require.Equal(t, model.StateAmended, h.State())

	vs, err := h.Versions(ctx)
	require.NoError(t, err)
	require.Len(t, vs, 2)
	require.Nil(t, vs[1].Plan, "snapshot holds pre-amendment content")
}

func TestDeleteRestorePurge(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	h, err := e.manager(t).Create(ctx, model.NewNote{ClientID: e.fake.Workspace(), WorkspaceID: e.fake.Workspace(),
		Content: model.Content{Plan: model.String("p")}})
	require.NoError(t, err)

	reason := "wrong client"
	_, err = h.Delete(ctx, &reason)
	require.NoError(t, err)
	require.Equal(t, model.StateDeleted, h.State())
	require.ErrorIs(t, h.Edit(ctx, model.Patch{Plan: model.String("x")}), errs.ErrInvalidTransition)

	e.clk.Advance(grace - time.Nanosecond)
	_, err = h.Restore(ctx)
	require.NoError(t, err)
	require.Equal(t, model.StateDraft, h.State())
	require.NoError(t, h.Edit(ctx, model.Patch{Plan: model.String("back")}))
	require.NoError(t, h.Flush(ctx))

	_, err = h.Delete(ctx, nil)
	require.NoError(t, err)
	e.clk.Advance(grace)
	_, err = h.Restore(ctx)
	require.ErrorIs(t, err, errs.ErrGone)
	require.Equal(t, model.StateDeleted, h.State())

	require.NoError(t, h.Purge(ctx))
	require.Equal(t, model.StatePurged, h.State())
	require.ErrorIs(t, h.Edit(ctx, model.Patch{}), errs.ErrGone)
	_, err = e.fake.GetNote(ctx, h.ID())
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestDeleteAmendedIsRejected(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	h, err := e.manager(t).Create(ctx, model.NewNote{ClientID: e.fake.Workspace(), WorkspaceID: e.fake.Workspace(),
		Content: model.Content{Plan: model.String("p")}})
	require.NoError(t, err)
	_, err = h.Finalize(ctx)
	require.NoError(t, err)
	for _, v := range []string{"a1", "a2"} {
		require.NoError(t, h.SetField(ctx, model.FieldPlan, v))
		require.NoError(t, h.Flush(ctx))
	}
	require.Equal(t, 2, h.Note().AmendmentCount)

	_, err = h.Delete(ctx, nil)
	require.ErrorIs(t, err, errs.ErrValidation)
	require.Equal(t, model.StateAmended, h.State())
}

func TestOpen_OneHandlePerNote(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	m := e.manager(t)
	h, err := m.Create(ctx, model.NewNote{ClientID: e.fake.Workspace(), WorkspaceID: e.fake.Workspace()})
	require.NoError(t, err)

	_, err = m.Open(ctx, h.ID())
	require.ErrorIs(t, err, errs.ErrConflict)

	h.Dispose()
	h.Dispose()
	require.ErrorIs(t, h.Edit(ctx, model.Patch{}), errs.ErrNotOpen)
	h2, err := m.Open(ctx, h.ID())
	require.NoError(t, err)
	require.Equal(t, conflict.NoConflict, func() conflict.Outcome { o, _ := h2.Conflict(); return o }())
}

func TestStatus_OfflineThenSynced(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	h, err := e.manager(t).Create(ctx, model.NewNote{ClientID: e.fake.Workspace(), WorkspaceID: e.fake.Workspace()})
	require.NoError(t, err)

	e.mon.Set(false)
	require.NoError(t, h.SetField(ctx, model.FieldObjective, "afebrile"))
	require.Equal(t, autosave.StatusOffline, h.Status().Status)
	require.Equal(t, "afebrile", *h.Content().Objective)

	e.mon.Set(true)
	require.Eventually(t, func() bool {
		return h.Status().Status == autosave.StatusSynced && h.Note().Objective != nil
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, "afebrile", *h.Note().Objective)
}

func TestReopen_DuringInFlightWriteKeepsOneWriterAndBackup(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	m := e.manager(t)
	n, err := e.fake.Draft(ctx, model.Content{})
	require.NoError(t, err)

	h, err := m.Open(ctx, n.ID)
	require.NoError(t, err)
	require.NoError(t, h.SetField(ctx, model.FieldPlan, "a"))
	release := e.fake.Hold()
	flushed := make(chan error, 1)
	go func() { flushed <- h.Flush(ctx) }()
	<-e.fake.Entered()
	h.Dispose()
	require.ErrorIs(t, <-flushed, errs.ErrNotOpen)

	h2, err := m.Open(ctx, n.ID)
	require.NoError(t, err)
	e.mon.Set(false)
	require.NoError(t, h2.SetField(ctx, model.FieldPlan, "b-unsynced"))
	release()

	require.Eventually(t, func() bool {
		p := h2.Note().Plan
		return p != nil && *p == "a"
	}, time.Second, 5*time.Millisecond, "the old write is acknowledged to the reopened handle")
	b := e.cache.Read(ctx, n.ID)
	require.NotNil(t, b, "unsynced edits of the reopened handle stay in the backup")
	require.Equal(t, "b-unsynced", *b.Content.Plan)
	require.True(t, h2.Status().Dirty)

	e.mon.Set(true)
	require.NoError(t, h2.Flush(ctx))
	require.Equal(t, 1, e.fake.MaxConcurrentWrites())
	got, err := e.fake.GetNote(ctx, n.ID)
	require.NoError(t, err)
	require.Equal(t, "b-unsynced", *got.Plan)
	require.Nil(t, e.cache.Read(ctx, n.ID))
}
