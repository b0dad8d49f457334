package lifecycle

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/chartkeeper/internal/clock"
	"github.com/and161185/chartkeeper/internal/errs"
	"github.com/and161185/chartkeeper/internal/model"
	"github.com/and161185/chartkeeper/internal/remote/remotetest"
)

const grace = 30 * 24 * time.Hour

func newMachine(t *testing.T) (*Machine, *remotetest.Fake, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock()
	fake := remotetest.New(clk, grace)
	return NewMachine(fake, clk, zaptest.NewLogger(t)), fake, clk
}

func TestWriteRoute(t *testing.T) {
	t.Parallel()
	want := map[model.State]Route{
		model.StateDraft:     RouteDraft,
		model.StateFinalized: RouteAmend,
		model.StateAmended:   RouteAmend,
		model.StateDeleted:   RouteNone,
		model.StatePurged:    RouteNone,
	}
	for s, r := range want {
		if got := WriteRoute(s); got != r {
			t.Fatalf("WriteRoute(%s)=%s, want %s", s, got, r)
		}
	}
}

func TestCanFinalize_ContentGuard(t *testing.T) {
	t.Parallel()
	draft := model.Note{IsDraft: true}
	require.ErrorIs(t, CanFinalize(draft, model.Content{}), errs.ErrValidation)
	require.ErrorIs(t, CanFinalize(draft, model.Content{Plan: model.String(" \t\n")}), errs.ErrValidation)
	require.NoError(t, CanFinalize(draft, model.Content{Plan: model.String("x")}))

	now := time.Now()
	require.ErrorIs(t, CanFinalize(model.Note{FinalizedAt: &now}, model.Content{Plan: model.String("x")}), errs.ErrInvalidTransition)
}

func TestCanRestore_Boundary(t *testing.T) {
	t.Parallel()
	del := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	pda := del.Add(grace)
	n := model.Note{IsDraft: true, DeletedAt: &del, PermanentDeleteAfter: &pda}

	require.NoError(t, CanRestore(n, pda.Add(-time.Nanosecond)))
	require.ErrorIs(t, CanRestore(n, pda), errs.ErrGone)
	require.ErrorIs(t, CanRestore(n, pda.Add(time.Second)), errs.ErrGone)
	require.ErrorIs(t, CanRestore(model.Note{IsDraft: true}, del), errs.ErrInvalidTransition)
}

func TestMachine_FinalizeFlushesFirst(t *testing.T) {
	ctx := context.Background()
	m, fake, _ := newMachine(t)
	n, err := fake.Draft(ctx, model.Content{})
	require.NoError(t, err)

	flushed := false
	flush := func(ctx context.Context) error {
		flushed = true
		_, err := fake.PatchDraft(ctx, n.ID, model.Patch{Assessment: model.String("stable")})
		return err
	}
	out, err := m.Finalize(ctx, n, model.Content{Assessment: model.String("stable")}, flush)
	require.NoError(t, err)
	require.True(t, flushed)
	require.False(t, out.IsDraft)
	require.NotNil(t, out.FinalizedAt)
	require.Equal(t, "stable", *out.Assessment)
}

func TestMachine_FinalizeEmptyIsRejectedLocally(t *testing.T) {
	ctx := context.Background()
	m, fake, _ := newMachine(t)
	n, err := fake.Draft(ctx, model.Content{})
	require.NoError(t, err)

	_, err = m.Finalize(ctx, n, model.Content{Subjective: model.String("   ")}, nil)
	require.ErrorIs(t, err, errs.ErrValidation)
	require.Zero(t, fake.Calls(remotetest.OpFinalize))

	got, err := fake.GetNote(ctx, n.ID)
	require.NoError(t, err)
	require.True(t, got.IsDraft)
	vs, err := fake.Versions(ctx, n.ID)
	require.NoError(t, err)
	require.Empty(t, vs)
}

func TestMachine_FlushFailureAbortsFinalize(t *testing.T) {
	ctx := context.Background()
	m, fake, _ := newMachine(t)
	n, err := fake.Draft(ctx, model.Content{Plan: model.String("p")})
	require.NoError(t, err)

	_, err = m.Finalize(ctx, n, n.Content, func(context.Context) error { return errs.ErrOffline })
	require.ErrorIs(t, err, errs.ErrOffline)
	require.Zero(t, fake.Calls(remotetest.OpFinalize))
}

func TestMachine_DeleteAmendedRejected(t *testing.T) {
	ctx := context.Background()
	m, fake, _ := newMachine(t)
	n, err := fake.Draft(ctx, model.Content{Plan: model.String("v0")})
	require.NoError(t, err)
	_, err = fake.Finalize(ctx, n.ID)
	require.NoError(t, err)
	_, err = fake.Amend(ctx, n.ID, model.Patch{Plan: model.String("v1")})
	require.NoError(t, err)
	n, err = fake.Amend(ctx, n.ID, model.Patch{Plan: model.String("v2")})
	require.NoError(t, err)
	require.Equal(t, 2, n.AmendmentCount)

	_, err = m.Delete(ctx, n, nil)
	require.ErrorIs(t, err, errs.ErrValidation)
	require.Zero(t, fake.Calls(remotetest.OpDelete))

	got, err := fake.GetNote(ctx, n.ID)
	require.NoError(t, err)
	require.Equal(t, model.StateAmended, got.State())
}

func TestMachine_DeleteRestorePurge(t *testing.T) {
	ctx := context.Background()
	m, fake, clk := newMachine(t)
	n, err := fake.Draft(ctx, model.Content{Plan: model.String("p")})
	require.NoError(t, err)

	reason := "duplicate"
	n, err = m.Delete(ctx, n, &reason)
	require.NoError(t, err)
	require.Equal(t, model.StateDeleted, n.State())
	require.Equal(t, n.DeletedAt.Add(grace), *n.PermanentDeleteAfter)

	clk.Advance(grace - time.Second)
	n, err = m.Restore(ctx, n)
	require.NoError(t, err)
	require.Equal(t, model.StateDraft, n.State())

	require.ErrorIs(t, m.Purge(ctx, n), errs.ErrInvalidTransition)

	n, err = m.Delete(ctx, n, nil)
	require.NoError(t, err)
	require.NoError(t, m.Purge(ctx, n))
	_, err = fake.GetNote(ctx, n.ID)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestMachine_RestoreAfterGraceIsGone(t *testing.T) {
	ctx := context.Background()
	m, fake, clk := newMachine(t)
	n, err := fake.Draft(ctx, model.Content{Plan: model.String("p")})
	require.NoError(t, err)
	n, err = m.Delete(ctx, n, nil)
	require.NoError(t, err)

	clk.SetNow(n.PermanentDeleteAfter.Add(time.Second))
	_, err = m.Restore(ctx, n)
	require.ErrorIs(t, err, errs.ErrGone)

	got, err := fake.GetNote(ctx, n.ID)
	require.NoError(t, err)
	require.Equal(t, model.StateDeleted, got.State())
}

func TestMachine_SerializesPerNote(t *testing.T) {
	ctx := context.Background()
	m, fake, _ := newMachine(t)
	n, err := fake.Draft(ctx, model.Content{Plan: model.String("p")})
	require.NoError(t, err)

	inFlush := make(chan struct{})
	release := make(chan struct{})
	finDone := make(chan error, 1)
	go func() {
		_, err := m.Finalize(ctx, n, n.Content, func(context.Context) error {
			close(inFlush)
			<-release
			return nil
		})
		finDone <- err
	}()
	<-inFlush

	var deleted atomic.Bool
	delDone := make(chan error, 1)
	go func() {
		_, err := m.Delete(ctx, n, nil)
		deleted.Store(true)
		delDone <- err
	}()

	select {
	case <-delDone:
		t.Fatalf("delete ran while finalize was in flight")
	case <-time.After(50 * time.Millisecond):
	}
	require.Zero(t, fake.Calls(remotetest.OpDelete))

	close(release)
	require.NoError(t, <-finDone)
	// Delete sees the pre-finalize snapshot it was handed; the store decides.
	require.NoError(t, <-delDone)
	require.True(t, deleted.Load())
	require.Equal(t, 1, fake.Calls(remotetest.OpDelete))
}

func TestMachine_GuardHonorsContext(t *testing.T) {
	m, _, _ := newMachine(t)
	id := uuid.Must(uuid.NewV4())
	unlock, err := m.locks.Lock(context.Background(), id)
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = m.Guard(ctx, id, func(context.Context) error { return nil })
	require.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestKeyLock_DropsIdleEntries(t *testing.T) {
	t.Parallel()
	l := NewKeyLock()
	a, b := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())

	ua, err := l.Lock(context.Background(), a)
	require.NoError(t, err)
	ub, err := l.Lock(context.Background(), b)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, a)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 2, l.size())

	ua()
	ua()
	ub()
	require.Zero(t, l.size())
}
