package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/and161185/chartkeeper/internal/clock"
	"github.com/and161185/chartkeeper/internal/errs"
	"github.com/and161185/chartkeeper/internal/model"
	"github.com/and161185/chartkeeper/internal/remote"
	"github.com/and161185/chartkeeper/internal/repository/memory"
	"github.com/and161185/chartkeeper/internal/service"
)

type apiEnv struct {
	srv    *httptest.Server
	tokens *service.TokenService
	ws     uuid.UUID
	user   uuid.UUID
	logs   *observer.ObservedLogs
}

func newAPI(t *testing.T, ping Pinger) *apiEnv {
	t.Helper()
	core, logs := observer.New(zap.InfoLevel)
	env := &apiEnv{
		tokens: service.NewTokenService([]byte("secret"), time.Hour, nil),
		ws:     uuid.Must(uuid.NewV4()),
		user:   uuid.Must(uuid.NewV4()),
		logs:   logs,
	}
	svc := service.NewNoteService(memory.NewNoteRepo(), nil, clock.NewMock(), 30*24*time.Hour, nil)
	env.srv = httptest.NewServer(NewRouter(svc, env.tokens, ping, zap.New(core)))
	t.Cleanup(env.srv.Close)
	return env
}

func (e *apiEnv) client(t *testing.T) *remote.HTTPClient {
	t.Helper()
	tok, _, err := e.tokens.Issue(e.user, []uuid.UUID{e.ws})
	require.NoError(t, err)
	return remote.NewHTTPClient(e.srv.URL, tok, e.srv.Client())
}

func TestRouter_E2E(t *testing.T) {
	env := newAPI(t, nil)
	c := env.client(t)
	ctx := context.Background()

	n, err := c.CreateNote(ctx, model.NewNote{ClientID: uuid.Must(uuid.NewV4()), WorkspaceID: env.ws})
	require.NoError(t, err)

	n, err = c.PatchDraft(ctx, n.ID, model.Patch{Plan: model.String("CBT worksheet")})
	require.NoError(t, err)
	require.Equal(t, "CBT worksheet", *n.Plan)

	n, err = c.Finalize(ctx, n.ID)
	require.NoError(t, err)
	require.False(t, n.IsDraft)

	_, err = c.Amend(ctx, n.ID, model.Patch{Plan: model.String("CBT worksheet, week 2")})
	require.NoError(t, err)

	vs, err := c.Versions(ctx, n.ID)
	require.NoError(t, err)
	require.Len(t, vs, 2)

	_, err = c.Delete(ctx, n.ID, nil)
	require.ErrorIs(t, err, errs.ErrValidation)

	d, err := c.CreateNote(ctx, model.NewNote{ClientID: uuid.Must(uuid.NewV4()), WorkspaceID: env.ws})
	require.NoError(t, err)
	_, err = c.Delete(ctx, d.ID, model.String("test"))
	require.NoError(t, err)
	_, err = c.Restore(ctx, d.ID)
	require.NoError(t, err)
	_, err = c.Delete(ctx, d.ID, nil)
	require.NoError(t, err)
	require.NoError(t, c.Purge(ctx, d.ID))
	_, err = c.GetNote(ctx, d.ID)
	require.ErrorIs(t, err, errs.ErrNotFound)
	_, err = c.Restore(ctx, d.ID)
	require.ErrorIs(t, err, errs.ErrGone)
}

func TestRouter_AuthAndBadInput(t *testing.T) {
	env := newAPI(t, nil)

	anon := remote.NewHTTPClient(env.srv.URL, "", env.srv.Client())
	_, err := anon.GetNote(context.Background(), uuid.Must(uuid.NewV4()))
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	tok, _, err := env.tokens.Issue(env.user, []uuid.UUID{env.ws})
	require.NoError(t, err)

	req, _ := http.NewRequest(http.MethodGet, env.srv.URL+"/v1/notes/not-a-uuid", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := env.srv.Client().Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	req, _ = http.NewRequest(http.MethodPost, env.srv.URL+"/v1/notes", strings.NewReader("{"))
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err = env.srv.Client().Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestRouter_Healthz(t *testing.T) {
	healthy := newAPI(t, func(context.Context) error { return nil })
	resp, err := healthy.srv.Client().Get(healthy.srv.URL + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	down := newAPI(t, func(context.Context) error { return errors.New("db down") })
	resp, err = down.srv.Client().Get(down.srv.URL + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestLoggerMiddleware_RecordsUser(t *testing.T) {
	env := newAPI(t, nil)
	c := env.client(t)
	_, _ = c.GetNote(context.Background(), uuid.Must(uuid.NewV4()))

	entries := env.logs.FilterMessage("http").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, env.user.String(), fields["user_id"])
	require.Equal(t, int64(http.StatusNotFound), fields["status"])
	require.NotEmpty(t, fields["correlation_id"])
}

func TestError_UnknownIsInternal(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, errors.New("db exploded: password=hunter2"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "hunter2")
	require.Contains(t, rec.Body.String(), `"code":"UNKNOWN"`)
}
