package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/chartkeeper/internal/errs"
	"github.com/and161185/chartkeeper/internal/model"
)

// timeoutClient bounds every call and reports deadline expiry as a transient failure.
type timeoutClient struct {
	next    Client
	timeout time.Duration
}

// WithTimeout decorates c so each call runs under its own deadline.
func WithTimeout(c Client, d time.Duration) Client {
	if d <= 0 {
		return c
	}
	return &timeoutClient{next: c, timeout: d}
}

func (t *timeoutClient) bound(err error) error {
	if err == nil || errors.Is(err, errs.ErrTransient) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: timed out after %s: %v", errs.ErrTransient, t.timeout, err)
	}
	return err
}

func callNote(t *timeoutClient, ctx context.Context, f func(context.Context) (model.Note, error)) (model.Note, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	n, err := f(ctx)
	return n, t.bound(err)
}

func (t *timeoutClient) GetNote(ctx context.Context, id uuid.UUID) (model.Note, error) {
	return callNote(t, ctx, func(ctx context.Context) (model.Note, error) { return t.next.GetNote(ctx, id) })
}

func (t *timeoutClient) CreateNote(ctx context.Context, in model.NewNote) (model.Note, error) {
	return callNote(t, ctx, func(ctx context.Context) (model.Note, error) { return t.next.CreateNote(ctx, in) })
}

func (t *timeoutClient) PatchDraft(ctx context.Context, id uuid.UUID, p model.Patch) (model.Note, error) {
	return callNote(t, ctx, func(ctx context.Context) (model.Note, error) { return t.next.PatchDraft(ctx, id, p) })
}

func (t *timeoutClient) Amend(ctx context.Context, id uuid.UUID, p model.Patch) (model.Note, error) {
	return callNote(t, ctx, func(ctx context.Context) (model.Note, error) { return t.next.Amend(ctx, id, p) })
}

func (t *timeoutClient) Finalize(ctx context.Context, id uuid.UUID) (model.Note, error) {
	return callNote(t, ctx, func(ctx context.Context) (model.Note, error) { return t.next.Finalize(ctx, id) })
}

func (t *timeoutClient) Delete(ctx context.Context, id uuid.UUID, reason *string) (model.Note, error) {
	return callNote(t, ctx, func(ctx context.Context) (model.Note, error) { return t.next.Delete(ctx, id, reason) })
}

func (t *timeoutClient) Restore(ctx context.Context, id uuid.UUID) (model.Note, error) {
	return callNote(t, ctx, func(ctx context.Context) (model.Note, error) { return t.next.Restore(ctx, id) })
}

func (t *timeoutClient) Purge(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.bound(t.next.Purge(ctx, id))
}

func (t *timeoutClient) Versions(ctx context.Context, id uuid.UUID) ([]model.VersionSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	vs, err := t.next.Versions(ctx, id)
	return vs, t.bound(err)
}
