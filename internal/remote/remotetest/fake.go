// Package remotetest provides an in-process record store implementing remote.Client for tests.
package remotetest

import (
	"context"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/chartkeeper/internal/clock"
	"github.com/and161185/chartkeeper/internal/model"
	"github.com/and161185/chartkeeper/internal/repository/memory"
	"github.com/and161185/chartkeeper/internal/service"
)

// Operation names accepted by FailNext and Calls.
const (
	OpGet      = "get"
	OpCreate   = "create"
	OpPatch    = "patch"
	OpAmend    = "amend"
	OpFinalize = "finalize"
	OpDelete   = "delete"
	OpRestore  = "restore"
	OpPurge    = "purge"
	OpVersions = "versions"
)

// Fake runs the real note service over an in-memory repository as a single principal.
// Content writes (patch, amend) can be held open to observe in-flight behavior.
type Fake struct {
	svc service.NoteService
	p   service.Principal

	mu        sync.Mutex
	calls     map[string]int
	fail      map[string][]error
	sent      []model.Patch
	writes    int
	maxWrites int
	gate      chan struct{}
	entered   chan string
}

// New builds a fake store on clk with the given grace period.
func New(clk clock.Clock, grace time.Duration) *Fake {
	ws := uuid.Must(uuid.NewV4())
	svc := service.NewNoteService(memory.NewNoteRepo(), nil, clk, grace, zap.NewNop())
	return &Fake{
		svc:     svc,
		p:       service.Principal{UserID: uuid.Must(uuid.NewV4()), Workspaces: []uuid.UUID{ws}},
		calls:   make(map[string]int),
		fail:    make(map[string][]error),
		entered: make(chan string, 64),
	}
}

// Workspace returns the workspace the fake principal may access.
func (f *Fake) Workspace() uuid.UUID { return f.p.Workspaces[0] }

// Service exposes the underlying note service.
func (f *Fake) Service() service.NoteService { return f.svc }

// Principal returns the principal every call runs as.
func (f *Fake) Principal() service.Principal { return f.p }

// FailNext makes the next call of op return err without reaching the service.
func (f *Fake) FailNext(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[op] = append(f.fail[op], err)
}

// Hold blocks content writes until the returned release func runs.
func (f *Fake) Hold() (release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	gate := make(chan struct{})
	f.gate = gate
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			if f.gate == gate {
				f.gate = nil
			}
			f.mu.Unlock()
			close(gate)
		})
	}
}

// Entered yields the op name each time a held write arrives.
func (f *Fake) Entered() <-chan string { return f.entered }

// Calls returns how many times op was invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// Sent returns the patches received by content writes, in arrival order.
func (f *Fake) Sent() []model.Patch {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Patch(nil), f.sent...)
}

// MaxConcurrentWrites is the highest number of content writes observed in flight at once.
func (f *Fake) MaxConcurrentWrites() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxWrites
}

func (f *Fake) begin(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	if q := f.fail[op]; len(q) > 0 {
		f.fail[op] = q[1:]
		return q[0]
	}
	return nil
}

func (f *Fake) write(ctx context.Context, op string, p model.Patch, call func() (*model.Note, error)) (model.Note, error) {
	if err := f.begin(op); err != nil {
		return model.Note{}, err
	}
	f.mu.Lock()
	f.sent = append(f.sent, p)
	f.writes++
	if f.writes > f.maxWrites {
		f.maxWrites = f.writes
	}
	gate := f.gate
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.writes--
		f.mu.Unlock()
	}()

	if gate != nil {
		f.entered <- op
		select {
		case <-gate:
		case <-ctx.Done():
			return model.Note{}, ctx.Err()
		}
	}
	return deref(call())
}

func deref(n *model.Note, err error) (model.Note, error) {
	if err != nil {
		return model.Note{}, err
	}
	return *n, nil
}

func (f *Fake) GetNote(ctx context.Context, id uuid.UUID) (model.Note, error) {
	if err := f.begin(OpGet); err != nil {
		return model.Note{}, err
	}
	return deref(f.svc.Get(ctx, f.p, id))
}

func (f *Fake) CreateNote(ctx context.Context, in model.NewNote) (model.Note, error) {
	if err := f.begin(OpCreate); err != nil {
		return model.Note{}, err
	}
	return deref(f.svc.Create(ctx, f.p, in))
}

func (f *Fake) PatchDraft(ctx context.Context, id uuid.UUID, p model.Patch) (model.Note, error) {
	return f.write(ctx, OpPatch, p, func() (*model.Note, error) { return f.svc.PatchDraft(ctx, f.p, id, p) })
}

func (f *Fake) Amend(ctx context.Context, id uuid.UUID, p model.Patch) (model.Note, error) {
	return f.write(ctx, OpAmend, p, func() (*model.Note, error) { return f.svc.Amend(ctx, f.p, id, p) })
}

func (f *Fake) Finalize(ctx context.Context, id uuid.UUID) (model.Note, error) {
	if err := f.begin(OpFinalize); err != nil {
		return model.Note{}, err
	}
	return deref(f.svc.Finalize(ctx, f.p, id))
}

func (f *Fake) Delete(ctx context.Context, id uuid.UUID, reason *string) (model.Note, error) {
	if err := f.begin(OpDelete); err != nil {
		return model.Note{}, err
	}
	return deref(f.svc.Delete(ctx, f.p, id, reason))
}

func (f *Fake) Restore(ctx context.Context, id uuid.UUID) (model.Note, error) {
	if err := f.begin(OpRestore); err != nil {
		return model.Note{}, err
	}
	return deref(f.svc.Restore(ctx, f.p, id))
}

func (f *Fake) Purge(ctx context.Context, id uuid.UUID) error {
	if err := f.begin(OpPurge); err != nil {
		return err
	}
	return f.svc.Purge(ctx, f.p, id)
}

func (f *Fake) Versions(ctx context.Context, id uuid.UUID) ([]model.VersionSnapshot, error) {
	if err := f.begin(OpVersions); err != nil {
		return nil, err
	}
	return f.svc.Versions(ctx, f.p, id)
}

// Draft creates a draft note in the fake's workspace with the given content.
func (f *Fake) Draft(ctx context.Context, c model.Content) (model.Note, error) {
	return f.CreateNote(ctx, model.NewNote{ClientID: uuid.Must(uuid.NewV4()), WorkspaceID: f.Workspace(), Content: c})
}
