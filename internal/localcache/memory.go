package localcache

import (
	"context"
	"sync"

	"github.com/gofrs/uuid/v5"
)

// MemoryBackend keeps entries in process memory.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[uuid.UUID]Entry
}

var _ Backend = (*MemoryBackend)(nil)

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[uuid.UUID]Entry)}
}

func (m *MemoryBackend) Put(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.Blob = append([]byte(nil), e.Blob...)
	m.entries[e.NoteID] = e
	return nil
}

func (m *MemoryBackend) Get(_ context.Context, noteID uuid.UUID) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[noteID]
	if !ok {
		return Entry{}, ErrNoEntry
	}
	e.Blob = append([]byte(nil), e.Blob...)
	return e, nil
}

func (m *MemoryBackend) Delete(_ context.Context, noteID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, noteID)
	return nil
}

func (m *MemoryBackend) List(_ context.Context) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]uuid.UUID, 0, len(m.entries))
	for id := range m.entries {
		out = append(out, id)
	}
	return out, nil
}

// Raw exposes the stored ciphertext; tests use it to corrupt entries.
func (m *MemoryBackend) Raw(noteID uuid.UUID) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[noteID]
	return e.Blob, ok
}
