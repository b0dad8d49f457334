package lifecycle

import (
	"context"
	"sync"

	"github.com/gofrs/uuid/v5"
	"golang.org/x/sync/semaphore"
)

// KeyLock serializes work per note ID. Entries are dropped once no holder or waiter remains.
type KeyLock struct {
	mu   sync.Mutex
	keys map[uuid.UUID]*keyEntry
}

type keyEntry struct {
	sem  *semaphore.Weighted
	refs int
}

// NewKeyLock returns an empty lock table.
func NewKeyLock() *KeyLock {
	return &KeyLock{keys: make(map[uuid.UUID]*keyEntry)}
}

// Lock blocks until id is free or ctx is done. The returned func releases the lock.
func (l *KeyLock) Lock(ctx context.Context, id uuid.UUID) (func(), error) {
	l.mu.Lock()
	e, ok := l.keys[id]
	if !ok {
		e = &keyEntry{sem: semaphore.NewWeighted(1)}
		l.keys[id] = e
	}
	e.refs++
	l.mu.Unlock()

	if err := e.sem.Acquire(ctx, 1); err != nil {
		l.release(id, e, false)
		return nil, err
	}
	var once sync.Once
	return func() { once.Do(func() { l.release(id, e, true) }) }, nil
}

func (l *KeyLock) release(id uuid.UUID, e *keyEntry, held bool) {
	if held {
		e.sem.Release(1)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.keys, id)
	}
}

func (l *KeyLock) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}
