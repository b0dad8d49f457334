// Package connectivity tracks whether the record store is reachable.
package connectivity

import (
	"sync"
)

// Monitor holds the current online state and notifies subscribers on transitions.
type Monitor struct {
	// deliver is held across a transition and its callbacks, so subscribers see transitions in order.
	deliver sync.Mutex

	mu     sync.Mutex
	online bool
	nextID int
	subs   map[int]func(online bool)
}

// NewMonitor returns a monitor with the given initial state.
func NewMonitor(online bool) *Monitor {
	return &Monitor{online: online, subs: make(map[int]func(bool))}
}

// Online reports the current state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Set records the state. Subscribers run synchronously, only when the state changes, and one
// transition at a time; a subscriber must not call Set.
func (m *Monitor) Set(online bool) {
	m.deliver.Lock()
	defer m.deliver.Unlock()

	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	fns := make([]func(bool), 0, len(m.subs))
	for _, f := range m.subs {
		fns = append(fns, f)
	}
	m.mu.Unlock()

	for _, f := range fns {
		f(online)
	}
}

// Subscribe registers f for transitions and returns a function removing it.
func (m *Monitor) Subscribe(f func(online bool)) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.subs[id] = f
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}
