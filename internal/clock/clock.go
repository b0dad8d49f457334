// Package clock abstracts wall time and timers so debounce and grace-period logic can be driven by tests.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Timer is a cancellable pending callback.
type Timer interface {
	// Stop prevents the callback from firing. It reports whether the call stopped the timer.
	Stop() bool
}

// Clock is the time source used by the client and the server.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type clock struct{}

func (clock) Now() time.Time { return time.Now() }

func (clock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// New returns the real clock.
func New() Clock {
	return clock{}
}

// Mock is a manual clock. Timers fire synchronously from Advance/SetNow, in due order.
type Mock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers map[int]*mockTimer
}

type mockTimer struct {
	m   *Mock
	id  int
	due time.Time
	f   func()
}

func (t *mockTimer) Stop() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if _, ok := t.m.timers[t.id]; !ok {
		return false
	}
	delete(t.m.timers, t.id)
	return true
}

// NewMock returns a mock clock set to 2009-11-10 23:00 UTC.
func NewMock() *Mock {
	return &Mock{
		now:    time.Date(2009, time.November, 10, 23, 0, 0, 0, time.UTC),
		timers: make(map[int]*mockTimer),
	}
}

// Now returns the mock's current time.
func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// AfterFunc registers f to run once the mock time reaches now+d.
func (m *Mock) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &mockTimer{m: m, id: m.seq, due: m.now.Add(d), f: f}
	m.timers[t.id] = t
	return t
}

// Advance moves time forward by d, firing every timer that becomes due.
func (m *Mock) Advance(d time.Duration) {
	m.SetNow(m.Now().Add(d))
}

// SetNow sets the current time, firing every timer due at or before t.
func (m *Mock) SetNow(t time.Time) {
	for {
		m.mu.Lock()
		next := m.nextDueLocked(t)
		if next == nil {
			m.now = t
			m.mu.Unlock()
			return
		}
		delete(m.timers, next.id)
		if next.due.After(m.now) {
			m.now = next.due
		}
		m.mu.Unlock()
		next.f()
	}
}

// Pending returns the number of armed timers.
func (m *Mock) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

func (m *Mock) nextDueLocked(limit time.Time) *mockTimer {
	due := make([]*mockTimer, 0, len(m.timers))
	for _, t := range m.timers {
		if !t.due.After(limit) {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].due.Equal(due[j].due) {
			return due[i].id < due[j].id
		}
		return due[i].due.Before(due[j].due)
	})
	return due[0]
}
