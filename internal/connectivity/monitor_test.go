package connectivity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestMonitor_NotifiesOnTransitionsOnly(t *testing.T) {
	t.Parallel()
	m := NewMonitor(true)
	var got []bool
	unsub := m.Subscribe(func(online bool) { got = append(got, online) })

	m.Set(true)
	m.Set(false)
	m.Set(false)
	m.Set(true)
	require.Equal(t, []bool{false, true}, got)
	require.True(t, m.Online())

	unsub()
	m.Set(false)
	require.Len(t, got, 2)
}

type fakeChecker struct {
	mu  sync.Mutex
	err error
}

func (f *fakeChecker) set(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeChecker) Check(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func TestProber_ProbeOnce(t *testing.T) {
	t.Parallel()
	m := NewMonitor(true)
	fc := &fakeChecker{}
	p := NewProber(fc, m, time.Hour, time.Second, zaptest.NewLogger(t))

	fc.set(errors.New("dial tcp: refused"))
	require.False(t, p.ProbeOnce(context.Background()))
	require.False(t, m.Online())

	fc.set(nil)
	require.True(t, p.ProbeOnce(context.Background()))
	require.True(t, m.Online())
}

func TestHTTPHealth(t *testing.T) {
	t.Parallel()
	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	h := NewHTTPHealth(srv.URL, srv.Client())
	require.NoError(t, h.Check(context.Background()))
	status.Store(http.StatusServiceUnavailable)
	require.Error(t, h.Check(context.Background()))
}

func TestMonitor_ConcurrentSetDeliversInOrder(t *testing.T) {
	t.Parallel()
	m := NewMonitor(true)
	var (
		mu  sync.Mutex
		got []bool
	)
	m.Subscribe(func(online bool) {
		mu.Lock()
		got = append(got, online)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(up bool) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				m.Set(up)
			}
		}(i%2 == 0)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(got); i++ {
		require.NotEqual(t, got[i-1], got[i], "transition %d delivered out of order", i)
	}
	if len(got) > 0 {
		require.Equal(t, m.Online(), got[len(got)-1])
		require.False(t, got[0], "first transition leaves the initial online state")
	}
}
