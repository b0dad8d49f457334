package limiter

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/and161185/chartkeeper/internal/clock"
)

/************ fake pgx ************/
type fakeRow struct{ scan func(dest ...any) error }

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

type fakePool struct {
	qrErr   error
	start   time.Time
	hitsRet int

	lastExecSQL string
	execErr     error
}

func (f *fakePool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.lastExecSQL = sql
	return pgconn.CommandTag{}, f.execErr
}

func (f *fakePool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if !strings.Contains(sql, "RETURNING window_start, hits") {
		return fakeRow{scan: func(dest ...any) error { return errors.New("unexpected query") }}
	}
	return fakeRow{scan: func(dest ...any) error {
		if f.qrErr != nil {
			return f.qrErr
		}
		*(dest[0].(*time.Time)) = f.start
		*(dest[1].(*int)) = f.hitsRet
		return nil
	}}
}

func TestPG_Allow_UnderLimit(t *testing.T) {
	clk := clock.NewMock()
	fp := &fakePool{start: clk.Now(), hitsRet: 3}
	l := NewPG(fp, time.Minute, 5, clk)

	ok, dur, err := l.Allow(context.Background(), "write:u")
	if err != nil || !ok || dur != 0 {
		t.Fatalf("Allow under limit: ok=%v dur=%v err=%v", ok, dur, err)
	}
}

func TestPG_Allow_OverLimit_RetryUntilWindowEnd(t *testing.T) {
	clk := clock.NewMock()
	fp := &fakePool{start: clk.Now().Add(-20 * time.Second), hitsRet: 6}
	l := NewPG(fp, time.Minute, 5, clk)

	ok, dur, err := l.Allow(context.Background(), "write:u")
	if err != nil || ok || dur != 40*time.Second {
		t.Fatalf("Allow over limit: ok=%v dur=%v err=%v", ok, dur, err)
	}
}

func TestPG_Allow_DBError_Propagates(t *testing.T) {
	fp := &fakePool{qrErr: errors.New("db boom")}
	l := NewPG(fp, time.Minute, 5, nil)

	ok, _, err := l.Allow(context.Background(), "write:u")
	if err == nil || ok {
		t.Fatalf("want error propagate, got ok=%v err=%v", ok, err)
	}
}

func TestPG_Sweep(t *testing.T) {
	fp := &fakePool{}
	l := NewPG(fp, time.Minute, 5, clock.NewMock())
	if err := l.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if !strings.Contains(fp.lastExecSQL, "DELETE FROM write_limiter") {
		t.Fatalf("unexpected exec: %s", fp.lastExecSQL)
	}
	fp.execErr = errors.New("exec fail")
	if err := l.Sweep(context.Background()); err == nil {
		t.Fatalf("want exec error")
	}
}
