package errs

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
)

func TestKindOf_Sentinels(t *testing.T) {
	t.Parallel()
	cases := []struct {
		err  error
		want Kind
	}{
		{nil, KindNone},
		{ErrNotFound, KindNotFound},
		{fmt.Errorf("get note: %w", ErrForbidden), KindForbidden},
		{fmt.Errorf("restore: %w", ErrGone), KindGone},
		{fmt.Errorf("finalize: %w: empty", ErrValidation), KindValidation},
		{ErrRateLimited, KindRateLimited},
		{ErrConflict, KindConflict},
		{ErrOffline, KindOffline},
		{context.DeadlineExceeded, KindTransient},
		{fmt.Errorf("patch: %w", context.DeadlineExceeded), KindTransient},
		{&net.OpError{Op: "dial", Err: errors.New("refused")}, KindTransient},
		{errors.New("weird"), KindUnknown},
	}
	for _, c := range cases {
		if got := KindOf(c.err); got != c.want {
			t.Fatalf("KindOf(%v)=%s, want %s", c.err, got, c.want)
		}
	}
}

func TestKind_WireRoundTrip(t *testing.T) {
	t.Parallel()
	for k := KindNotFound; k < KindUnknown; k++ {
		if got := ParseKind(k.String()); got != k {
			t.Fatalf("ParseKind(%q)=%v, want %v", k.String(), got, k)
		}
		if !errors.Is(k.Sentinel(), k.Sentinel()) || k.Sentinel() == nil {
			t.Fatalf("kind %s has no sentinel", k)
		}
	}
	if ParseKind("nope") != KindUnknown {
		t.Fatalf("unknown name must map to KindUnknown")
	}
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()
	if !IsRetryable(ErrTransient) || !IsRetryable(ErrRateLimited) || !IsRetryable(ErrOffline) {
		t.Fatalf("transient-like errors must be retryable")
	}
	if IsRetryable(ErrNotFound) || IsRetryable(ErrValidation) || IsRetryable(ErrGone) {
		t.Fatalf("terminal errors must not be retryable")
	}
}
