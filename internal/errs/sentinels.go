// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"context"
	"errors"
	"net"
)

// Remote outcomes reported by the record store.
var (
	// ErrNotFound indicates the note does not exist (or was purged) on the server.
	ErrNotFound = errors.New("not found")

	// ErrForbidden indicates the caller may not access the note's workspace.
	ErrForbidden = errors.New("forbidden")

	// ErrUnauthorized indicates a missing or invalid bearer token.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrGone indicates the grace period expired or the note was purged.
	ErrGone = errors.New("gone")

	// ErrValidation indicates a user-correctable rejection (empty finalize, delete with amendments, bounds).
	ErrValidation = errors.New("validation rejected")

	// ErrRateLimited indicates a temporary server-side write budget exhaustion.
	ErrRateLimited = errors.New("rate limited")

	// ErrConflict indicates the write path does not match the note's lifecycle state.
	ErrConflict = errors.New("conflict")

	// ErrTransient indicates a network failure, timeout or server-side fault.
	ErrTransient = errors.New("transient failure")
)

// Client-side outcomes.
var (
	// ErrOffline indicates a remote write was requested while the connectivity monitor reports offline.
	ErrOffline = errors.New("offline")

	// ErrInvalidTransition indicates the lifecycle state does not allow the requested operation.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")

	// ErrRestorePending indicates a newer local backup awaits a restore/discard decision.
	ErrRestorePending = errors.New("local backup restore decision pending")

	// ErrNotOpen indicates the note has no open autosave session.
	ErrNotOpen = errors.New("note not open")
)

// Kind is a coarse classification of an error for status reporting and transport mapping.
type Kind int

const (
	KindNone Kind = iota
	KindNotFound
	KindForbidden
	KindUnauthorized
	KindGone
	KindValidation
	KindRateLimited
	KindConflict
	KindTransient
	KindOffline
	KindInvalidTransition
	KindRestorePending
	KindNotOpen
	KindUnknown
)

var kindNames = map[Kind]string{
	KindNone:              "NONE",
	KindNotFound:          "NOT_FOUND",
	KindForbidden:         "FORBIDDEN",
	KindUnauthorized:      "UNAUTHORIZED",
	KindGone:              "GONE",
	KindValidation:        "VALIDATION",
	KindRateLimited:       "RATE_LIMITED",
	KindConflict:          "CONFLICT",
	KindTransient:         "TRANSIENT",
	KindOffline:           "OFFLINE",
	KindInvalidTransition: "INVALID_TRANSITION",
	KindRestorePending:    "RESTORE_PENDING",
	KindNotOpen:           "NOT_OPEN",
	KindUnknown:           "UNKNOWN",
}

// String returns the stable wire name of the kind.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return kindNames[KindUnknown]
}

// ParseKind maps a wire name back to a Kind. Unknown names yield KindUnknown.
func ParseKind(s string) Kind {
	for k, name := range kindNames {
		if name == s {
			return k
		}
	}
	return KindUnknown
}

// Sentinel returns the sentinel error for the kind, or nil for KindNone/KindUnknown.
func (k Kind) Sentinel() error {
	switch k {
	case KindNotFound:
		return ErrNotFound
	case KindForbidden:
		return ErrForbidden
	case KindUnauthorized:
		return ErrUnauthorized
	case KindGone:
		return ErrGone
	case KindValidation:
		return ErrValidation
	case KindRateLimited:
		return ErrRateLimited
	case KindConflict:
		return ErrConflict
	case KindTransient:
		return ErrTransient
	case KindOffline:
		return ErrOffline
	case KindInvalidTransition:
		return ErrInvalidTransition
	case KindRestorePending:
		return ErrRestorePending
	case KindNotOpen:
		return ErrNotOpen
	}
	return nil
}

// KindOf classifies err. Timeouts and network errors are transient; anything unrecognized is KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	for k := KindNotFound; k < KindUnknown; k++ {
		if errors.Is(err, k.Sentinel()) {
			return k
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}
	return KindUnknown
}

// IsRetryable reports whether the next debounce cycle or reconnect flush may succeed.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindTransient, KindRateLimited, KindOffline, KindUnknown:
		return true
	}
	return false
}
