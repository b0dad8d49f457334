package rpc

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/and161185/chartkeeper/internal/errs"
)

// ErrorDomain is the ErrorInfo domain attached to every mapped status.
const ErrorDomain = "chartkeeper"

var kindCodes = map[errs.Kind]codes.Code{
	errs.KindNotFound:     codes.NotFound,
	errs.KindForbidden:    codes.PermissionDenied,
	errs.KindUnauthorized: codes.Unauthenticated,
	errs.KindGone:         codes.FailedPrecondition,
	errs.KindValidation:   codes.InvalidArgument,
	errs.KindRateLimited:  codes.ResourceExhausted,
	errs.KindConflict:     codes.Aborted,
	errs.KindTransient:    codes.Unavailable,
}

// Status converts a service error into a gRPC status carrying the error kind as ErrorInfo reason.
func Status(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	kind := errs.KindOf(err)
	code, ok := kindCodes[kind]
	if !ok {
		return status.Error(codes.Internal, "internal error")
	}
	st := status.New(code, err.Error())
	if withInfo, derr := st.WithDetails(&errdetails.ErrorInfo{Reason: kind.String(), Domain: ErrorDomain}); derr == nil {
		st = withInfo
	}
	return st.Err()
}

// FromStatus maps a gRPC error back to a wrapped sentinel so callers can use errors.Is.
func FromStatus(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", errs.ErrTransient, err)
	}
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%w: %v", errs.ErrTransient, err)
	}
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok && info.GetDomain() == ErrorDomain {
			if s := errs.ParseKind(info.GetReason()).Sentinel(); s != nil {
				return fmt.Errorf("%w: %s", s, st.Message())
			}
		}
	}
	switch st.Code() {
	case codes.NotFound:
		return fmt.Errorf("%w: %s", errs.ErrNotFound, st.Message())
	case codes.PermissionDenied:
		return fmt.Errorf("%w: %s", errs.ErrForbidden, st.Message())
	case codes.Unauthenticated:
		return fmt.Errorf("%w: %s", errs.ErrUnauthorized, st.Message())
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", errs.ErrValidation, st.Message())
	case codes.ResourceExhausted:
		return fmt.Errorf("%w: %s", errs.ErrRateLimited, st.Message())
	case codes.Aborted, codes.FailedPrecondition:
		return fmt.Errorf("%w: %s", errs.ErrConflict, st.Message())
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled, codes.Internal, codes.Unknown:
		return fmt.Errorf("%w: %s", errs.ErrTransient, st.Message())
	}
	return fmt.Errorf("rpc %s: %s", st.Code(), st.Message())
}
