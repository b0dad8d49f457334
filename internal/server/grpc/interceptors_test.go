package grpcserver

import (
	"context"
	"fmt"
	"testing"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/chartkeeper/internal/errs"
	"github.com/and161185/chartkeeper/internal/rpc"
	"github.com/and161185/chartkeeper/internal/service"
)

type clinicAddr struct{}

func (clinicAddr) Network() string { return "tcp" }
func (clinicAddr) String() string  { return "10.0.4.7:51812" }

func notesMethod(name string) *grpc.UnaryServerInfo {
	return &grpc.UnaryServerInfo{FullMethod: "/chartkeeper.v1.Notes/" + name}
}

func TestLoggingUnary_MapsServiceErrorsToKinds(t *testing.T) {
	t.Parallel()

	cases := []struct {
		method string
		err    error
		code   codes.Code
		kind   string
		level  zapcore.Level
	}{
		{"RestoreNote", fmt.Errorf("restore: %w: grace period over", errs.ErrGone), codes.FailedPrecondition, "GONE", zapcore.InfoLevel},
		{"FinalizeNote", fmt.Errorf("finalize: %w: no content", errs.ErrValidation), codes.InvalidArgument, "VALIDATION", zapcore.InfoLevel},
		{"PatchDraft", fmt.Errorf("patch: %w", errs.ErrConflict), codes.Aborted, "CONFLICT", zapcore.InfoLevel},
		{"AmendNote", errs.ErrRateLimited, codes.ResourceExhausted, "RATE_LIMITED", zapcore.WarnLevel},
		{"GetNote", errs.ErrForbidden, codes.PermissionDenied, "FORBIDDEN", zapcore.WarnLevel},
		{"PurgeNote", fmt.Errorf("purge: disk on fire"), codes.Internal, "TRANSIENT", zapcore.ErrorLevel},
	}
	for _, c := range cases {
		core, logs := observer.New(zap.DebugLevel)
		ic := LoggingUnary(zap.New(core))
		ctx := peer.NewContext(context.Background(), &peer.Peer{Addr: clinicAddr{}})

		_, err := ic(ctx, &structpb.Struct{}, notesMethod(c.method), func(context.Context, any) (any, error) {
			return nil, rpc.Status(c.err)
		})
		if status.Code(err) != c.code {
			t.Fatalf("%s: code=%s, want %s", c.method, status.Code(err), c.code)
		}
		entries := logs.All()
		if len(entries) != 1 {
			t.Fatalf("%s: want 1 entry, got %d", c.method, len(entries))
		}
		fields := entries[0].ContextMap()
		if entries[0].Level != c.level || fields["kind"] != c.kind || fields["code"] != c.code.String() {
			t.Fatalf("%s: level=%s fields=%v, want level %s kind %s", c.method, entries[0].Level, fields, c.level, c.kind)
		}
		if fields["peer"] != "10.0.4.7:51812" || fields["method"] != "/chartkeeper.v1.Notes/"+c.method {
			t.Fatalf("%s: unexpected fields: %v", c.method, fields)
		}
	}
}

func TestLoggingUnary_SuccessCarriesCallerNotContent(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	ic := LoggingUnary(zap.New(core))
	p := service.Principal{UserID: uuid.Must(uuid.NewV4())}
	ctx := service.WithPrincipal(context.Background(), p)
	req, err := structpb.NewStruct(map[string]any{"plan": "recheck BP in two weeks"})
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}

	resp, err := ic(ctx, req, notesMethod("PatchDraft"), func(_ context.Context, in any) (any, error) { return in, nil })
	if err != nil || resp != req {
		t.Fatalf("handler result not passed through: %v %v", resp, err)
	}
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("want 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["user_id"] != p.UserID.String() || fields["code"] != "OK" {
		t.Fatalf("unexpected fields: %v", fields)
	}
	if _, ok := fields["kind"]; ok {
		t.Fatalf("successful call must not carry an error kind: %v", fields)
	}
	for k, v := range fields {
		if s, ok := v.(string); ok && s == "recheck BP in two weeks" {
			t.Fatalf("note content leaked into field %q", k)
		}
	}
}

func TestRecoverUnary_PanicBecomesInternal(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.ErrorLevel)
	ic := RecoverUnary(zap.New(core))

	_, err := ic(context.Background(), &structpb.Struct{}, notesMethod("AmendNote"), func(context.Context, any) (any, error) {
		var n map[string]int
		n["amendment_count"]++
		return nil, nil
	})
	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.Internal {
		t.Fatalf("want codes.Internal, got: %v", err)
	}
	if rpc.FromStatus(err) == nil || errs.KindOf(rpc.FromStatus(err)) != errs.KindTransient {
		t.Fatalf("clients must see a panic as a transient failure, got %v", rpc.FromStatus(err))
	}
	if len(logs.All()) != 1 || logs.All()[0].ContextMap()["method"] != "/chartkeeper.v1.Notes/AmendNote" {
		t.Fatalf("panic not logged with its method: %v", logs.All())
	}
}

func TestRecoverUnary_PassesThroughServiceErrors(t *testing.T) {
	t.Parallel()

	ic := RecoverUnary(zaptest.NewLogger(t))
	_, err := ic(context.Background(), &structpb.Struct{}, notesMethod("GetNote"), func(context.Context, any) (any, error) {
		return nil, rpc.Status(errs.ErrNotFound)
	})
	if status.Code(err) != codes.NotFound {
		t.Fatalf("want NotFound, got %v", err)
	}
}
