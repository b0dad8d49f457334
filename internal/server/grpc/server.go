// Package grpcserver exposes the Notes record store over gRPC.
package grpcserver

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/chartkeeper/internal/convert"
	"github.com/and161185/chartkeeper/internal/errs"
	"github.com/and161185/chartkeeper/internal/model"
	"github.com/and161185/chartkeeper/internal/rpc"
	"github.com/and161185/chartkeeper/internal/service"
)

// Server wires the note service into gRPC handlers.
type Server struct {
	rpc.UnimplementedNotesServer
	notes service.NoteService
}

var _ rpc.NotesServer = (*Server)(nil)

// New constructs the handler set.
func New(notes service.NoteService) *Server {
	return &Server{notes: notes}
}

// NewGRPCServer builds a grpc.Server with the interceptor chain, the Notes service and a health service.
func NewGRPCServer(notes service.NoteService, tokens TokenVerifier, log *zap.Logger, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	opts = append(opts, grpc.ChainUnaryInterceptor(
		RecoverUnary(log),
		AuthUnary(tokens),
		LoggingUnary(log),
	))
	gs := grpc.NewServer(opts...)
	rpc.RegisterNotesServer(gs, New(notes))
	hs := health.NewServer()
	hs.SetServingStatus(rpc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(gs, hs)
	return gs, hs
}

func badRequest(err error) error {
	return rpc.Status(fmt.Errorf("%w: %v", errs.ErrValidation, err))
}

func noteReply(n *model.Note, err error) (*structpb.Struct, error) {
	if err != nil {
		return nil, rpc.Status(err)
	}
	return convert.ToStructNote(*n), nil
}

// GetNote returns a live or soft-deleted note.
func (s *Server) GetNote(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	p, err := principalFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	id, err := convert.FromStructID(in)
	if err != nil {
		return nil, badRequest(err)
	}
	return noteReply(s.notes.Get(ctx, p, id))
}

// CreateNote creates a draft.
func (s *Server) CreateNote(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	p, err := principalFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	nn, err := convert.FromStructNewNote(in)
	if err != nil {
		return nil, badRequest(err)
	}
	return noteReply(s.notes.Create(ctx, p, nn))
}

// PatchDraft applies a draft autosave patch.
func (s *Server) PatchDraft(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	p, err := principalFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	id, patch, err := convert.FromStructPatch(in)
	if err != nil {
		return nil, badRequest(err)
	}
	return noteReply(s.notes.PatchDraft(ctx, p, id, patch))
}

// Amend applies an amendment to a finalized note.
func (s *Server) Amend(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	p, err := principalFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	id, patch, err := convert.FromStructPatch(in)
	if err != nil {
		return nil, badRequest(err)
	}
	return noteReply(s.notes.Amend(ctx, p, id, patch))
}

// Finalize locks a draft.
func (s *Server) Finalize(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	p, err := principalFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	id, err := convert.FromStructID(in)
	if err != nil {
		return nil, badRequest(err)
	}
	return noteReply(s.notes.Finalize(ctx, p, id))
}

// Delete soft-deletes a note.
func (s *Server) Delete(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	p, err := principalFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	id, reason, err := convert.FromStructDelete(in)
	if err != nil {
		return nil, badRequest(err)
	}
	return noteReply(s.notes.Delete(ctx, p, id, reason))
}

// Restore undoes a soft delete within the grace period.
func (s *Server) Restore(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	p, err := principalFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	id, err := convert.FromStructID(in)
	if err != nil {
		return nil, badRequest(err)
	}
	return noteReply(s.notes.Restore(ctx, p, id))
}

// Purge permanently removes a soft-deleted note.
func (s *Server) Purge(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	p, err := principalFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	id, err := convert.FromStructID(in)
	if err != nil {
		return nil, badRequest(err)
	}
	if err := s.notes.Purge(ctx, p, id); err != nil {
		return nil, rpc.Status(err)
	}
	return &structpb.Struct{}, nil
}

// ListVersions returns the snapshot history of a note.
func (s *Server) ListVersions(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	p, err := principalFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	id, err := convert.FromStructID(in)
	if err != nil {
		return nil, badRequest(err)
	}
	vs, err := s.notes.Versions(ctx, p, id)
	if err != nil {
		return nil, rpc.Status(err)
	}
	return convert.ToStructVersions(vs), nil
}
