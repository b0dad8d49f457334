package grpcserver

import (
	"context"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/and161185/chartkeeper/internal/errs"
	"github.com/and161185/chartkeeper/internal/rpc"
	"github.com/and161185/chartkeeper/internal/service"
)

// LoggingUnary logs one entry per call with method, code, error kind, duration, peer and caller.
// Access and rate-limit rejections log at warn, server faults at error. Note content is never logged.
func LoggingUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		code := status.Code(err)

		var remote string
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			remote = p.Addr.String()
		}
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", code.String()),
			zap.Duration("dur", time.Since(start)),
			zap.String("peer", remote),
		}
		if p, ok := service.PrincipalFrom(ctx); ok {
			fields = append(fields, zap.String("user_id", p.UserID.String()))
		}
		if err != nil {
			fields = append(fields, zap.Stringer("kind", errs.KindOf(rpc.FromStatus(err))))
		}
		switch code {
		case codes.Internal, codes.Unknown:
			log.Error("grpc", append(fields, zap.Error(err))...)
		case codes.Unauthenticated, codes.PermissionDenied, codes.ResourceExhausted:
			log.Warn("grpc", fields...)
		default:
			log.Info("grpc", fields...)
		}
		return resp, err
	}
}

// RecoverUnary returns a unary server interceptor that recovers from panics.
func RecoverUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic",
					zap.Any("reason", r),
					zap.ByteString("stack", debug.Stack()),
					zap.String("method", info.FullMethod),
				)
				err = status.Error(codes.Internal, "internal")
			}
		}()
		return next(ctx, req)
	}
}
