package grpcserver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/and161185/chartkeeper/internal/errs"
	"github.com/and161185/chartkeeper/internal/rpc"
	"github.com/and161185/chartkeeper/internal/service"
)

// TokenVerifier turns a bearer token into a principal.
type TokenVerifier interface {
	Verify(token string) (service.Principal, error)
}

func bearerTokenFromMD(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", errors.New("no metadata")
	}
	for _, v := range md.Get("authorization") {
		v = strings.TrimSpace(v)
		if len(v) >= 7 && strings.EqualFold(v[:7], "bearer ") {
			t := strings.TrimSpace(v[7:])
			if t != "" {
				return t, nil
			}
		}
	}
	return "", errors.New("no bearer token")
}

// AuthUnary verifies the bearer token of every call to the Notes service and stores the principal in ctx.
// Calls to other services (health, reflection) pass through.
func AuthUnary(tokens TokenVerifier) grpc.UnaryServerInterceptor {
	prefix := "/" + rpc.ServiceName + "/"
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		if !strings.HasPrefix(info.FullMethod, prefix) {
			return next(ctx, req)
		}
		tok, err := bearerTokenFromMD(ctx)
		if err != nil {
			return nil, rpc.Status(fmt.Errorf("%w: %v", errs.ErrUnauthorized, err))
		}
		p, err := tokens.Verify(tok)
		if err != nil {
			return nil, rpc.Status(err)
		}
		return next(service.WithPrincipal(ctx, p), req)
	}
}

func principalFromCtx(ctx context.Context) (service.Principal, error) {
	p, ok := service.PrincipalFrom(ctx)
	if !ok {
		return service.Principal{}, rpc.Status(fmt.Errorf("%w: no principal", errs.ErrUnauthorized))
	}
	return p, nil
}
