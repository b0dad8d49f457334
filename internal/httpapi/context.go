package httpapi

import (
	"context"

	"github.com/and161185/chartkeeper/internal/service"
)

type ctxKey string

const holderKey ctxKey = "ck.http.principal"

type principalHolder struct {
	p   service.Principal
	set bool
}

func withHolder(ctx context.Context, h *principalHolder) context.Context {
	return context.WithValue(ctx, holderKey, h)
}

func holderFrom(ctx context.Context) *principalHolder {
	h, _ := ctx.Value(holderKey).(*principalHolder)
	return h
}
