package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/chartkeeper/internal/errs"
	"github.com/and161185/chartkeeper/internal/service"
)

// TokenVerifier turns a bearer token into a principal.
type TokenVerifier interface {
	Verify(token string) (service.Principal, error)
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// LoggerMiddleware logs method, path, status, duration and caller. Bodies are never logged.
func LoggerMiddleware(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			cid := r.Header.Get("X-Correlation-Id")
			if cid == "" {
				cid = uuid.Must(uuid.NewV4()).String()
			}
			rw.Header().Set("X-Correlation-Id", cid)

			// filled by AuthMiddleware
			holder := &principalHolder{}
			next.ServeHTTP(rw, r.WithContext(withHolder(r.Context(), holder)))

			user := "anonymous"
			if holder.set {
				user = holder.p.UserID.String()
			}
			log.Info("http",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rw.statusCode),
				zap.Duration("dur", time.Since(start)),
				zap.String("user_id", user),
				zap.String("correlation_id", cid),
			)
		})
	}
}

// AuthMiddleware rejects requests without a valid bearer token and stores the principal in the request context.
func AuthMiddleware(tokens TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") || strings.TrimSpace(h[7:]) == "" {
				Error(w, fmt.Errorf("%w: missing bearer token", errs.ErrUnauthorized))
				return
			}
			p, err := tokens.Verify(strings.TrimSpace(h[7:]))
			if err != nil {
				Error(w, err)
				return
			}
			if holder := holderFrom(r.Context()); holder != nil {
				holder.p, holder.set = p, true
			}
			next.ServeHTTP(w, r.WithContext(service.WithPrincipal(r.Context(), p)))
		})
	}
}
