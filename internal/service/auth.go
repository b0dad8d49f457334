// Package service contains the record-store application services: note lifecycle rules and token handling.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/chartkeeper/internal/clock"
	"github.com/and161185/chartkeeper/internal/errs"
)

// Principal is an authenticated clinician and the workspaces they may access.
type Principal struct {
	UserID     uuid.UUID
	Workspaces []uuid.UUID
}

// CanAccess reports whether ws is among the principal's workspaces.
func (p Principal) CanAccess(ws uuid.UUID) bool {
	for _, w := range p.Workspaces {
		if w == ws {
			return true
		}
	}
	return false
}

// Claims are the JWT claims issued to clinicians.
type Claims struct {
	Workspaces []string `json:"workspaces,omitempty"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies HS256 access tokens.
type TokenService struct {
	signKey []byte
	ttl     time.Duration
	clk     clock.Clock
}

// NewTokenService constructs a token service.
func NewTokenService(signKey []byte, ttl time.Duration, clk clock.Clock) *TokenService {
	if clk == nil {
		clk = clock.New()
	}
	return &TokenService{signKey: signKey, ttl: ttl, clk: clk}
}

// Issue creates a signed token for the user and workspaces.
func (s *TokenService) Issue(userID uuid.UUID, workspaces []uuid.UUID) (string, time.Time, error) {
	if userID == uuid.Nil || len(workspaces) == 0 {
		return "", time.Time{}, fmt.Errorf("%w: token needs a subject and at least one workspace", errs.ErrValidation)
	}
	now := s.clk.Now()
	exp := now.Add(s.ttl)
	ws := make([]string, 0, len(workspaces))
	for _, w := range workspaces {
		ws = append(ws, w.String())
	}
	claims := Claims{
		Workspaces: ws,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signKey)
	return signed, exp, err
}

// Verify parses a token and returns its principal, or errs.ErrUnauthorized.
func (s *TokenService) Verify(token string) (Principal, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.signKey, nil
	}, jwt.WithLeeway(30*time.Second), jwt.WithTimeFunc(s.clk.Now), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return Principal{}, fmt.Errorf("%w: invalid token", errs.ErrUnauthorized)
	}
	id, err := uuid.FromString(claims.Subject)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: bad subject", errs.ErrUnauthorized)
	}
	p := Principal{UserID: id}
	for _, raw := range claims.Workspaces {
		ws, err := uuid.FromString(raw)
		if err != nil {
			return Principal{}, fmt.Errorf("%w: bad workspace claim", errs.ErrUnauthorized)
		}
		p.Workspaces = append(p.Workspaces, ws)
	}
	return p, nil
}

type ctxKey string

const principalKey ctxKey = "ck.principal"

// WithPrincipal stores the authenticated principal in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom fetches the principal stored by WithPrincipal.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}
