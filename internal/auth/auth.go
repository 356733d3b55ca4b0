package auth

import (
	"context"
	"strings"

	jwt "github.com/golang-jwt/jwt/v5"
	"go.uber.org/fx"

	"github.com/agrilink/agrilink/internal/config"
	"github.com/agrilink/agrilink/pkg/errorbank"
)

// Roles recognised on marketplace tokens.
const (
	RoleBuyer    = "buyer"
	RoleFarmer   = "farmer"
	RoleSupplier = "supplier"
	RoleAdmin    = "admin"
)

// Principal is the authenticated caller extracted from a bearer token.
// Tokens are issued elsewhere; this process only validates them.
type Principal struct {
	UserID     int64
	SupplierID int64
	Role       string
}

type principalKey struct{}

// WithPrincipal stores the principal in context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext retrieves the principal from context, if any.
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok
}

// Verifier validates bearer tokens against the shared signing secret.
type Verifier struct {
	secret []byte
}

// Module provides the token verifier to Fx.
var Module = fx.Provide(NewVerifier)

// NewVerifier builds a Verifier from configuration.
func NewVerifier(cfg config.Config) *Verifier {
	return &Verifier{secret: []byte(cfg.Auth.JWTSecret)}
}

type tokenClaims struct {
	UserID     int64  `json:"user_id"`
	SupplierID int64  `json:"supplier_id,omitempty"`
	Role       string `json:"role"`
	jwt.RegisteredClaims
}

// Verify validates a raw token string and returns its principal.
func (v *Verifier) Verify(tokenStr string) (*Principal, error) {
	if len(v.secret) == 0 {
		return nil, errorbank.Unauthenticated("token verification is not configured")
	}
	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" {
		return nil, errorbank.Unauthenticated("missing token")
	}

	claims := new(tokenClaims)
	tok, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errorbank.Unauthenticated("unexpected signing method")
		}
		return v.secret, nil
	})
	if err != nil || !tok.Valid {
		return nil, errorbank.Unauthenticated("invalid or expired token", errorbank.WithCause(err))
	}
	if claims.UserID == 0 || claims.Role == "" {
		return nil, errorbank.Unauthenticated("token is missing identity claims")
	}

	return &Principal{
		UserID:     claims.UserID,
		SupplierID: claims.SupplierID,
		Role:       strings.ToLower(claims.Role),
	}, nil
}

// VerifyBearer strips an optional "Bearer " prefix before validating.
func (v *Verifier) VerifyBearer(header string) (*Principal, error) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return v.Verify(parts[1])
	}
	return v.Verify(header)
}
