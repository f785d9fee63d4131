package middleware

import (
	"context"
	"strings"

	"connectrpc.com/connect"
	"github.com/mmynk/payouts/internal/auth"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// PrincipalKey is the context key for storing the authenticated principal.
const PrincipalKey contextKey = "principal"

// GetPrincipal extracts the principal from the context.
// Returns the zero Principal if not found.
func GetPrincipal(ctx context.Context) auth.Principal {
	p, _ := ctx.Value(PrincipalKey).(auth.Principal)
	return p
}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p auth.Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, p)
}

// RequireAuth returns a middleware that validates JWT tokens and requires authentication.
// It extracts the token from the Authorization header, validates it, and adds
// the principal to the request context.
func RequireAuth(jwtManager *auth.JWTManager) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			authHeader := req.Header().Get("Authorization")
			if authHeader == "" {
				return nil, connect.NewError(connect.CodeUnauthenticated, auth.ErrMissingToken)
			}

			// Parse Bearer token
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				return nil, connect.NewError(connect.CodeUnauthenticated, auth.ErrInvalidToken)
			}

			principal, err := jwtManager.Validate(parts[1])
			if err != nil {
				return nil, connect.NewError(connect.CodeUnauthenticated, err)
			}

			return next(WithPrincipal(ctx, principal), req)
		}
	}
}
