package middleware

import (
	"context"

	pkgAuth "github.com/farmachelo/pharmacy-backend/pkg/auth"
)

type contextKey string

const ctxPrincipal contextKey = "principal"

// PrincipalFromContext returns the caller resolved by Auth.
func PrincipalFromContext(ctx context.Context) (pkgAuth.Principal, bool) {
	if ctx == nil {
		return pkgAuth.Principal{}, false
	}
	p, ok := ctx.Value(ctxPrincipal).(pkgAuth.Principal)
	return p, ok
}

// UserIDFromContext returns the principal id as a string, or "" when unauthenticated.
func UserIDFromContext(ctx context.Context) string {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		return ""
	}
	return p.ID.String()
}

// WithPrincipal injects the principal into the context.
func WithPrincipal(ctx context.Context, principal pkgAuth.Principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxPrincipal, principal)
}
