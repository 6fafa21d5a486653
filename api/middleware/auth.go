package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/farmachelo/pharmacy-backend/api/responses"
	pkgAuth "github.com/farmachelo/pharmacy-backend/pkg/auth"
	"github.com/farmachelo/pharmacy-backend/pkg/config"
	"github.com/farmachelo/pharmacy-backend/pkg/enums"
	pkgerrors "github.com/farmachelo/pharmacy-backend/pkg/errors"
	"github.com/farmachelo/pharmacy-backend/pkg/logger"
)

// RevocationChecker reports whether a token id was revoked by logout.
type RevocationChecker interface {
	IsTokenRevoked(ctx context.Context, tokenID string) (bool, error)
}

// Auth validates a bearer token and seeds the request context with the principal.
func Auth(cfg config.JWTConfig, revoked RevocationChecker, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				msg := "invalid token"
				if errors.Is(err, pkgAuth.ErrTokenExpired) {
					msg = "token expired"
				}
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, msg))
				return
			}

			principal, err := pkgAuth.PrincipalFromClaims(claims)
			if err != nil || principal.TokenID == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid token"))
				return
			}

			if revoked != nil {
				gone, err := revoked.IsTokenRevoked(r.Context(), principal.TokenID)
				if err != nil {
					responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check token revocation"))
					return
				}
				if gone {
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "token revoked"))
					return
				}
			}

			ctx := WithPrincipal(r.Context(), principal)
			if logg != nil {
				ctx = logg.WithUserID(ctx, principal.ID.String())
				ctx = logg.WithPrincipalKind(ctx, string(principal.Kind))
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects callers whose token was not issued to an admin.
func RequireAdmin(logg *logger.Logger) func(http.Handler) http.Handler {
	return requireKind(enums.PrincipalAdmin, "admin access required", logg)
}

// RequireCustomer rejects callers whose token was not issued to a customer.
func RequireCustomer(logg *logger.Logger) func(http.Handler) http.Handler {
	return requireKind(enums.PrincipalCustomer, "customer access required", logg)
}

func requireKind(kind enums.PrincipalKind, msg string, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}
			if principal.Kind != kind {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, msg))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	token := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	return token
}
