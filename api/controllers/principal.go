package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/farmachelo/pharmacy-backend/api/middleware"
	"github.com/farmachelo/pharmacy-backend/api/validators"
	pkgAuth "github.com/farmachelo/pharmacy-backend/pkg/auth"
	pkgerrors "github.com/farmachelo/pharmacy-backend/pkg/errors"
)

func requirePrincipal(r *http.Request) (pkgAuth.Principal, error) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok || principal.ID == uuid.Nil {
		return pkgAuth.Principal{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	return principal, nil
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	return validators.ParseUUIDParam(chi.URLParam(r, name), name)
}

// stringParam reads opaque identifiers such as ORD-/TXN- ids.
func stringParam(r *http.Request, name string) (string, error) {
	value := validators.SanitizeString(chi.URLParam(r, name), 128)
	if value == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "missing path parameter").WithDetails(map[string]any{"field": name})
	}
	return value, nil
}

func serviceUnavailable(name string) error {
	return pkgerrors.New(pkgerrors.CodeInternal, name+" service unavailable")
}
