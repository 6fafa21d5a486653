package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/farmachelo/pharmacy-backend/pkg/auth"
	"github.com/farmachelo/pharmacy-backend/pkg/config"
	"github.com/farmachelo/pharmacy-backend/pkg/enums"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 60}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthRejectsMissingToken(t *testing.T) {
	handler := Auth(testJWTConfig(), stubRevocations{}, nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthRejectsInvalidToken(t *testing.T) {
	handler := Auth(testJWTConfig(), stubRevocations{}, nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer invalid")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthRejectsExpiredToken(t *testing.T) {
	cfg := testJWTConfig()
	token := mintTestToken(t, cfg, enums.PrincipalCustomer, uuid.New(), time.Now().Add(-2*time.Hour))
	handler := Auth(cfg, stubRevocations{}, nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthAllowsValidToken(t *testing.T) {
	cfg := testJWTConfig()
	userID := uuid.New()
	token := mintTestToken(t, cfg, enums.PrincipalCustomer, userID, time.Now())

	var captured struct {
		principal auth.Principal
		ok        bool
	}
	handler := Auth(cfg, stubRevocations{}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.principal, captured.ok = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !captured.ok {
		t.Fatal("expected principal in context")
	}
	if captured.principal.ID != userID {
		t.Fatalf("expected principal %s got %s", userID, captured.principal.ID)
	}
	if captured.principal.Kind != enums.PrincipalCustomer {
		t.Fatalf("expected customer got %s", captured.principal.Kind)
	}
	if captured.principal.TokenID == "" {
		t.Fatal("expected token id on principal")
	}
}

func TestAuthRejectsRevokedToken(t *testing.T) {
	cfg := testJWTConfig()
	token := mintTestToken(t, cfg, enums.PrincipalAdmin, uuid.New(), time.Now())
	handler := Auth(cfg, stubRevocations{revoked: true}, nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthSurfacesRevocationStoreFailure(t *testing.T) {
	cfg := testJWTConfig()
	token := mintTestToken(t, cfg, enums.PrincipalCustomer, uuid.New(), time.Now())
	handler := Auth(cfg, stubRevocations{err: errors.New("redis down")}, nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
}

func TestRequireAdmin(t *testing.T) {
	tests := []struct {
		name      string
		principal *auth.Principal
		want      int
	}{
		{"anonymous", nil, http.StatusUnauthorized},
		{"customer", &auth.Principal{Kind: enums.PrincipalCustomer, ID: uuid.New()}, http.StatusForbidden},
		{"admin", &auth.Principal{Kind: enums.PrincipalAdmin, ID: uuid.New()}, http.StatusOK},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/api/admin/orders", nil)
		if tt.principal != nil {
			req = req.WithContext(WithPrincipal(req.Context(), *tt.principal))
		}
		resp := httptest.NewRecorder()
		RequireAdmin(nil)(okHandler()).ServeHTTP(resp, req)
		if resp.Code != tt.want {
			t.Fatalf("%s: expected %d got %d", tt.name, tt.want, resp.Code)
		}
	}
}

func TestRequireCustomerRejectsAdmin(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
	req = req.WithContext(WithPrincipal(req.Context(), auth.Principal{Kind: enums.PrincipalAdmin, ID: uuid.New()}))
	resp := httptest.NewRecorder()
	RequireCustomer(nil)(okHandler()).ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
}

func mintTestToken(t *testing.T, cfg config.JWTConfig, kind enums.PrincipalKind, subject uuid.UUID, now time.Time) string {
	t.Helper()
	issued, err := auth.MintAccessToken(cfg, now, auth.AccessTokenPayload{
		SubjectID: subject,
		Kind:      kind,
		Email:     "someone@example.com",
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return issued.Token
}

type stubRevocations struct {
	revoked bool
	err     error
}

func (s stubRevocations) IsTokenRevoked(context.Context, string) (bool, error) {
	return s.revoked, s.err
}
