package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/farmachelo/pharmacy-backend/pkg/config"
	"github.com/farmachelo/pharmacy-backend/pkg/enums"
)

func testConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "secret", Issuer: "farmachelo", ExpirationMinutes: 30}
}

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := testConfig()
	userID := uuid.New()
	now := time.Now().UTC()

	issued, err := MintAccessToken(cfg, now, AccessTokenPayload{
		SubjectID: userID,
		Kind:      enums.PrincipalCustomer,
		Email:     "cliente@example.com",
	})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if issued.JTI == "" {
		t.Fatal("expected generated jti")
	}
	if got := issued.ExpiresAt.Sub(now); got != 30*time.Minute {
		t.Fatalf("unexpected ttl %s", got)
	}

	claims, err := ParseAccessToken(cfg, issued.Token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	subject, err := claims.SubjectID()
	if err != nil || subject != userID {
		t.Fatalf("expected subject %s, got %s (%v)", userID, subject, err)
	}
	if claims.Kind != enums.PrincipalCustomer {
		t.Fatalf("unexpected kind %s", claims.Kind)
	}
	if claims.ID != issued.JTI {
		t.Fatalf("jti mismatch: %s vs %s", claims.ID, issued.JTI)
	}
}

func TestMintKeepsProvidedJTI(t *testing.T) {
	issued, err := MintAccessToken(testConfig(), time.Now(), AccessTokenPayload{
		SubjectID: uuid.New(),
		Kind:      enums.PrincipalAdmin,
		JTI:       "fixed-jti",
	})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if issued.JTI != "fixed-jti" {
		t.Fatalf("expected fixed-jti, got %s", issued.JTI)
	}
}

func TestMintValidatesPayload(t *testing.T) {
	if _, err := MintAccessToken(testConfig(), time.Now(), AccessTokenPayload{Kind: enums.PrincipalAdmin}); err == nil {
		t.Fatal("expected error for missing subject")
	}
	if _, err := MintAccessToken(testConfig(), time.Now(), AccessTokenPayload{SubjectID: uuid.New(), Kind: "root"}); err == nil {
		t.Fatal("expected error for unknown kind")
	}
	cfg := testConfig()
	cfg.Secret = ""
	if _, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{SubjectID: uuid.New(), Kind: enums.PrincipalAdmin}); err == nil {
		t.Fatal("expected error for missing secret")
	}
}

func TestParseExpiredToken(t *testing.T) {
	cfg := testConfig()
	issued, err := MintAccessToken(cfg, time.Now().Add(-2*time.Hour), AccessTokenPayload{
		SubjectID: uuid.New(),
		Kind:      enums.PrincipalCustomer,
	})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := ParseAccessToken(cfg, issued.Token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestParseRejectsTamperedTokens(t *testing.T) {
	cfg := testConfig()
	issued, _ := MintAccessToken(cfg, time.Now(), AccessTokenPayload{SubjectID: uuid.New(), Kind: enums.PrincipalCustomer})

	other := cfg
	other.Secret = "other"
	if _, err := ParseAccessToken(other, issued.Token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for wrong secret, got %v", err)
	}

	wrongIssuer := cfg
	wrongIssuer.Issuer = "someone-else"
	if _, err := ParseAccessToken(wrongIssuer, issued.Token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for wrong issuer, got %v", err)
	}

	if _, err := ParseAccessToken(cfg, "not-a-jwt"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for garbage, got %v", err)
	}

	none := jwt.NewWithClaims(jwt.SigningMethodNone, AccessTokenClaims{Kind: enums.PrincipalAdmin})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if _, err := ParseAccessToken(cfg, unsigned); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for alg none, got %v", err)
	}
}
