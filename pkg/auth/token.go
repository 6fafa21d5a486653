// Package auth mints and verifies the bearer tokens handed to customers and
// admins.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/farmachelo/pharmacy-backend/pkg/config"
)

var (
	// ErrTokenExpired reports a well-formed token past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid covers every other verification failure.
	ErrTokenInvalid = errors.New("invalid token")
)

var jwtSigningMethod = jwt.SigningMethodHS256

// Issued is a freshly minted token with the values a caller may need to
// track it.
type Issued struct {
	Token     string
	JTI       string
	ExpiresAt time.Time
}

// MintAccessToken issues a signed JWT for the provided payload using the configured TTL.
func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (Issued, error) {
	if cfg.Secret == "" {
		return Issued{}, fmt.Errorf("jwt secret is required")
	}
	if cfg.Issuer == "" {
		return Issued{}, fmt.Errorf("jwt issuer is required")
	}
	if payload.SubjectID == uuid.Nil {
		return Issued{}, fmt.Errorf("token subject is required")
	}
	if !payload.Kind.IsValid() {
		return Issued{}, fmt.Errorf("invalid principal kind %q", payload.Kind)
	}

	jti := strings.TrimSpace(payload.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}
	expiresAt := now.Add(cfg.AccessTokenTTL())

	claims := AccessTokenClaims{
		Kind:  payload.Kind,
		Email: payload.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   payload.SubjectID.String(),
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        jti,
		},
	}

	signed, err := jwt.NewWithClaims(jwtSigningMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return Issued{}, fmt.Errorf("signing jwt: %w", err)
	}
	return Issued{Token: signed, JTI: jti, ExpiresAt: expiresAt}, nil
}

// ParseAccessToken validates the JWT string and returns typed claims. Failures
// are reduced to ErrTokenExpired or ErrTokenInvalid.
func ParseAccessToken(cfg config.JWTConfig, tokenString string, opts ...jwt.ParserOption) (*AccessTokenClaims, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}

	parserOpts := append([]jwt.ParserOption{
		jwt.WithValidMethods([]string{jwtSigningMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
	}, opts...)

	claims := &AccessTokenClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(cfg.Secret), nil
	}, parserOpts...)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	default:
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	if !claims.Kind.IsValid() {
		return nil, fmt.Errorf("%w: unknown principal kind", ErrTokenInvalid)
	}
	if _, err := claims.SubjectID(); err != nil {
		return nil, fmt.Errorf("%w: malformed subject", ErrTokenInvalid)
	}
	return claims, nil
}
