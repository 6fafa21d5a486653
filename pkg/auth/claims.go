package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/farmachelo/pharmacy-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	SubjectID uuid.UUID
	Kind      enums.PrincipalKind
	Email     string
	JTI       string
}

// AccessTokenClaims represents the typed JWT issued to clients.
type AccessTokenClaims struct {
	Kind  enums.PrincipalKind `json:"kind"`
	Email string              `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// SubjectID parses the subject claim.
func (c *AccessTokenClaims) SubjectID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}
