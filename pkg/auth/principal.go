package auth

import (
	"time"

	"github.com/google/uuid"

	"github.com/farmachelo/pharmacy-backend/pkg/enums"
)

// Principal is the authenticated caller, resolved once from the bearer token.
type Principal struct {
	Kind      enums.PrincipalKind
	ID        uuid.UUID
	Email     string
	TokenID   string
	ExpiresAt time.Time
}

// IsAdmin reports whether the caller is a back-office admin.
func (p Principal) IsAdmin() bool {
	return p.Kind == enums.PrincipalAdmin
}

// CanAccessOwnerResource reports whether the caller owns ownerID or is an admin.
func (p Principal) CanAccessOwnerResource(ownerID uuid.UUID) bool {
	return p.IsAdmin() || (p.Kind == enums.PrincipalCustomer && p.ID == ownerID)
}

// PrincipalFromClaims converts verified claims into a Principal.
func PrincipalFromClaims(claims *AccessTokenClaims) (Principal, error) {
	id, err := claims.SubjectID()
	if err != nil {
		return Principal{}, ErrTokenInvalid
	}
	principal := Principal{
		Kind:    claims.Kind,
		ID:      id,
		Email:   claims.Email,
		TokenID: claims.ID,
	}
	if claims.ExpiresAt != nil {
		principal.ExpiresAt = claims.ExpiresAt.Time
	}
	return principal, nil
}
