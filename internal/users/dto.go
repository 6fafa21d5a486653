package users

import (
	"time"

	"github.com/google/uuid"

	"github.com/farmachelo/pharmacy-backend/pkg/db/models"
)

// UserDTO is the transport shape that omits sensitive credentials.
type UserDTO struct {
	ID             uuid.UUID  `json:"id"`
	Email          string     `json:"email"`
	Name           string     `json:"name"`
	Phone          *string    `json:"phone,omitempty"`
	Address        *string    `json:"address,omitempty"`
	Identification *string    `json:"identification,omitempty"`
	IsAdmin        bool       `json:"is_admin"`
	IsActive       bool       `json:"is_active"`
	LastLoginAt    *time.Time `json:"last_login_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// CreateUserDTO holds the data required by the repo to persist a new user.
type CreateUserDTO struct {
	Email          string
	PasswordHash   string
	Name           string
	Phone          *string
	Address        *string
	Identification *string
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}
	return &UserDTO{
		ID:             u.ID,
		Email:          u.Email,
		Name:           u.Name,
		Phone:          u.Phone,
		Address:        u.Address,
		Identification: u.Identification,
		IsActive:       u.IsActive,
		LastLoginAt:    u.LastLoginAt,
		CreatedAt:      u.CreatedAt,
	}
}

// FromAdmin renders an admin in the user shape used by /auth/me.
func FromAdmin(a *models.Admin) *UserDTO {
	if a == nil {
		return nil
	}
	return &UserDTO{
		ID:          a.ID,
		Email:       a.Email,
		Name:        a.Name,
		IsAdmin:     true,
		IsActive:    a.IsActive,
		LastLoginAt: a.LastLoginAt,
		CreatedAt:   a.CreatedAt,
	}
}

func (c CreateUserDTO) ToModel() *models.User {
	return &models.User{
		Email:          c.Email,
		PasswordHash:   c.PasswordHash,
		Name:           c.Name,
		Phone:          c.Phone,
		Address:        c.Address,
		Identification: c.Identification,
		IsActive:       true,
	}
}
