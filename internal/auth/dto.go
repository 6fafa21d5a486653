package auth

import (
	"time"

	"github.com/farmachelo/pharmacy-backend/internal/admins"
	"github.com/farmachelo/pharmacy-backend/internal/users"
)

// LoginRequest captures the credentials sent to the login endpoints.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest contains the payload required to create a customer.
type RegisterRequest struct {
	Email          string  `json:"email" validate:"required,email"`
	Password       string  `json:"password" validate:"required,min=6"`
	Name           string  `json:"name" validate:"required"`
	Phone          *string `json:"phone,omitempty"`
	Address        *string `json:"address,omitempty"`
	Identification *string `json:"identification,omitempty"`
}

// AdminRegisterRequest contains the payload required to create an admin.
type AdminRegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Name     string `json:"name" validate:"required"`
}

const tokenTypeBearer = "Bearer"

// LoginResponse carries the bearer token and the authenticated profile.
type LoginResponse struct {
	AccessToken string         `json:"access_token"`
	TokenType   string         `json:"token_type"`
	ExpiresAt   time.Time      `json:"expires_at"`
	User        *users.UserDTO `json:"user"`
}

// AdminLoginResponse mirrors LoginResponse for the back office.
type AdminLoginResponse struct {
	AccessToken string           `json:"access_token"`
	TokenType   string           `json:"token_type"`
	ExpiresAt   time.Time        `json:"expires_at"`
	Admin       *admins.AdminDTO `json:"admin"`
}
