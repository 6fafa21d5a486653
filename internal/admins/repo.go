// Package admins persists back-office operator accounts.
package admins

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/farmachelo/pharmacy-backend/internal/repo"
	"github.com/farmachelo/pharmacy-backend/pkg/db/models"
)

// AdminDTO is the transport shape of an admin.
type AdminDTO struct {
	ID          uuid.UUID  `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	IsActive    bool       `json:"is_active"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func FromModel(a *models.Admin) *AdminDTO {
	if a == nil {
		return nil
	}
	return &AdminDTO{
		ID:          a.ID,
		Email:       a.Email,
		Name:        a.Name,
		IsActive:    a.IsActive,
		LastLoginAt: a.LastLoginAt,
		CreatedAt:   a.CreatedAt,
	}
}

type Repository struct {
	repo.Base
}

func NewRepository(base repo.Base) *Repository {
	return &Repository{Base: base}
}

func (r *Repository) Create(ctx context.Context, admin *models.Admin) error {
	return r.Bounded(ctx, "create admin", func(db *gorm.DB) error {
		return db.Create(admin).Error
	})
}

func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.Admin, error) {
	var admin models.Admin
	err := r.Bounded(ctx, "find admin by email", func(db *gorm.DB) error {
		return db.Where("email = ?", email).First(&admin).Error
	})
	if err != nil {
		return nil, err
	}
	return &admin, nil
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Admin, error) {
	var admin models.Admin
	err := r.Bounded(ctx, "find admin", func(db *gorm.DB) error {
		return db.First(&admin, "id = ?", id).Error
	})
	if err != nil {
		return nil, err
	}
	return &admin, nil
}

func (r *Repository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.Bounded(ctx, "update admin last login", func(db *gorm.DB) error {
		return db.Model(&models.Admin{}).
			Where("id = ?", id).
			UpdateColumn("last_login_at", at).Error
	})
}
