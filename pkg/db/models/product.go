package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/farmachelo/pharmacy-backend/pkg/enums"
)

// Product is a catalog entry. Inactive products stay in the table so historic
// orders can still reference them.
type Product struct {
	ID                   uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	Name                 string                 `gorm:"column:name;not null"`
	Description          string                 `gorm:"column:description;not null"`
	Price                decimal.Decimal        `gorm:"column:price;type:numeric(12,2);not null"`
	Category             *enums.ProductCategory `gorm:"column:category;type:text;index"`
	Stock                int                    `gorm:"column:stock;not null"`
	ImageURL             *string                `gorm:"column:image_url"`
	RequiresPrescription bool                   `gorm:"column:requires_prescription;not null"`
	Active               bool                   `gorm:"column:active;not null;index"`
	CreatedAt            time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
