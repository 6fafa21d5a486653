package catalog

import (
	"time"

	"github.com/google/uuid"

	"github.com/farmachelo/pharmacy-backend/pkg/db/models"
	"github.com/farmachelo/pharmacy-backend/pkg/enums"
)

// ProductDTO is the transport shape of a catalog product.
type ProductDTO struct {
	ID                   uuid.UUID              `json:"id"`
	Name                 string                 `json:"name"`
	Description          string                 `json:"description"`
	Price                float64                `json:"price"`
	Category             *enums.ProductCategory `json:"category,omitempty"`
	Stock                int                    `json:"stock"`
	ImageURL             *string                `json:"image_url,omitempty"`
	RequiresPrescription bool                   `json:"requires_prescription"`
	Active               bool                   `json:"active"`
	CreatedAt            time.Time              `json:"created_at"`
}

func FromModel(p *models.Product) *ProductDTO {
	if p == nil {
		return nil
	}
	return &ProductDTO{
		ID:                   p.ID,
		Name:                 p.Name,
		Description:          p.Description,
		Price:                p.Price.InexactFloat64(),
		Category:             p.Category,
		Stock:                p.Stock,
		ImageURL:             p.ImageURL,
		RequiresPrescription: p.RequiresPrescription,
		Active:               p.Active,
		CreatedAt:            p.CreatedAt,
	}
}

func FromModels(rows []models.Product) []ProductDTO {
	out := make([]ProductDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *FromModel(&rows[i]))
	}
	return out
}
