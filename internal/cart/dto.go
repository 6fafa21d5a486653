package cart

import (
	"time"

	"github.com/google/uuid"
)

// LineDTO is a priced cart line as returned to the storefront.
type LineDTO struct {
	ID                   uuid.UUID `json:"id"`
	ProductID            uuid.UUID `json:"product_id"`
	Quantity             int       `json:"quantity"`
	PrescriptionFile     *string   `json:"prescription_file,omitempty"`
	Name                 string    `json:"name"`
	Price                float64   `json:"price"`
	ImageURL             *string   `json:"image_url,omitempty"`
	RequiresPrescription bool      `json:"requires_prescription"`
	LineTotal            float64   `json:"line_total"`
}

// CartDTO is the priced cart payload.
type CartDTO struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Items     []LineDTO `json:"items"`
	Total     float64   `json:"total"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ToDTO renders a priced cart.
func ToDTO(p *PricedCart) CartDTO {
	items := make([]LineDTO, 0, len(p.Lines))
	for _, line := range p.Lines {
		items = append(items, LineDTO{
			ID:                   line.ProductID,
			ProductID:            line.ProductID,
			Quantity:             line.Quantity,
			PrescriptionFile:     line.PrescriptionFile,
			Name:                 line.Name,
			Price:                line.UnitPrice.InexactFloat64(),
			ImageURL:             line.ImageURL,
			RequiresPrescription: line.RequiresPrescription,
			LineTotal:            line.LineTotal.InexactFloat64(),
		})
	}
	return CartDTO{
		ID:        p.ID,
		UserID:    p.UserID,
		Items:     items,
		Total:     p.Total.InexactFloat64(),
		UpdatedAt: p.UpdatedAt,
	}
}
