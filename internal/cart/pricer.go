package cart

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/farmachelo/pharmacy-backend/internal/catalog"
	"github.com/farmachelo/pharmacy-backend/pkg/db/models"
)

// PricedLine is a cart line joined with the live catalog entry.
type PricedLine struct {
	ProductID            uuid.UUID
	Quantity             int
	PrescriptionFile     *string
	Name                 string
	Description          string
	ImageURL             *string
	RequiresPrescription bool
	UnitPrice            decimal.Decimal
	LineTotal            decimal.Decimal
}

// PricedCart is a cart valued at current catalog prices.
type PricedCart struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Version   int
	Lines     []PricedLine
	Total     decimal.Decimal
	UpdatedAt time.Time
}

// OrderLines freezes the priced lines for an order snapshot.
func (p *PricedCart) OrderLines() []models.OrderLine {
	lines := make([]models.OrderLine, 0, len(p.Lines))
	for _, line := range p.Lines {
		lines = append(lines, models.OrderLine{
			ProductID:        line.ProductID,
			Quantity:         line.Quantity,
			PrescriptionFile: line.PrescriptionFile,
			UnitPrice:        line.UnitPrice,
		})
	}
	return lines
}

// Pricer values carts against the catalog. Prices are never cached.
type Pricer struct {
	carts    *Repository
	products *catalog.Repository
}

// NewPricer wires a pricer over the cart and catalog repositories.
func NewPricer(carts *Repository, products *catalog.Repository) *Pricer {
	return &Pricer{carts: carts, products: products}
}

// WithTx binds both repositories to tx.
func (p *Pricer) WithTx(tx *gorm.DB) *Pricer {
	return &Pricer{carts: p.carts.WithTx(tx), products: p.products.WithTx(tx)}
}

// Price loads (or lazily creates) the user's cart and prices it.
func (p *Pricer) Price(ctx context.Context, userID uuid.UUID) (*PricedCart, error) {
	cart, err := p.carts.LoadOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	return p.PriceCart(ctx, cart)
}

// PriceCart prices an already loaded cart.
func (p *Pricer) PriceCart(ctx context.Context, cart *models.Cart) (*PricedCart, error) {
	ids := make([]uuid.UUID, 0, len(cart.Items))
	for _, item := range cart.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := p.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	return PriceLines(cart, products), nil
}

// PriceLines joins cart items with products. Lines whose product is missing
// or inactive are dropped.
func PriceLines(cart *models.Cart, products map[uuid.UUID]models.Product) *PricedCart {
	priced := &PricedCart{
		ID:        cart.ID,
		UserID:    cart.UserID,
		Version:   cart.Version,
		Lines:     make([]PricedLine, 0, len(cart.Items)),
		Total:     decimal.Zero,
		UpdatedAt: cart.UpdatedAt,
	}
	for _, item := range cart.Items {
		product, ok := products[item.ProductID]
		if !ok || !product.Active {
			continue
		}
		lineTotal := product.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		priced.Lines = append(priced.Lines, PricedLine{
			ProductID:            item.ProductID,
			Quantity:             item.Quantity,
			PrescriptionFile:     item.PrescriptionFile,
			Name:                 product.Name,
			Description:          product.Description,
			ImageURL:             product.ImageURL,
			RequiresPrescription: product.RequiresPrescription,
			UnitPrice:            product.Price,
			LineTotal:            lineTotal,
		})
		priced.Total = priced.Total.Add(lineTotal)
	}
	return priced
}
