package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/farmachelo/pharmacy-backend/internal/catalog"
	"github.com/farmachelo/pharmacy-backend/internal/locks"
	"github.com/farmachelo/pharmacy-backend/pkg/db/models"
	pkgerrors "github.com/farmachelo/pharmacy-backend/pkg/errors"
	"github.com/farmachelo/pharmacy-backend/pkg/logger"
)

const maxSwapAttempts = 5

// Service exposes cart mutations and pricing for a single user.
type Service interface {
	Get(ctx context.Context, userID uuid.UUID) (*PricedCart, error)
	AddItem(ctx context.Context, userID uuid.UUID, input AddItemInput) (*PricedCart, error)
	UpdateItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*PricedCart, error)
	RemoveItem(ctx context.Context, userID, productID uuid.UUID) (*PricedCart, error)
	Clear(ctx context.Context, userID uuid.UUID) (*PricedCart, error)
}

// AddItemInput describes a product being put into the cart.
type AddItemInput struct {
	ProductID        uuid.UUID
	Quantity         int
	PrescriptionFile *string
}

type service struct {
	carts    *Repository
	products *catalog.Repository
	pricer   *Pricer
	locker   locks.KeyedLocker
	logg     *logger.Logger
}

// NewService builds a cart service. The locker is optional; without it the
// version compare-and-set alone guards concurrent writers.
func NewService(carts *Repository, products *catalog.Repository, locker locks.KeyedLocker, logg *logger.Logger) (Service, error) {
	if carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if products == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	return &service{
		carts:    carts,
		products: products,
		pricer:   NewPricer(carts, products),
		locker:   locker,
		logg:     logg,
	}, nil
}

func (s *service) Get(ctx context.Context, userID uuid.UUID) (*PricedCart, error) {
	return s.pricer.Price(ctx, userID)
}

// AddItem merges quantities for a product already in the cart. Non-positive
// quantities count as one unit.
func (s *service) AddItem(ctx context.Context, userID uuid.UUID, input AddItemInput) (*PricedCart, error) {
	product, err := s.products.FindByID(ctx, input.ProductID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, err
	}
	if !product.Active {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	quantity := input.Quantity
	if quantity < 1 {
		quantity = 1
	}

	return s.mutate(ctx, userID, func(items []models.CartLine) ([]models.CartLine, error) {
		for i := range items {
			if items[i].ProductID == input.ProductID {
				items[i].Quantity += quantity
				if input.PrescriptionFile != nil {
					items[i].PrescriptionFile = input.PrescriptionFile
				}
				return items, nil
			}
		}
		return append(items, models.CartLine{
			ProductID:        input.ProductID,
			Quantity:         quantity,
			PrescriptionFile: input.PrescriptionFile,
		}), nil
	})
}

// UpdateItem sets an absolute quantity; zero or less removes the line.
func (s *service) UpdateItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*PricedCart, error) {
	return s.mutate(ctx, userID, func(items []models.CartLine) ([]models.CartLine, error) {
		idx := indexOf(items, productID)
		if idx < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "item not found in cart")
		}
		if quantity <= 0 {
			return append(items[:idx], items[idx+1:]...), nil
		}
		items[idx].Quantity = quantity
		return items, nil
	})
}

// RemoveItem drops a line. Removing an absent product returns the cart as is.
func (s *service) RemoveItem(ctx context.Context, userID, productID uuid.UUID) (*PricedCart, error) {
	return s.mutate(ctx, userID, func(items []models.CartLine) ([]models.CartLine, error) {
		idx := indexOf(items, productID)
		if idx < 0 {
			return nil, errUnchanged
		}
		return append(items[:idx], items[idx+1:]...), nil
	})
}

func (s *service) Clear(ctx context.Context, userID uuid.UUID) (*PricedCart, error) {
	return s.mutate(ctx, userID, func(items []models.CartLine) ([]models.CartLine, error) {
		if len(items) == 0 {
			return nil, errUnchanged
		}
		return []models.CartLine{}, nil
	})
}

var errUnchanged = errors.New("cart unchanged")

func (s *service) mutate(ctx context.Context, userID uuid.UUID, fn func([]models.CartLine) ([]models.CartLine, error)) (*PricedCart, error) {
	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx, locks.ScopeUser, userID.String())
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil && s.logg != nil {
				s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "failed to release cart lock")
			}
		}()
	}

	for attempt := 0; attempt < maxSwapAttempts; attempt++ {
		cart, err := s.carts.LoadOrCreate(ctx, userID)
		if err != nil {
			return nil, err
		}
		items, err := fn(cloneLines(cart.Items))
		if errors.Is(err, errUnchanged) {
			return s.pricer.PriceCart(ctx, cart)
		}
		if err != nil {
			return nil, err
		}
		swapped, err := s.carts.CompareAndSwap(ctx, cart.ID, cart.Version, items)
		if err != nil {
			return nil, err
		}
		if swapped {
			cart.Items = items
			cart.Version++
			return s.pricer.PriceCart(ctx, cart)
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeConflict, "cart was modified concurrently, retry the request")
}

func indexOf(items []models.CartLine, productID uuid.UUID) int {
	for i := range items {
		if items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

func cloneLines(items []models.CartLine) []models.CartLine {
	out := make([]models.CartLine, len(items))
	copy(out, items)
	return out
}
