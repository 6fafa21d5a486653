package cart

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/farmachelo/pharmacy-backend/internal/repo"
	"github.com/farmachelo/pharmacy-backend/pkg/db"
	"github.com/farmachelo/pharmacy-backend/pkg/db/models"
)

// Repository persists the per-user cart document.
type Repository struct {
	repo.Base
}

// NewRepository binds a cart repository to the provided base.
func NewRepository(base repo.Base) *Repository {
	return &Repository{Base: base}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Base.WithTx(tx)}
}

// FindByUser loads the cart owned by userID.
func (r *Repository) FindByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := r.Bounded(ctx, "find cart", func(tx *gorm.DB) error {
		return tx.Where("user_id = ?", userID).First(&cart).Error
	})
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// LoadOrCreate returns the user's cart, creating an empty one on first access.
// A concurrent creator winning the unique index race is tolerated.
func (r *Repository) LoadOrCreate(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	cart, err := r.FindByUser(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	created := &models.Cart{UserID: userID, Items: []models.CartLine{}}
	err = r.Bounded(ctx, "create cart", func(tx *gorm.DB) error {
		return tx.Create(created).Error
	})
	if err == nil {
		return created, nil
	}
	if db.IsUniqueViolation(err, "") {
		return r.FindByUser(ctx, userID)
	}
	return nil, err
}

// CompareAndSwap replaces the items of cartID if its version still equals
// expected. It reports false when another writer got there first.
func (r *Repository) CompareAndSwap(ctx context.Context, cartID uuid.UUID, expected int, items []models.CartLine) (bool, error) {
	if items == nil {
		items = []models.CartLine{}
	}
	var affected int64
	err := r.Bounded(ctx, "update cart", func(tx *gorm.DB) error {
		res := tx.Model(&models.Cart{ID: cartID}).
			Where("version = ?", expected).
			Select("items", "version", "updated_at").
			Updates(models.Cart{Items: items, Version: expected + 1})
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// ClearForUser empties the user's cart regardless of version. Callers hold
// the per-user lock.
func (r *Repository) ClearForUser(ctx context.Context, userID uuid.UUID) error {
	return r.Bounded(ctx, "clear cart", func(tx *gorm.DB) error {
		return tx.Model(&models.Cart{}).
			Where("user_id = ?", userID).
			Updates(map[string]any{
				"items":   "[]",
				"version": gorm.Expr("version + 1"),
			}).Error
	})
}
