package catalog

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/farmachelo/pharmacy-backend/internal/repo"
	"github.com/farmachelo/pharmacy-backend/pkg/db/models"
	"github.com/farmachelo/pharmacy-backend/pkg/enums"
)

// ListFilter narrows product listings.
type ListFilter struct {
	Category        *enums.ProductCategory
	Search          string
	IncludeInactive bool
	Limit           int
}

// Repository persists catalog products.
type Repository struct {
	repo.Base
}

// NewRepository binds a catalog repository to db.
func NewRepository(base repo.Base) *Repository {
	return &Repository{Base: base}
}

// WithTx returns a repository that runs inside tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Base.WithTx(tx)}
}

func (r *Repository) Create(ctx context.Context, product *models.Product) error {
	return r.Bounded(ctx, "create product", func(db *gorm.DB) error {
		return db.Create(product).Error
	})
}

// Save writes every column of product.
func (r *Repository) Save(ctx context.Context, product *models.Product) error {
	return r.Bounded(ctx, "save product", func(db *gorm.DB) error {
		return db.Save(product).Error
	})
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.Bounded(ctx, "find product", func(db *gorm.DB) error {
		return db.First(&product, "id = ?", id).Error
	})
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// FindByIDs loads the products referenced by ids keyed by id. Missing ids are
// simply absent from the map.
func (r *Repository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	out := make(map[uuid.UUID]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Product
	err := r.Bounded(ctx, "find products", func(db *gorm.DB) error {
		return db.Where("id IN ?", ids).Find(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

func (r *Repository) List(ctx context.Context, filter ListFilter) ([]models.Product, error) {
	var rows []models.Product
	err := r.Bounded(ctx, "list products", func(db *gorm.DB) error {
		q := db.Model(&models.Product{})
		if !filter.IncludeInactive {
			q = q.Where("active = ?", true)
		}
		if filter.Category != nil {
			q = q.Where("category = ?", *filter.Category)
		}
		if term := strings.TrimSpace(filter.Search); term != "" {
			like := "%" + strings.ToLower(term) + "%"
			q = q.Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ?", like, like)
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		return q.Order("name ASC").Find(&rows).Error
	})
	return rows, err
}

func (r *Repository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.Bounded(ctx, "count products", func(db *gorm.DB) error {
		return db.Model(&models.Product{}).Count(&count).Error
	})
	return count, err
}
