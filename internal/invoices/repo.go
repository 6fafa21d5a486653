package invoices

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/farmachelo/pharmacy-backend/internal/repo"
	"github.com/farmachelo/pharmacy-backend/pkg/db/models"
	"github.com/farmachelo/pharmacy-backend/pkg/enums"
)

const (
	defaultUserListLimit  = 50
	defaultAdminListLimit = 100
)

// ListFilter narrows the admin invoice listing.
type ListFilter struct {
	Status *enums.InvoiceStatus
	Skip   int
	Limit  int
}

// Totals aggregates invoice amounts.
type Totals struct {
	Count   int64
	Revenue decimal.Decimal
}

// Repository persists standalone invoice records.
type Repository struct {
	repo.Base
}

func NewRepository(base repo.Base) *Repository {
	return &Repository{Base: base}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Base.WithTx(tx)}
}

func (r *Repository) Create(ctx context.Context, invoice *models.Invoice) error {
	return r.Bounded(ctx, "create invoice", func(db *gorm.DB) error {
		return db.Create(invoice).Error
	})
}

func (r *Repository) FindByID(ctx context.Context, id string) (*models.Invoice, error) {
	var invoice models.Invoice
	err := r.Bounded(ctx, "find invoice", func(db *gorm.DB) error {
		return db.Where("id = ?", id).First(&invoice).Error
	})
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *Repository) FindByTransactionID(ctx context.Context, transactionID string) (*models.Invoice, error) {
	var invoice models.Invoice
	err := r.Bounded(ctx, "find invoice by transaction", func(db *gorm.DB) error {
		return db.Where("payment_transaction_id = ?", transactionID).First(&invoice).Error
	})
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

// ListByUser returns the user's most recent invoices.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Invoice, error) {
	var rows []models.Invoice
	err := r.Bounded(ctx, "list user invoices", func(db *gorm.DB) error {
		return db.Where("user_id = ?", userID).
			Order("issue_date DESC").
			Limit(defaultUserListLimit).
			Find(&rows).Error
	})
	return rows, err
}

func (r *Repository) List(ctx context.Context, filter ListFilter) ([]models.Invoice, error) {
	limit := filter.Limit
	if limit <= 0 || limit > defaultAdminListLimit {
		limit = defaultAdminListLimit
	}
	var rows []models.Invoice
	err := r.Bounded(ctx, "list invoices", func(db *gorm.DB) error {
		q := db.Model(&models.Invoice{})
		if filter.Status != nil {
			q = q.Where("status = ?", *filter.Status)
		}
		if filter.Skip > 0 {
			q = q.Offset(filter.Skip)
		}
		return q.Order("issue_date DESC").Limit(limit).Find(&rows).Error
	})
	return rows, err
}

// Totals counts invoices and sums their totals, optionally since a time.
func (r *Repository) Totals(ctx context.Context, since *time.Time) (Totals, error) {
	var result struct {
		Count int64
		Total decimal.NullDecimal
	}
	err := r.Bounded(ctx, "sum invoices", func(db *gorm.DB) error {
		q := db.Model(&models.Invoice{}).Select("COUNT(*) AS count, SUM(total_amount) AS total")
		if since != nil {
			q = q.Where("issue_date >= ?", *since)
		}
		return q.Scan(&result).Error
	})
	if err != nil {
		return Totals{}, err
	}
	out := Totals{Count: result.Count, Revenue: decimal.Zero}
	if result.Total.Valid {
		out.Revenue = result.Total.Decimal
	}
	return out, nil
}
