// Package payments stores and exposes payment transaction records.
package payments

import (
	"context"

	"gorm.io/gorm"

	"github.com/farmachelo/pharmacy-backend/internal/repo"
	"github.com/farmachelo/pharmacy-backend/pkg/db/models"
)

// Repository persists payment transactions.
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

func (r *Repository) Create(ctx context.Context, txn *models.PaymentTransaction) error {
	return r.Bounded(ctx, "create payment transaction", func(db *gorm.DB) error {
		return db.Create(txn).Error
	})
}

func (r *Repository) FindByTransactionID(ctx context.Context, transactionID string) (*models.PaymentTransaction, error) {
	var txn models.PaymentTransaction
	err := r.Bounded(ctx, "find payment transaction", func(db *gorm.DB) error {
		return db.Where("transaction_id = ?", transactionID).First(&txn).Error
	})
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// ListByOrder returns every attempt recorded against an order, newest first.
func (r *Repository) ListByOrder(ctx context.Context, orderID string) ([]models.PaymentTransaction, error) {
	var rows []models.PaymentTransaction
	err := r.Bounded(ctx, "list payment transactions", func(db *gorm.DB) error {
		return db.Where("order_id = ?", orderID).Order("created_at DESC").Find(&rows).Error
	})
	return rows, err
}
