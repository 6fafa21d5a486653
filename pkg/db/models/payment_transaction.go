package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/farmachelo/pharmacy-backend/pkg/enums"
)

// PaymentTransaction records a single settlement attempt. Rows are append-only
// apart from Status.
type PaymentTransaction struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	TransactionID  string              `gorm:"column:transaction_id;not null;uniqueIndex:idx_payment_transactions_txid"`
	OrderID        string              `gorm:"column:order_id;not null;index"`
	UserID         uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	Amount         decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency       string              `gorm:"column:currency;not null"`
	CardBrand      enums.CardBrand     `gorm:"column:card_brand;not null"`
	CardLastFour   string              `gorm:"column:card_last_four;not null"`
	CardholderName string              `gorm:"column:cardholder_name"`
	CustomerEmail  string              `gorm:"column:customer_email;not null"`
	Status         enums.PaymentStatus `gorm:"column:status;type:text;not null"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *PaymentTransaction) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
