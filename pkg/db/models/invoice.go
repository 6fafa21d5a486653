package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/farmachelo/pharmacy-backend/pkg/enums"
)

// Invoice is the standalone invoice record. Its ID is the order ID, so every
// order owns at most one invoice.
type Invoice struct {
	ID                   string              `gorm:"column:id;primaryKey"`
	OrderID              string              `gorm:"column:order_id;not null;uniqueIndex:idx_invoices_order_id"`
	UserID               uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	InvoiceNumber        string              `gorm:"column:invoice_number;not null;uniqueIndex:idx_invoices_invoice_number"`
	IssueDate            time.Time           `gorm:"column:issue_date;not null;index"`
	DueDate              time.Time           `gorm:"column:due_date;not null"`
	Lines                []InvoiceLine       `gorm:"column:lines;type:jsonb;serializer:json;not null"`
	Subtotal             decimal.Decimal     `gorm:"column:subtotal;type:numeric(12,2);not null"`
	TaxAmount            decimal.Decimal     `gorm:"column:tax_amount;type:numeric(12,2);not null"`
	DiscountAmount       decimal.Decimal     `gorm:"column:discount_amount;type:numeric(12,2);not null"`
	TotalAmount          decimal.Decimal     `gorm:"column:total_amount;type:numeric(12,2);not null"`
	Currency             string              `gorm:"column:currency;not null"`
	Status               enums.InvoiceStatus `gorm:"column:status;type:text;not null;index"`
	PaymentMethod        string              `gorm:"column:payment_method;not null"`
	PaymentTransactionID string              `gorm:"column:payment_transaction_id;not null;index"`
	CustomerInfo         CustomerInfo        `gorm:"column:customer_info;type:jsonb;serializer:json;not null"`
	ShippingInfo         CustomerInfo        `gorm:"column:shipping_info;type:jsonb;serializer:json;not null"`
	Notes                string              `gorm:"column:notes"`
	CreatedAt            time.Time           `gorm:"column:created_at;autoCreateTime"`
}

// InvoiceSequence is the monotonic counter behind invoice numbers.
type InvoiceSequence struct {
	Scope     string    `gorm:"column:scope;primaryKey"`
	Value     int64     `gorm:"column:value;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
