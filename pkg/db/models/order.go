package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/farmachelo/pharmacy-backend/pkg/enums"
)

// OrderLine freezes a cart line and the price it was settled at.
type OrderLine struct {
	ProductID        uuid.UUID       `json:"product_id"`
	Quantity         int             `json:"quantity"`
	PrescriptionFile *string         `json:"prescription_file,omitempty"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
}

// InvoiceLine is a point-in-time product snapshot printed on an invoice.
type InvoiceLine struct {
	ProductID            uuid.UUID       `json:"product_id"`
	Name                 string          `json:"name"`
	Description          string          `json:"description"`
	Quantity             int             `json:"quantity"`
	UnitPrice            decimal.Decimal `json:"unit_price"`
	TotalPrice           decimal.Decimal `json:"total_price"`
	RequiresPrescription bool            `json:"requires_prescription"`
}

// CustomerInfo is the buyer identity block shared by invoices and shipping.
type CustomerInfo struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	Address        string `json:"address"`
	Identification string `json:"identification"`
}

// Order is a settled or pending purchase. Invoice columns stay NULL until the
// invoice is synthesized and are never rewritten afterwards.
type Order struct {
	ID                   string            `gorm:"column:id;primaryKey"`
	UserID               uuid.UUID         `gorm:"column:user_id;type:uuid;not null;index"`
	Lines                []OrderLine       `gorm:"column:lines;type:jsonb;serializer:json;not null"`
	TotalAmount          decimal.Decimal   `gorm:"column:total_amount;type:numeric(12,2);not null"`
	Status               enums.OrderStatus `gorm:"column:status;type:text;not null;index"`
	PaymentTransactionID *string           `gorm:"column:payment_transaction_id"`
	Currency             string            `gorm:"column:currency;not null"`
	PaymentMethod        *string           `gorm:"column:payment_method"`

	InvoiceNumber  *string             `gorm:"column:invoice_number;uniqueIndex:idx_orders_invoice_number"`
	InvoiceDate    *time.Time          `gorm:"column:invoice_date"`
	InvoiceLines   []InvoiceLine       `gorm:"column:invoice_lines;type:jsonb;serializer:json"`
	Subtotal       decimal.NullDecimal `gorm:"column:subtotal;type:numeric(12,2)"`
	TaxAmount      decimal.NullDecimal `gorm:"column:tax_amount;type:numeric(12,2)"`
	DiscountAmount decimal.NullDecimal `gorm:"column:discount_amount;type:numeric(12,2)"`
	CustomerInfo   *CustomerInfo       `gorm:"column:customer_info;type:jsonb;serializer:json"`
	ShippingInfo   *CustomerInfo       `gorm:"column:shipping_info;type:jsonb;serializer:json"`
	InvoiceNotes   *string             `gorm:"column:invoice_notes"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// Invoiced reports whether an invoice number has been assigned.
func (o Order) Invoiced() bool {
	return o.InvoiceNumber != nil && *o.InvoiceNumber != ""
}
