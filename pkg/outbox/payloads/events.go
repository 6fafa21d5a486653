// Package payloads defines the data carried by each outbox event type.
package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/farmachelo/pharmacy-backend/pkg/enums"
)

// SettlementCapturedEvent is emitted when a payment is captured against an order.
type SettlementCapturedEvent struct {
	OrderID       string          `json:"order_id"`
	TransactionID string          `json:"transaction_id"`
	UserID        uuid.UUID       `json:"user_id"`
	Amount        string          `json:"amount"`
	Currency      string          `json:"currency"`
	CardBrand     enums.CardBrand `json:"card_brand"`
	CardLastFour  string          `json:"card_last_four"`
	LineCount     int             `json:"line_count"`
	CapturedAt    time.Time       `json:"captured_at"`
}

// InvoiceIssuedEvent reports a freshly numbered invoice.
type InvoiceIssuedEvent struct {
	InvoiceID     string    `json:"invoice_id"`
	OrderID       string    `json:"order_id"`
	InvoiceNumber string    `json:"invoice_number"`
	UserID        uuid.UUID `json:"user_id"`
	Subtotal      string    `json:"subtotal"`
	TaxAmount     string    `json:"tax_amount"`
	TotalAmount   string    `json:"total_amount"`
	Currency      string    `json:"currency"`
	IssuedAt      time.Time `json:"issued_at"`
}

// InvoiceSynthesisFailedEvent asks the repair worker to retry invoicing.
type InvoiceSynthesisFailedEvent struct {
	OrderID       string    `json:"order_id"`
	TransactionID string    `json:"transaction_id"`
	UserID        uuid.UUID `json:"user_id"`
	Reason        string    `json:"reason"`
	FailedAt      time.Time `json:"failed_at"`
}

// OrderStatusChangedEvent records an admin status transition.
type OrderStatusChangedEvent struct {
	OrderID    string            `json:"order_id"`
	UserID     uuid.UUID         `json:"user_id"`
	FromStatus enums.OrderStatus `json:"from_status"`
	ToStatus   enums.OrderStatus `json:"to_status"`
	ChangedBy  uuid.UUID         `json:"changed_by"`
	ChangedAt  time.Time         `json:"changed_at"`
}
