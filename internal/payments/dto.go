package payments

import (
	"time"

	"github.com/google/uuid"

	"github.com/farmachelo/pharmacy-backend/pkg/db/models"
	"github.com/farmachelo/pharmacy-backend/pkg/enums"
)

// TransactionDTO is the transport shape of a payment transaction. Card data
// is limited to brand and last four digits.
type TransactionDTO struct {
	TransactionID  string              `json:"transaction_id"`
	OrderID        string              `json:"order_id"`
	UserID         uuid.UUID           `json:"user_id"`
	Amount         float64             `json:"amount"`
	Currency       string              `json:"currency"`
	CardBrand      enums.CardBrand     `json:"card_brand"`
	CardLastFour   string              `json:"card_last_four"`
	CardholderName string              `json:"cardholder_name,omitempty"`
	CustomerEmail  string              `json:"customer_email"`
	Status         enums.PaymentStatus `json:"status"`
	CreatedAt      time.Time           `json:"created_at"`
}

func FromModel(t *models.PaymentTransaction) *TransactionDTO {
	if t == nil {
		return nil
	}
	return &TransactionDTO{
		TransactionID:  t.TransactionID,
		OrderID:        t.OrderID,
		UserID:         t.UserID,
		Amount:         t.Amount.InexactFloat64(),
		Currency:       t.Currency,
		CardBrand:      t.CardBrand,
		CardLastFour:   t.CardLastFour,
		CardholderName: t.CardholderName,
		CustomerEmail:  t.CustomerEmail,
		Status:         t.Status,
		CreatedAt:      t.CreatedAt,
	}
}
