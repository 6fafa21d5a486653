package controllers

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/farmachelo/pharmacy-backend/api/responses"
	"github.com/farmachelo/pharmacy-backend/api/validators"
	"github.com/farmachelo/pharmacy-backend/internal/cards"
	"github.com/farmachelo/pharmacy-backend/internal/payments"
	"github.com/farmachelo/pharmacy-backend/internal/settlement"
	"github.com/farmachelo/pharmacy-backend/pkg/logger"
)

// Settler runs a payment attempt end to end.
type Settler interface {
	Settle(ctx context.Context, req settlement.Request) (*settlement.Outcome, error)
}

// CardValidator checks a card without charging it.
type CardValidator interface {
	Validate(card cards.Card) cards.Result
}

type cardPayload struct {
	CardNumber     string `json:"cardNumber" validate:"required,max=32"`
	ExpiryDate     string `json:"expiryDate" validate:"required,max=7"`
	CVV            string `json:"cvv" validate:"required,max=4"`
	CardholderName string `json:"cardholderName" validate:"omitempty,max=120"`
	Country        string `json:"country" validate:"omitempty,max=64"`
}

func (c cardPayload) toCard() cards.Card {
	return cards.Card{
		Number:         c.CardNumber,
		Expiry:         c.ExpiryDate,
		CVV:            c.CVV,
		CardholderName: validators.SanitizeString(c.CardholderName, 120),
		Country:        validators.SanitizeString(c.Country, 64),
	}
}

type processPaymentRequest struct {
	Email    string          `json:"email" validate:"required,email"`
	Card     cardPayload     `json:"card" validate:"required"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency" validate:"omitempty,len=3"`
	OrderID  string          `json:"order_id" validate:"omitempty,max=64"`
}

type validateCardResponse struct {
	Valid    bool   `json:"valid"`
	CardType string `json:"cardType"`
	Error    string `json:"error,omitempty"`
}

// PaymentsValidateCard runs the card checks without touching any state.
func PaymentsValidateCard(validator CardValidator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if validator == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable("card validation"))
			return
		}

		var body cardPayload
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result := validator.Validate(body.toCard())
		responses.WriteSuccess(w, validateCardResponse{
			Valid:    result.Valid,
			CardType: result.Brand.String(),
			Error:    result.Reason,
		})
	}
}

// PaymentsProcess settles the caller's cart. Business rejections are
// reported with HTTP 200 and success=false.
func PaymentsProcess(engine Settler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if engine == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable("settlement"))
			return
		}
		principal, err := requirePrincipal(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body processPaymentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil && body.OrderID != "" {
			ctx = logg.WithOrderID(ctx, body.OrderID)
		}

		outcome, err := engine.Settle(ctx, settlement.Request{
			UserID:   principal.ID,
			Email:    body.Email,
			Card:     body.Card.toCard(),
			Amount:   body.Amount,
			Currency: body.Currency,
			OrderID:  body.OrderID,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, outcome)
	}
}

// PaymentsTransaction returns a transaction to its owner or an admin.
func PaymentsTransaction(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, serviceUnavailable("payments"))
			return
		}
		principal, err := requirePrincipal(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		transactionID, err := stringParam(r, "transactionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		txn, err := svc.GetTransaction(r.Context(), principal, transactionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, txn)
	}
}
