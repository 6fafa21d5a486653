// Package settlement turns a payment request into a paid order, a payment
// transaction and, best effort, an invoice.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/farmachelo/pharmacy-backend/internal/cards"
	"github.com/farmachelo/pharmacy-backend/internal/cart"
	"github.com/farmachelo/pharmacy-backend/internal/invoices"
	"github.com/farmachelo/pharmacy-backend/internal/locks"
	"github.com/farmachelo/pharmacy-backend/internal/orders"
	"github.com/farmachelo/pharmacy-backend/internal/payments"
	"github.com/farmachelo/pharmacy-backend/internal/users"
	"github.com/farmachelo/pharmacy-backend/pkg/config"
	"github.com/farmachelo/pharmacy-backend/pkg/db/models"
	"github.com/farmachelo/pharmacy-backend/pkg/enums"
	pkgerrors "github.com/farmachelo/pharmacy-backend/pkg/errors"
	"github.com/farmachelo/pharmacy-backend/pkg/logger"
	"github.com/farmachelo/pharmacy-backend/pkg/metrics"
	"github.com/farmachelo/pharmacy-backend/pkg/outbox"
	"github.com/farmachelo/pharmacy-backend/pkg/outbox/payloads"
)

// DegradedInvoiceNumber marks a captured payment whose invoice is pending repair.
const DegradedInvoiceNumber = "ERROR"

const (
	messageAmountMismatch = "El monto no coincide con el carrito actual"
	messageEmptyCart      = "El carrito está vacío"
	messageCurrency       = "Moneda no soportada"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type invoiceSynthesizer interface {
	SynthesizeTx(ctx context.Context, tx *gorm.DB, input invoices.SynthesisInput) (*invoices.Result, error)
}

// Request is a payment submitted by a customer.
type Request struct {
	UserID   uuid.UUID
	Email    string
	Card     cards.Card
	Amount   decimal.Decimal
	Currency string
	// OrderID is optional; a new order id is minted when empty.
	OrderID string
}

// Outcome is the structured result of a settlement attempt.
type Outcome struct {
	Success       bool           `json:"success"`
	TransactionID string         `json:"transactionId,omitempty"`
	InvoiceID     string         `json:"invoiceId,omitempty"`
	InvoiceNumber string         `json:"invoiceNumber,omitempty"`
	Error         string         `json:"error,omitempty"`
	ErrorCode     pkgerrors.Code `json:"error_code,omitempty"`
}

// Degraded reports a captured payment whose invoice could not be produced.
func (o *Outcome) Degraded() bool {
	return o != nil && o.Success && o.InvoiceNumber == DegradedInvoiceNumber
}

func rejected(code pkgerrors.Code, message string) *Outcome {
	return &Outcome{Success: false, Error: message, ErrorCode: code}
}

// EngineParams wires an Engine.
type EngineParams struct {
	Tx          txRunner
	Users       *users.Repository
	Carts       *cart.Repository
	Pricer      *cart.Pricer
	Orders      *orders.Repository
	Payments    *payments.Repository
	Synthesizer invoiceSynthesizer
	Outbox      outboxPublisher
	Locker      locks.KeyedLocker
	Validator   *cards.Validator
	IDs         *IDGenerator
	Config      config.PaymentsConfig
	Metrics     *metrics.SettlementMetrics
	Logger      *logger.Logger
	Now         func() time.Time
}

// Engine settles payments. Capture and invoicing commit separately so an
// invoicing failure never rolls back a captured payment.
type Engine struct {
	tx        txRunner
	users     *users.Repository
	carts     *cart.Repository
	pricer    *cart.Pricer
	orders    *orders.Repository
	payments  *payments.Repository
	synth     invoiceSynthesizer
	outbox    outboxPublisher
	locker    locks.KeyedLocker
	validator *cards.Validator
	ids       *IDGenerator
	cfg       config.PaymentsConfig
	tolerance decimal.Decimal
	metrics   *metrics.SettlementMetrics
	logg      *logger.Logger
	now       func() time.Time
}

func NewEngine(params EngineParams) (*Engine, error) {
	switch {
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Users == nil:
		return nil, fmt.Errorf("users repository required")
	case params.Carts == nil:
		return nil, fmt.Errorf("cart repository required")
	case params.Pricer == nil:
		return nil, fmt.Errorf("cart pricer required")
	case params.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Payments == nil:
		return nil, fmt.Errorf("payments repository required")
	case params.Synthesizer == nil:
		return nil, fmt.Errorf("invoice synthesizer required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	validator := params.Validator
	if validator == nil {
		validator = cards.NewValidator(now)
	}
	ids := params.IDs
	if ids == nil {
		ids = NewIDGenerator(now)
	}
	cfg := params.Config
	if cfg.Currency == "" {
		cfg.Currency = "COP"
	}
	return &Engine{
		tx:        params.Tx,
		users:     params.Users,
		carts:     params.Carts,
		pricer:    params.Pricer,
		orders:    params.Orders,
		payments:  params.Payments,
		synth:     params.Synthesizer,
		outbox:    params.Outbox,
		locker:    params.Locker,
		validator: validator,
		ids:       ids,
		cfg:       cfg,
		tolerance: cfg.Tolerance(),
		metrics:   params.Metrics,
		logg:      params.Logger,
		now:       now,
	}, nil
}

// Settle runs one payment attempt. Rejections come back as an Outcome with
// Success false; missing records, access and store failures come back as
// errors.
func (e *Engine) Settle(ctx context.Context, req Request) (outcome *Outcome, err error) {
	start := e.now()
	defer func() {
		e.metrics.Observe(outcomeLabel(outcome, err), e.now().Sub(start))
	}()

	if req.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if e.logg != nil {
		ctx = e.logg.WithUserID(ctx, req.UserID.String())
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = e.cfg.Currency
	}
	if currency != e.cfg.Currency {
		return rejected(pkgerrors.CodeValidation, messageCurrency), nil
	}
	if !req.Amount.IsPositive() {
		return rejected(pkgerrors.CodeValidation, "El monto debe ser mayor que cero"), nil
	}

	release, err := e.acquire(ctx, req)
	if err != nil {
		return nil, err
	}
	defer release()

	user, err := e.users.FindByID(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, err
	}

	priced, err := e.pricer.Price(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if len(priced.Lines) == 0 {
		return rejected(pkgerrors.CodeValidation, messageEmptyCart), nil
	}
	if req.Amount.Sub(priced.Total).Abs().GreaterThan(e.tolerance) {
		e.logWarn(ctx, "settlement.amount_mismatch", map[string]any{
			"requested": req.Amount.String(),
			"cart":      priced.Total.String(),
		})
		return rejected(pkgerrors.CodeAmountMismatch, messageAmountMismatch), nil
	}

	card := e.validator.Validate(req.Card)
	if e.cfg.EnforceCardValidation && !card.Valid {
		return rejected(pkgerrors.CodeValidation, card.Reason), nil
	}

	orderID := req.OrderID
	if orderID == "" {
		orderID = e.ids.OrderID()
	}
	transactionID := e.ids.TransactionID()
	if e.logg != nil {
		ctx = e.logg.WithOrderID(ctx, orderID)
	}
	email := req.Email
	if email == "" {
		email = user.Email
	}
	capturedAt := e.now().UTC()

	err = e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return e.capture(ctx, tx, captureInput{
			orderID:       orderID,
			transactionID: transactionID,
			userID:        req.UserID,
			email:         email,
			amount:        req.Amount,
			currency:      currency,
			card:          req.Card,
			brand:         card.Brand,
			lines:         priced.OrderLines(),
			capturedAt:    capturedAt,
		})
	})
	if err != nil {
		return nil, err
	}

	var invoice *invoices.Result
	synthErr := e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		invoice, err = e.synth.SynthesizeTx(ctx, tx, invoices.SynthesisInput{
			OrderID:              orderID,
			PaymentTransactionID: transactionID,
			UserID:               req.UserID,
			PaymentMethod:        invoices.DefaultPaymentMethod,
			ClearCart:            true,
			Actor:                customerActor(req.UserID),
		})
		return err
	})
	if synthErr != nil {
		e.degrade(ctx, orderID, transactionID, req.UserID, synthErr)
		return &Outcome{
			Success:       true,
			TransactionID: transactionID,
			InvoiceID:     orderID,
			InvoiceNumber: DegradedInvoiceNumber,
		}, nil
	}

	if e.logg != nil {
		logCtx := e.logg.WithFields(ctx, map[string]any{
			"event":          "settlement.completed",
			"transaction_id": transactionID,
			"invoice_number": invoice.InvoiceNumber,
		})
		e.logg.Info(logCtx, "payment settled")
	}
	return &Outcome{
		Success:       true,
		TransactionID: transactionID,
		InvoiceID:     invoice.InvoiceID,
		InvoiceNumber: invoice.InvoiceNumber,
	}, nil
}

type captureInput struct {
	orderID       string
	transactionID string
	userID        uuid.UUID
	email         string
	amount        decimal.Decimal
	currency      string
	card          cards.Card
	brand         enums.CardBrand
	lines         []models.OrderLine
	capturedAt    time.Time
}

// capture upserts the order, appends the payment transaction and queues the
// captured event in one transaction.
func (e *Engine) capture(ctx context.Context, tx *gorm.DB, in captureInput) error {
	orderRepo := e.orders.WithTx(tx)

	existing, err := orderRepo.FindByID(ctx, in.orderID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		order := &models.Order{
			ID:                   in.orderID,
			UserID:               in.userID,
			Lines:                in.lines,
			TotalAmount:          in.amount,
			Status:               enums.OrderStatusPaid,
			PaymentTransactionID: &in.transactionID,
			Currency:             in.currency,
		}
		if err := orderRepo.Create(ctx, order); err != nil {
			return err
		}
	case err != nil:
		return err
	default:
		if existing.UserID != in.userID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if existing.Status != enums.OrderStatusPending && existing.Status != enums.OrderStatusPaid {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order can no longer be paid").
				WithDetails(map[string]any{"status": existing.Status})
		}
		if err := orderRepo.MarkPaid(ctx, in.orderID, in.transactionID, in.amount); err != nil {
			return err
		}
	}

	txn := &models.PaymentTransaction{
		TransactionID:  in.transactionID,
		OrderID:        in.orderID,
		UserID:         in.userID,
		Amount:         in.amount,
		Currency:       in.currency,
		CardBrand:      in.brand,
		CardLastFour:   cards.LastFour(in.card.Number),
		CardholderName: in.card.CardholderName,
		CustomerEmail:  in.email,
		Status:         enums.PaymentStatusCompleted,
	}
	if err := e.payments.WithTx(tx).Create(ctx, txn); err != nil {
		return err
	}

	return e.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventSettlementCaptured,
		AggregateType: enums.AggregateOrder,
		AggregateID:   in.orderID,
		Actor:         customerActor(in.userID),
		OccurredAt:    in.capturedAt,
		Data: payloads.SettlementCapturedEvent{
			OrderID:       in.orderID,
			TransactionID: in.transactionID,
			UserID:        in.userID,
			Amount:        in.amount.StringFixed(2),
			Currency:      in.currency,
			CardBrand:     in.brand,
			CardLastFour:  txn.CardLastFour,
			LineCount:     len(in.lines),
			CapturedAt:    in.capturedAt,
		},
	})
}

// degrade records an invoicing failure after capture: an operational alert,
// a repair request on the outbox and a best-effort cart clear.
func (e *Engine) degrade(ctx context.Context, orderID, transactionID string, userID uuid.UUID, cause error) {
	if e.logg != nil {
		logCtx := e.logg.WithFields(ctx, map[string]any{
			"event":          "settlement.invoice_degraded",
			"transaction_id": transactionID,
		})
		e.logg.Error(logCtx, "invoice synthesis failed after capture", cause)
	}

	failedAt := e.now().UTC()
	err := e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return e.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventInvoiceSynthesisFailed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Actor:         customerActor(userID),
			OccurredAt:    failedAt,
			Data: payloads.InvoiceSynthesisFailedEvent{
				OrderID:       orderID,
				TransactionID: transactionID,
				UserID:        userID,
				Reason:        cause.Error(),
				FailedAt:      failedAt,
			},
		})
	})
	if err != nil && e.logg != nil {
		e.logg.Error(ctx, "queue invoice repair failed", err)
	}

	if err := e.carts.ClearForUser(ctx, userID); err != nil {
		e.logWarn(ctx, "settlement.cart_clear_failed", map[string]any{"error": err.Error()})
	}
}

// acquire serializes settlement per user, then per order id when one is given.
func (e *Engine) acquire(ctx context.Context, req Request) (func(), error) {
	if e.locker == nil {
		return func() {}, nil
	}
	unlockUser, err := e.locker.Lock(ctx, locks.ScopeUser, req.UserID.String())
	if err != nil {
		return nil, err
	}
	unlocks := []locks.Unlock{unlockUser}
	if req.OrderID != "" {
		unlockOrder, err := e.locker.Lock(ctx, locks.ScopeOrder, req.OrderID)
		if err != nil {
			e.releaseAll(ctx, unlocks)
			return nil, err
		}
		unlocks = append(unlocks, unlockOrder)
	}
	return func() { e.releaseAll(ctx, unlocks) }, nil
}

func (e *Engine) releaseAll(ctx context.Context, unlocks []locks.Unlock) {
	releaseCtx := context.WithoutCancel(ctx)
	for i := len(unlocks) - 1; i >= 0; i-- {
		if err := unlocks[i](releaseCtx); err != nil {
			e.logWarn(ctx, "settlement.unlock_failed", map[string]any{"error": err.Error()})
		}
	}
}

func (e *Engine) logWarn(ctx context.Context, event string, fields map[string]any) {
	if e.logg == nil {
		return
	}
	if fields == nil {
		fields = map[string]any{}
	}
	fields["event"] = event
	e.logg.Warn(e.logg.WithFields(ctx, fields), event)
}

func customerActor(userID uuid.UUID) *outbox.ActorRef {
	return &outbox.ActorRef{ID: userID, Kind: enums.PrincipalCustomer}
}

func outcomeLabel(outcome *Outcome, err error) string {
	switch {
	case err != nil || outcome == nil:
		return metrics.OutcomeError
	case outcome.Degraded():
		return metrics.OutcomeDegraded
	case outcome.Success:
		return metrics.OutcomeSuccess
	case outcome.ErrorCode == pkgerrors.CodeAmountMismatch:
		return metrics.OutcomeAmountMismatch
	default:
		return metrics.OutcomeCardRejected
	}
}
