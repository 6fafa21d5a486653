package invoices

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/farmachelo/pharmacy-backend/internal/cart"
	"github.com/farmachelo/pharmacy-backend/internal/catalog"
	"github.com/farmachelo/pharmacy-backend/internal/orders"
	"github.com/farmachelo/pharmacy-backend/internal/users"
	"github.com/farmachelo/pharmacy-backend/pkg/config"
	"github.com/farmachelo/pharmacy-backend/pkg/db"
	"github.com/farmachelo/pharmacy-backend/pkg/db/models"
	"github.com/farmachelo/pharmacy-backend/pkg/enums"
	pkgerrors "github.com/farmachelo/pharmacy-backend/pkg/errors"
	"github.com/farmachelo/pharmacy-backend/pkg/metrics"
	"github.com/farmachelo/pharmacy-backend/pkg/outbox"
	"github.com/farmachelo/pharmacy-backend/pkg/outbox/payloads"
)

// DefaultPaymentMethod is recorded when the caller names none.
const DefaultPaymentMethod = "card"

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// SynthesisInput identifies the order to invoice.
type SynthesisInput struct {
	OrderID              string
	PaymentTransactionID string
	UserID               uuid.UUID
	PaymentMethod        string
	// ClearCart empties the buyer's cart in the same transaction.
	ClearCart bool
	Actor     *outbox.ActorRef
}

// Result reports the invoice attached to an order.
type Result struct {
	InvoiceID     string
	InvoiceNumber string
	// Created is false when the order already carried an invoice.
	Created bool
	Invoice *models.Invoice
}

// SynthesizerParams wires a Synthesizer.
type SynthesizerParams struct {
	Orders   *orders.Repository
	Invoices *Repository
	Users    *users.Repository
	Products *catalog.Repository
	Carts    *cart.Repository
	Sequence Sequence
	Outbox   outboxPublisher
	Config   config.InvoiceConfig
	Currency string
	Metrics  *metrics.SettlementMetrics
	Now      func() time.Time
}

// Synthesizer numbers and persists invoices for settled orders.
type Synthesizer struct {
	orders   *orders.Repository
	invoices *Repository
	users    *users.Repository
	products *catalog.Repository
	carts    *cart.Repository
	sequence Sequence
	outbox   outboxPublisher
	cfg      config.InvoiceConfig
	currency string
	metrics  *metrics.SettlementMetrics
	now      func() time.Time
}

func NewSynthesizer(params SynthesizerParams) (*Synthesizer, error) {
	switch {
	case params.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Invoices == nil:
		return nil, fmt.Errorf("invoices repository required")
	case params.Users == nil:
		return nil, fmt.Errorf("users repository required")
	case params.Products == nil:
		return nil, fmt.Errorf("catalog repository required")
	case params.Carts == nil:
		return nil, fmt.Errorf("cart repository required")
	case params.Sequence == nil:
		return nil, fmt.Errorf("invoice sequence required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	currency := params.Currency
	if currency == "" {
		currency = "COP"
	}
	return &Synthesizer{
		orders:   params.Orders,
		invoices: params.Invoices,
		users:    params.Users,
		products: params.Products,
		carts:    params.Carts,
		sequence: params.Sequence,
		outbox:   params.Outbox,
		cfg:      params.Config,
		currency: currency,
		metrics:  params.Metrics,
		now:      now,
	}, nil
}

// SynthesizeTx invoices the order inside tx. An order that already carries
// an invoice number returns its existing invoice and consumes no number.
func (s *Synthesizer) SynthesizeTx(ctx context.Context, tx *gorm.DB, input SynthesisInput) (*Result, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	orderRepo := s.orders.WithTx(tx)
	invoiceRepo := s.invoices.WithTx(tx)

	order, err := orderRepo.FindByID(ctx, input.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, err
	}
	if order.UserID != input.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if order.Invoiced() {
		if input.ClearCart {
			if err := s.carts.WithTx(tx).ClearForUser(ctx, order.UserID); err != nil {
				return nil, err
			}
		}
		return s.existing(ctx, invoiceRepo, order)
	}

	user, err := s.users.WithTx(tx).FindByID(ctx, order.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, err
	}

	lines, err := s.enrich(ctx, tx, order)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order has no billable lines")
	}
	totals := ComputeTotals(lines, s.cfg.Rate(), decimal.Zero)

	value, err := s.sequence.Next(ctx, tx, SequenceScope)
	if err != nil {
		return nil, err
	}
	number := FormatNumber(value, s.cfg.NumberWidth)

	method := input.PaymentMethod
	if method == "" {
		method = DefaultPaymentMethod
	}
	transactionID := input.PaymentTransactionID
	if transactionID == "" && order.PaymentTransactionID != nil {
		transactionID = *order.PaymentTransactionID
	}
	issuedAt := s.now().UTC()
	customer := user.CustomerInfo()

	saved, err := orderRepo.SaveInvoiceFields(ctx, order.ID, orders.InvoiceFields{
		InvoiceNumber:  number,
		InvoiceDate:    issuedAt,
		Lines:          lines,
		Subtotal:       totals.Subtotal,
		TaxAmount:      totals.TaxAmount,
		DiscountAmount: totals.DiscountAmount,
		Total:          totals.Total,
		PaymentMethod:  method,
		CustomerInfo:   customer,
		ShippingInfo:   customer,
		Notes:          s.cfg.Notes,
	})
	if err != nil {
		return nil, uniqueAsConflict(err)
	}
	if !saved {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order was invoiced concurrently")
	}

	invoice := &models.Invoice{
		ID:                   order.ID,
		OrderID:              order.ID,
		UserID:               order.UserID,
		InvoiceNumber:        number,
		IssueDate:            issuedAt,
		DueDate:              issuedAt.AddDate(0, 0, s.dueDays()),
		Lines:                lines,
		Subtotal:             totals.Subtotal,
		TaxAmount:            totals.TaxAmount,
		DiscountAmount:       totals.DiscountAmount,
		TotalAmount:          totals.Total,
		Currency:             s.currency,
		Status:               enums.InvoiceStatusPaid,
		PaymentMethod:        method,
		PaymentTransactionID: transactionID,
		CustomerInfo:         customer,
		ShippingInfo:         customer,
		Notes:                s.cfg.Notes,
	}
	if err := invoiceRepo.Create(ctx, invoice); err != nil {
		return nil, uniqueAsConflict(err)
	}

	if input.ClearCart {
		if err := s.carts.WithTx(tx).ClearForUser(ctx, order.UserID); err != nil {
			return nil, err
		}
	}

	err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventInvoiceIssued,
		AggregateType: enums.AggregateInvoice,
		AggregateID:   invoice.ID,
		Actor:         input.Actor,
		OccurredAt:    issuedAt,
		Data: payloads.InvoiceIssuedEvent{
			InvoiceID:     invoice.ID,
			OrderID:       order.ID,
			InvoiceNumber: number,
			UserID:        order.UserID,
			Subtotal:      totals.Subtotal.StringFixed(2),
			TaxAmount:     totals.TaxAmount.StringFixed(2),
			TotalAmount:   totals.Total.StringFixed(2),
			Currency:      s.currency,
			IssuedAt:      issuedAt,
		},
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncInvoiceIssued()

	return &Result{InvoiceID: invoice.ID, InvoiceNumber: number, Created: true, Invoice: invoice}, nil
}

func (s *Synthesizer) existing(ctx context.Context, repo *Repository, order *models.Order) (*Result, error) {
	invoice, err := repo.FindByID(ctx, order.ID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		invoice = nil
	}
	return &Result{InvoiceID: order.ID, InvoiceNumber: *order.InvoiceNumber, Invoice: invoice}, nil
}

// enrich snapshots each order line against the catalog as it is now. Lines
// whose product no longer exists are left out. An order without lines is
// billed from the buyer's current cart.
func (s *Synthesizer) enrich(ctx context.Context, tx *gorm.DB, order *models.Order) ([]models.InvoiceLine, error) {
	products := s.products.WithTx(tx)
	if len(order.Lines) > 0 {
		ids := make([]uuid.UUID, 0, len(order.Lines))
		for _, line := range order.Lines {
			ids = append(ids, line.ProductID)
		}
		catalogRows, err := products.FindByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		lines := make([]models.InvoiceLine, 0, len(order.Lines))
		for _, line := range order.Lines {
			product, ok := catalogRows[line.ProductID]
			if !ok {
				continue
			}
			lines = append(lines, NewLine(product, line.Quantity))
		}
		if len(lines) > 0 {
			return lines, nil
		}
	}

	priced, err := cart.NewPricer(s.carts, s.products).WithTx(tx).Price(ctx, order.UserID)
	if err != nil {
		return nil, err
	}
	lines := make([]models.InvoiceLine, 0, len(priced.Lines))
	for _, line := range priced.Lines {
		lines = append(lines, models.InvoiceLine{
			ProductID:            line.ProductID,
			Name:                 line.Name,
			Description:          line.Description,
			Quantity:             line.Quantity,
			UnitPrice:            line.UnitPrice,
			TotalPrice:           line.LineTotal,
			RequiresPrescription: line.RequiresPrescription,
		})
	}
	return lines, nil
}

func (s *Synthesizer) dueDays() int {
	if s.cfg.DueDays <= 0 {
		return 30
	}
	return s.cfg.DueDays
}

func uniqueAsConflict(err error) error {
	if db.IsUniqueViolation(err, "") {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "invoice number already issued")
	}
	return err
}
