package invoices

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/farmachelo/pharmacy-backend/internal/locks"
	"github.com/farmachelo/pharmacy-backend/internal/orders"
	"github.com/farmachelo/pharmacy-backend/internal/payments"
	"github.com/farmachelo/pharmacy-backend/internal/users"
	pkgAuth "github.com/farmachelo/pharmacy-backend/pkg/auth"
	"github.com/farmachelo/pharmacy-backend/pkg/db/models"
	pkgerrors "github.com/farmachelo/pharmacy-backend/pkg/errors"
	"github.com/farmachelo/pharmacy-backend/pkg/logger"
	"github.com/farmachelo/pharmacy-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes invoice reads, on-demand synthesis and repair.
type Service interface {
	Create(ctx context.Context, principal pkgAuth.Principal, input CreateInput) (*View, error)
	Get(ctx context.Context, principal pkgAuth.Principal, id string) (*View, error)
	GetByTransaction(ctx context.Context, principal pkgAuth.Principal, transactionID string) (*View, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]InvoiceDTO, error)
	AdminList(ctx context.Context, filter ListFilter) ([]InvoiceDTO, error)
	Stats(ctx context.Context) (*StatsDTO, error)
	Repair(ctx context.Context, orderID string, actor *outbox.ActorRef) (*RepairResult, error)
	Demo() *View
}

// ServiceParams wires the invoice service.
type ServiceParams struct {
	Synthesizer *Synthesizer
	Invoices    *Repository
	Orders      *orders.Repository
	Users       *users.Repository
	Payments    *payments.Repository
	Tx          txRunner
	Locker      locks.KeyedLocker
	Logger      *logger.Logger
	Now         func() time.Time
}

type service struct {
	synth    *Synthesizer
	invoices *Repository
	orders   *orders.Repository
	users    *users.Repository
	payments *payments.Repository
	tx       txRunner
	locker   locks.KeyedLocker
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Synthesizer == nil:
		return nil, fmt.Errorf("invoice synthesizer required")
	case params.Invoices == nil:
		return nil, fmt.Errorf("invoices repository required")
	case params.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Users == nil:
		return nil, fmt.Errorf("users repository required")
	case params.Payments == nil:
		return nil, fmt.Errorf("payments repository required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		synth:    params.Synthesizer,
		invoices: params.Invoices,
		orders:   params.Orders,
		users:    params.Users,
		payments: params.Payments,
		tx:       params.Tx,
		locker:   params.Locker,
		logg:     params.Logger,
		now:      now,
	}, nil
}

// Create invoices one of the caller's settled orders. An already invoiced
// order returns its existing invoice.
func (s *service) Create(ctx context.Context, principal pkgAuth.Principal, input CreateInput) (*View, error) {
	if input.OrderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order_id required")
	}
	if input.PaymentTransactionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment_transaction_id required")
	}

	order, err := s.loadOrder(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != principal.ID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	txn, err := s.payments.FindByTransactionID(ctx, input.PaymentTransactionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment transaction not found")
		}
		return nil, err
	}
	if txn.OrderID != order.ID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment transaction does not belong to order")
	}
	if !order.Invoiced() && !order.Status.IsSettled() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not paid").
			WithDetails(map[string]any{"status": order.Status})
	}

	result, err := s.synthesize(ctx, order.ID, SynthesisInput{
		OrderID:              order.ID,
		PaymentTransactionID: txn.TransactionID,
		UserID:               order.UserID,
		PaymentMethod:        input.PaymentMethod,
		Actor:                &outbox.ActorRef{ID: principal.ID, Kind: principal.Kind},
	})
	if err != nil {
		return nil, err
	}
	return s.view(ctx, result.InvoiceID)
}

func (s *service) Get(ctx context.Context, principal pkgAuth.Principal, id string) (*View, error) {
	if id == DemoID {
		return s.Demo(), nil
	}
	invoice, err := s.invoices.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
		}
		return nil, err
	}
	if !principal.CanAccessOwnerResource(invoice.UserID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "invoice belongs to another user")
	}
	return s.assemble(ctx, invoice)
}

func (s *service) GetByTransaction(ctx context.Context, principal pkgAuth.Principal, transactionID string) (*View, error) {
	invoice, err := s.invoices.FindByTransactionID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
		}
		return nil, err
	}
	if !principal.CanAccessOwnerResource(invoice.UserID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "invoice belongs to another user")
	}
	return s.assemble(ctx, invoice)
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID) ([]InvoiceDTO, error) {
	rows, err := s.invoices.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return FromModels(rows), nil
}

func (s *service) AdminList(ctx context.Context, filter ListFilter) ([]InvoiceDTO, error) {
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid invoice status")
	}
	if filter.Skip < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "skip must not be negative")
	}
	rows, err := s.invoices.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return FromModels(rows), nil
}

func (s *service) Stats(ctx context.Context) (*StatsDTO, error) {
	all, err := s.invoices.Totals(ctx, nil)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthly, err := s.invoices.Totals(ctx, &monthStart)
	if err != nil {
		return nil, err
	}
	return &StatsDTO{
		TotalInvoices:   all.Count,
		MonthlyInvoices: monthly.Count,
		TotalRevenue:    all.Revenue.InexactFloat64(),
		MonthlyRevenue:  monthly.Revenue.InexactFloat64(),
	}, nil
}

// Repair runs synthesis for a settled order that never got its invoice. The
// buyer's cart is left alone since it may hold a newer purchase.
func (s *service) Repair(ctx context.Context, orderID string, actor *outbox.ActorRef) (*RepairResult, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.Invoiced() && !order.Status.IsSettled() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not paid").
			WithDetails(map[string]any{"status": order.Status})
	}
	input := SynthesisInput{
		OrderID:       order.ID,
		UserID:        order.UserID,
		PaymentMethod: DefaultPaymentMethod,
		Actor:         actor,
	}
	if order.PaymentMethod != nil {
		input.PaymentMethod = *order.PaymentMethod
	}
	if order.PaymentTransactionID != nil {
		input.PaymentTransactionID = *order.PaymentTransactionID
	}
	result, err := s.synthesize(ctx, order.ID, input)
	if err != nil {
		return nil, err
	}
	if result.Created && s.logg != nil {
		logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, order.ID), map[string]any{
			"event":          "invoice.repaired",
			"invoice_number": result.InvoiceNumber,
		})
		s.logg.Info(logCtx, "invoice repaired")
	}
	return &RepairResult{
		OrderID:       order.ID,
		InvoiceID:     result.InvoiceID,
		InvoiceNumber: result.InvoiceNumber,
		Created:       result.Created,
	}, nil
}

func (s *service) Demo() *View {
	return Demo(s.now(), s.synth.cfg.Rate(), s.synth.cfg.Notes)
}

func (s *service) synthesize(ctx context.Context, orderID string, input SynthesisInput) (*Result, error) {
	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx, locks.ScopeOrder, orderID)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil && s.logg != nil {
				s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "release order lock failed")
			}
		}()
	}
	var result *Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = s.synth.SynthesizeTx(ctx, tx, input)
		return err
	})
	return result, err
}

func (s *service) loadOrder(ctx context.Context, orderID string) (*models.Order, error) {
	if orderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, err
	}
	return order, nil
}

func (s *service) view(ctx context.Context, invoiceID string) (*View, error) {
	invoice, err := s.invoices.FindByID(ctx, invoiceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
		}
		return nil, err
	}
	return s.assemble(ctx, invoice)
}

func (s *service) assemble(ctx context.Context, invoice *models.Invoice) (*View, error) {
	view := &View{Invoice: FromModel(invoice)}
	order, err := s.orders.FindByID(ctx, invoice.OrderID)
	switch {
	case err == nil:
		view.Order = orders.FromModel(order)
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}
	user, err := s.users.FindByID(ctx, invoice.UserID)
	switch {
	case err == nil:
		view.Customer = customerFromUser(user)
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}
	return view, nil
}
