package settlement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/farmachelo/pharmacy-backend/internal/cards"
	"github.com/farmachelo/pharmacy-backend/internal/cart"
	"github.com/farmachelo/pharmacy-backend/internal/catalog"
	"github.com/farmachelo/pharmacy-backend/internal/invoices"
	"github.com/farmachelo/pharmacy-backend/internal/locks"
	"github.com/farmachelo/pharmacy-backend/internal/orders"
	"github.com/farmachelo/pharmacy-backend/internal/payments"
	"github.com/farmachelo/pharmacy-backend/internal/repo"
	"github.com/farmachelo/pharmacy-backend/internal/users"
	"github.com/farmachelo/pharmacy-backend/pkg/config"
	"github.com/farmachelo/pharmacy-backend/pkg/db/dbtest"
	"github.com/farmachelo/pharmacy-backend/pkg/db/models"
	"github.com/farmachelo/pharmacy-backend/pkg/enums"
	pkgerrors "github.com/farmachelo/pharmacy-backend/pkg/errors"
	"github.com/farmachelo/pharmacy-backend/pkg/outbox"
)

var engineNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

type failingSequence struct{}

func (failingSequence) Next(context.Context, *gorm.DB, string) (int64, error) {
	return 0, errors.New("sequence unavailable")
}

type recordingLocker struct {
	mu       sync.Mutex
	acquired []string
	released []string
}

func (l *recordingLocker) Lock(_ context.Context, scope, id string) (locks.Unlock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := scope + ":" + id
	l.acquired = append(l.acquired, key)
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.released = append(l.released, key)
		return nil
	}, nil
}

type engineFixture struct {
	engine      *Engine
	conn        *gorm.DB
	carts       *cart.Repository
	orders      *orders.Repository
	user        models.User
	paracetamol models.Product
	amoxicilina models.Product
}

type fixtureOption func(*EngineParams, *invoices.SynthesizerParams)

func withSequence(seq invoices.Sequence) fixtureOption {
	return func(_ *EngineParams, sp *invoices.SynthesizerParams) { sp.Sequence = seq }
}

func withLocker(l locks.KeyedLocker) fixtureOption {
	return func(ep *EngineParams, _ *invoices.SynthesizerParams) { ep.Locker = l }
}

func withEnforcement(on bool) fixtureOption {
	return func(ep *EngineParams, _ *invoices.SynthesizerParams) { ep.Config.EnforceCardValidation = on }
}

func newEngineFixture(t *testing.T, opts ...fixtureOption) engineFixture {
	t.Helper()
	client, conn := dbtest.Client(t)
	base := repo.NewBase(conn, 5*time.Second)
	orderRepo := orders.NewRepository(base)
	carts := cart.NewRepository(base)
	products := catalog.NewRepository(base)
	userRepo := users.NewRepository(base)
	outboxSvc := outbox.NewService(outbox.NewRepository(conn), nil)
	now := func() time.Time { return engineNow }

	synthParams := invoices.SynthesizerParams{
		Orders:   orderRepo,
		Invoices: invoices.NewRepository(base),
		Users:    userRepo,
		Products: products,
		Carts:    carts,
		Sequence: invoices.NewDBSequence(),
		Outbox:   outboxSvc,
		Config:   config.InvoiceConfig{TaxRate: "0.19", DueDays: 30, NumberWidth: 5},
		Currency: "COP",
		Now:      now,
	}
	engineParams := EngineParams{
		Tx:       client,
		Users:    userRepo,
		Carts:    carts,
		Pricer:   cart.NewPricer(carts, products),
		Orders:   orderRepo,
		Payments: payments.NewRepository(base),
		Outbox:   outboxSvc,
		Config:   config.PaymentsConfig{AmountTolerance: "0.01", Currency: "COP"},
		Now:      now,
	}
	for _, opt := range opts {
		opt(&engineParams, &synthParams)
	}

	synth, err := invoices.NewSynthesizer(synthParams)
	require.NoError(t, err)
	engineParams.Synthesizer = synth
	engine, err := NewEngine(engineParams)
	require.NoError(t, err)

	amox := dbtest.SeedProduct(t, conn, "Amoxicilina 250mg", decimal.NewFromInt(25000))
	require.NoError(t, conn.Model(&amox).Update("requires_prescription", true).Error)

	return engineFixture{
		engine:      engine,
		conn:        conn,
		carts:       carts,
		orders:      orderRepo,
		user:        dbtest.SeedUser(t, conn, "cliente@example.com"),
		paracetamol: dbtest.SeedProduct(t, conn, "Paracetamol 500mg", decimal.NewFromInt(15000)),
		amoxicilina: amox,
	}
}

func (f engineFixture) fillStandardCart(t *testing.T, userID uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	c, err := f.carts.LoadOrCreate(ctx, userID)
	require.NoError(t, err)
	swapped, err := f.carts.CompareAndSwap(ctx, c.ID, c.Version, []models.CartLine{
		{ProductID: f.paracetamol.ID, Quantity: 2},
		{ProductID: f.amoxicilina.ID, Quantity: 1},
	})
	require.NoError(t, err)
	require.True(t, swapped)
}

func validCard() cards.Card {
	return cards.Card{
		Number:         "4111 1111 1111 1111",
		Expiry:         "12/28",
		CVV:            "123",
		CardholderName: "Ana Pérez",
	}
}

func (f engineFixture) request(amount int64) Request {
	return Request{
		UserID:   f.user.ID,
		Card:     validCard(),
		Amount:   decimal.NewFromInt(amount),
		Currency: "COP",
	}
}

func TestSettleCapturesAndInvoices(t *testing.T) {
	f := newEngineFixture(t)
	f.fillStandardCart(t, f.user.ID)

	outcome, err := f.engine.Settle(context.Background(), f.request(55000))
	require.NoError(t, err)
	require.True(t, outcome.Success)
	assert.Regexp(t, `^TXN_20260315_120000_[0-9a-f]{8}$`, outcome.TransactionID)
	assert.Regexp(t, `^ORD_20260315_120000_[0-9a-f]{8}$`, outcome.InvoiceID)
	assert.Equal(t, "00001", outcome.InvoiceNumber)
	assert.False(t, outcome.Degraded())

	order, err := f.orders.FindByID(context.Background(), outcome.InvoiceID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPaid, order.Status)
	assert.True(t, decimal.NewFromInt(65450).Equal(order.TotalAmount))
	require.NotNil(t, order.PaymentTransactionID)
	assert.Equal(t, outcome.TransactionID, *order.PaymentTransactionID)
	assert.True(t, decimal.NewFromInt(55000).Equal(order.Subtotal.Decimal))
	assert.True(t, decimal.NewFromInt(10450).Equal(order.TaxAmount.Decimal))
	assert.True(t, order.TotalAmount.Equal(order.Subtotal.Decimal.Add(order.TaxAmount.Decimal).Sub(order.DiscountAmount.Decimal)))

	var invoice models.Invoice
	require.NoError(t, f.conn.First(&invoice, "id = ?", outcome.InvoiceID).Error)
	assert.True(t, decimal.NewFromInt(65450).Equal(invoice.TotalAmount))

	var txn models.PaymentTransaction
	require.NoError(t, f.conn.First(&txn, "transaction_id = ?", outcome.TransactionID).Error)
	assert.Equal(t, enums.CardBrandVisa, txn.CardBrand)
	assert.Equal(t, "1111", txn.CardLastFour)
	assert.Equal(t, f.user.Email, txn.CustomerEmail)
	assert.Equal(t, enums.PaymentStatusCompleted, txn.Status)

	c, err := f.carts.FindByUser(context.Background(), f.user.ID)
	require.NoError(t, err)
	assert.Empty(t, c.Items)

	var captured int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventSettlementCaptured).Count(&captured).Error)
	assert.Equal(t, int64(1), captured)
}

func TestSettleAmountTolerance(t *testing.T) {
	cases := []struct {
		name    string
		amount  string
		success bool
	}{
		{"exact", "55000", true},
		{"cent above", "55000.01", true},
		{"cent below", "54999.99", true},
		{"two cents above", "55000.02", false},
		{"far below", "50000", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newEngineFixture(t)
			f.fillStandardCart(t, f.user.ID)
			req := f.request(0)
			req.Amount = decimal.RequireFromString(tc.amount)

			outcome, err := f.engine.Settle(context.Background(), req)
			require.NoError(t, err)
			assert.Equal(t, tc.success, outcome.Success)
			if !tc.success {
				assert.Equal(t, pkgerrors.CodeAmountMismatch, outcome.ErrorCode)
				assert.Equal(t, messageAmountMismatch, outcome.Error)

				var count int64
				require.NoError(t, f.conn.Model(&models.Order{}).Count(&count).Error)
				assert.Zero(t, count)
			}
		})
	}
}

func TestSettleRejectsEmptyCart(t *testing.T) {
	f := newEngineFixture(t)

	outcome, err := f.engine.Settle(context.Background(), f.request(55000))
	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.Equal(t, pkgerrors.CodeValidation, outcome.ErrorCode)
}

func TestSettleCardValidation(t *testing.T) {
	t.Run("enforced", func(t *testing.T) {
		f := newEngineFixture(t, withEnforcement(true))
		f.fillStandardCart(t, f.user.ID)
		req := f.request(55000)
		req.Card.Number = "4111111111111112"

		outcome, err := f.engine.Settle(context.Background(), req)
		require.NoError(t, err)
		assert.False(t, outcome.Success)
		assert.Equal(t, cards.ReasonInvalidNumber, outcome.Error)

		var count int64
		require.NoError(t, f.conn.Model(&models.PaymentTransaction{}).Count(&count).Error)
		assert.Zero(t, count)
	})

	t.Run("expired card enforced", func(t *testing.T) {
		f := newEngineFixture(t, withEnforcement(true))
		f.fillStandardCart(t, f.user.ID)
		req := f.request(55000)
		req.Card.Expiry = "03/26"

		outcome, err := f.engine.Settle(context.Background(), req)
		require.NoError(t, err)
		assert.False(t, outcome.Success)
		assert.Equal(t, cards.ReasonInvalidExpiry, outcome.Error)
	})

	t.Run("not enforced", func(t *testing.T) {
		f := newEngineFixture(t)
		f.fillStandardCart(t, f.user.ID)
		req := f.request(55000)
		req.Card.Number = "0000"

		outcome, err := f.engine.Settle(context.Background(), req)
		require.NoError(t, err)
		assert.True(t, outcome.Success)
	})
}

func TestSettleSameOrderTwiceKeepsOneOrder(t *testing.T) {
	f := newEngineFixture(t)
	f.fillStandardCart(t, f.user.ID)
	req := f.request(55000)
	req.OrderID = "ORD_FIXED"

	first, err := f.engine.Settle(context.Background(), req)
	require.NoError(t, err)
	require.True(t, first.Success)

	f.fillStandardCart(t, f.user.ID)
	second, err := f.engine.Settle(context.Background(), req)
	require.NoError(t, err)
	require.True(t, second.Success)
	assert.Equal(t, first.InvoiceNumber, second.InvoiceNumber)
	assert.NotEqual(t, first.TransactionID, second.TransactionID)

	var orderCount, txnCount int64
	require.NoError(t, f.conn.Model(&models.Order{}).Count(&orderCount).Error)
	require.NoError(t, f.conn.Model(&models.PaymentTransaction{}).Where("order_id = ?", "ORD_FIXED").Count(&txnCount).Error)
	assert.Equal(t, int64(1), orderCount)
	assert.Equal(t, int64(2), txnCount)

	order, err := f.orders.FindByID(context.Background(), "ORD_FIXED")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPaid, order.Status)
	assert.Equal(t, second.TransactionID, *order.PaymentTransactionID)
	assert.True(t, decimal.NewFromInt(65450).Equal(order.TotalAmount))
}

func TestSettleForeignOrderIsNotFound(t *testing.T) {
	f := newEngineFixture(t)
	other := dbtest.SeedUser(t, f.conn, "otro@example.com")
	f.fillStandardCart(t, other.ID)
	req := f.request(55000)
	req.UserID = other.ID
	req.OrderID = "ORD_OTHER"
	_, err := f.engine.Settle(context.Background(), req)
	require.NoError(t, err)

	f.fillStandardCart(t, f.user.ID)
	hijack := f.request(55000)
	hijack.OrderID = "ORD_OTHER"
	_, err = f.engine.Settle(context.Background(), hijack)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestSettleDegradesWhenInvoicingFails(t *testing.T) {
	f := newEngineFixture(t, withSequence(failingSequence{}))
	f.fillStandardCart(t, f.user.ID)

	outcome, err := f.engine.Settle(context.Background(), f.request(55000))
	require.NoError(t, err)
	require.True(t, outcome.Success)
	assert.True(t, outcome.Degraded())
	assert.Equal(t, DegradedInvoiceNumber, outcome.InvoiceNumber)
	assert.NotEmpty(t, outcome.TransactionID)

	order, err := f.orders.FindByID(context.Background(), outcome.InvoiceID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPaid, order.Status)
	assert.False(t, order.Invoiced())

	var failures int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventInvoiceSynthesisFailed).Count(&failures).Error)
	assert.Equal(t, int64(1), failures)

	c, err := f.carts.FindByUser(context.Background(), f.user.ID)
	require.NoError(t, err)
	assert.Empty(t, c.Items)
}

func TestSettleConcurrentUsersGetUniqueInvoiceNumbers(t *testing.T) {
	f := newEngineFixture(t)
	const buyers = 6
	requests := make([]Request, buyers)
	for i := range requests {
		u := dbtest.SeedUser(t, f.conn, fmt.Sprintf("comprador%d@example.com", i))
		f.fillStandardCart(t, u.ID)
		requests[i] = Request{UserID: u.ID, Card: validCard(), Amount: decimal.NewFromInt(55000)}
	}

	var wg sync.WaitGroup
	outcomes := make([]*Outcome, buyers)
	errs := make([]error, buyers)
	for i := range requests {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = f.engine.Settle(context.Background(), requests[i])
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for i := range outcomes {
		require.NoError(t, errs[i])
		require.True(t, outcomes[i].Success)
		require.False(t, outcomes[i].Degraded())
		assert.False(t, seen[outcomes[i].InvoiceNumber], "duplicate %s", outcomes[i].InvoiceNumber)
		seen[outcomes[i].InvoiceNumber] = true
	}
	assert.Len(t, seen, buyers)
}

func TestSettleLocksUserThenOrder(t *testing.T) {
	locker := &recordingLocker{}
	f := newEngineFixture(t, withLocker(locker))
	f.fillStandardCart(t, f.user.ID)
	req := f.request(55000)
	req.OrderID = "ORD_LOCKED"

	_, err := f.engine.Settle(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []string{"user:" + f.user.ID.String(), "order:ORD_LOCKED"}, locker.acquired)
	assert.Equal(t, []string{"order:ORD_LOCKED", "user:" + f.user.ID.String()}, locker.released)
}

func TestOutcomeLabel(t *testing.T) {
	cases := []struct {
		outcome *Outcome
		err     error
		want    string
	}{
		{nil, errors.New("boom"), "error"},
		{&Outcome{Success: true, InvoiceNumber: "00001"}, nil, "success"},
		{&Outcome{Success: true, InvoiceNumber: DegradedInvoiceNumber}, nil, "degraded"},
		{rejected(pkgerrors.CodeAmountMismatch, messageAmountMismatch), nil, "amount_mismatch"},
		{rejected(pkgerrors.CodeValidation, cards.ReasonInvalidCVV), nil, "card_rejected"},
	}
	for _, tc := range cases {
		if got := outcomeLabel(tc.outcome, tc.err); got != tc.want {
			t.Fatalf("outcomeLabel() = %q, want %q", got, tc.want)
		}
	}
}
