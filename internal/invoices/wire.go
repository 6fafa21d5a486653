package invoices

import (
	"context"
	"time"

	"github.com/farmachelo/pharmacy-backend/internal/cart"
	"github.com/farmachelo/pharmacy-backend/internal/catalog"
	"github.com/farmachelo/pharmacy-backend/internal/locks"
	"github.com/farmachelo/pharmacy-backend/internal/orders"
	"github.com/farmachelo/pharmacy-backend/internal/payments"
	"github.com/farmachelo/pharmacy-backend/internal/repo"
	"github.com/farmachelo/pharmacy-backend/internal/users"
	"github.com/farmachelo/pharmacy-backend/pkg/config"
	"github.com/farmachelo/pharmacy-backend/pkg/db"
	"github.com/farmachelo/pharmacy-backend/pkg/logger"
	"github.com/farmachelo/pharmacy-backend/pkg/metrics"
	"github.com/farmachelo/pharmacy-backend/pkg/outbox"
)

// RedisBackend is the Redis surface the invoice stack needs for numbering
// and per-order locks.
type RedisBackend interface {
	counterStore
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	DelIfValue(ctx context.Context, key, value string) (bool, error)
	LockKey(scope, id string) string
}

// Stack bundles the invoice components shared by the API and the workers.
type Stack struct {
	Synthesizer *Synthesizer
	Service     Service
	Orders      *orders.Repository
	Locker      locks.KeyedLocker
}

// NewStack wires repositories, the number sequence, the keyed locker, the
// synthesizer and the invoice service from configuration.
func NewStack(cfg *config.Config, client *db.Client, store RedisBackend, outboxSvc *outbox.Service, m *metrics.SettlementMetrics, logg *logger.Logger) (*Stack, error) {
	base := repo.NewBase(client.DB(), cfg.DB.QueryTimeout)
	orderRepo := orders.NewRepository(base)
	invoiceRepo := NewRepository(base)
	userRepo := users.NewRepository(base)

	sequence, err := NewSequence(cfg.Invoices, store)
	if err != nil {
		return nil, err
	}
	locker, err := locks.NewRedisKeyedLocker(store, store, locks.KeyedOptions{
		TTL:          cfg.Locks.TTL,
		WaitTimeout:  cfg.Locks.WaitTimeout,
		PollInterval: cfg.Locks.PollInterval,
	})
	if err != nil {
		return nil, err
	}

	synth, err := NewSynthesizer(SynthesizerParams{
		Orders:   orderRepo,
		Invoices: invoiceRepo,
		Users:    userRepo,
		Products: catalog.NewRepository(base),
		Carts:    cart.NewRepository(base),
		Sequence: sequence,
		Outbox:   outboxSvc,
		Config:   cfg.Invoices,
		Currency: cfg.Payments.Currency,
		Metrics:  m,
	})
	if err != nil {
		return nil, err
	}

	svc, err := NewService(ServiceParams{
		Synthesizer: synth,
		Invoices:    invoiceRepo,
		Orders:      orderRepo,
		Users:       userRepo,
		Payments:    payments.NewRepository(base),
		Tx:          client,
		Locker:      locker,
		Logger:      logg,
	})
	if err != nil {
		return nil, err
	}
	return &Stack{Synthesizer: synth, Service: svc, Orders: orderRepo, Locker: locker}, nil
}
