package repair

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/farmachelo/pharmacy-backend/pkg/config"
	"github.com/farmachelo/pharmacy-backend/pkg/db/models"
	"github.com/farmachelo/pharmacy-backend/pkg/logger"
)

const (
	defaultBatchSize = 25
	defaultMinAge    = time.Minute
)

type uninvoicedReader interface {
	ListUninvoicedSettled(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

// Summary reports one sweep.
type Summary struct {
	Scanned  int
	Repaired int
	Failed   int
}

// Sweeper finds settled orders that are still missing an invoice number and
// re-runs synthesis for each. Orders younger than MinAge are left for the
// event-driven path.
type Sweeper struct {
	orders    uninvoicedReader
	repairer  repairer
	logg      *logger.Logger
	batchSize int
	minAge    time.Duration
	now       func() time.Time
}

func NewSweeper(orders uninvoicedReader, r repairer, cfg config.RepairConfig, logg *logger.Logger) (*Sweeper, error) {
	if orders == nil {
		return nil, errors.New("orders reader required")
	}
	if r == nil {
		return nil, errors.New("invoice repairer required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	minAge := cfg.MinAge
	if minAge <= 0 {
		minAge = defaultMinAge
	}
	return &Sweeper{
		orders:    orders,
		repairer:  r,
		logg:      logg,
		batchSize: batch,
		minAge:    minAge,
		now:       time.Now,
	}, nil
}

// Sweep repairs one batch. Per-order failures are combined into the returned
// error; the rest of the batch still runs.
func (s *Sweeper) Sweep(ctx context.Context) (Summary, error) {
	cutoff := s.now().UTC().Add(-s.minAge)
	pending, err := s.orders.ListUninvoicedSettled(ctx, cutoff, s.batchSize)
	if err != nil {
		return Summary{}, fmt.Errorf("list uninvoiced orders: %w", err)
	}

	summary := Summary{Scanned: len(pending)}
	var errs error
	for _, order := range pending {
		if err := ctx.Err(); err != nil {
			return summary, multierr.Append(errs, err)
		}
		orderCtx := s.logg.WithOrderID(ctx, order.ID)
		if _, err := s.repairer.Repair(orderCtx, order.ID, nil); err != nil {
			summary.Failed++
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", order.ID, err))
			continue
		}
		summary.Repaired++
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"event":    "invoice.repair_sweep",
		"scanned":  summary.Scanned,
		"repaired": summary.Repaired,
		"failed":   summary.Failed,
	})
	s.logg.Info(logCtx, "invoice repair sweep complete")
	return summary, errs
}
