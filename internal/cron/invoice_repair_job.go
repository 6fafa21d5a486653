package cron

import (
	"context"
	"fmt"

	"github.com/farmachelo/pharmacy-backend/internal/repair"
	"github.com/farmachelo/pharmacy-backend/pkg/logger"
)

type invoiceSweeper interface {
	Sweep(ctx context.Context) (repair.Summary, error)
}

// NewInvoiceRepairJob wraps the repair sweep as a cron job.
func NewInvoiceRepairJob(logg *logger.Logger, sweeper invoiceSweeper) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if sweeper == nil {
		return nil, fmt.Errorf("invoice sweeper required")
	}
	return &invoiceRepairJob{logg: logg, sweeper: sweeper}, nil
}

type invoiceRepairJob struct {
	logg    *logger.Logger
	sweeper invoiceSweeper
}

func (j *invoiceRepairJob) Name() string { return "invoice-repair" }

func (j *invoiceRepairJob) Run(ctx context.Context) error {
	summary, err := j.sweeper.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("invoice repair: %d of %d failed: %w", summary.Failed, summary.Scanned, err)
	}
	return nil
}
