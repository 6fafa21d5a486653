package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/farmachelo/pharmacy-backend/internal/repair"
	"github.com/farmachelo/pharmacy-backend/pkg/logger"
)

type fakeSweeper struct {
	summary repair.Summary
	err     error
	runs    int
}

func (f *fakeSweeper) Sweep(context.Context) (repair.Summary, error) {
	f.runs++
	return f.summary, f.err
}

func TestInvoiceRepairJob(t *testing.T) {
	logg := quietLogger()
	sweeper := &fakeSweeper{summary: repair.Summary{Scanned: 2, Repaired: 2}}
	job, err := NewInvoiceRepairJob(logg, sweeper)
	if err != nil {
		t.Fatalf("NewInvoiceRepairJob: %v", err)
	}
	if job.Name() != "invoice-repair" {
		t.Fatalf("unexpected name %s", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	sweeper.err = errors.New("order ORD_1: boom")
	sweeper.summary = repair.Summary{Scanned: 1, Failed: 1}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected sweep error to surface")
	}
	if sweeper.runs != 2 {
		t.Fatalf("expected two sweeps, got %d", sweeper.runs)
	}
}

func TestNewInvoiceRepairJobValidates(t *testing.T) {
	if _, err := NewInvoiceRepairJob(nil, &fakeSweeper{}); err == nil {
		t.Fatal("expected logger error")
	}
	if _, err := NewInvoiceRepairJob(logger.New(logger.Options{}), nil); err == nil {
		t.Fatal("expected sweeper error")
	}
}
