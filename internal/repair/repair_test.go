package repair

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/farmachelo/pharmacy-backend/internal/consumers"
	"github.com/farmachelo/pharmacy-backend/internal/invoices"
	"github.com/farmachelo/pharmacy-backend/pkg/config"
	"github.com/farmachelo/pharmacy-backend/pkg/db/models"
	"github.com/farmachelo/pharmacy-backend/pkg/enums"
	pkgerrors "github.com/farmachelo/pharmacy-backend/pkg/errors"
	"github.com/farmachelo/pharmacy-backend/pkg/logger"
	"github.com/farmachelo/pharmacy-backend/pkg/outbox"
	"github.com/farmachelo/pharmacy-backend/pkg/outbox/payloads"
)

type fakeRepairer struct {
	mu     sync.Mutex
	calls  []string
	errFor map[string]error
}

func (f *fakeRepairer) Repair(_ context.Context, orderID string, _ *outbox.ActorRef) (*invoices.RepairResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, orderID)
	if err := f.errFor[orderID]; err != nil {
		return nil, err
	}
	return &invoices.RepairResult{OrderID: orderID, InvoiceID: orderID, InvoiceNumber: "00001", Created: true}, nil
}

type fakeReader struct {
	orders []models.Order
	cutoff time.Time
	limit  int
	err    error
}

func (f *fakeReader) ListUninvoicedSettled(_ context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	f.cutoff = cutoff
	f.limit = limit
	return f.orders, f.err
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "repair-test"})
}

func failedEnvelope(t *testing.T, orderID string) consumers.Envelope {
	t.Helper()
	data, err := json.Marshal(payloads.InvoiceSynthesisFailedEvent{OrderID: orderID, Reason: "boom"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return consumers.Envelope{
		EventID:       "evt-1",
		EventType:     enums.EventInvoiceSynthesisFailed,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Payload:       data,
	}
}

func TestHandlerRepairsOrder(t *testing.T) {
	rep := &fakeRepairer{}
	h, err := NewHandler(rep, testLogger())
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	if err := h.Handle(context.Background(), failedEnvelope(t, "ORD_1")); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(rep.calls) != 1 || rep.calls[0] != "ORD_1" {
		t.Fatalf("unexpected repair calls %v", rep.calls)
	}
}

func TestHandlerIgnoresOtherEvents(t *testing.T) {
	h, _ := NewHandler(&fakeRepairer{}, testLogger())
	err := h.Handle(context.Background(), consumers.Envelope{EventType: enums.EventInvoiceIssued})
	if !errors.Is(err, consumers.ErrUnsupportedEvent) {
		t.Fatalf("expected unsupported, got %v", err)
	}
}

func TestHandlerRetryClassification(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{"not found acks", pkgerrors.New(pkgerrors.CodeNotFound, "order not found"), false},
		{"unpaid acks", pkgerrors.New(pkgerrors.CodeStateConflict, "order is not paid"), false},
		{"store failure retries", pkgerrors.New(pkgerrors.CodeDependency, "db down"), true},
		{"plain error retries", errors.New("boom"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rep := &fakeRepairer{errFor: map[string]error{"ORD_1": tc.err}}
			h, _ := NewHandler(rep, testLogger())
			err := h.Handle(context.Background(), failedEnvelope(t, "ORD_1"))
			if (err != nil) != tc.wantErr {
				t.Fatalf("Handle error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestSweepRepairsBatchAndCombinesFailures(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	reader := &fakeReader{orders: []models.Order{{ID: "ORD_1"}, {ID: "ORD_2"}, {ID: "ORD_3"}}}
	rep := &fakeRepairer{errFor: map[string]error{"ORD_2": errors.New("sequence unavailable")}}
	sweeper, err := NewSweeper(reader, rep, config.RepairConfig{BatchSize: 10, MinAge: 2 * time.Minute}, testLogger())
	if err != nil {
		t.Fatalf("NewSweeper: %v", err)
	}
	sweeper.now = func() time.Time { return now }

	summary, err := sweeper.Sweep(context.Background())
	if err == nil {
		t.Fatal("expected combined error")
	}
	if summary.Scanned != 3 || summary.Repaired != 2 || summary.Failed != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if len(rep.calls) != 3 {
		t.Fatalf("expected every order attempted, got %v", rep.calls)
	}
	if !reader.cutoff.Equal(now.Add(-2*time.Minute)) || reader.limit != 10 {
		t.Fatalf("unexpected query cutoff %v limit %d", reader.cutoff, reader.limit)
	}
}

func TestSweepDefaultsAndListError(t *testing.T) {
	reader := &fakeReader{err: errors.New("db down")}
	sweeper, err := NewSweeper(reader, &fakeRepairer{}, config.RepairConfig{}, testLogger())
	if err != nil {
		t.Fatalf("NewSweeper: %v", err)
	}
	if sweeper.batchSize != defaultBatchSize || sweeper.minAge != defaultMinAge {
		t.Fatalf("unexpected defaults %d %v", sweeper.batchSize, sweeper.minAge)
	}
	if _, err := sweeper.Sweep(context.Background()); err == nil {
		t.Fatal("expected list error")
	}
}
