package main

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/farmachelo/pharmacy-backend/pkg/logger"
)

type fakeConsumer struct {
	name string
	err  error
}

func (f *fakeConsumer) Name() string { return f.name }

func (f *fakeConsumer) Run(ctx context.Context) error {
	if f.err != nil {
		return f.err
	}
	<-ctx.Done()
	return ctx.Err()
}

type fakeFlusher struct {
	calls atomic.Int32
}

func (f *fakeFlusher) Flush(context.Context) error {
	f.calls.Add(1)
	return nil
}

type fakePinger struct {
	err error
}

func (f fakePinger) Ping(context.Context) error { return f.err }

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "worker-test", Output: io.Discard})
}

func TestRunReturnsConsumerFailure(t *testing.T) {
	flush := &fakeFlusher{}
	svc, err := NewService(ServiceParams{
		Logger:    testLogger(),
		Consumers: []consumer{&fakeConsumer{name: "analytics"}, &fakeConsumer{name: "invoice-repair", err: errors.New("receive failed")}},
		Flusher:   flush,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	err = svc.Run(context.Background())
	if err == nil || err.Error() != "consumer invoice-repair: receive failed" {
		t.Fatalf("unexpected error: %v", err)
	}
	if flush.calls.Load() == 0 {
		t.Fatalf("expected buffered rows flushed on shutdown")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	flush := &fakeFlusher{}
	svc, err := NewService(ServiceParams{
		Logger:    testLogger(),
		Consumers: []consumer{&fakeConsumer{name: "analytics"}},
		Flusher:   flush,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	svc.interval = 5 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()
	if err := svc.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if flush.calls.Load() < 2 {
		t.Fatalf("expected periodic flushes, got %d", flush.calls.Load())
	}
}

func TestRunFailsWhenDependencyDown(t *testing.T) {
	svc, err := NewService(ServiceParams{
		Logger:       testLogger(),
		Dependencies: map[string]pinger{"redis": fakePinger{err: errors.New("refused")}},
		Consumers:    []consumer{&fakeConsumer{name: "analytics"}},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := svc.Run(context.Background()); err == nil {
		t.Fatalf("expected readiness failure")
	}
}

func TestReadinessReportsEveryDependency(t *testing.T) {
	svc, err := NewService(ServiceParams{
		Logger: testLogger(),
		Dependencies: map[string]pinger{
			"redis":    fakePinger{err: errors.New("refused")},
			"bigquery": fakePinger{err: errors.New("403")},
			"database": fakePinger{},
		},
		Consumers: []consumer{&fakeConsumer{name: "analytics"}},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	err = svc.Run(context.Background())
	for _, want := range []string{"redis: refused", "bigquery: 403"} {
		if err == nil || !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
	if strings.Contains(err.Error(), "database") {
		t.Fatalf("healthy dependency reported: %v", err)
	}
}

func TestNewServiceRequiresConsumers(t *testing.T) {
	if _, err := NewService(ServiceParams{Logger: testLogger()}); err == nil {
		t.Fatalf("expected error without consumers")
	}
}
