// Package writer batches settlement analytics rows into BigQuery.
package writer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	cbigquery "cloud.google.com/go/bigquery"

	"github.com/farmachelo/pharmacy-backend/internal/analytics/types"
)

// Inserter streams rows into a table.
type Inserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// Config tunes batching and retries. Zero values pick the defaults.
type Config struct {
	Table    string
	MaxBatch int
	Attempts int
	Backoff  time.Duration
}

// Writer buffers rows until MaxBatch is reached or Flush is called. Every row
// carries its event id as the BigQuery insert id, so a redelivered event does
// not produce a second row.
type Writer struct {
	inserter Inserter
	table    string
	maxBatch int
	attempts int
	backoff  time.Duration

	mu      sync.Mutex
	pending []types.SettlementEventRow
}

func New(inserter Inserter, cfg Config) (*Writer, error) {
	if inserter == nil {
		return nil, errors.New("bigquery inserter required")
	}
	table := strings.TrimSpace(cfg.Table)
	if table == "" {
		return nil, errors.New("settlement table is required")
	}
	w := &Writer{
		inserter: inserter,
		table:    table,
		maxBatch: max(cfg.MaxBatch, 1),
		attempts: cfg.Attempts,
		backoff:  cfg.Backoff,
	}
	if w.attempts <= 0 {
		w.attempts = 3
	}
	if w.backoff <= 0 {
		w.backoff = 250 * time.Millisecond
	}
	return w, nil
}

// InsertSettlement queues row and flushes when the batch is full. A failed
// flush keeps the batch for the next attempt.
func (w *Writer) InsertSettlement(ctx context.Context, row types.SettlementEventRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = append(w.pending, row)
	if len(w.pending) < w.maxBatch {
		return nil
	}
	return w.flush(ctx)
}

// Flush writes whatever is queued.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flush(ctx)
}

func (w *Writer) flush(ctx context.Context) error {
	if len(w.pending) == 0 {
		return nil
	}
	savers := make([]any, len(w.pending))
	for i := range w.pending {
		savers[i] = &cbigquery.StructSaver{Struct: &w.pending[i], InsertID: w.pending[i].EventID}
	}
	if err := w.put(ctx, savers); err != nil {
		return fmt.Errorf("insert %d %s rows: %w", len(savers), w.table, err)
	}
	w.pending = w.pending[:0]
	return nil
}

func (w *Writer) put(ctx context.Context, rows []any) error {
	wait := w.backoff
	for attempt := 1; ; attempt++ {
		err := w.inserter.InsertRows(ctx, w.table, rows)
		if err == nil || attempt >= w.attempts || !Transient(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait = min(wait*2, 8*w.backoff)
	}
}

// JSONColumn renders v for a BigQuery JSON column; raw JSON passes through.
func JSONColumn(v any) (cbigquery.NullJSON, error) {
	var raw []byte
	switch value := v.(type) {
	case nil:
		return cbigquery.NullJSON{}, nil
	case json.RawMessage:
		raw = value
	case []byte:
		raw = value
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return cbigquery.NullJSON{}, fmt.Errorf("encode json column: %w", err)
		}
		raw = encoded
	}
	if len(raw) == 0 {
		return cbigquery.NullJSON{}, nil
	}
	return cbigquery.NullJSON{Valid: true, JSONVal: string(raw)}, nil
}
