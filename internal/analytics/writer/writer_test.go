package writer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/farmachelo/pharmacy-backend/internal/analytics/types"
)

type scriptedInserter struct {
	mu      sync.Mutex
	replies []error
	batches [][]any
}

func (s *scriptedInserter) InsertRows(_ context.Context, table string, rows []any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, rows)
	if len(s.replies) == 0 {
		return nil
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return reply
}

func newTestWriter(t *testing.T, maxBatch int, replies ...error) (*Writer, *scriptedInserter) {
	t.Helper()
	ins := &scriptedInserter{replies: replies}
	w, err := New(ins, Config{Table: "settlement_events", MaxBatch: maxBatch, Backoff: time.Millisecond})
	require.NoError(t, err)
	return w, ins
}

func TestNewValidates(t *testing.T) {
	_, err := New(nil, Config{Table: "settlement_events"})
	assert.Error(t, err)
	_, err = New(&scriptedInserter{}, Config{Table: " "})
	assert.Error(t, err)
}

func TestInsertRetriesTransientFailures(t *testing.T) {
	w, ins := newTestWriter(t, 1, &googleapi.Error{Code: http.StatusServiceUnavailable})

	require.NoError(t, w.InsertSettlement(context.Background(), types.SettlementEventRow{EventID: "evt-1"}))
	require.Len(t, ins.batches, 2)
	saver, ok := ins.batches[1][0].(*cbigquery.StructSaver)
	require.True(t, ok, "row type %T", ins.batches[1][0])
	assert.Equal(t, "evt-1", saver.InsertID)
	assert.Empty(t, w.pending)
}

func TestInsertKeepsBatchOnPermanentFailure(t *testing.T) {
	w, ins := newTestWriter(t, 1, &googleapi.Error{Code: http.StatusBadRequest})

	err := w.InsertSettlement(context.Background(), types.SettlementEventRow{EventID: "evt-1"})
	require.Error(t, err)
	assert.Len(t, ins.batches, 1)
	assert.Len(t, w.pending, 1)

	require.NoError(t, w.Flush(context.Background()))
	assert.Empty(t, w.pending)
}

func TestInsertGivesUpAfterAttempts(t *testing.T) {
	busy := &googleapi.Error{Code: http.StatusTooManyRequests}
	w, ins := newTestWriter(t, 1, busy, busy, busy, busy)

	err := w.InsertSettlement(context.Background(), types.SettlementEventRow{EventID: "evt-1"})
	require.Error(t, err)
	assert.Len(t, ins.batches, 3)
}

func TestBatchingAndFlush(t *testing.T) {
	w, ins := newTestWriter(t, 2)
	ctx := context.Background()

	require.NoError(t, w.InsertSettlement(ctx, types.SettlementEventRow{EventID: "1"}))
	assert.Empty(t, ins.batches)
	require.NoError(t, w.InsertSettlement(ctx, types.SettlementEventRow{EventID: "2"}))
	require.Len(t, ins.batches, 1)
	assert.Len(t, ins.batches[0], 2)

	require.NoError(t, w.InsertSettlement(ctx, types.SettlementEventRow{EventID: "3"}))
	require.NoError(t, w.Flush(ctx))
	require.NoError(t, w.Flush(ctx))
	assert.Len(t, ins.batches, 2)
}

func TestTransient(t *testing.T) {
	unavailable := status.Error(codes.Unavailable, "down")
	invalid := &googleapi.Error{Code: http.StatusBadRequest}
	cases := map[string]struct {
		err  error
		want bool
	}{
		"nil":              {nil, false},
		"plain":            {errors.New("plain"), false},
		"rate limited":     {&googleapi.Error{Code: http.StatusTooManyRequests}, true},
		"not found":        {&googleapi.Error{Code: http.StatusNotFound}, false},
		"grpc unavailable": {unavailable, true},
		"grpc invalid":     {status.Error(codes.InvalidArgument, "bad"), false},
		"all rows busy": {cbigquery.PutMultiError{
			{Errors: cbigquery.MultiError{unavailable}},
			{Errors: cbigquery.MultiError{&googleapi.Error{Code: http.StatusBadGateway}}},
		}, true},
		"one row invalid": {cbigquery.PutMultiError{
			{Errors: cbigquery.MultiError{unavailable}},
			{Errors: cbigquery.MultiError{invalid}},
		}, false},
		"empty multi": {cbigquery.MultiError{}, false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, Transient(tc.err))
		})
	}
}

func TestJSONColumn(t *testing.T) {
	col, err := JSONColumn(map[string]any{"order_id": "ORD_1"})
	require.NoError(t, err)
	assert.True(t, col.Valid)
	assert.JSONEq(t, `{"order_id":"ORD_1"}`, col.JSONVal)

	col, err = JSONColumn(nil)
	require.NoError(t, err)
	assert.False(t, col.Valid)

	raw := json.RawMessage(`{"order_id":"ORD_2"}`)
	col, err = JSONColumn(raw)
	require.NoError(t, err)
	assert.Equal(t, string(raw), col.JSONVal)

	col, err = JSONColumn([]byte{})
	require.NoError(t, err)
	assert.False(t, col.Valid)
}
