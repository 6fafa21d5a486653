package registry

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmachelo/pharmacy-backend/pkg/config"
	"github.com/farmachelo/pharmacy-backend/pkg/db/models"
	"github.com/farmachelo/pharmacy-backend/pkg/enums"
	"github.com/farmachelo/pharmacy-backend/pkg/outbox"
	"github.com/farmachelo/pharmacy-backend/pkg/outbox/payloads"
)

func envelopeOf(t *testing.T, data any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	body, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC),
		Data:       raw,
	})
	require.NoError(t, err)
	return body
}

func TestCheckDecodesKnownRows(t *testing.T) {
	reg, err := New(config.PubSubConfig{SettlementTopic: " settlement-topic "})
	require.NoError(t, err)
	assert.Equal(t, "settlement-topic", reg.Topic())

	msg, err := reg.Check(models.OutboxEvent{
		EventType:     enums.EventSettlementCaptured,
		AggregateType: enums.AggregateOrder,
		AggregateID:   "ORD_20250615_120000_abcdef01",
		Payload: envelopeOf(t, payloads.SettlementCapturedEvent{
			OrderID:       "ORD_20250615_120000_abcdef01",
			TransactionID: "TXN_20250615_120000_abcdef01",
			Amount:        "65450",
			Currency:      "COP",
		}),
	})
	require.NoError(t, err)
	assert.Equal(t, "settlement-topic", msg.Topic)
	assert.NotEmpty(t, msg.Envelope.EventID)
	captured, ok := msg.Payload.(*payloads.SettlementCapturedEvent)
	require.True(t, ok, "payload type %T", msg.Payload)
	assert.Equal(t, "TXN_20250615_120000_abcdef01", captured.TransactionID)
}

func TestCheckRejectsPoisonRows(t *testing.T) {
	reg, err := New(config.PubSubConfig{SettlementTopic: "settlement-topic"})
	require.NoError(t, err)
	valid := envelopeOf(t, payloads.InvoiceIssuedEvent{InvoiceID: "ORD_1"})

	cases := map[string]models.OutboxEvent{
		"unknown type":       {EventType: "order.teleported", AggregateType: enums.AggregateOrder, AggregateID: "ORD_1", Payload: valid},
		"aggregate mismatch": {EventType: enums.EventInvoiceIssued, AggregateType: enums.AggregateOrder, AggregateID: "ORD_1", Payload: valid},
		"missing aggregate":  {EventType: enums.EventInvoiceIssued, AggregateType: enums.AggregateInvoice, Payload: valid},
		"bad envelope":       {EventType: enums.EventInvoiceIssued, AggregateType: enums.AggregateInvoice, AggregateID: "ORD_1", Payload: json.RawMessage(`"nope"`)},
		"null data":          {EventType: enums.EventInvoiceIssued, AggregateType: enums.AggregateInvoice, AggregateID: "ORD_1", Payload: envelopeOf(t, nil)},
	}
	for name, row := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Check(row)
			assert.True(t, IsPoison(err), "expected poison error, got %v", err)
		})
	}
}

func TestNewRequiresTopic(t *testing.T) {
	_, err := New(config.PubSubConfig{SettlementTopic: "  "})
	assert.Error(t, err)
}

func TestEveryEventTypeHasRoute(t *testing.T) {
	for _, eventType := range []enums.OutboxEventType{
		enums.EventSettlementCaptured,
		enums.EventInvoiceIssued,
		enums.EventInvoiceSynthesisFailed,
		enums.EventOrderStatusChanged,
	} {
		_, ok := routes[eventType]
		assert.True(t, ok, "no route for %s", eventType)
	}
}
