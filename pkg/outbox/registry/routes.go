// Package registry routes outbox rows to their topic and rejects rows that
// can never be published.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/farmachelo/pharmacy-backend/pkg/config"
	"github.com/farmachelo/pharmacy-backend/pkg/db/models"
	"github.com/farmachelo/pharmacy-backend/pkg/enums"
	"github.com/farmachelo/pharmacy-backend/pkg/outbox"
	"github.com/farmachelo/pharmacy-backend/pkg/outbox/payloads"
)

// ErrPoison marks rows that retrying cannot fix.
var ErrPoison = errors.New("unpublishable outbox row")

type route struct {
	aggregate enums.OutboxAggregateType
	payload   func() any
}

var routes = map[enums.OutboxEventType]route{
	enums.EventSettlementCaptured: {
		aggregate: enums.AggregateOrder,
		payload:   func() any { return &payloads.SettlementCapturedEvent{} },
	},
	enums.EventInvoiceIssued: {
		aggregate: enums.AggregateInvoice,
		payload:   func() any { return &payloads.InvoiceIssuedEvent{} },
	},
	enums.EventInvoiceSynthesisFailed: {
		aggregate: enums.AggregateOrder,
		payload:   func() any { return &payloads.InvoiceSynthesisFailedEvent{} },
	},
	enums.EventOrderStatusChanged: {
		aggregate: enums.AggregateOrder,
		payload:   func() any { return &payloads.OrderStatusChangedEvent{} },
	},
}

// Message is a checked row and the topic it goes to.
type Message struct {
	Topic    string
	Envelope outbox.PayloadEnvelope
	Payload  any
}

// Registry sends every settlement-side event to one topic; consumers filter
// on the event_type attribute.
type Registry struct {
	topic string
}

func New(cfg config.PubSubConfig) (*Registry, error) {
	topic := strings.TrimSpace(cfg.SettlementTopic)
	if topic == "" {
		return nil, errors.New("settlement topic is required")
	}
	return &Registry{topic: topic}, nil
}

func (r *Registry) Topic() string { return r.topic }

// Check decodes the row's envelope and typed payload. Every failure wraps ErrPoison.
func (r *Registry) Check(row models.OutboxEvent) (Message, error) {
	rt, ok := routes[row.EventType]
	switch {
	case !ok:
		return Message{}, poison("unsupported event type %s", row.EventType)
	case rt.aggregate != row.AggregateType:
		return Message{}, poison("%s belongs to %s aggregates, row says %s", row.EventType, rt.aggregate, row.AggregateType)
	case strings.TrimSpace(row.AggregateID) == "":
		return Message{}, poison("%s row has no aggregate id", row.EventType)
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(row.Payload, &envelope); err != nil {
		return Message{}, poison("envelope: %v", err)
	}
	if data := bytes.TrimSpace(envelope.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return Message{}, poison("%s envelope carries no data", row.EventType)
	}
	payload := rt.payload()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return Message{}, poison("%s payload: %v", row.EventType, err)
	}
	return Message{Topic: r.topic, Envelope: envelope, Payload: payload}, nil
}

// IsPoison reports whether err came from Check.
func IsPoison(err error) bool {
	return errors.Is(err, ErrPoison)
}

func poison(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPoison, fmt.Sprintf(format, args...))
}
