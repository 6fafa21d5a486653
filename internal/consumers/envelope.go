// Package consumers runs Pub/Sub subscriptions over outbox-relayed events
// with per-consumer Redis idempotency.
package consumers

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/farmachelo/pharmacy-backend/pkg/enums"
)

// ErrUnsupportedEvent tells the subscriber to ack a message its handler does
// not care about.
var ErrUnsupportedEvent = errors.New("unsupported event type")

// Envelope is a decoded settlement event as delivered to handlers.
type Envelope struct {
	EventID       string                    `json:"event_id"`
	EventType     enums.OutboxEventType     `json:"event_type"`
	AggregateType enums.OutboxAggregateType `json:"aggregate_type"`
	AggregateID   string                    `json:"aggregate_id"`
	OccurredAt    time.Time                 `json:"occurred_at"`
	Payload       json.RawMessage           `json:"payload"`
}

// Decode unmarshals the event data into out.
func (e Envelope) Decode(out any) error {
	if len(e.Payload) == 0 {
		return errors.New("empty event payload")
	}
	return json.Unmarshal(e.Payload, out)
}
