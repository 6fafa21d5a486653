package consumers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/farmachelo/pharmacy-backend/pkg/enums"
	"github.com/farmachelo/pharmacy-backend/pkg/logger"
	"github.com/farmachelo/pharmacy-backend/pkg/outbox"
)

func TestBuildEnvelope(t *testing.T) {
	payload := outbox.PayloadEnvelope{
		EventID:    "evt-1",
		OccurredAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Data:       json.RawMessage(`{"order_id":"ORD_1"}`),
	}
	msg := buildMessage(payload, map[string]string{
		"event_type":     "settlement.captured",
		"aggregate_type": "order",
		"aggregate_id":   "ORD_1",
	})

	env, err := buildEnvelope(msg)
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	if env.EventType != enums.EventSettlementCaptured {
		t.Fatalf("unexpected event type %v", env.EventType)
	}
	if env.AggregateType != enums.AggregateOrder {
		t.Fatalf("unexpected aggregate type %v", env.AggregateType)
	}
	if env.AggregateID != "ORD_1" || env.EventID != "evt-1" {
		t.Fatalf("unexpected ids %s %s", env.AggregateID, env.EventID)
	}
	if !env.OccurredAt.Equal(payload.OccurredAt) {
		t.Fatalf("unexpected occurred at %v", env.OccurredAt)
	}

	var decoded struct {
		OrderID string `json:"order_id"`
	}
	if err := env.Decode(&decoded); err != nil || decoded.OrderID != "ORD_1" {
		t.Fatalf("decode payload: %v %q", err, decoded.OrderID)
	}
}

func TestBuildEnvelopeFallsBackToAttributes(t *testing.T) {
	created := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	msg := buildMessage(outbox.PayloadEnvelope{Data: json.RawMessage(`{}`)}, map[string]string{
		"event_type":     "invoice.issued",
		"aggregate_type": "invoice",
		"aggregate_id":   "ORD_1",
		"event_id":       "evt-attr",
		"created_at":     created.Format(time.RFC3339Nano),
	})
	env, err := buildEnvelope(msg)
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	if env.EventID != "evt-attr" || !env.OccurredAt.Equal(created) {
		t.Fatalf("unexpected fallback values %s %v", env.EventID, env.OccurredAt)
	}
}

func TestBuildEnvelopeRejectsUnknownEvent(t *testing.T) {
	msg := buildMessage(outbox.PayloadEnvelope{EventID: "evt"}, map[string]string{
		"event_type":     "order_created",
		"aggregate_type": "order",
		"aggregate_id":   "x",
	})
	if _, err := buildEnvelope(msg); err == nil {
		t.Fatal("expected error for unknown event type")
	}
}

func TestProcessAlreadyProcessed(t *testing.T) {
	manager := &stubManager{checkResult: true}
	handler := &stubHandler{}
	sub := newTestSubscriber(handler, manager)

	if res := sub.process(context.Background(), settlementMessage()); res.nack {
		t.Fatal("expected ack, got nack")
	}
	if handler.called {
		t.Fatal("handler should not be invoked when already processed")
	}
	if len(manager.checked) != 1 {
		t.Fatalf("expected check once, got %d", len(manager.checked))
	}
}

func TestProcessHandlerErrorReleasesClaim(t *testing.T) {
	manager := &stubManager{}
	handler := &stubHandler{err: errors.New("boom")}
	sub := newTestSubscriber(handler, manager)

	if res := sub.process(context.Background(), settlementMessage()); !res.nack {
		t.Fatal("expected nack on handler error")
	}
	if !handler.called {
		t.Fatal("handler should be invoked")
	}
	if len(manager.released) != 1 {
		t.Fatal("expected idempotency release on failure")
	}
}

func TestProcessInvalidEnvelopeAcks(t *testing.T) {
	manager := &stubManager{}
	handler := &stubHandler{}
	sub := newTestSubscriber(handler, manager)

	if res := sub.process(context.Background(), &gcppubsub.Message{Data: []byte("invalid json")}); res.nack {
		t.Fatal("invalid envelope should ack")
	}
	if handler.called || len(manager.checked) != 0 {
		t.Fatal("nothing should run for an invalid envelope")
	}
}

func TestProcessUnsupportedEventAcks(t *testing.T) {
	manager := &stubManager{}
	handler := &stubHandler{err: ErrUnsupportedEvent}
	sub := newTestSubscriber(handler, manager)

	if res := sub.process(context.Background(), settlementMessage()); res.nack {
		t.Fatal("unsupported event should ack")
	}
	if len(manager.released) != 0 {
		t.Fatal("claim should be kept for ignored events")
	}
}

func TestNewSubscriberValidation(t *testing.T) {
	if _, err := NewSubscriber(SubscriberParams{}); err == nil {
		t.Fatal("expected error for missing name")
	}
	if _, err := NewSubscriber(SubscriberParams{Name: "analytics"}); err == nil {
		t.Fatal("expected error for missing subscription")
	}
}

func settlementMessage() *gcppubsub.Message {
	return buildMessage(outbox.PayloadEnvelope{
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       json.RawMessage(`{"order_id":"ORD_1"}`),
	}, map[string]string{
		"event_type":     "settlement.captured",
		"aggregate_type": "order",
		"aggregate_id":   "ORD_1",
	})
}

func buildMessage(payload outbox.PayloadEnvelope, attrs map[string]string) *gcppubsub.Message {
	data, _ := json.Marshal(payload)
	return &gcppubsub.Message{ID: "msg-1", Data: data, Attributes: attrs}
}

func newTestSubscriber(handler Handler, manager *stubManager) *Subscriber {
	return &Subscriber{
		name:    "test",
		handler: handler,
		manager: manager,
		logg:    logger.New(logger.Options{ServiceName: "consumers-test"}),
	}
}

type stubHandler struct {
	called bool
	err    error
}

func (h *stubHandler) Handle(context.Context, Envelope) error {
	h.called = true
	return h.err
}

type stubManager struct {
	checkResult bool
	checked     []string
	released    []string
}

func (s *stubManager) CheckAndMarkProcessed(_ context.Context, _ string, eventID string) (bool, error) {
	s.checked = append(s.checked, eventID)
	return s.checkResult, nil
}

func (s *stubManager) Release(_ context.Context, _ string, eventID string) error {
	s.released = append(s.released, eventID)
	return nil
}
