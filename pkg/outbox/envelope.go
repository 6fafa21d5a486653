package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/farmachelo/pharmacy-backend/pkg/enums"
)

// ActorRef identifies who produced the event.
type ActorRef struct {
	ID   uuid.UUID           `json:"id"`
	Kind enums.PrincipalKind `json:"kind"`
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
