// Package repair completes invoices that failed after payment capture, both
// from invoice.synthesis_failed events and from a periodic sweep.
package repair

import (
	"context"
	"errors"
	"fmt"

	"github.com/farmachelo/pharmacy-backend/internal/consumers"
	"github.com/farmachelo/pharmacy-backend/internal/invoices"
	"github.com/farmachelo/pharmacy-backend/pkg/enums"
	pkgerrors "github.com/farmachelo/pharmacy-backend/pkg/errors"
	"github.com/farmachelo/pharmacy-backend/pkg/logger"
	"github.com/farmachelo/pharmacy-backend/pkg/outbox"
	"github.com/farmachelo/pharmacy-backend/pkg/outbox/payloads"
)

// ConsumerName keys the repair subscription's idempotency claims.
const ConsumerName = "invoice-repair"

type repairer interface {
	Repair(ctx context.Context, orderID string, actor *outbox.ActorRef) (*invoices.RepairResult, error)
}

// Handler retries synthesis for each invoice.synthesis_failed event.
type Handler struct {
	repairer repairer
	logg     *logger.Logger
}

func NewHandler(r repairer, logg *logger.Logger) (*Handler, error) {
	if r == nil {
		return nil, errors.New("invoice repairer required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	return &Handler{repairer: r, logg: logg}, nil
}

// Handle returns nil for outcomes a retry cannot change so the message is acked.
func (h *Handler) Handle(ctx context.Context, envelope consumers.Envelope) error {
	if envelope.EventType != enums.EventInvoiceSynthesisFailed {
		return fmt.Errorf("%w: %s", consumers.ErrUnsupportedEvent, envelope.EventType)
	}
	var event payloads.InvoiceSynthesisFailedEvent
	if err := envelope.Decode(&event); err != nil {
		h.logg.Warn(h.logg.WithField(ctx, "error", err.Error()), "undecodable repair event")
		return nil
	}
	orderID := event.OrderID
	if orderID == "" {
		orderID = envelope.AggregateID
	}
	ctx = h.logg.WithOrderID(ctx, orderID)

	result, err := h.repairer.Repair(ctx, orderID, nil)
	if err != nil {
		if permanent(err) {
			h.logg.Warn(h.logg.WithFields(ctx, map[string]any{
				"event": "invoice.repair_skipped",
				"error": err.Error(),
			}), "invoice repair cannot succeed")
			return nil
		}
		return err
	}
	h.logg.Info(h.logg.WithFields(ctx, map[string]any{
		"invoice_number": result.InvoiceNumber,
		"created":        result.Created,
	}), "invoice repair handled")
	return nil
}

func permanent(err error) bool {
	return pkgerrors.IsCode(err, pkgerrors.CodeNotFound) ||
		pkgerrors.IsCode(err, pkgerrors.CodeValidation) ||
		pkgerrors.IsCode(err, pkgerrors.CodeStateConflict)
}
