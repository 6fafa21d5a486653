// Package router turns settlement events into BigQuery rows.
package router

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/farmachelo/pharmacy-backend/internal/analytics/types"
	"github.com/farmachelo/pharmacy-backend/internal/analytics/writer"
	"github.com/farmachelo/pharmacy-backend/internal/consumers"
	"github.com/farmachelo/pharmacy-backend/pkg/enums"
	"github.com/farmachelo/pharmacy-backend/pkg/logger"
	"github.com/farmachelo/pharmacy-backend/pkg/outbox/payloads"
)

// Writer delivers rows produced by the router.
type Writer interface {
	InsertSettlement(ctx context.Context, row types.SettlementEventRow) error
}

type rowBuilder func(envelope consumers.Envelope, row *types.SettlementEventRow) error

// Router maps every settlement event type onto a settlement_events row.
type Router struct {
	writer   Writer
	builders map[enums.OutboxEventType]rowBuilder
	logg     *logger.Logger
}

func NewRouter(w Writer, logg *logger.Logger) (*Router, error) {
	if w == nil {
		return nil, errors.New("writer is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Router{
		writer: w,
		logg:   logg,
		builders: map[enums.OutboxEventType]rowBuilder{
			enums.EventSettlementCaptured:     settlementCapturedRow,
			enums.EventInvoiceIssued:          invoiceIssuedRow,
			enums.EventInvoiceSynthesisFailed: invoiceFailedRow,
			enums.EventOrderStatusChanged:     statusChangedRow,
		},
	}, nil
}

// Handle builds and writes the row for one envelope.
func (r *Router) Handle(ctx context.Context, envelope consumers.Envelope) error {
	build, ok := r.builders[envelope.EventType]
	if !ok {
		return fmt.Errorf("%w: %s", consumers.ErrUnsupportedEvent, envelope.EventType)
	}
	row, err := buildRow(envelope, build)
	if err != nil {
		return err
	}
	if err := r.writer.InsertSettlement(ctx, row); err != nil {
		return err
	}
	r.logg.Debug(ctx, "settlement analytics row written")
	return nil
}

// buildRow assembles the common columns then lets the event builder fill the rest.
func buildRow(envelope consumers.Envelope, build rowBuilder) (types.SettlementEventRow, error) {
	payload, err := writer.JSONColumn(envelope.Payload)
	if err != nil {
		return types.SettlementEventRow{}, err
	}
	row := types.SettlementEventRow{
		EventID:       envelope.EventID,
		EventType:     envelope.EventType.String(),
		AggregateType: string(envelope.AggregateType),
		AggregateID:   envelope.AggregateID,
		OccurredAt:    envelope.OccurredAt.UTC(),
		Payload:       payload,
	}
	if err := build(envelope, &row); err != nil {
		return types.SettlementEventRow{}, fmt.Errorf("decode %s payload: %w", envelope.EventType, err)
	}
	return row, nil
}

func settlementCapturedRow(envelope consumers.Envelope, row *types.SettlementEventRow) error {
	var event payloads.SettlementCapturedEvent
	if err := envelope.Decode(&event); err != nil {
		return err
	}
	amount, err := ratFromString(event.Amount)
	if err != nil {
		return err
	}
	lines := int64(event.LineCount)
	row.OrderID = optional(event.OrderID)
	row.UserID = optionalUUID(event.UserID)
	row.TransactionID = optional(event.TransactionID)
	row.Amount = amount
	row.Currency = optional(event.Currency)
	row.CardBrand = optional(string(event.CardBrand))
	row.LineCount = &lines
	return nil
}

func invoiceIssuedRow(envelope consumers.Envelope, row *types.SettlementEventRow) error {
	var event payloads.InvoiceIssuedEvent
	if err := envelope.Decode(&event); err != nil {
		return err
	}
	total, err := ratFromString(event.TotalAmount)
	if err != nil {
		return err
	}
	tax, err := ratFromString(event.TaxAmount)
	if err != nil {
		return err
	}
	row.OrderID = optional(event.OrderID)
	row.UserID = optionalUUID(event.UserID)
	row.InvoiceNumber = optional(event.InvoiceNumber)
	row.Amount = total
	row.TaxAmount = tax
	row.Currency = optional(event.Currency)
	return nil
}

func invoiceFailedRow(envelope consumers.Envelope, row *types.SettlementEventRow) error {
	var event payloads.InvoiceSynthesisFailedEvent
	if err := envelope.Decode(&event); err != nil {
		return err
	}
	row.OrderID = optional(event.OrderID)
	row.UserID = optionalUUID(event.UserID)
	row.TransactionID = optional(event.TransactionID)
	row.Reason = optional(event.Reason)
	return nil
}

func statusChangedRow(envelope consumers.Envelope, row *types.SettlementEventRow) error {
	var event payloads.OrderStatusChangedEvent
	if err := envelope.Decode(&event); err != nil {
		return err
	}
	row.OrderID = optional(event.OrderID)
	row.UserID = optionalUUID(event.UserID)
	row.FromStatus = optional(string(event.FromStatus))
	row.ToStatus = optional(string(event.ToStatus))
	return nil
}

func ratFromString(value string) (*big.Rat, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("amount %q: %w", value, err)
	}
	return d.Rat(), nil
}

func optional(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func optionalUUID(id uuid.UUID) *string {
	if id == uuid.Nil {
		return nil
	}
	return optional(id.String())
}
