package enums

// OutboxAggregateType names the entity an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder              OutboxAggregateType = "order"
	AggregatePaymentTransaction OutboxAggregateType = "payment_transaction"
	AggregateInvoice            OutboxAggregateType = "invoice"
)

var validAggregateTypes = oneOf[OutboxAggregateType]{
	AggregateOrder,
	AggregatePaymentTransaction,
	AggregateInvoice,
}

// IsValid reports whether the value is a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	return validAggregateTypes.has(a)
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return validAggregateTypes.parse("aggregate type", value)
}

// OutboxEventType names a domain event relayed through the outbox.
type OutboxEventType string

const (
	EventSettlementCaptured     OutboxEventType = "settlement.captured"
	EventInvoiceIssued          OutboxEventType = "invoice.issued"
	EventInvoiceSynthesisFailed OutboxEventType = "invoice.synthesis_failed"
	EventOrderStatusChanged     OutboxEventType = "order.status_changed"
)

var validEventTypes = oneOf[OutboxEventType]{
	EventSettlementCaptured,
	EventInvoiceIssued,
	EventInvoiceSynthesisFailed,
	EventOrderStatusChanged,
}

// String implements fmt.Stringer.
func (e OutboxEventType) String() string {
	return string(e)
}

// IsValid reports whether the value is a known event type.
func (e OutboxEventType) IsValid() bool {
	return validEventTypes.has(e)
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return validEventTypes.parse("event type", value)
}

// OutboxDLQErrorReason records why an event was parked in the dead letter table.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)
