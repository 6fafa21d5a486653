// Package types holds the BigQuery row shapes written by settlement analytics.
package types

import (
	"math/big"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
)

// SettlementEventRow mirrors the settlement_events BigQuery schema. Amount
// columns are NUMERIC.
type SettlementEventRow struct {
	EventID       string             `bigquery:"event_id"`
	EventType     string             `bigquery:"event_type"`
	AggregateType string             `bigquery:"aggregate_type"`
	AggregateID   string             `bigquery:"aggregate_id"`
	OccurredAt    time.Time          `bigquery:"occurred_at"`
	OrderID       *string            `bigquery:"order_id"`
	UserID        *string            `bigquery:"user_id"`
	TransactionID *string            `bigquery:"transaction_id"`
	InvoiceNumber *string            `bigquery:"invoice_number"`
	Amount        *big.Rat           `bigquery:"amount"`
	TaxAmount     *big.Rat           `bigquery:"tax_amount"`
	Currency      *string            `bigquery:"currency"`
	CardBrand     *string            `bigquery:"card_brand"`
	LineCount     *int64             `bigquery:"line_count"`
	FromStatus    *string            `bigquery:"from_status"`
	ToStatus      *string            `bigquery:"to_status"`
	Reason        *string            `bigquery:"reason"`
	Payload       cbigquery.NullJSON `bigquery:"payload"`
}
