package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Settlement outcomes.
const (
	OutcomeSuccess        = "success"
	OutcomeDegraded       = "degraded"
	OutcomeAmountMismatch = "amount_mismatch"
	OutcomeCardRejected   = "card_rejected"
	OutcomeError          = "error"
)

// SettlementMetrics records payment settlement and invoice issuance.
type SettlementMetrics struct {
	settlements *prometheus.CounterVec
	duration    prometheus.Histogram
	invoices    prometheus.Counter
}

// NewSettlementMetrics registers the settlement metrics on reg. A nil reg
// yields a no-op recorder.
func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	settlements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "settlements_total",
		Help:      "Settlement attempts by outcome.",
	}, []string{"outcome"})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "settlement_duration_seconds",
		Help:      "Wall time of a settlement attempt.",
		Buckets:   prometheus.DefBuckets,
	})
	invoices := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "invoices_issued_total",
		Help:      "Invoices numbered and persisted.",
	})
	reg.MustRegister(settlements, duration, invoices)
	return &SettlementMetrics{settlements: settlements, duration: duration, invoices: invoices}
}

// Observe records one settlement attempt.
func (m *SettlementMetrics) Observe(outcome string, elapsed time.Duration) {
	if m == nil || m.settlements == nil {
		return
	}
	if outcome == "" {
		outcome = OutcomeError
	}
	m.settlements.WithLabelValues(outcome).Inc()
	m.duration.Observe(elapsed.Seconds())
}

// IncInvoiceIssued counts a newly numbered invoice.
func (m *SettlementMetrics) IncInvoiceIssued() {
	if m == nil || m.invoices == nil {
		return
	}
	m.invoices.Inc()
}
