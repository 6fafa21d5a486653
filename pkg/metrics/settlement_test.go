package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestSettlementMetricsCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSettlementMetrics(reg)
	m.Observe(OutcomeSuccess, 10*time.Millisecond)
	m.Observe(OutcomeSuccess, 20*time.Millisecond)
	m.Observe(OutcomeAmountMismatch, time.Millisecond)
	m.IncInvoiceIssued()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "farmachelo_settlements_total", "outcome", OutcomeSuccess); err != nil || got != 2 {
		t.Fatalf("expected success=2, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "farmachelo_settlements_total", "outcome", OutcomeAmountMismatch); err != nil || got != 1 {
		t.Fatalf("expected amount_mismatch=1, got %f (%v)", got, err)
	}
	issued := findMetricFamily(mfs, "farmachelo_invoices_issued_total")
	if issued == nil || issued.GetMetric()[0].GetCounter().GetValue() != 1 {
		t.Fatalf("expected one issued invoice")
	}
	duration := findMetricFamily(mfs, "farmachelo_settlement_duration_seconds")
	if duration == nil || duration.GetMetric()[0].GetHistogram().GetSampleCount() != 3 {
		t.Fatalf("expected three duration samples")
	}
}

func TestNilSettlementMetricsIsNoop(t *testing.T) {
	var m *SettlementMetrics
	m.Observe(OutcomeError, time.Second)
	m.IncInvoiceIssued()
	NewSettlementMetrics(nil).Observe(OutcomeSuccess, time.Second)
}
