package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestCronMetricsSplitsResults(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronMetrics(reg)
	finished := time.Date(2026, 3, 1, 4, 0, 0, 0, time.UTC)

	m.Executed("invoice-repair", 2*time.Second, finished, nil)
	m.Executed("invoice-repair", time.Second, finished.Add(time.Minute), errors.New("db down"))
	m.Skipped("outbox-prune")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "farmachelo_cron_job_runs_total", "result", JobSucceeded); err != nil || got != 1 {
		t.Fatalf("expected one success, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "farmachelo_cron_job_runs_total", "result", JobFailed); err != nil || got != 1 {
		t.Fatalf("expected one failure, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "farmachelo_cron_job_runs_total", "job", "outbox-prune"); err != nil || got != 1 {
		t.Fatalf("expected one skip, got %f (%v)", got, err)
	}
	if got, err := fetchHistogramSum(mfs, "farmachelo_cron_job_duration_seconds", "job", "invoice-repair"); err != nil || got != 3 {
		t.Fatalf("expected 3s of runtime, got %f (%v)", got, err)
	}

	gauge := findMetricFamily(mfs, "farmachelo_cron_job_last_success_timestamp_seconds")
	if gauge == nil || gauge.GetMetric()[0].GetGauge().GetValue() != float64(finished.Unix()) {
		t.Fatalf("failed run must not move the success timestamp")
	}
}

func TestNilCronMetricsIsNoop(t *testing.T) {
	var m *CronMetrics
	m.Executed("x", time.Second, time.Now(), nil)
	m.Skipped("x")
}
