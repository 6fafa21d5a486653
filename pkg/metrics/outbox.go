package metrics

import "github.com/prometheus/client_golang/prometheus"

// Outbox publish results.
const (
	PublishPublished    = "published"
	PublishFailed       = "failed"
	PublishDeadLettered = "dead_lettered"
)

// OutboxMetrics counts outbox relay results per event type.
type OutboxMetrics struct {
	results *prometheus.CounterVec
}

// NewOutboxMetrics registers the outbox metrics on reg. A nil reg yields a
// no-op recorder.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	results := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "outbox_publish_total",
		Help:      "Outbox rows relayed to Pub/Sub by result.",
	}, []string{"event_type", "result"})
	reg.MustRegister(results)
	return &OutboxMetrics{results: results}
}

// Observe counts one relay attempt.
func (m *OutboxMetrics) Observe(eventType, result string) {
	if m == nil || m.results == nil {
		return
	}
	m.results.WithLabelValues(eventType, result).Inc()
}
