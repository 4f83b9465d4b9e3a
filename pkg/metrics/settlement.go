package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SettlementMetrics records checkout settlement and webhook reconciliation outcomes.
type SettlementMetrics struct {
	duration *prometheus.HistogramVec
	settled  *prometheus.CounterVec
	failed   *prometheus.CounterVec
	webhooks *prometheus.CounterVec
}

// NewSettlementMetrics registers the settlement metrics on the provided registerer.
func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "settlement_duration_seconds",
		Help:    "Duration of per-order settlements in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})
	settled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_success",
		Help: "Orders settled successfully.",
	}, []string{"provider"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_failure",
		Help: "Orders that failed settlement and were rolled back.",
	}, []string{"provider"})
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_received",
		Help: "Provider webhook callbacks received.",
	}, []string{"provider", "outcome"})
	reg.MustRegister(duration, settled, failed, webhooks)
	return &SettlementMetrics{
		duration: duration,
		settled:  settled,
		failed:   failed,
		webhooks: webhooks,
	}
}

// ObserveDuration records the settlement duration for the named provider.
func (m *SettlementMetrics) ObserveDuration(provider string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(provider)).Observe(duration.Seconds())
}

// IncSettled increments the success counter for the named provider.
func (m *SettlementMetrics) IncSettled(provider string) {
	if m == nil || m.settled == nil {
		return
	}
	m.settled.WithLabelValues(normalizeLabel(provider)).Inc()
}

// IncFailed increments the failure counter for the named provider.
func (m *SettlementMetrics) IncFailed(provider string) {
	if m == nil || m.failed == nil {
		return
	}
	m.failed.WithLabelValues(normalizeLabel(provider)).Inc()
}

// IncWebhook increments the webhook counter for the provider/outcome pair.
func (m *SettlementMetrics) IncWebhook(provider, outcome string) {
	if m == nil || m.webhooks == nil {
		return
	}
	m.webhooks.WithLabelValues(normalizeLabel(provider), normalizeLabel(outcome)).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
