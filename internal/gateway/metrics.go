package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts provider calls. One instance is shared by every gateway a
// process creates.
type Metrics struct {
	CallsTotal   *prometheus.CounterVec
	ErrorsTotal  *prometheus.CounterVec
	CallDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "musicmanager_provider_calls_total",
				Help: "Total provider calls by provider, operation and outcome",
			},
			[]string{"provider", "operation", "outcome"},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "musicmanager_provider_errors_total",
				Help: "Provider errors contained by the gateway, by kind",
			},
			[]string{"provider", "operation", "kind"},
		),
		CallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "musicmanager_provider_call_duration_seconds",
				Help:    "Provider call latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "operation"},
		),
	}
	reg.MustRegister(m.CallsTotal, m.ErrorsTotal, m.CallDuration)
	return m
}
