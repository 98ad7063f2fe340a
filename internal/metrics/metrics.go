// Package metrics exposes the relay's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	EventsTotal    *prometheus.CounterVec // result: created|updated|deleted|ignored|error|rejected
	SyncDuration   prometheus.Histogram
	QueueDepth     prometheus.Gauge
	NotifyFailures prometheus.Counter

	registry *prometheus.Registry
}

// New builds the collectors on a fresh registry so tests can instantiate
// freely without duplicate-registration panics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pmmdtv_events_total",
			Help: "Collection events processed, by terminal result.",
		}, []string{"result"}),
		SyncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pmmdtv_sync_duration_seconds",
			Help:    "Wall time of one channel synchronization.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pmmdtv_queue_depth",
			Help: "Events waiting for a sync worker.",
		}),
		NotifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pmmdtv_notify_failures_total",
			Help: "Best-effort notifications that could not be delivered.",
		}),
		registry: reg,
	}
	reg.MustRegister(m.EventsTotal, m.SyncDuration, m.QueueDepth, m.NotifyFailures)
	return m
}

// Registry returns the registry backing the /metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
