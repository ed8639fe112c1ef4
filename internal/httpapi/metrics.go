// Package httpapi exposes the health/metrics/status HTTP surface spec.md §6
// names as an external collaborator ("the metrics/health HTTP surface" is
// itself out of scope at the protocol level, but its shape is specified).
// Built on labstack/echo/v4, the same framework every app in the pack uses
// for its HTTP layer, with prometheus/client_golang wired into a private
// registry the way an HTTP service normally exposes its own metrics.
package httpapi

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every counter, gauge, and histogram spec.md §6 and §7
// require: per-message-type decode/apply counters (not blended, per
// SPEC_FULL.md's supplemented features), processing- and read-latency
// histograms with the exact bucket boundaries the spec names.
type Metrics struct {
	Registry *prometheus.Registry

	EventsDecoded   *prometheus.CounterVec // labels: message_type, result
	EventsApplied   *prometheus.CounterVec // labels: message_type, result
	CacheErrors     *prometheus.CounterVec // labels: op, kind
	COVNotifications *prometheus.CounterVec // labels: result
	COVSubscriptions prometheus.Gauge
	RegistryObjects  prometheus.Gauge
	ConsumerStatus   *prometheus.GaugeVec // labels: subscription_id; value = status ordinal

	ProcessingLatency prometheus.Histogram
	ReadLatency       prometheus.Histogram
}

// NewMetrics constructs and registers every metric against a private
// registry (never the global default, to keep /metrics output scoped to
// this process's own series).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		EventsDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bacnet_gateway_events_decoded_total",
			Help: "Events decoded, by message type and outcome.",
		}, []string{"message_type", "result"}),
		EventsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bacnet_gateway_events_applied_total",
			Help: "Events applied to the registry, by message type and outcome.",
		}, []string{"message_type", "result"}),
		CacheErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bacnet_gateway_cache_errors_total",
			Help: "Cache mirror errors, by operation and failure kind.",
		}, []string{"op", "kind"}),
		COVNotifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bacnet_gateway_cov_notifications_total",
			Help: "COV notifications sent, by result.",
		}, []string{"result"}),
		COVSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bacnet_gateway_cov_subscriptions",
			Help: "Live COV subscriptions.",
		}),
		RegistryObjects: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bacnet_gateway_registry_objects",
			Help: "Objects currently held in the registry.",
		}),
		ConsumerStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bacnet_gateway_consumer_status",
			Help: "Event consumer state machine status per subscription (ordinal).",
		}, []string{"subscription_id"}),
		ProcessingLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bacnet_gateway_processing_latency_ms",
			Help:    "Time to decode, apply, and mirror one event, in milliseconds.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
		ReadLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bacnet_gateway_read_latency_ms",
			Help:    "Time to read an object or device record, in milliseconds.",
			Buckets: []float64{1, 5, 10, 25, 50, 100},
		}),
	}

	reg.MustRegister(
		m.EventsDecoded, m.EventsApplied, m.CacheErrors, m.COVNotifications,
		m.COVSubscriptions, m.RegistryObjects, m.ConsumerStatus,
		m.ProcessingLatency, m.ReadLatency,
	)
	return m
}
