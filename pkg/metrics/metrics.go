// Package metrics holds the Prometheus collectors of the data-access core.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Query outcomes.
const (
	OutcomeOK          = "ok"
	OutcomeError       = "error"
	OutcomeUnavailable = "unavailable"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	connectionState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "datacore",
			Name:      "connection_state",
			Help:      "Connection state per backend (0=disconnected, 1=connecting, 2=connected, 3=reconnecting, 4=closed).",
		},
		[]string{"backend"},
	)

	reconnectsScheduled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "datacore",
			Name:      "reconnects_scheduled_total",
			Help:      "Total number of reconnect attempts scheduled.",
		},
		[]string{"backend"},
	)

	pingFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "datacore",
			Name:      "ping_failures_total",
			Help:      "Total number of failed health-check pings.",
		},
		[]string{"backend"},
	)

	queryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "datacore",
			Name:      "query_duration_seconds",
			Help:      "Duration of statements executed through the connection manager.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~16s
		},
		[]string{"backend", "outcome"},
	)

	auditDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "datacore",
			Subsystem: "audit",
			Name:      "write_failures_total",
			Help:      "Audit entries an appender failed to write.",
		},
		[]string{"appender"},
	)
)

func init() {
	Registry.MustRegister(
		connectionState,
		reconnectsScheduled,
		pingFailures,
		queryDuration,
		auditDropped,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// SetConnectionState records the numeric state of a backend connection.
func SetConnectionState(backend string, state int) {
	connectionState.WithLabelValues(backend).Set(float64(state))
}

func RecordReconnectScheduled(backend string) {
	reconnectsScheduled.WithLabelValues(backend).Inc()
}

func RecordPingFailure(backend string) {
	pingFailures.WithLabelValues(backend).Inc()
}

// RecordQuery observes one Execute/BatchExecute call.
func RecordQuery(backend, outcome string, duration time.Duration) {
	queryDuration.WithLabelValues(backend, outcome).Observe(duration.Seconds())
}

func RecordAuditFailure(appender string) {
	if appender == "" {
		appender = "unknown"
	}
	auditDropped.WithLabelValues(appender).Inc()
}
