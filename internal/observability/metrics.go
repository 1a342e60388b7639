package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  prometheus.Histogram
	deltasForwarded  prometheus.Counter
	activeSessions   prometheus.Gauge
	sessionsExpired  prometheus.Counter
	providerCalls    *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec

	toolExecutionTotal    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec

	preambleTotal     *prometheus.CounterVec
	augmentationTotal *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			requestsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "relay_requests_total",
					Help: "Total relayed requests by terminal outcome (completed, error, disconnected).",
				},
				[]string{"outcome"},
			),
			requestDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "relay_request_duration_seconds",
					Help:    "End-to-end request handling duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			deltasForwarded: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "relay_deltas_forwarded_total",
					Help: "Total content deltas forwarded to clients.",
				},
			),
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "active_sessions",
					Help: "Current registered session count.",
				},
			),
			sessionsExpired: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "sessions_expired_total",
					Help: "Total sessions removed by the idle-expiry sweep.",
				},
			),
			providerCalls: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "provider_calls_total",
					Help: "Total upstream provider calls by provider and status.",
				},
				[]string{"provider", "status"},
			),
			providerDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "provider_call_duration_seconds",
					Help:    "Upstream provider call duration in seconds by provider.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			toolExecutionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_execution_total",
					Help: "Total tool executions by tool and status.",
				},
				[]string{"tool", "status"},
			),
			toolExecutionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "tool_execution_duration_seconds",
					Help:    "Tool execution duration in seconds by tool.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			preambleTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "preamble_total",
					Help: "Total progressive preamble attempts by status (emitted, skipped, failed).",
				},
				[]string{"status"},
			),
			augmentationTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "augmentation_total",
					Help: "Total retrieval augmentation attempts by status (hit, miss, fallback).",
				},
				[]string{"status"},
			),
		}

		prometheus.MustRegister(
			m.requestsTotal,
			m.requestDuration,
			m.deltasForwarded,
			m.activeSessions,
			m.sessionsExpired,
			m.providerCalls,
			m.providerDuration,
			m.toolExecutionTotal,
			m.toolExecutionDuration,
			m.preambleTotal,
			m.augmentationTotal,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordRequest(outcome string, duration time.Duration) {
	m := getMetrics()
	m.requestsTotal.WithLabelValues(outcome).Inc()
	m.requestDuration.Observe(duration.Seconds())
}

func RecordDeltaForwarded() {
	getMetrics().deltasForwarded.Inc()
}

func SetActiveSessions(count int) {
	getMetrics().activeSessions.Set(float64(count))
}

func RecordSessionsExpired(count int) {
	getMetrics().sessionsExpired.Add(float64(count))
}

func RecordProviderCall(provider string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.providerCalls.WithLabelValues(provider, status).Inc()
	m.providerDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func RecordToolExecution(tool string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.toolExecutionTotal.WithLabelValues(tool, status).Inc()
	m.toolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

func RecordPreamble(status string) {
	getMetrics().preambleTotal.WithLabelValues(status).Inc()
}

func RecordAugmentation(status string) {
	getMetrics().augmentationTotal.WithLabelValues(status).Inc()
}
