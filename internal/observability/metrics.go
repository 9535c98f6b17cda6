package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Probe outcomes.
const (
	OutcomeConnected    = "connected"
	OutcomeDisconnected = "disconnected"
	OutcomeInvalid      = "invalid"
	OutcomeRejected     = "rejected"
)

// Ask outcomes.
const (
	OutcomeCompleted    = "completed"
	OutcomeFailed       = "failed"
	OutcomeNoConnection = "no_connection"
	OutcomeBusy         = "busy"
)

var (
	probeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insightpilot_probe_total",
			Help: "Connectivity tests by outcome.",
		},
		[]string{"outcome"},
	)

	askTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insightpilot_ask_total",
			Help: "Questions asked by outcome.",
		},
		[]string{"outcome", "provider"},
	)

	executionDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "insightpilot_query_execution_duration_seconds",
			Help:    "Backend query execution latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend"},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insightpilot_http_requests_total",
			Help: "Total number of HTTP requests by action.",
		},
		[]string{"method", "action", "status"},
	)
)

func init() {
	prometheus.MustRegister(probeTotal, askTotal, executionDurationSeconds, httpRequestsTotal)
}

func RecordProbe(outcome string) {
	probeTotal.WithLabelValues(outcome).Inc()
}

func RecordAsk(outcome, provider string) {
	if provider == "" {
		provider = "none"
	}
	askTotal.WithLabelValues(outcome, provider).Inc()
}

func ObserveExecution(backend string, d time.Duration) {
	executionDurationSeconds.WithLabelValues(backend).Observe(d.Seconds())
}

func RecordHTTPRequest(method, action string, status int) {
	httpRequestsTotal.WithLabelValues(method, action, statusClass(status)).Inc()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
