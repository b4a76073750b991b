package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "jokernotes"

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "HTTP requests by route pattern and status code."},
		[]string{"method", "route", "status"},
	)
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: namespace, Name: "http_request_duration_seconds", Help: "HTTP request latency by route pattern.", Buckets: prometheus.DefBuckets},
		[]string{"method", "route"},
	)

	DocumentOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "document_operations_total", Help: "Document operations by name and outcome."},
		[]string{"operation", "outcome"},
	)

	PropagationJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "propagation_jobs_total", Help: "Subtree walks by final outcome."},
		[]string{"outcome"},
	)
	PropagationNodes = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "propagation_nodes_patched_total", Help: "Descendants patched by subtree walks."},
	)
	PropagationFailures = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "propagation_node_failures_total", Help: "Descendant patches that failed and were skipped."},
	)
	PropagationQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: namespace, Name: "propagation_queue_depth", Help: "Subtree walks waiting for a worker."},
	)

	ChangeEventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "change_events_published_total", Help: "Change events published by type."},
		[]string{"type"},
	)
	ChangeEventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "change_events_dropped_total", Help: "Change events dropped for slow subscribers."},
	)
	ChangeSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: namespace, Name: "change_subscribers", Help: "Open change feed subscriptions."},
	)

	PanicsRecovered = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_panics_recovered_total", Help: "Handler panics turned into 500 responses."},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_rejected_total", Help: "Requests rejected by the per-caller limiter."},
		[]string{"key_type"},
	)
)

// RegisterCollectors registers every collector with reg
func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequests,
		HTTPDuration,
		DocumentOperations,
		PropagationJobs,
		PropagationNodes,
		PropagationFailures,
		PropagationQueueDepth,
		ChangeEventsPublished,
		ChangeEventsDropped,
		ChangeSubscribers,
		PanicsRecovered,
		RateLimitRejected,
	)
}

// Handler exposes the default registry at /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}

// Outcome maps an error to the outcome label
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
