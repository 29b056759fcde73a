// Package metrics registers the prometheus collectors exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "prepdesk",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "prepdesk",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	lintRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "prepdesk",
			Name:      "lint_runs_total",
			Help:      "Lint runs by outcome",
		},
		[]string{"outcome"},
	)

	lintIssues = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "prepdesk",
			Name:      "lint_issues",
			Help:      "Issues found by the most recent lint run, by severity",
		},
		[]string{"severity"},
	)

	cacheOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "prepdesk",
			Name:      "render_cache_ops_total",
			Help:      "Render cache lookups by result",
		},
		[]string{"result"},
	)

	webhookDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "prepdesk",
			Name:      "webhook_deliveries_total",
			Help:      "Webhook deliveries by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)

	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "prepdesk",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	rateLimitRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "prepdesk",
			Name:      "ratelimit_exceeded_total",
			Help:      "Requests rejected by the rate limiter",
		},
		[]string{"limit_type"},
	)

	questionsInBank = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "prepdesk",
			Name:      "questions_in_bank",
			Help:      "Questions currently in the bank",
		},
	)
)

// RecordHTTPRequest counts one served request.
func RecordHTTPRequest(method, route, status string, seconds float64) {
	httpRequests.WithLabelValues(method, route, status).Inc()
	httpDuration.WithLabelValues(method, route).Observe(seconds)
}

// RecordLintRun counts a lint run ("clean", "issues" or "error").
func RecordLintRun(outcome string) {
	lintRuns.WithLabelValues(outcome).Inc()
}

// SetLintIssues publishes the issue counts of the latest run.
func SetLintIssues(errors, warnings int) {
	lintIssues.WithLabelValues("error").Set(float64(errors))
	lintIssues.WithLabelValues("warn").Set(float64(warnings))
}

// RecordCacheHit counts a render-cache hit.
func RecordCacheHit() { cacheOps.WithLabelValues("hit").Inc() }

// RecordCacheMiss counts a render-cache miss.
func RecordCacheMiss() { cacheOps.WithLabelValues("miss").Inc() }

// RecordWebhookDelivery counts a delivery ("ok", "failed" or "skipped").
func RecordWebhookDelivery(endpoint, outcome string) {
	webhookDeliveries.WithLabelValues(endpoint, outcome).Inc()
}

// SetCircuitBreakerState publishes a breaker state transition.
func SetCircuitBreakerState(name, state string) {
	v := 0.0
	switch state {
	case "half-open":
		v = 1
	case "open":
		v = 2
	}
	breakerState.WithLabelValues(name).Set(v)
}

// RecordRateLimitRejection counts a 429 ("global" or "per_ip").
func RecordRateLimitRejection(limitType string) {
	rateLimitRejected.WithLabelValues(limitType).Inc()
}

// SetQuestionCount publishes the bank size after an import.
func SetQuestionCount(n int) {
	questionsInBank.Set(float64(n))
}
