package obs

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Repository and authentication metrics, registered in the default registry
// at package load.
var (
	repoOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repo_operations_total",
			Help: "Total number of repository operations.",
		},
		[]string{"entity", "op", "mode"},
	)

	repoOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "repo_operation_duration_seconds",
			Help:    "Repository operation latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"entity", "op", "mode"},
	)

	authAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_attempts_total",
			Help: "Total number of authentication attempts by outcome.",
		},
		[]string{"outcome"},
	)
)

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRepoOp records one repository operation with its latency.
func ObserveRepoOp(entity, op, mode string, start time.Time) {
	repoOpsTotal.WithLabelValues(entity, op, mode).Inc()
	repoOpDuration.WithLabelValues(entity, op, mode).Observe(time.Since(start).Seconds())
}

// CountAuthAttempt records an authentication attempt outcome
// (success, failure, throttled, locked).
func CountAuthAttempt(outcome string) {
	authAttemptsTotal.WithLabelValues(outcome).Inc()
}
