package metrics

import "github.com/prometheus/client_golang/prometheus"

// Upstream search Prometheus metrics.
var (
	UpstreamAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "searchgate",
			Name:      "upstream_attempts_total",
			Help:      "Total number of upstream search attempts",
		},
		[]string{"outcome"}, // "ok" or a fault category
	)

	UpstreamAttemptDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "searchgate",
			Name:      "upstream_attempt_duration_seconds",
			Help:      "Upstream search attempt duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"outcome"},
	)

	UpstreamSearchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "searchgate",
			Name:      "upstream_searches_total",
			Help:      "Total number of upstream searches after retries",
		},
		[]string{"outcome"},
	)
)

var upstreamMetricsRegistered bool

// RegisterUpstreamMetrics registers upstream metrics. Must be called once from main.
func RegisterUpstreamMetrics() {
	if upstreamMetricsRegistered {
		return
	}
	prometheus.MustRegister(UpstreamAttemptsTotal)
	prometheus.MustRegister(UpstreamAttemptDuration)
	prometheus.MustRegister(UpstreamSearchesTotal)
	upstreamMetricsRegistered = true
}
