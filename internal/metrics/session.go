package metrics

import "github.com/prometheus/client_golang/prometheus"

// Session registry Prometheus metrics.
var (
	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "searchgate",
			Name:      "sessions_active",
			Help:      "Number of registered sessions",
		},
	)

	SessionEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "searchgate",
			Name:      "session_events_total",
			Help:      "Session lifecycle events",
		},
		[]string{"event"}, // "created" / "closed" / "replaced" / "foreign"
	)

	SessionStoreErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "searchgate",
			Name:      "session_store_errors_total",
			Help:      "Failed session presence store operations",
		},
		[]string{"op"},
	)
)

var sessionMetricsRegistered bool

// RegisterSessionMetrics registers session metrics. Must be called once from main.
func RegisterSessionMetrics() {
	if sessionMetricsRegistered {
		return
	}
	prometheus.MustRegister(SessionsActive)
	prometheus.MustRegister(SessionEventsTotal)
	prometheus.MustRegister(SessionStoreErrorsTotal)
	sessionMetricsRegistered = true
}
