package dispatch

import "github.com/prometheus/client_golang/prometheus"

var (
	dispatchAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "insightd",
			Subsystem: "dispatch",
			Name:      "attempts_total",
			Help:      "Provider calls by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	dispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "insightd",
			Subsystem: "dispatch",
			Name:      "attempt_duration_seconds",
			Help:      "Duration of provider calls in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	dispatchExhausted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "insightd",
			Subsystem: "dispatch",
			Name:      "exhausted_total",
			Help:      "Dispatches where every candidate failed",
		},
	)
)

func init() {
	prometheus.MustRegister(dispatchAttempts, dispatchDuration, dispatchExhausted)
}
