package snapcache

import "github.com/prometheus/client_golang/prometheus"

var (
	cacheRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "insightd",
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Snapshot cache lookups by result (hit, miss, stale)",
		},
		[]string{"result"},
	)

	cacheCollections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "insightd",
			Subsystem: "cache",
			Name:      "collections_total",
			Help:      "Snapshot collections by source and outcome",
		},
		[]string{"source", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(cacheRequests, cacheCollections)
}
