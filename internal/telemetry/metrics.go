package telemetry

import "github.com/prometheus/client_golang/prometheus"

var QueriesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "setupranali",
		Subsystem: "query",
		Name:      "total",
		Help:      "Total number of query-path requests by route and outcome.",
	},
	[]string{"route", "outcome"},
)

var QueryDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "setupranali",
		Subsystem: "query",
		Name:      "duration_seconds",
		Help:      "End-to-end query duration in seconds.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	},
	[]string{"route", "dataset"},
)

var CacheHitsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "setupranali",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache lookups by outcome (hit, miss, bypass).",
	},
	[]string{"outcome"},
)

var SingleFlightCoalescedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "setupranali",
		Subsystem: "cache",
		Name:      "singleflight_coalesced_total",
		Help:      "Total number of requests that coalesced onto an in-flight fingerprint.",
	},
)

var RateLimitRejectedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "setupranali",
		Subsystem: "ratelimit",
		Name:      "rejected_total",
		Help:      "Total number of requests rejected by the rate limiter, by route class.",
	},
	[]string{"route_class"},
)

var GuardRejectedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "setupranali",
		Subsystem: "guard",
		Name:      "rejected_total",
		Help:      "Total number of requests rejected by query guards, by guard kind.",
	},
	[]string{"kind"},
)

var PoolInUse = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "setupranali",
		Subsystem: "pool",
		Name:      "connections_in_use",
		Help:      "Connections currently checked out, by source id.",
	},
	[]string{"source_id"},
)

var PoolCircuitOpenTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "setupranali",
		Subsystem: "pool",
		Name:      "circuit_open_total",
		Help:      "Total number of times a source's circuit breaker opened.",
	},
	[]string{"source_id"},
)

var StreamsActive = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "setupranali",
		Subsystem: "stream",
		Name:      "active",
		Help:      "Number of currently active streams.",
	},
)

var StreamRowsSentTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "setupranali",
		Subsystem: "stream",
		Name:      "rows_sent_total",
		Help:      "Total rows sent over streams, by format.",
	},
	[]string{"format"},
)

var BatchQueriesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "setupranali",
		Subsystem: "batch",
		Name:      "queries_total",
		Help:      "Total sub-queries executed in batches, by terminal state.",
	},
	[]string{"state"},
)

var AnalyticsWriteFailuresTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "setupranali",
		Subsystem: "analytics",
		Name:      "write_failures_total",
		Help:      "Total number of query records dropped because the recorder failed to persist them.",
	},
)

// All returns the gateway's own collectors for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		QueriesTotal,
		QueryDuration,
		CacheHitsTotal,
		SingleFlightCoalescedTotal,
		RateLimitRejectedTotal,
		GuardRejectedTotal,
		PoolInUse,
		PoolCircuitOpenTotal,
		StreamsActive,
		StreamRowsSentTotal,
		BatchQueriesTotal,
		AnalyticsWriteFailuresTotal,
	}
}
