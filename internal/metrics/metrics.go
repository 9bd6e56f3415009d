package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels requests that produced a result.
	OutcomeSuccess = "success"
	// OutcomeDegraded labels requests answered past budget or from stale data.
	OutcomeDegraded = "degraded"
	// OutcomeError labels failed requests.
	OutcomeError = "error"
)

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scooby",
			Name:      "requests_total",
			Help:      "Total analysis requests handled, partitioned by tier and outcome.",
		},
		[]string{"tier", "outcome"},
	)

	requestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "scooby",
			Name:      "request_seconds",
			Help:      "End-to-end analysis latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 10, 30, 60},
		},
		[]string{"tier"},
	)

	cacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scooby",
			Name:      "cache_lookups_total",
			Help:      "Cache lookups partitioned by level (exact/approximate) and result.",
		},
		[]string{"level", "result"},
	)

	oracleCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scooby",
			Name:      "oracle_calls_total",
			Help:      "Oracle gateway calls partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	oracleRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "scooby",
			Name:      "oracle_retries_total",
			Help:      "Transient oracle failures that triggered a retry.",
		},
	)

	gatewayQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "scooby",
			Name:      "gateway_queue_depth",
			Help:      "Requests currently queued behind the oracle quota.",
		},
	)

	feedbackSignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scooby",
			Name:      "feedback_signals_total",
			Help:      "Feedback signals consumed, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	cacheEntries = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "scooby",
			Name:      "cache_entries",
			Help:      "Live cache entries partitioned by pinned state.",
		},
		[]string{"pinned"},
	)
)

// Register attaches all engine collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		requestsTotal,
		requestDurationSeconds,
		cacheLookupsTotal,
		oracleCallsTotal,
		oracleRetriesTotal,
		gatewayQueueDepth,
		feedbackSignalsTotal,
		cacheEntries,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveRequest records one analysis request with its tier, outcome, and latency.
func ObserveRequest(tier string, duration time.Duration, outcome string) {
	switch outcome {
	case OutcomeError, OutcomeDegraded:
	default:
		outcome = OutcomeSuccess
	}
	requestsTotal.WithLabelValues(tier, outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	requestDurationSeconds.WithLabelValues(tier).Observe(duration.Seconds())
}

// ObserveCacheLookup records a cache probe at the given level.
func ObserveCacheLookup(level string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookupsTotal.WithLabelValues(level, result).Inc()
}

// ObserveOracleCall records a completed gateway call.
func ObserveOracleCall(outcome string) {
	if outcome != OutcomeError {
		outcome = OutcomeSuccess
	}
	oracleCallsTotal.WithLabelValues(outcome).Inc()
}

// ObserveOracleRetry counts one transient failure retry.
func ObserveOracleRetry() {
	oracleRetriesTotal.Inc()
}

// SetGatewayQueueDepth reports the current quota queue length.
func SetGatewayQueueDepth(depth int) {
	gatewayQueueDepth.Set(float64(depth))
}

// ObserveFeedback records one consumed validation signal.
func ObserveFeedback(outcome string) {
	feedbackSignalsTotal.WithLabelValues(outcome).Inc()
}

// SetCacheEntries reports live entry counts split by pinned state.
func SetCacheEntries(total, pinned int) {
	cacheEntries.WithLabelValues("false").Set(float64(total - pinned))
	cacheEntries.WithLabelValues("true").Set(float64(pinned))
}
