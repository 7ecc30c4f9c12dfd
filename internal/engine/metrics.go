package engine

import "github.com/prometheus/client_golang/prometheus"

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crucible_runs_total",
			Help: "Total number of runs reaching a terminal state, by state.",
		},
		[]string{"state"},
	)

	activeRuns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "crucible_active_runs",
			Help: "Number of runs currently between creation and a terminal state.",
		},
	)

	runDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crucible_run_duration_seconds",
			Help:    "Wall-clock duration of executed run attempts, in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)

	cacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crucible_cache_hits_total",
			Help: "Total number of runs satisfied from the result store.",
		},
	)

	cacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crucible_cache_misses_total",
			Help: "Total number of cache lookups that found no usable record.",
		},
	)

	keyFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crucible_key_computation_failures_total",
			Help: "Total number of cache key computations degraded to no-cache.",
		},
	)

	retriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crucible_retries_total",
			Help: "Total number of retry attempts scheduled after failures.",
		},
	)

	hookFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crucible_hook_failures_total",
			Help: "Total number of hook callbacks that panicked.",
		},
	)

	emittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crucible_emitted_values_total",
			Help: "Total number of intermediate values emitted as child runs.",
		},
	)
)

func init() {
	prometheus.MustRegister(runsTotal)
	prometheus.MustRegister(activeRuns)
	prometheus.MustRegister(runDuration)
	prometheus.MustRegister(cacheHitsTotal)
	prometheus.MustRegister(cacheMissesTotal)
	prometheus.MustRegister(keyFailuresTotal)
	prometheus.MustRegister(retriesTotal)
	prometheus.MustRegister(hookFailuresTotal)
	prometheus.MustRegister(emittedTotal)
}
