// Package metrics holds the Prometheus collectors for status resolution.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets covers inference latencies from 100ms to 2 minutes.
var LLMBuckets = []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120}

var (
	// CacheLookupsTotal counts cache lookups by result (hit, miss).
	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "propstatus_cache_lookups_total",
			Help: "Status cache lookups",
		},
		[]string{"result"},
	)

	// CacheEntries is the number of entries held by the status cache,
	// including stale ones not yet looked up.
	CacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "propstatus_cache_entries",
			Help: "Entries held by the status cache",
		},
	)

	// ProviderAttemptsTotal counts candidate attempts by outcome.
	ProviderAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "propstatus_provider_attempts_total",
			Help: "Candidate model attempts",
		},
		[]string{"provider", "model", "outcome"},
	)

	// ProviderLatency records candidate invocation latency in seconds.
	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "propstatus_provider_latency_seconds",
			Help:    "Candidate invocation latency",
			Buckets: LLMBuckets,
		},
		[]string{"provider", "model"},
	)

	// ResolutionsTotal counts finished resolutions by source
	// (cache, provider, placeholder, report).
	ResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "propstatus_resolutions_total",
			Help: "Resolutions returned to callers",
		},
		[]string{"source"},
	)

	// SearchLookupsTotal counts search augmentation lookups.
	SearchLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "propstatus_search_lookups_total",
			Help: "Search augmentation lookups",
		},
		[]string{"provider", "result"},
	)

	// BatchInFlight tracks batch resolutions currently holding a slot.
	BatchInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "propstatus_batch_inflight",
			Help: "Batch resolutions in flight",
		},
	)

	// BackgroundTasks tracks detached resolutions still running after the
	// foreground wait timed out.
	BackgroundTasks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "propstatus_background_tasks",
			Help: "Detached resolutions in progress",
		},
	)

	// StatusWritebacksTotal counts statuses written back by the refresh scheduler.
	StatusWritebacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "propstatus_status_writebacks_total",
			Help: "Property status write-backs",
		},
		[]string{"tenant", "result"},
	)

	// ProviderTokensTotal counts completion tokens by direction (input, output).
	ProviderTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "propstatus_provider_tokens_total",
			Help: "Completion tokens reported by providers",
		},
		[]string{"provider", "model", "direction"},
	)

	// EstimatedSpendUSD accumulates the estimated spend of inference and
	// search calls by service.
	EstimatedSpendUSD = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "propstatus_estimated_spend_usd_total",
			Help: "Estimated upstream spend in USD",
		},
		[]string{"service"},
	)
)

func init() {
	prometheus.MustRegister(
		CacheLookupsTotal,
		CacheEntries,
		ProviderAttemptsTotal,
		ProviderLatency,
		ResolutionsTotal,
		SearchLookupsTotal,
		BatchInFlight,
		BackgroundTasks,
		StatusWritebacksTotal,
		ProviderTokensTotal,
		EstimatedSpendUSD,
	)
}
