package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	cacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_cache_hits_total",
			Help: "Total number of semantic cache hits by match kind.",
		},
		[]string{"kind"},
	)
	cacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askdb_cache_misses_total",
			Help: "Total number of semantic cache misses.",
		},
	)
	cacheEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askdb_cache_evictions_total",
			Help: "Total number of cache entries evicted by the LRU policy.",
		},
	)
	cacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "askdb_cache_entries",
			Help: "Current number of entries in the semantic cache.",
		},
	)
	cacheTimeSavedSeconds = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askdb_cache_time_saved_seconds_total",
			Help: "Cumulative wall-clock seconds saved by cache hits.",
		},
	)
	pipelineRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdb_pipeline_requests_total",
			Help: "Total number of pipeline requests by terminal outcome.",
		},
		[]string{"outcome"},
	)
	pipelineStageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "askdb_pipeline_stage_duration_seconds",
			Help:    "Pipeline stage latency by stage name.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"stage"},
	)
)

func init() {
	prometheus.MustRegister(
		cacheHitsTotal,
		cacheMissesTotal,
		cacheEvictionsTotal,
		cacheEntries,
		cacheTimeSavedSeconds,
		pipelineRequestsTotal,
		pipelineStageDurationSeconds,
	)
}

func ObserveCacheHit(kind string, timeSaved time.Duration) {
	cacheHitsTotal.WithLabelValues(kind).Inc()
	if timeSaved > 0 {
		cacheTimeSavedSeconds.Add(timeSaved.Seconds())
	}
}

func ObserveCacheMiss() {
	cacheMissesTotal.Inc()
}

func ObserveCacheEviction() {
	cacheEvictionsTotal.Inc()
}

func SetCacheEntries(count int) {
	if count < 0 {
		count = 0
	}
	cacheEntries.Set(float64(count))
}

func ObservePipelineOutcome(outcome string) {
	pipelineRequestsTotal.WithLabelValues(outcome).Inc()
}

func ObserveStageDuration(stage string, elapsed time.Duration) {
	pipelineStageDurationSeconds.WithLabelValues(stage).Observe(elapsed.Seconds())
}
