package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	queriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabquery_queries_total",
			Help: "Total number of query attempts by status, error class and engine.",
		},
		[]string{"status", "class", "engine"},
	)
	queryLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tabquery_query_latency_ms",
			Help:    "Query execution latency in milliseconds.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000, 30000},
		},
		[]string{"engine"},
	)
	ingestRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabquery_ingest_rows_total",
			Help: "Total number of ingested rows by outcome.",
		},
		[]string{"outcome"},
	)
	execlogWriteFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tabquery_execlog_write_failures_total",
			Help: "Total number of execution records that could not be written.",
		},
	)
	engineDegraded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tabquery_engine_degraded",
			Help: "1 when the volatile engine is unavailable and the fallback interpreter is in use.",
		},
	)
	decodeCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tabquery_decode_cache_hits_total",
			Help: "Total number of session decodes served from the cache.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		queriesTotal,
		queryLatencyMs,
		ingestRowsTotal,
		execlogWriteFailuresTotal,
		engineDegraded,
		decodeCacheHitsTotal,
	)
}

// ObserveQuery records one query attempt. class is empty on success.
func ObserveQuery(status, class, engine string, elapsed time.Duration) {
	queriesTotal.WithLabelValues(status, class, engine).Inc()
	if engine != "" {
		queryLatencyMs.WithLabelValues(engine).Observe(float64(elapsed.Milliseconds()))
	}
}

// ObserveIngest records the outcome of one materialization.
func ObserveIngest(inserted, skipped, coerced int) {
	if inserted > 0 {
		ingestRowsTotal.WithLabelValues("inserted").Add(float64(inserted))
	}
	if skipped > 0 {
		ingestRowsTotal.WithLabelValues("skipped").Add(float64(skipped))
	}
	if coerced > 0 {
		ingestRowsTotal.WithLabelValues("coerced").Add(float64(coerced))
	}
}

// IncrementExecLogWriteFailures counts a dropped execution record.
func IncrementExecLogWriteFailures() {
	execlogWriteFailuresTotal.Inc()
}

// SetEngineDegraded exports the fallback state.
func SetEngineDegraded(degraded bool) {
	if degraded {
		engineDegraded.Set(1)
		return
	}
	engineDegraded.Set(0)
}

// IncrementDecodeCacheHits counts a cache hit.
func IncrementDecodeCacheHits() {
	decodeCacheHitsTotal.Inc()
}
