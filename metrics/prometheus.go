package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics implements the Metrics interface using Prometheus.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	// Query metrics
	queries       *prometheus.CounterVec
	queryErrors   *prometheus.CounterVec
	queryDuration *prometheus.HistogramVec

	// Fetch metrics
	fetches       *prometheus.CounterVec
	fetchDuration prometheus.Histogram
	stateSize     prometheus.Histogram

	// Cache metrics
	cacheHits          prometheus.Counter
	cacheMisses        prometheus.Counter
	cacheInvalidations prometheus.Counter
	readersCached      prometheus.Gauge

	// Backend metrics
	backendKind   *prometheus.GaugeVec
	backendCalls  *prometheus.CounterVec
	backendErrors *prometheus.CounterVec

	// Interpreter metrics
	programsRun         *prometheus.CounterVec
	programDegrades     prometheus.Counter
	recursionGuardTrips prometheus.Counter

	// Snapshot store metrics
	snapshotSaves   prometheus.Counter
	snapshotReads   prometheus.Counter
	snapshotLatency *prometheus.HistogramVec
}

// NewPrometheusMetrics creates a new PrometheusMetrics instance.
func NewPrometheusMetrics(namespace string) *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	m := &PrometheusMetrics{
		registry: registry,

		// Query metrics
		queries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queries_total",
				Help:      "Total number of ledger queries by operation",
			},
			[]string{"op"},
		),
		queryErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "query_errors_total",
				Help:      "Total number of failed ledger queries by operation",
			},
			[]string{"op"},
		),
		queryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "query_duration_seconds",
				Help:      "Duration of ledger queries",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"op"},
		),

		// Fetch metrics
		fetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetches_total",
				Help:      "Total number of state fetches by result",
			},
			[]string{"result"},
		),
		fetchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_duration_seconds",
				Help:      "Duration of state fetches from the indexer",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
		),
		stateSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "state_size_bytes",
				Help:      "Size of fetched raw contract state",
				Buckets:   prometheus.ExponentialBuckets(100, 4, 10), // 100 bytes to ~26 MB
			},
		),

		// Cache metrics
		cacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Total number of state cache hits",
			},
		),
		cacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Total number of state cache misses",
			},
		),
		cacheInvalidations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_invalidations_total",
				Help:      "Total number of cached states invalidated by feed updates",
			},
		),
		readersCached: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "readers_cached",
				Help:      "Number of per-contract readers currently cached",
			},
		),

		// Backend metrics
		backendKind: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "backend_kind",
				Help:      "Selected runtime backend (1 = active)",
			},
			[]string{"kind"},
		),
		backendCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_calls_total",
				Help:      "Total number of backend evaluations by function",
			},
			[]string{"fn"},
		),
		backendErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_errors_total",
				Help:      "Total number of backend evaluation errors by function",
			},
			[]string{"fn"},
		),

		// Interpreter metrics
		programsRun: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "programs_run_total",
				Help:      "Total number of query programs executed by kind",
			},
			[]string{"kind"},
		),
		programDegrades: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "program_degrades_total",
				Help:      "Total number of index steps that degraded to the last resolved value",
			},
		),
		recursionGuardTrips: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "recursion_guard_trips_total",
				Help:      "Total number of re-entrant program runs answered neutrally",
			},
		),

		// Snapshot store metrics
		snapshotSaves: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "snapshot_saves_total",
				Help:      "Total number of snapshot store save operations",
			},
		),
		snapshotReads: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "snapshot_reads_total",
				Help:      "Total number of snapshot store read operations",
			},
		),
		snapshotLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "snapshot_latency_seconds",
				Help:      "Latency of snapshot store operations",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"op"},
		),
	}

	// Register all metrics
	m.registerMetrics()

	return m
}

func (m *PrometheusMetrics) registerMetrics() {
	m.registry.MustRegister(
		// Query metrics
		m.queries,
		m.queryErrors,
		m.queryDuration,

		// Fetch metrics
		m.fetches,
		m.fetchDuration,
		m.stateSize,

		// Cache metrics
		m.cacheHits,
		m.cacheMisses,
		m.cacheInvalidations,
		m.readersCached,

		// Backend metrics
		m.backendKind,
		m.backendCalls,
		m.backendErrors,

		// Interpreter metrics
		m.programsRun,
		m.programDegrades,
		m.recursionGuardTrips,

		// Snapshot store metrics
		m.snapshotSaves,
		m.snapshotReads,
		m.snapshotLatency,
	)
}

// Query metrics implementation

func (m *PrometheusMetrics) IncQueries(op string) {
	m.queries.WithLabelValues(op).Inc()
}

func (m *PrometheusMetrics) IncQueryErrors(op string) {
	m.queryErrors.WithLabelValues(op).Inc()
}

func (m *PrometheusMetrics) ObserveQueryDuration(op string, d time.Duration) {
	m.queryDuration.WithLabelValues(op).Observe(d.Seconds())
}

// Fetch metrics implementation

func (m *PrometheusMetrics) IncFetches(result string) {
	m.fetches.WithLabelValues(result).Inc()
}

func (m *PrometheusMetrics) ObserveFetchDuration(d time.Duration) {
	m.fetchDuration.Observe(d.Seconds())
}

func (m *PrometheusMetrics) ObserveStateSize(size int) {
	m.stateSize.Observe(float64(size))
}

// Cache metrics implementation

func (m *PrometheusMetrics) IncCacheHits() {
	m.cacheHits.Inc()
}

func (m *PrometheusMetrics) IncCacheMisses() {
	m.cacheMisses.Inc()
}

func (m *PrometheusMetrics) IncCacheInvalidations() {
	m.cacheInvalidations.Inc()
}

func (m *PrometheusMetrics) SetReadersCached(count int) {
	m.readersCached.Set(float64(count))
}

// Backend metrics implementation

func (m *PrometheusMetrics) SetBackendKind(kind string) {
	// Reset both kinds, then mark the active one.
	m.backendKind.WithLabelValues("native").Set(0)
	m.backendKind.WithLabelValues("compat").Set(0)
	m.backendKind.WithLabelValues(kind).Set(1)
}

func (m *PrometheusMetrics) IncBackendCalls(fn string) {
	m.backendCalls.WithLabelValues(fn).Inc()
}

func (m *PrometheusMetrics) IncBackendErrors(fn string) {
	m.backendErrors.WithLabelValues(fn).Inc()
}

// Interpreter metrics implementation

func (m *PrometheusMetrics) IncProgramsRun(kind string) {
	m.programsRun.WithLabelValues(kind).Inc()
}

func (m *PrometheusMetrics) IncProgramDegrades() {
	m.programDegrades.Inc()
}

func (m *PrometheusMetrics) IncRecursionGuardTrips() {
	m.recursionGuardTrips.Inc()
}

// Snapshot store metrics implementation

func (m *PrometheusMetrics) IncSnapshotSaves() {
	m.snapshotSaves.Inc()
}

func (m *PrometheusMetrics) IncSnapshotReads() {
	m.snapshotReads.Inc()
}

func (m *PrometheusMetrics) ObserveSnapshotLatency(op string, d time.Duration) {
	m.snapshotLatency.WithLabelValues(op).Observe(d.Seconds())
}

// Handler returns an HTTP handler for serving metrics.
func (m *PrometheusMetrics) Handler() any {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		Registry: m.registry,
	})
}

// HTTPHandler returns a typed HTTP handler for serving metrics.
func (m *PrometheusMetrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		Registry: m.registry,
	})
}
