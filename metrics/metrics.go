// Package metrics defines the instrumentation surface of the ledger
// reader and its Prometheus and no-op implementations.
package metrics

import "time"

// Metrics is implemented by all metric sinks.
type Metrics interface {
	// Query metrics
	IncQueries(op string)
	IncQueryErrors(op string)
	ObserveQueryDuration(op string, d time.Duration)

	// Fetch metrics
	IncFetches(result string)
	ObserveFetchDuration(d time.Duration)
	ObserveStateSize(size int)

	// Cache metrics
	IncCacheHits()
	IncCacheMisses()
	IncCacheInvalidations()
	SetReadersCached(count int)

	// Backend metrics
	SetBackendKind(kind string)
	IncBackendCalls(fn string)
	IncBackendErrors(fn string)

	// Interpreter metrics
	IncProgramsRun(kind string)
	IncProgramDegrades()
	IncRecursionGuardTrips()

	// Snapshot store metrics
	IncSnapshotSaves()
	IncSnapshotReads()
	ObserveSnapshotLatency(op string, d time.Duration)

	// Handler returns an HTTP handler for scraping, or nil.
	Handler() any
}

// Fetch result labels.
const (
	FetchResultFound  = "found"
	FetchResultAbsent = "absent"
	FetchResultError  = "error"
)
