package metrics

import "time"

// NopMetrics is a no-op implementation of the Metrics interface.
// Use this when metrics collection is disabled.
type NopMetrics struct{}

// NewNopMetrics creates a new NopMetrics instance.
func NewNopMetrics() *NopMetrics {
	return &NopMetrics{}
}

var _ Metrics = (*NopMetrics)(nil)

// Query metrics (no-op)

func (m *NopMetrics) IncQueries(op string)                            {}
func (m *NopMetrics) IncQueryErrors(op string)                        {}
func (m *NopMetrics) ObserveQueryDuration(op string, d time.Duration) {}

// Fetch metrics (no-op)

func (m *NopMetrics) IncFetches(result string)             {}
func (m *NopMetrics) ObserveFetchDuration(d time.Duration) {}
func (m *NopMetrics) ObserveStateSize(size int)            {}

// Cache metrics (no-op)

func (m *NopMetrics) IncCacheHits()              {}
func (m *NopMetrics) IncCacheMisses()            {}
func (m *NopMetrics) IncCacheInvalidations()     {}
func (m *NopMetrics) SetReadersCached(count int) {}

// Backend metrics (no-op)

func (m *NopMetrics) SetBackendKind(kind string) {}
func (m *NopMetrics) IncBackendCalls(fn string)  {}
func (m *NopMetrics) IncBackendErrors(fn string) {}

// Interpreter metrics (no-op)

func (m *NopMetrics) IncProgramsRun(kind string) {}
func (m *NopMetrics) IncProgramDegrades()        {}
func (m *NopMetrics) IncRecursionGuardTrips()    {}

// Snapshot store metrics (no-op)

func (m *NopMetrics) IncSnapshotSaves()                                 {}
func (m *NopMetrics) IncSnapshotReads()                                 {}
func (m *NopMetrics) ObserveSnapshotLatency(op string, d time.Duration) {}

// Handler returns nil since there's nothing to serve.
func (m *NopMetrics) Handler() any {
	return nil
}
