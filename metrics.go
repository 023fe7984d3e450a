package bindflow

import (
	"sync/atomic"
	"time"
)

// MetricID defines a public type used by bindflow APIs.
//
// MetricID instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricID uint16

const (
	// MetricRecoveryRequest is an exported constant or variable used by the flow engine.
	MetricRecoveryRequest MetricID = iota
	// MetricRecoveryRequestFailure is an exported constant or variable used by the flow engine.
	MetricRecoveryRequestFailure
	// MetricRecoveryCodeSuccess is an exported constant or variable used by the flow engine.
	MetricRecoveryCodeSuccess
	// MetricRecoveryCodeFailure is an exported constant or variable used by the flow engine.
	MetricRecoveryCodeFailure
	// MetricRecoveryComplete is an exported constant or variable used by the flow engine.
	MetricRecoveryComplete
	// MetricRecoveryRestart is an exported constant or variable used by the flow engine.
	MetricRecoveryRestart
	// MetricBindCredentialsSuccess is an exported constant or variable used by the flow engine.
	MetricBindCredentialsSuccess
	// MetricBindCredentialsFailure is an exported constant or variable used by the flow engine.
	MetricBindCredentialsFailure
	// MetricBindCodeSuccess is an exported constant or variable used by the flow engine.
	MetricBindCodeSuccess
	// MetricBindCodeFailure is an exported constant or variable used by the flow engine.
	MetricBindCodeFailure
	// MetricBindComplete is an exported constant or variable used by the flow engine.
	MetricBindComplete
	// MetricBindRestart is an exported constant or variable used by the flow engine.
	MetricBindRestart
	// MetricStaleResultDiscarded is an exported constant or variable used by the flow engine.
	MetricStaleResultDiscarded
	// MetricResendThrottled is an exported constant or variable used by the flow engine.
	MetricResendThrottled
	// MetricSessionSet is an exported constant or variable used by the flow engine.
	MetricSessionSet
	// MetricSessionCleared is an exported constant or variable used by the flow engine.
	MetricSessionCleared
	// MetricProfileRefreshSuccess is an exported constant or variable used by the flow engine.
	MetricProfileRefreshSuccess
	// MetricProfileRefreshFailure is an exported constant or variable used by the flow engine.
	MetricProfileRefreshFailure
	// MetricIdentityBindSuccess is an exported constant or variable used by the flow engine.
	MetricIdentityBindSuccess
	// MetricIdentityBindFailure is an exported constant or variable used by the flow engine.
	MetricIdentityBindFailure
	// MetricIdentityAbandoned is an exported constant or variable used by the flow engine.
	MetricIdentityAbandoned
	// MetricRequestLatency is an exported constant or variable used by the flow engine.
	MetricRequestLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is the engine's atomic counter set. Counters are cache-line
// padded; the single latency histogram covers collaborator round-trips.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot defines a public type used by bindflow APIs.
//
// MetricsSnapshot instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics builds a Metrics set from config. A disabled set is a cheap
// no-op on every path.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether the set records anything at all.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether latency observations are recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc increments the counter for id. Safe for concurrent use.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records one latency sample for id. Only the request latency
// histogram is populated.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricRequestLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value reads one counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies the full counter and histogram state. The snapshot is not
// atomic across counters; individual reads are.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricRequestLatency].buckets[i])
		}
		s.Histograms[MetricRequestLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
