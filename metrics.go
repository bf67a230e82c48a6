package passkey

import "sync/atomic"

// MetricID identifies one engine counter.
type MetricID uint16

const (
	// MetricRegistrationBegin counts started registration ceremonies.
	MetricRegistrationBegin MetricID = iota
	// MetricRegistrationSuccess counts persisted credentials.
	MetricRegistrationSuccess
	// MetricRegistrationFailure counts rejected registration responses.
	MetricRegistrationFailure
	// MetricAuthenticationBegin counts started authentication ceremonies.
	MetricAuthenticationBegin
	// MetricAuthenticationSuccess counts verified assertions.
	MetricAuthenticationSuccess
	// MetricAuthenticationFailure counts rejected assertions.
	MetricAuthenticationFailure
	// MetricChallengeReplay counts verification attempts against an
	// expired or already-consumed challenge.
	MetricChallengeReplay
	// MetricCounterSuspicious counts sign counters that failed to
	// advance past a nonzero stored value.
	MetricCounterSuspicious
	// MetricCacheDegraded counts challenge writes that fell back to the
	// in-memory store.
	MetricCacheDegraded
	metricIDCount
)

const cacheLineSize = 64

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed set of lock-free counters. A nil or disabled Metrics
// is a no-op on every method.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]paddedCounter
}

// MetricsSnapshot is a point-in-time copy of every counter.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// NewMetrics returns a Metrics honoring cfg.Enabled.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Inc increments one counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Value reads one counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies all counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{Counters: make(map[MetricID]uint64, metricIDCount)}
	if m == nil {
		return snap
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		snap.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	return snap
}
