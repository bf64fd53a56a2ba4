package authsync

import (
	"sync/atomic"
	"time"
)

// MetricID names one counter of the reconciler.
type MetricID uint16

const (
	// MetricInitialize counts Initialize passes started.
	MetricInitialize MetricID = iota
	// MetricInitializeNoSession counts passes that found no session.
	MetricInitializeNoSession
	// MetricSessionQueryFailure counts session queries that failed in transport.
	MetricSessionQueryFailure
	// MetricProfileHit counts profile lookups that returned a row.
	MetricProfileHit
	// MetricProfileMiss counts lookups that found no row.
	MetricProfileMiss
	// MetricProfileLookupFailure counts lookups that failed in transport.
	MetricProfileLookupFailure
	// MetricProfileRetry counts waits between profile attempts.
	MetricProfileRetry
	// MetricProfileRetryExhausted counts Initialize passes that ended without a profile.
	MetricProfileRetryExhausted
	// MetricStaleWriteDiscarded counts results dropped because the user changed.
	MetricStaleWriteDiscarded
	// MetricEventSignedIn counts signed-in change events.
	MetricEventSignedIn
	// MetricEventSignedOut counts signed-out change events.
	MetricEventSignedOut
	// MetricEventTokenRefreshed counts token-refreshed change events.
	MetricEventTokenRefreshed
	// MetricSignOut counts SignOut calls.
	MetricSignOut
	// MetricSignOutFailure counts SignOut calls whose external sign-out failed.
	MetricSignOutFailure
	// MetricMount counts Mount calls.
	MetricMount
	// MetricUnmount counts effective Unmount calls.
	MetricUnmount
	// MetricGuardRender counts guard decisions to render.
	MetricGuardRender
	// MetricGuardWait counts guard decisions to wait.
	MetricGuardWait
	// MetricGuardRedirect counts guard decisions to redirect.
	MetricGuardRedirect
	// MetricGuardSelfHeal counts profile refreshes triggered by the guard.
	MetricGuardSelfHeal
	// MetricInitializeLatency is the Initialize duration histogram.
	MetricInitializeLatency
	metricIDCount
)

// MetricIDCount is the number of defined MetricIDs.
const MetricIDCount = int(metricIDCount)

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

// Metrics is a fixed set of lock-free counters plus one latency histogram.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics allocates counters according to cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters record.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the latency histogram records.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to the counter id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the histogram id. Only MetricInitializeLatency
// carries a histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricInitializeLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current count for id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies all counters and, when enabled, the latency histogram.
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
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricInitializeLatency].buckets[i])
		}
		s.Histograms[MetricInitializeLatency] = buckets
	}

	return s
}

// Bucket upper bounds follow the retry cadence: a clean pass lands in the
// first buckets, each retry adds one Delay.
func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 10:
		return 0
	case ms <= 50:
		return 1
	case ms <= 100:
		return 2
	case ms <= 250:
		return 3
	case ms <= 600:
		return 4
	case ms <= 1100:
		return 5
	case ms <= 2500:
		return 6
	default:
		return 7
	}
}
