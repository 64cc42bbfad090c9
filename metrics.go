package goGraph

import (
	"sync/atomic"
	"time"
)

// MetricID names one counter of an App.
type MetricID uint16

const (
	// MetricCanvasAuthSuccess counts canvas authentications ending authenticated.
	MetricCanvasAuthSuccess MetricID = iota
	// MetricCanvasAuthFailure counts canvas authentications ending with an error.
	MetricCanvasAuthFailure
	// MetricOAuthAuthSuccess counts OAuth authentications ending authenticated.
	MetricOAuthAuthSuccess
	// MetricOAuthAuthFailure counts OAuth authentications ending with an error.
	MetricOAuthAuthFailure
	// MetricCodeExchange counts authorization-code exchanges attempted.
	MetricCodeExchange
	// MetricSignedRequestRejected counts signed payloads failing verification.
	MetricSignedRequestRejected
	// MetricSessionRestored counts sessions accepted from storage.
	MetricSessionRestored
	// MetricSessionDiscarded counts stored sessions dropped on re-verification.
	MetricSessionDiscarded
	// MetricSessionSaved counts sessions written to storage.
	MetricSessionSaved
	// MetricSessionCleared counts storage deletions.
	MetricSessionCleared
	// MetricStorageError counts storage load and save failures.
	MetricStorageError
	// MetricAppTokenFetch counts client-credential token fetches sent upstream.
	MetricAppTokenFetch
	// MetricAPICall counts outbound exchanges.
	MetricAPICall
	// MetricAPIError counts outbound exchanges ending with an error.
	MetricAPIError
	// MetricAPILatency is the outbound exchange latency histogram.
	MetricAPILatency
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

// Metrics is a fixed set of lock-free counters plus the API latency histogram.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns counters configured by cfg.
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

// Inc adds one to id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the histogram of id. Only MetricAPILatency has one.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricAPILatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current count of id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter. Disabled metrics yield empty maps.
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
		if id == MetricAPILatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricAPILatency].buckets[i])
		}
		s.Histograms[MetricAPILatency] = buckets
	}

	return s
}

// Upper bounds: 50ms, 100ms, 250ms, 500ms, 1s, 2.5s, 5s, +Inf.
func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 50:
		return 0
	case ms <= 100:
		return 1
	case ms <= 250:
		return 2
	case ms <= 500:
		return 3
	case ms <= 1000:
		return 4
	case ms <= 2500:
		return 5
	case ms <= 5000:
		return 6
	default:
		return 7
	}
}
