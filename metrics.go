package mfakit

import (
	"sync/atomic"
	"time"
)

// MetricID identifies a counter or histogram in the in-process metrics
// system.
type MetricID uint16

const (
	// MetricSetupStarted counts successful StartSetup operations.
	MetricSetupStarted MetricID = iota
	// MetricSetupDeliveryFailed counts code sends rejected by the sender.
	MetricSetupDeliveryFailed
	// MetricSetupVerified counts method enables via VerifySetup.
	MetricSetupVerified
	// MetricSetupFailed counts failed verification attempts.
	MetricSetupFailed
	// MetricSetupExpired counts verifications rejected for expiry.
	MetricSetupExpired
	// MetricAttemptsExceeded counts challenges destroyed by the attempt cap.
	MetricAttemptsExceeded
	// MetricMethodDisabled counts Disable operations.
	MetricMethodDisabled
	// MetricBackupCodesGenerated counts backup code set generations.
	MetricBackupCodesGenerated
	// MetricBackupCodeUsed counts successful backup code redemptions.
	MetricBackupCodeUsed
	// MetricBackupCodeFailed counts failed backup code redemptions.
	MetricBackupCodeFailed
	// MetricWebAuthnStarted counts started registration ceremonies.
	MetricWebAuthnStarted
	// MetricWebAuthnCompleted counts completed registration ceremonies.
	MetricWebAuthnCompleted
	// MetricWebAuthnFailed counts rejected registration ceremonies.
	MetricWebAuthnFailed
	// MetricRateLimitHit counts rate-limit denials across all scopes.
	MetricRateLimitHit
	// MetricVerifyLatency is the VerifySetup latency histogram.
	MetricVerifyLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

// counters are padded to a cache line each to keep hot increments from
// false-sharing under concurrency
type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds atomic counters and an optional latency histogram.
// All operations are no-ops when disabled.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all metric values.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricVerifyLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

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
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricVerifyLatency].buckets[i])
		}
		s.Histograms[MetricVerifyLatency] = buckets
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
