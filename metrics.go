package tollgate

import "sync/atomic"

// MetricID identifies one gateway counter.
type MetricID uint16

const (
	MetricBasicSuccess MetricID = iota
	MetricBasicFailure
	MetricBasicRateLimited
	MetricTokenIssued
	MetricBearerSuccess
	MetricBearerFailure
	MetricTokenRevokedRejected
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricTokenRevoked
	MetricSessionCreated
	MetricSessionEvicted
	MetricSessionRevoked
	MetricSweepSessionsPurged
	MetricSweepBlacklistPurged
	metricIDCount
)

var metricNames = [metricIDCount]string{
	MetricBasicSuccess:         "basic_success",
	MetricBasicFailure:         "basic_failure",
	MetricBasicRateLimited:     "basic_rate_limited",
	MetricTokenIssued:          "token_issued",
	MetricBearerSuccess:        "bearer_success",
	MetricBearerFailure:        "bearer_failure",
	MetricTokenRevokedRejected: "token_revoked_rejected",
	MetricRefreshSuccess:       "refresh_success",
	MetricRefreshFailure:       "refresh_failure",
	MetricTokenRevoked:         "token_revoked",
	MetricSessionCreated:       "session_created",
	MetricSessionEvicted:       "session_evicted",
	MetricSessionRevoked:       "session_revoked",
	MetricSweepSessionsPurged:  "sweep_sessions_purged",
	MetricSweepBlacklistPurged: "sweep_blacklist_purged",
}

// Name returns the metric's stable snake_case identifier.
func (id MetricID) Name() string {
	if id >= metricIDCount {
		return "unknown"
	}
	return metricNames[id]
}

const cacheLineSize = 64

// Counters are padded so hot increments on different IDs do not share a
// cache line.
type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds the gateway's counters. A nil or disabled Metrics accepts
// increments and reports zeros.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]paddedCounter
}

// MetricsSnapshot is a point-in-time copy of every counter.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// NewMetrics builds the counter set.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Enabled reports whether counters are being recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc bumps one counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Add bumps one counter by n.
func (m *Metrics) Add(id MetricID, n uint64) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, n)
}

// Value reads one counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}

	s := MetricsSnapshot{Counters: make(map[MetricID]uint64, int(metricIDCount))}
	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	return s
}

// MetricIDs lists every defined counter in declaration order.
func MetricIDs() []MetricID {
	ids := make([]MetricID, 0, int(metricIDCount))
	for id := MetricID(0); id < metricIDCount; id++ {
		ids = append(ids, id)
	}
	return ids
}
