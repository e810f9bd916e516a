package goVault

import "sync/atomic"

// MetricID identifies one engine counter.
type MetricID uint8

const (
	MetricRegistration MetricID = iota
	MetricLoginSuccess
	MetricLoginFailure
	MetricLoginRateLimited
	MetricTokenIssued
	MetricTokenRejected
	MetricTwoFactorSuccess
	MetricTwoFactorFailure
	MetricTwoFactorRateLimited
	MetricBackupCodeUsed
	MetricBackupCodeFailed
	MetricBackupCodesRegenerated
	MetricEmailVerified
	MetricDecryptFallback
	MetricDecryptFailure
	MetricOwnershipDenied
	MetricSubscriptionDenied

	metricCount
)

var metricNames = [metricCount]string{
	"registration",
	"login_success",
	"login_failure",
	"login_rate_limited",
	"token_issued",
	"token_rejected",
	"two_factor_success",
	"two_factor_failure",
	"two_factor_rate_limited",
	"backup_code_used",
	"backup_code_failed",
	"backup_codes_regenerated",
	"email_verified",
	"decrypt_fallback",
	"decrypt_failure",
	"ownership_denied",
	"subscription_denied",
}

// Name returns the stable exported name for a metric.
func (id MetricID) Name() string {
	if id >= metricCount {
		return "unknown"
	}
	return metricNames[id]
}

// MetricIDs lists every counter, for exporters.
func MetricIDs() []MetricID {
	ids := make([]MetricID, 0, metricCount)
	for id := MetricID(0); id < metricCount; id++ {
		ids = append(ids, id)
	}
	return ids
}

// Metrics is a lock-free counter set. All methods are safe for concurrent
// use.
type Metrics struct {
	counters [metricCount]atomic.Uint64
}

func newMetrics(cfg MetricsConfig) *Metrics {
	if !cfg.Enabled {
		return nil
	}
	return &Metrics{}
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || id >= metricCount {
		return
	}
	m.counters[id].Add(1)
}

// Get returns the current value of one counter.
func (m *Metrics) Get(id MetricID) uint64 {
	if m == nil || id >= metricCount {
		return 0
	}
	return m.counters[id].Load()
}

// MetricsSnapshot is a point-in-time copy of every counter.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// Snapshot copies all counters. Counters keep advancing while the copy is
// taken; the snapshot is consistent per counter, not across them.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{Counters: make(map[MetricID]uint64, metricCount)}
	if m == nil {
		return snap
	}
	for id := MetricID(0); id < metricCount; id++ {
		snap.Counters[id] = m.counters[id].Load()
	}
	return snap
}
