package aegis

import "sync/atomic"

// MetricID indexes an engine counter.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginLocked
	MetricRegisterSuccess
	MetricRegisterDuplicate
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricRefreshReuseDetected
	MetricMFAChallengeIssued
	MetricMFASuccess
	MetricMFAFailure
	MetricBackupCodeUsed
	MetricSessionCreated
	MetricSessionRevoked
	MetricNewLocationLogin
	MetricLogout
	MetricLogoutAll
	MetricPasswordChange
	MetricPasswordResetRequest
	MetricPasswordResetConfirm
	MetricEmailVerified
	MetricAccessVerifySuccess
	MetricAccessVerifyFailure
	metricIDCount
)

var metricNames = [metricIDCount]string{
	MetricLoginSuccess:         "login_success",
	MetricLoginFailure:         "login_failure",
	MetricLoginLocked:          "login_locked",
	MetricRegisterSuccess:      "register_success",
	MetricRegisterDuplicate:    "register_duplicate",
	MetricRefreshSuccess:       "refresh_success",
	MetricRefreshFailure:       "refresh_failure",
	MetricRefreshReuseDetected: "refresh_reuse_detected",
	MetricMFAChallengeIssued:   "mfa_challenge_issued",
	MetricMFASuccess:           "mfa_success",
	MetricMFAFailure:           "mfa_failure",
	MetricBackupCodeUsed:       "backup_code_used",
	MetricSessionCreated:       "session_created",
	MetricSessionRevoked:       "session_revoked",
	MetricNewLocationLogin:     "new_location_login",
	MetricLogout:               "logout",
	MetricLogoutAll:            "logout_all",
	MetricPasswordChange:       "password_change",
	MetricPasswordResetRequest: "password_reset_request",
	MetricPasswordResetConfirm: "password_reset_confirm",
	MetricEmailVerified:        "email_verified",
	MetricAccessVerifySuccess:  "access_verify_success",
	MetricAccessVerifyFailure:  "access_verify_failure",
}

// Name returns the stable export name of the metric.
func (id MetricID) Name() string {
	if id >= metricIDCount {
		return "unknown"
	}
	return metricNames[id]
}

// MetricIDs lists every counter, for exporters.
func MetricIDs() []MetricID {
	ids := make([]MetricID, 0, int(metricIDCount))
	for id := MetricID(0); id < metricIDCount; id++ {
		ids = append(ids, id)
	}
	return ids
}

const cacheLineSize = 64

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed array of atomic counters. A nil or disabled
// Metrics is a no-op on every method.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]paddedCounter
}

// NewMetrics returns a counter set per cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Enabled reports whether counters are collected.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc bumps a counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Value reads a single counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// MetricsSnapshot is a point-in-time copy of every counter.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// Snapshot copies all counters at once.
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{Counters: make(map[MetricID]uint64, int(metricIDCount))}
	if m == nil || !m.enabled {
		return s
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	return s
}
