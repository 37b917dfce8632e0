package aegis

import "time"

// lockoutPolicy evaluates and mutates the failed-attempt counters on a
// UserRecord. It never persists; callers write the record back through
// the UserStore so counters survive process restarts and are shared
// across instances.
type lockoutPolicy struct {
	config LockoutConfig
	clock  func() time.Time
}

// isLocked reports whether the account is currently locked. An elapsed
// lock self-heals: the lock and counters are cleared in place and the
// caller must persist the record.
func (p lockoutPolicy) isLocked(user *UserRecord) (locked, mutated bool) {
	if user.LockedUntil.IsZero() {
		return false, false
	}
	if p.clock().Before(user.LockedUntil) {
		return true, false
	}
	user.LockedUntil = time.Time{}
	user.FailedLoginAttempts = 0
	user.LastFailedLoginAt = time.Time{}
	return false, true
}

// recordFailure counts one failed attempt. A failure outside the
// rolling window restarts the count at one. Crossing the threshold
// sets LockedUntil.
func (p lockoutPolicy) recordFailure(user *UserRecord) (lockedNow bool) {
	now := p.clock()

	if !user.LastFailedLoginAt.IsZero() && now.Sub(user.LastFailedLoginAt) > p.config.Window {
		user.FailedLoginAttempts = 0
	}
	user.FailedLoginAttempts++
	user.LastFailedLoginAt = now

	if user.FailedLoginAttempts >= p.config.Threshold {
		user.LockedUntil = now.Add(p.config.Duration)
		return true
	}
	return false
}

// recordSuccess clears the counters after a fully verified login.
func (p lockoutPolicy) recordSuccess(user *UserRecord) {
	user.FailedLoginAttempts = 0
	user.LastFailedLoginAt = time.Time{}
	user.LockedUntil = time.Time{}
}
