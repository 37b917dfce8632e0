package aegis

import (
	"testing"
	"time"
)

func TestLockoutWindowAndThreshold(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	policy := lockoutPolicy{
		config: LockoutConfig{Threshold: 5, Window: 15 * time.Minute, Duration: 15 * time.Minute},
		clock:  func() time.Time { return now },
	}
	user := &UserRecord{ID: "u1"}

	for i := 0; i < 4; i++ {
		if policy.recordFailure(user) {
			t.Fatalf("failure %d must not lock", i+1)
		}
	}
	if !policy.recordFailure(user) {
		t.Fatal("fifth failure must lock")
	}
	if locked, _ := policy.isLocked(user); !locked {
		t.Fatal("expected locked")
	}

	// The elapsed lock self-heals and clears the counters.
	now = now.Add(16 * time.Minute)
	locked, mutated := policy.isLocked(user)
	if locked || !mutated {
		t.Fatalf("expected self-heal: locked=%v mutated=%v", locked, mutated)
	}
	if user.FailedLoginAttempts != 0 || !user.LockedUntil.IsZero() {
		t.Fatalf("counters not cleared: %+v", user)
	}
}

func TestLockoutStaleFailureRestartsStreak(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	policy := lockoutPolicy{
		config: LockoutConfig{Threshold: 5, Window: 15 * time.Minute, Duration: 15 * time.Minute},
		clock:  func() time.Time { return now },
	}
	user := &UserRecord{ID: "u1"}

	for i := 0; i < 4; i++ {
		policy.recordFailure(user)
	}

	// A failure outside the window is the first of a fresh streak.
	now = now.Add(16 * time.Minute)
	if policy.recordFailure(user) {
		t.Fatal("stale streak must not lock")
	}
	if user.FailedLoginAttempts != 1 {
		t.Fatalf("expected restarted counter 1, got %d", user.FailedLoginAttempts)
	}
}

func TestLockoutSuccessResets(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	policy := lockoutPolicy{
		config: LockoutConfig{Threshold: 5, Window: 15 * time.Minute, Duration: 15 * time.Minute},
		clock:  func() time.Time { return now },
	}
	user := &UserRecord{ID: "u1"}

	policy.recordFailure(user)
	policy.recordFailure(user)
	policy.recordSuccess(user)

	if user.FailedLoginAttempts != 0 || !user.LastFailedLoginAt.IsZero() || !user.LockedUntil.IsZero() {
		t.Fatalf("counters not reset: %+v", user)
	}
}
