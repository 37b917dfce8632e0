package session

import (
	"testing"
	"time"
)

func priorSession(fingerprint, ip, location string, revoked bool) *Session {
	s := &Session{
		ID:                "prior",
		UserID:            "u1",
		DeviceFingerprint: fingerprint,
		IPAddress:         ip,
		Location:          location,
		ExpiresAt:         time.Now().Add(time.Hour),
	}
	if revoked {
		s.RevokedAt = time.Now()
	}
	return s
}

func TestTrustScoreNoHistory(t *testing.T) {
	got := TrustScore(Device{Fingerprint: "fp", IPAddress: "1.2.3.4", Location: "Berlin"}, nil)
	if got != 50 {
		t.Fatalf("no history must score exactly 50, got %d", got)
	}
}

func TestTrustScoreFullMatchClamped(t *testing.T) {
	prior := []*Session{priorSession("fp", "1.2.3.4", "Berlin", false)}
	got := TrustScore(Device{Fingerprint: "fp", IPAddress: "1.2.3.4", Location: "Berlin"}, prior)
	if got != 100 {
		t.Fatalf("50+30+20+10 must clamp to 100, got %d", got)
	}
}

func TestTrustScoreUnfamiliarLocation(t *testing.T) {
	prior := []*Session{priorSession("fp", "1.2.3.4", "Berlin", false)}
	got := TrustScore(Device{Fingerprint: "other", IPAddress: "9.9.9.9", Location: "Osaka"}, prior)
	if got != 30 {
		t.Fatalf("unfamiliar location should score 50-20=30, got %d", got)
	}
}

func TestTrustScoreNoCandidateLocation(t *testing.T) {
	prior := []*Session{priorSession("fp", "1.2.3.4", "Berlin", false)}
	// Without a reported location there is neither bonus nor penalty.
	got := TrustScore(Device{Fingerprint: "other", IPAddress: "9.9.9.9"}, prior)
	if got != 50 {
		t.Fatalf("expected 50, got %d", got)
	}
}

func TestTrustScoreLocationAgainstBlindHistory(t *testing.T) {
	// Prior sessions never resolved a location; a reported location is
	// not penalized against nothing.
	prior := []*Session{priorSession("fp", "1.2.3.4", "", false)}
	got := TrustScore(Device{Fingerprint: "fp", IPAddress: "5.6.7.8", Location: "Berlin"}, prior)
	if got != 80 {
		t.Fatalf("expected 50+30=80, got %d", got)
	}
}

func TestTrustScoreIgnoresRevokedSessions(t *testing.T) {
	// A history consisting only of revoked sessions is no history at
	// all: no match bonuses, and nothing to penalize a location
	// against. Scores like a brand-new user.
	prior := []*Session{priorSession("fp", "1.2.3.4", "Berlin", true)}
	got := TrustScore(Device{Fingerprint: "fp", IPAddress: "1.2.3.4", Location: "Berlin"}, prior)
	if got != 50 {
		t.Fatalf("revoked-only history must score the no-history baseline, got %d", got)
	}

	// With live history present, a location remembered only by a
	// revoked session earns no bonus and is penalized as unfamiliar.
	mixed := []*Session{
		priorSession("fp", "1.2.3.4", "Berlin", true),
		priorSession("fp2", "5.6.7.8", "Osaka", false),
	}
	got = TrustScore(Device{Fingerprint: "fp", IPAddress: "1.2.3.4", Location: "Berlin"}, mixed)
	if got != 30 {
		t.Fatalf("revoked session must not grant its location or device, got %d", got)
	}
}

func TestTrustScoreBounds(t *testing.T) {
	cases := []struct {
		candidate Device
		prior     []*Session
	}{
		{Device{}, nil},
		{Device{Fingerprint: "fp", IPAddress: "1.2.3.4", Location: "Berlin"}, []*Session{
			priorSession("fp", "1.2.3.4", "Berlin", false),
			priorSession("fp2", "1.2.3.5", "Osaka", false),
		}},
		{Device{Location: "Nowhere"}, []*Session{priorSession("fp", "ip", "Berlin", false)}},
	}
	for i, tc := range cases {
		got := TrustScore(tc.candidate, tc.prior)
		if got < 0 || got > 100 {
			t.Fatalf("case %d: score %d out of [0,100]", i, got)
		}
	}
}

func TestIsNewLocation(t *testing.T) {
	prior := []*Session{
		priorSession("fp", "ip", "Berlin", false),
		priorSession("fp2", "ip2", "Osaka", true),
	}

	if IsNewLocation(Device{Location: "Berlin"}, prior) {
		t.Fatal("known location reported as new")
	}
	if !IsNewLocation(Device{Location: "Osaka"}, prior) {
		t.Fatal("location known only to a revoked session must count as new")
	}
	if IsNewLocation(Device{}, prior) {
		t.Fatal("empty location can never be new")
	}
}
