package internal

import (
	"regexp"
	"testing"
)

var backupCodePattern = regexp.MustCompile(`^[23456789ABCDEFGHJKMNPQRSTVWXYZ]{5}-[23456789ABCDEFGHJKMNPQRSTVWXYZ]{5}$`)

func TestNewBackupCodeShape(t *testing.T) {
	for i := 0; i < 20; i++ {
		code, err := NewBackupCode()
		if err != nil {
			t.Fatalf("new backup code: %v", err)
		}
		if !backupCodePattern.MatchString(code) {
			t.Fatalf("malformed backup code %q", code)
		}
	}
}

func TestNewBackupCodesUnique(t *testing.T) {
	codes, err := NewBackupCodes(10)
	if err != nil {
		t.Fatalf("new backup codes: %v", err)
	}
	if len(codes) != 10 {
		t.Fatalf("expected 10 codes, got %d", len(codes))
	}
	seen := make(map[string]bool, len(codes))
	for _, code := range codes {
		if seen[code] {
			t.Fatalf("duplicate code %q", code)
		}
		seen[code] = true
	}
}

func TestHashCodeDeterministic(t *testing.T) {
	if HashCode("AAAAA-BBBBB") != HashCode("AAAAA-BBBBB") {
		t.Fatal("hash not deterministic")
	}
	if HashCode("AAAAA-BBBBB") == HashCode("AAAAA-BBBBC") {
		t.Fatal("distinct codes should not collide")
	}
}

func TestFingerprintOrderIndependentSignals(t *testing.T) {
	a := Fingerprint("agent/1.0", "sig-b", "sig-a")
	b := Fingerprint("agent/1.0", "sig-a", "sig-b")
	if a != b {
		t.Fatal("signal order must not change the fingerprint")
	}
	if a == Fingerprint("agent/2.0", "sig-a", "sig-b") {
		t.Fatal("different user agents must not collide")
	}
}
