package password

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func testHasher(t *testing.T) *Hasher {
	t.Helper()
	h, err := NewHasher(DefaultConfig())
	if err != nil {
		t.Fatalf("new hasher: %v", err)
	}
	return h
}

func TestHashVerifyRoundTrip(t *testing.T) {
	h := testHasher(t)
	ctx := context.Background()

	encoded, err := h.Hash(ctx, "correct horse battery staple")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$") {
		t.Fatalf("not a PHC argon2id string: %s", encoded)
	}

	ok, err := h.Verify(ctx, "correct horse battery staple", encoded)
	if err != nil || !ok {
		t.Fatalf("verify: ok=%v err=%v", ok, err)
	}

	ok, err = h.Verify(ctx, "wrong password", encoded)
	if err != nil {
		t.Fatalf("verify wrong: %v", err)
	}
	if ok {
		t.Fatal("wrong password verified")
	}
}

func TestHashSaltsDiffer(t *testing.T) {
	h := testHasher(t)
	ctx := context.Background()

	first, err := h.Hash(ctx, "same password here")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	second, err := h.Hash(ctx, "same password here")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if first == second {
		t.Fatal("two hashes of the same password must differ")
	}
}

func TestPasswordLengthGate(t *testing.T) {
	h := testHasher(t)
	ctx := context.Background()

	if _, err := h.Hash(ctx, "short"); !errors.Is(err, ErrPasswordLength) {
		t.Fatalf("expected ErrPasswordLength, got %v", err)
	}
	if _, err := h.Hash(ctx, strings.Repeat("x", 600)); !errors.Is(err, ErrPasswordLength) {
		t.Fatalf("expected ErrPasswordLength, got %v", err)
	}
}

func TestConfigFloors(t *testing.T) {
	weak := DefaultConfig()
	weak.Memory = 1024
	if _, err := NewHasher(weak); err == nil {
		t.Fatal("expected rejection below memory floor")
	}

	weak = DefaultConfig()
	weak.Iterations = 1
	if _, err := NewHasher(weak); err == nil {
		t.Fatal("expected rejection below iteration floor")
	}
}

func TestNeedsRehash(t *testing.T) {
	h := testHasher(t)
	ctx := context.Background()

	encoded, err := h.Hash(ctx, "correct horse battery staple")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	needs, err := h.NeedsRehash(encoded)
	if err != nil {
		t.Fatalf("needs rehash: %v", err)
	}
	if needs {
		t.Fatal("fresh hash should not need rehash")
	}

	stronger := DefaultConfig()
	stronger.Iterations++
	h2, err := NewHasher(stronger)
	if err != nil {
		t.Fatalf("new hasher: %v", err)
	}
	needs, err = h2.NeedsRehash(encoded)
	if err != nil {
		t.Fatalf("needs rehash: %v", err)
	}
	if !needs {
		t.Fatal("hash below current parameters should need rehash")
	}
}
