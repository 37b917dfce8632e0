package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// memStore is an in-memory Store for tests.
type memStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func newMemStore() *memStore {
	return &memStore{sessions: make(map[string]*Session)}
}

func (s *memStore) CreateSession(_ context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *sess
	s.sessions[sess.ID] = &copied
	return nil
}

func (s *memStore) FindSessionByID(_ context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *sess
	return &copied, nil
}

func (s *memStore) FindSessionsByUserID(_ context.Context, userID string) ([]*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Session
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			copied := *sess
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *memStore) UpdateSession(_ context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; !ok {
		return ErrNotFound
	}
	copied := *sess
	s.sessions[sess.ID] = &copied
	return nil
}

func (s *memStore) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *memStore) DeleteSessionsByUserID(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		if sess.UserID == userID {
			delete(s.sessions, id)
		}
	}
	return nil
}

func (s *memStore) FindAllSessions(_ context.Context) ([]*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		copied := *sess
		out = append(out, &copied)
	}
	return out, nil
}

// recordingRevoker remembers which families were revoked.
type recordingRevoker struct {
	mu       sync.Mutex
	families []string
}

func (r *recordingRevoker) Revoke(_ context.Context, familyID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.families = append(r.families, familyID)
	return nil
}

func (r *recordingRevoker) revoked(familyID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.families {
		if id == familyID {
			return true
		}
	}
	return false
}

func testManagerWithClock(now *time.Time) (*Manager, *memStore, *recordingRevoker) {
	store := newMemStore()
	revoker := &recordingRevoker{}
	m := NewManager(store, revoker, func() time.Time { return *now }, Config{
		Lifetime:        7 * 24 * time.Hour,
		InactivityLimit: 30 * 24 * time.Hour,
	})
	return m, store, revoker
}

func TestCreateAndGetActive(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	m, _, _ := testManagerWithClock(&now)
	ctx := context.Background()

	sess, err := m.Create(ctx, "u1", "fam1", Device{Fingerprint: "fp", IPAddress: "1.2.3.4"}, [32]byte{1})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sess.TrustScore != 50 {
		t.Fatalf("first session must score 50, got %d", sess.TrustScore)
	}
	if !sess.ExpiresAt.Equal(now.Add(7 * 24 * time.Hour)) {
		t.Fatalf("unexpected expiry %v", sess.ExpiresAt)
	}

	got, err := m.GetActive(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if got.ID != sess.ID {
		t.Fatalf("id mismatch")
	}

	now = now.Add(7*24*time.Hour + time.Minute)
	if _, err := m.GetActive(ctx, sess.ID); !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive after expiry, got %v", err)
	}
}

func TestRevokeCascadesToFamily(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	m, _, revoker := testManagerWithClock(&now)
	ctx := context.Background()

	sess, err := m.Create(ctx, "u1", "fam1", Device{}, [32]byte{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := m.Revoke(ctx, sess.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	if !revoker.revoked("fam1") {
		t.Fatal("session revocation must cascade into the family")
	}
	if _, err := m.GetActive(ctx, sess.ID); !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive, got %v", err)
	}
}

func TestRevokeAllExceptKeepsOne(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	m, _, revoker := testManagerWithClock(&now)
	ctx := context.Background()

	first, _ := m.Create(ctx, "u1", "fam1", Device{}, [32]byte{})
	second, _ := m.Create(ctx, "u1", "fam2", Device{}, [32]byte{})
	third, _ := m.Create(ctx, "u2", "fam3", Device{}, [32]byte{})

	if err := m.RevokeAllExcept(ctx, "u1", second.ID); err != nil {
		t.Fatalf("revoke all except: %v", err)
	}

	if _, err := m.GetActive(ctx, first.ID); !errors.Is(err, ErrNotActive) {
		t.Fatalf("first session should be revoked, got %v", err)
	}
	if _, err := m.GetActive(ctx, second.ID); err != nil {
		t.Fatalf("kept session should stay active: %v", err)
	}
	if _, err := m.GetActive(ctx, third.ID); err != nil {
		t.Fatalf("other user's session should stay active: %v", err)
	}
	if !revoker.revoked("fam1") || revoker.revoked("fam2") || revoker.revoked("fam3") {
		t.Fatalf("unexpected family revocations: %v", revoker.families)
	}
}

func TestTouchUpdatesActivityAndHash(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	m, _, _ := testManagerWithClock(&now)
	ctx := context.Background()

	sess, _ := m.Create(ctx, "u1", "fam1", Device{}, [32]byte{1})

	now = now.Add(time.Hour)
	if err := m.Touch(ctx, sess.ID, [32]byte{2}); err != nil {
		t.Fatalf("touch: %v", err)
	}

	got, err := m.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.TokenHash != ([32]byte{2}) {
		t.Fatal("token hash not rebound")
	}
	if !got.LastActivityAt.Equal(now) {
		t.Fatalf("activity stamp not updated: %v", got.LastActivityAt)
	}
}

func TestCleanupPurgesAndRevokes(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	m, store, revoker := testManagerWithClock(&now)
	ctx := context.Background()

	expired, _ := m.Create(ctx, "u1", "famExpired", Device{}, [32]byte{})
	idle, _ := m.Create(ctx, "u1", "famIdle", Device{}, [32]byte{})
	fresh, _ := m.Create(ctx, "u1", "famFresh", Device{}, [32]byte{})

	// Age the expired session past its lifetime and the idle one past
	// the inactivity limit but inside a stretched lifetime.
	store.mu.Lock()
	store.sessions[expired.ID].ExpiresAt = now.Add(-time.Hour)
	store.sessions[idle.ID].LastActivityAt = now.Add(-31 * 24 * time.Hour)
	store.sessions[idle.ID].ExpiresAt = now.Add(time.Hour)
	store.mu.Unlock()

	purged, revoked, err := m.Cleanup(ctx)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if purged != 1 || revoked != 1 {
		t.Fatalf("expected purged=1 revoked=1, got %d/%d", purged, revoked)
	}

	if _, err := m.Get(ctx, expired.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired session should be gone, got %v", err)
	}
	if !revoker.revoked("famIdle") {
		t.Fatal("idle session's family should be revoked")
	}
	if _, err := m.GetActive(ctx, fresh.ID); err != nil {
		t.Fatalf("fresh session should survive: %v", err)
	}
}
