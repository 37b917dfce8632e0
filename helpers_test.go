package aegis

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/aegisauth/aegis/session"
)

// memUserStore is an in-memory UserStore for tests.
type memUserStore struct {
	mu    sync.Mutex
	users map[string]*UserRecord // by ID
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: make(map[string]*UserRecord)}
}

func copyUser(u *UserRecord) *UserRecord {
	copied := *u
	copied.Roles = append([]string(nil), u.Roles...)
	copied.Permissions = append([]string(nil), u.Permissions...)
	copied.MFABackupCodes = append([][32]byte(nil), u.MFABackupCodes...)
	return &copied
}

func (s *memUserStore) FindUserByEmail(_ context.Context, email string) (*UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return copyUser(u), nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *memUserStore) FindUserByID(_ context.Context, id string) (*UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return copyUser(u), nil
}

func (s *memUserStore) CreateUser(_ context.Context, user *UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == user.Email {
			return ErrAccountExists
		}
	}
	s.users[user.ID] = copyUser(user)
	return nil
}

func (s *memUserStore) UpdateUser(_ context.Context, user *UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; !ok {
		return ErrUserNotFound
	}
	s.users[user.ID] = copyUser(user)
	return nil
}

// memSessionStore is an in-memory session.Store for tests.
type memSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{sessions: make(map[string]*session.Session)}
}

func (s *memSessionStore) CreateSession(_ context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *sess
	s.sessions[sess.ID] = &copied
	return nil
}

func (s *memSessionStore) FindSessionByID(_ context.Context, id string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, session.ErrNotFound
	}
	copied := *sess
	return &copied, nil
}

func (s *memSessionStore) FindSessionsByUserID(_ context.Context, userID string) ([]*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*session.Session
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			copied := *sess
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *memSessionStore) UpdateSession(_ context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; !ok {
		return session.ErrNotFound
	}
	copied := *sess
	s.sessions[sess.ID] = &copied
	return nil
}

func (s *memSessionStore) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *memSessionStore) DeleteSessionsByUserID(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		if sess.UserID == userID {
			delete(s.sessions, id)
		}
	}
	return nil
}

func (s *memSessionStore) FindAllSessions(_ context.Context) ([]*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*session.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		copied := *sess
		out = append(out, &copied)
	}
	return out, nil
}

// testClock is a settable time source shared by the engine under test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	engine   *Engine
	users    *memUserStore
	sessions *memSessionStore
	clock    *testClock
}

func newTestEngine(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Token.PrivateKey = priv
	cfg.Token.PublicKey = pub
	cfg.Audit.Enabled = false
	if mutate != nil {
		mutate(&cfg)
	}

	users := newMemUserStore()
	sessions := newMemSessionStore()
	clock := newTestClock()

	engine, err := New().
		WithConfig(cfg).
		WithRedis(client).
		WithUserStore(users).
		WithSessionStore(sessions).
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{engine: engine, users: users, sessions: sessions, clock: clock}
}

const testPassword = "correct-password-123"

var testDevice = DeviceContext{
	UserAgent: "test-agent/1.0",
	IPAddress: "203.0.113.10",
	Location:  "Berlin",
}

// registerVerified creates a verified account ready to log in.
func registerVerified(t *testing.T, env *testEnv, email string) *UserRecord {
	t.Helper()
	ctx := context.Background()

	reg, err := env.engine.Register(ctx, email, testPassword, "Alice")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	user := reg.User
	if err := env.engine.VerifyEmail(ctx, reg.VerificationToken); err != nil {
		t.Fatalf("verify email: %v", err)
	}
	return user
}
