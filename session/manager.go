package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a session ID resolves to nothing.
	ErrNotFound = errors.New("session not found")
	// ErrNotActive is returned when a session exists but is revoked or
	// past its expiry.
	ErrNotActive = errors.New("session not active")
)

// Config tunes session lifetimes.
type Config struct {
	// Lifetime is the absolute session lifetime from creation.
	Lifetime time.Duration
	// InactivityLimit proactively revokes sessions idle this long even
	// when not yet expired.
	InactivityLimit time.Duration
}

// Manager creates, reads, and revokes sessions. Revocation always
// cascades into the session's token family through the injected
// FamilyRevoker.
type Manager struct {
	store    Store
	families FamilyRevoker
	clock    func() time.Time
	config   Config
}

// NewManager wires a Manager. clock may be nil, defaulting to time.Now.
func NewManager(store Store, families FamilyRevoker, clock func() time.Time, cfg Config) *Manager {
	if clock == nil {
		clock = time.Now
	}
	return &Manager{store: store, families: families, clock: clock, config: cfg}
}

// Create persists a new session for the user, scoring its trust against
// the user's prior sessions.
func (m *Manager) Create(ctx context.Context, userID, familyID string, device Device, tokenHash [32]byte) (*Session, error) {
	prior, err := m.store.FindSessionsByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := m.clock()
	sess := &Session{
		ID:                uuid.NewString(),
		UserID:            userID,
		FamilyID:          familyID,
		TokenHash:         tokenHash,
		DeviceFingerprint: device.Fingerprint,
		IPAddress:         device.IPAddress,
		UserAgent:         device.UserAgent,
		Location:          device.Location,
		TrustScore:        TrustScore(device, prior),
		CreatedAt:         now,
		LastActivityAt:    now,
		ExpiresAt:         now.Add(m.config.Lifetime),
	}

	if err := m.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get returns a session regardless of its state.
func (m *Manager) Get(ctx context.Context, sessionID string) (*Session, error) {
	return m.store.FindSessionByID(ctx, sessionID)
}

// GetActive returns a session only when it is currently active.
func (m *Manager) GetActive(ctx context.Context, sessionID string) (*Session, error) {
	sess, err := m.store.FindSessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.Active(m.clock()) {
		return nil, ErrNotActive
	}
	return sess, nil
}

// NewLocation reports whether this device context is from a location
// the user has not authenticated from before.
func (m *Manager) NewLocation(ctx context.Context, userID string, device Device) (bool, error) {
	prior, err := m.store.FindSessionsByUserID(ctx, userID)
	if err != nil {
		return false, err
	}
	return IsNewLocation(device, prior), nil
}

// Touch records refresh-time activity and rebinds the session to the
// rotated secret. Last-write-wins is acceptable here; activity stamps
// feed heuristics, not a ledger.
func (m *Manager) Touch(ctx context.Context, sessionID string, tokenHash [32]byte) error {
	sess, err := m.store.FindSessionByID(ctx, sessionID)
	if err != nil {
		return err
	}
	sess.TokenHash = tokenHash
	sess.LastActivityAt = m.clock()
	return m.store.UpdateSession(ctx, sess)
}

// Revoke terminates one session and its token family.
func (m *Manager) Revoke(ctx context.Context, sessionID string) error {
	sess, err := m.store.FindSessionByID(ctx, sessionID)
	if err != nil {
		return err
	}
	return m.revokeOne(ctx, sess)
}

// RevokeAll terminates every active session the user has.
func (m *Manager) RevokeAll(ctx context.Context, userID string) error {
	return m.revokeAllExcept(ctx, userID, "")
}

// RevokeAllExcept terminates every active session except keepID.
// Used after password change so the changing device stays signed in.
func (m *Manager) RevokeAllExcept(ctx context.Context, userID, keepID string) error {
	return m.revokeAllExcept(ctx, userID, keepID)
}

func (m *Manager) revokeAllExcept(ctx context.Context, userID, keepID string) error {
	sessions, err := m.store.FindSessionsByUserID(ctx, userID)
	if err != nil {
		return err
	}

	var firstErr error
	for _, sess := range sessions {
		if sess.ID == keepID || !sess.RevokedAt.IsZero() {
			continue
		}
		if err := m.revokeOne(ctx, sess); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *Manager) revokeOne(ctx context.Context, sess *Session) error {
	if sess.RevokedAt.IsZero() {
		sess.RevokedAt = m.clock()
		if err := m.store.UpdateSession(ctx, sess); err != nil {
			return err
		}
	}
	// Family revocation is not optional: a live family with a dead
	// session is an open refresh path.
	if sess.FamilyID != "" {
		return m.families.Revoke(ctx, sess.FamilyID)
	}
	return nil
}

// Cleanup purges sessions past expiry and proactively revokes sessions
// idle beyond the inactivity limit. Returns (purged, revoked).
func (m *Manager) Cleanup(ctx context.Context) (int, int, error) {
	sessions, err := m.store.FindAllSessions(ctx)
	if err != nil {
		return 0, 0, err
	}

	now := m.clock()
	var purged, revoked int
	for _, sess := range sessions {
		switch {
		case now.After(sess.ExpiresAt):
			if err := m.store.DeleteSession(ctx, sess.ID); err != nil {
				return purged, revoked, err
			}
			purged++
		case sess.RevokedAt.IsZero() && m.config.InactivityLimit > 0 &&
			now.Sub(sess.LastActivityAt) >= m.config.InactivityLimit:
			if err := m.revokeOne(ctx, sess); err != nil {
				return purged, revoked, err
			}
			revoked++
		}
	}
	return purged, revoked, nil
}
