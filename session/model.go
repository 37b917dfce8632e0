// Package session owns the Session aggregate: creation with trust
// scoring, activity tracking, revocation, and cleanup sweeps.
package session

import (
	"context"
	"time"
)

// Session is one authenticated device/browser context. A session and
// its token family are created together and die together.
type Session struct {
	ID       string
	UserID   string
	FamilyID string

	// TokenHash binds the session to the current generation of its
	// refresh secret.
	TokenHash [32]byte

	DeviceFingerprint string
	IPAddress         string
	UserAgent         string
	Location          string // empty when unknown

	TrustScore int

	CreatedAt      time.Time
	LastActivityAt time.Time
	ExpiresAt      time.Time
	RevokedAt      time.Time // zero while active
}

// Active reports whether the session is usable at the given instant.
func (s *Session) Active(now time.Time) bool {
	return s.RevokedAt.IsZero() && now.Before(s.ExpiresAt)
}

// Device carries the client context presented at authentication time.
type Device struct {
	Fingerprint string
	IPAddress   string
	UserAgent   string
	Location    string // empty when unresolvable
}

// Store is the persistence interface the manager consumes. The engine
// does not mandate an implementation; callers back it with whatever
// owns their user data.
type Store interface {
	CreateSession(ctx context.Context, s *Session) error
	FindSessionByID(ctx context.Context, id string) (*Session, error)
	FindSessionsByUserID(ctx context.Context, userID string) ([]*Session, error)
	UpdateSession(ctx context.Context, s *Session) error
	DeleteSession(ctx context.Context, id string) error
	DeleteSessionsByUserID(ctx context.Context, userID string) error
	FindAllSessions(ctx context.Context) ([]*Session, error)
}

// FamilyRevoker revokes a session's token family. Wired in so that
// session revocation always cascades; the two aggregates are one
// lifecycle.
type FamilyRevoker interface {
	Revoke(ctx context.Context, familyID string) error
}
