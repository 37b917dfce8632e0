package aegis

import (
	"context"
	"time"

	"github.com/aegisauth/aegis/session"
)

// UserRecord is the engine's view of a stored user. The lockout
// counters live here rather than in process memory so that failed
// attempts accumulate across instances.
type UserRecord struct {
	ID            string
	Email         string
	Name          string
	PasswordHash  string
	EmailVerified bool
	Roles         []string
	Permissions   []string

	MFAEnabled     bool
	MFASecret      string
	MFABackupCodes [][32]byte

	FailedLoginAttempts int
	LastFailedLoginAt   time.Time
	LockedUntil         time.Time

	LastAuthenticatedAt time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// UserStore is the caller-supplied credential store. Implementations
// must return ErrUserNotFound for unknown lookups and must persist
// every field of UserRecord on UpdateUser.
type UserStore interface {
	FindUserByEmail(ctx context.Context, email string) (*UserRecord, error)
	FindUserByID(ctx context.Context, id string) (*UserRecord, error)
	CreateUser(ctx context.Context, user *UserRecord) error
	UpdateUser(ctx context.Context, user *UserRecord) error
}

// DeviceContext carries the client-reported request attributes that
// feed fingerprinting and trust scoring. All fields are optional.
type DeviceContext struct {
	UserAgent string
	IPAddress string
	Location  string
	// Signals are extra stable client hints folded into the
	// fingerprint, order-independent.
	Signals []string
}

// RegisterResult is the outcome of a registration. The account starts
// unverified; VerificationToken must be redeemed through VerifyEmail.
// A first session and access/refresh pair are issued immediately.
type RegisterResult struct {
	User              *UserRecord
	AccessToken       string
	RefreshToken      string
	VerificationToken string
	Session           *session.Session
}

// LoginResult is the outcome of a fully verified login.
type LoginResult struct {
	User         *UserRecord
	AccessToken  string
	RefreshToken string
	Session      *session.Session
	// NewLocation is set when the login came from a location absent
	// from the user's active session history.
	NewLocation bool
}

// MFAChallengeResult signals that the password verified and a second
// factor is required to finish the login.
type MFAChallengeResult struct {
	ChallengeID string
	ExpiresAt   time.Time
}

// RefreshResult is the outcome of a successful rotation.
type RefreshResult struct {
	AccessToken  string
	RefreshToken string
	SessionID    string
}

// TOTPSetup is returned from SetupTOTP. BackupCodes appear in
// plaintext here and nowhere else.
type TOTPSetup struct {
	Secret      string
	URI         string
	BackupCodes []string
}

// AccessIdentity is the verified claim set of an access token.
type AccessIdentity struct {
	UserID      string
	Email       string
	Roles       []string
	Permissions []string
	SessionID   string
}
