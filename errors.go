package aegis

import (
	"errors"

	"github.com/aegisauth/aegis/family"
	"github.com/aegisauth/aegis/mfa"
	"github.com/aegisauth/aegis/password"
	"github.com/aegisauth/aegis/session"
	"github.com/aegisauth/aegis/token"
)

var (
	// ErrInvalidCredentials covers unknown email and wrong password
	// alike so callers cannot distinguish the two.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound indicates the referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrAccountExists indicates the email is already registered.
	ErrAccountExists = errors.New("account already exists")
	// ErrAccountLocked indicates too many recent failed attempts.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountUnverified indicates the email was never verified.
	ErrAccountUnverified = errors.New("account unverified")
	// ErrEmailInvalid indicates a malformed email address.
	ErrEmailInvalid = errors.New("invalid email address")
	// ErrPasswordReuse indicates the replacement password equals the
	// current one.
	ErrPasswordReuse = errors.New("new password matches current password")
	// ErrMFANotEnabled indicates an MFA operation on an account
	// without MFA configured.
	ErrMFANotEnabled = errors.New("mfa not enabled")
	// ErrMFAAlreadyEnabled indicates a setup attempt on an account
	// that already has MFA.
	ErrMFAAlreadyEnabled = errors.New("mfa already enabled")
	// ErrMFACodeInvalid indicates a wrong TOTP or backup code.
	ErrMFACodeInvalid = errors.New("invalid mfa code")
	// ErrMFAChallengeInvalid indicates an unknown, expired, consumed,
	// or attempt-exhausted MFA challenge.
	ErrMFAChallengeInvalid = errors.New("mfa challenge invalid")
	// ErrRecentAuthRequired gates sensitive operations behind a fresh
	// authentication.
	ErrRecentAuthRequired = errors.New("recent authentication required")
	// ErrSessionInvalid indicates a missing, expired, or revoked
	// session.
	ErrSessionInvalid = errors.New("session invalid")
	// ErrRefreshInvalid indicates an unusable refresh credential of
	// any kind short of detected reuse.
	ErrRefreshInvalid = errors.New("refresh token invalid")
	// ErrRefreshReuse indicates a replayed refresh credential. The
	// whole token family has been revoked.
	ErrRefreshReuse = errors.New("refresh token reuse detected")
	// ErrBackendUnavailable indicates a coordination or credential
	// store failure. All verification paths fail closed on it.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrEngineClosed indicates use after Close.
	ErrEngineClosed = errors.New("engine closed")
)

// Kind classifies an error for transport mapping without forcing
// callers to enumerate every sentinel.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindValidation covers malformed or policy-violating input.
	KindValidation
	// KindAuthentication covers rejected credentials, tokens, codes,
	// and lockouts.
	KindAuthentication
	// KindConflict covers state collisions such as duplicate accounts.
	KindConflict
	// KindNotFound covers missing referenced entities.
	KindNotFound
	// KindUnavailable covers backend failures. Retryable.
	KindUnavailable
)

// KindOf maps an error returned by any engine operation to its Kind.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrEmailInvalid),
		errors.Is(err, ErrPasswordReuse),
		errors.Is(err, password.ErrPasswordLength),
		errors.Is(err, token.ErrCredentialMalformed):
		return KindValidation
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrAccountLocked),
		errors.Is(err, ErrAccountUnverified),
		errors.Is(err, ErrMFACodeInvalid),
		errors.Is(err, ErrMFAChallengeInvalid),
		errors.Is(err, ErrRecentAuthRequired),
		errors.Is(err, ErrSessionInvalid),
		errors.Is(err, ErrRefreshInvalid),
		errors.Is(err, ErrRefreshReuse),
		errors.Is(err, token.ErrTokenExpired),
		errors.Is(err, token.ErrTokenInvalid),
		errors.Is(err, family.ErrRevoked),
		errors.Is(err, family.ErrReuseDetected):
		return KindAuthentication
	case errors.Is(err, ErrAccountExists),
		errors.Is(err, ErrMFAAlreadyEnabled),
		errors.Is(err, ErrMFANotEnabled):
		return KindConflict
	case errors.Is(err, ErrUserNotFound),
		errors.Is(err, session.ErrNotFound),
		errors.Is(err, family.ErrNotFound),
		errors.Is(err, mfa.ErrChallengeNotFound):
		return KindNotFound
	case errors.Is(err, ErrBackendUnavailable),
		errors.Is(err, ErrEngineClosed),
		errors.Is(err, family.ErrUnavailable):
		return KindUnavailable
	default:
		return KindUnknown
	}
}
