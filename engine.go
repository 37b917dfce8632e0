package aegis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/aegisauth/aegis/family"
	"github.com/aegisauth/aegis/internal"
	"github.com/aegisauth/aegis/password"
	"github.com/aegisauth/aegis/session"
	"github.com/aegisauth/aegis/token"
)

// Login verifies a password and either completes the login or, when
// the account has MFA enabled, opens a challenge. Exactly one of the
// two results is non-nil on success. Unknown email and wrong password
// produce the same ErrInvalidCredentials; a locked account is reported
// distinctly.
func (e *Engine) Login(ctx context.Context, email, plaintext string, device DeviceContext) (*LoginResult, *MFAChallengeResult, error) {
	if e.closed.Load() {
		return nil, nil, ErrEngineClosed
	}

	user, err := e.users.FindUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// Burn a hash anyway so lookups and wrong passwords are
			// not distinguishable by timing.
			_, _ = e.hasher.Hash(ctx, plaintext)
			e.metrics.Inc(MetricLoginFailure)
			e.event(EventLoginFailure).ip(device.IPAddress).failed(ErrInvalidCredentials).why("unknown email").emit(ctx)
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	// Lockout gate runs before any password work is observable.
	locked, mutated := e.lockout.isLocked(user)
	if mutated {
		if err := e.users.UpdateUser(ctx, user); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	}
	if locked {
		e.metrics.Inc(MetricLoginLocked)
		e.event(EventLoginLocked).user(user.ID).ip(device.IPAddress).failed(ErrAccountLocked).emit(ctx)
		return nil, nil, ErrAccountLocked
	}

	ok, err := e.hasher.Verify(ctx, plaintext, user.PasswordHash)
	if err != nil {
		if errors.Is(err, password.ErrHashMalformed) {
			// Accounts without a local password (external identity
			// only) fail like any wrong password. Burn a hash so the
			// path is not distinguishable by timing.
			_, _ = e.hasher.Hash(ctx, plaintext)
			return nil, nil, e.failLogin(ctx, user, device)
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if !ok {
		return nil, nil, e.failLogin(ctx, user, device)
	}

	if e.config.RequireVerifiedEmail && !user.EmailVerified {
		e.event(EventLoginFailure).user(user.ID).ip(device.IPAddress).failed(ErrAccountUnverified).emit(ctx)
		return nil, nil, ErrAccountUnverified
	}

	if user.MFAEnabled {
		challengeID, err := e.mfa.CreateChallenge(ctx, user.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		e.metrics.Inc(MetricMFAChallengeIssued)
		e.event(EventMFAChallenge).user(user.ID).ip(device.IPAddress).emit(ctx)
		return nil, &MFAChallengeResult{
			ChallengeID: challengeID,
			ExpiresAt:   e.clock().Add(e.config.MFA.ChallengeTTL),
		}, nil
	}

	result, err := e.finishLogin(ctx, user, device)
	if err != nil {
		return nil, nil, err
	}
	return result, nil, nil
}

// VerifyMFALogin completes a login suspended on an MFA challenge.
func (e *Engine) VerifyMFALogin(ctx context.Context, challengeID, code string, device DeviceContext) (*LoginResult, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}

	userID, usedBackup, err := e.mfa.Verify(ctx, challengeID, code)
	if err != nil {
		e.metrics.Inc(MetricMFAFailure)
		e.event(EventMFAFailure).ip(device.IPAddress).failed(err).emit(ctx)
		return nil, e.mapMFAError(err)
	}

	user, err := e.users.FindUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.metrics.Inc(MetricMFASuccess)
	if usedBackup {
		e.metrics.Inc(MetricBackupCodeUsed)
	}
	e.event(EventMFASuccess).user(user.ID).ip(device.IPAddress).emit(ctx)
	return e.finishLogin(ctx, user, device)
}

// finishLogin runs after full credential verification: it resets the
// lockout counters, mints a session, a token family, and the
// access/refresh pair.
func (e *Engine) finishLogin(ctx context.Context, user *UserRecord, device DeviceContext) (*LoginResult, error) {
	e.lockout.recordSuccess(user)
	user.LastAuthenticatedAt = e.clock()
	if err := e.users.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	result, err := e.issueSession(ctx, user, device)
	if err != nil {
		return nil, err
	}

	e.metrics.Inc(MetricLoginSuccess)
	if result.NewLocation {
		e.metrics.Inc(MetricNewLocationLogin)
		e.event(EventLoginNewLocation).user(user.ID).session(result.Session.ID).ip(device.IPAddress).why(device.Location).emit(ctx)
	}
	e.event(EventLoginSuccess).user(user.ID).session(result.Session.ID).family(result.Session.FamilyID).ip(device.IPAddress).emit(ctx)
	return result, nil
}

// issueSession mints a session, its token family, and the
// access/refresh pair. Shared by login completion and registration.
func (e *Engine) issueSession(ctx context.Context, user *UserRecord, device DeviceContext) (*LoginResult, error) {
	sessDevice := session.Device{
		Fingerprint: internal.Fingerprint(device.UserAgent, device.Signals...),
		IPAddress:   device.IPAddress,
		UserAgent:   device.UserAgent,
		Location:    device.Location,
	}

	newLocation, err := e.sessions.NewLocation(ctx, user.ID, sessDevice)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	familyID := uuid.New()
	secret, err := token.NewRefreshSecret()
	if err != nil {
		return nil, err
	}
	secretHash := token.HashSecret(secret)

	sess, err := e.sessions.Create(ctx, user.ID, familyID.String(), sessDevice, secretHash)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	binding := family.Binding{UserID: user.ID, SessionID: sess.ID}
	if err := e.families.Begin(ctx, familyID.String(), binding, secretHash); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	access, err := e.tokens.IssueAccess(user.ID, user.Email, user.Roles, user.Permissions, sess.ID)
	if err != nil {
		return nil, err
	}

	e.metrics.Inc(MetricSessionCreated)

	return &LoginResult{
		User:         user,
		AccessToken:  access,
		RefreshToken: token.EncodeRefreshCredential(familyID, secret),
		Session:      sess,
		NewLocation:  newLocation,
	}, nil
}

// failLogin persists the failure counter before reporting. The write
// happens even though the call returns an error, so attempts are never
// undercounted.
func (e *Engine) failLogin(ctx context.Context, user *UserRecord, device DeviceContext) error {
	lockedNow := e.lockout.recordFailure(user)
	if err := e.users.UpdateUser(ctx, user); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.metrics.Inc(MetricLoginFailure)
	if lockedNow {
		e.metrics.Inc(MetricLoginLocked)
		e.event(EventLoginLocked).user(user.ID).ip(device.IPAddress).failed(ErrAccountLocked).why("threshold crossed").emit(ctx)
		return ErrAccountLocked
	}
	e.event(EventLoginFailure).user(user.ID).ip(device.IPAddress).failed(ErrInvalidCredentials).why("wrong password").emit(ctx)
	return ErrInvalidCredentials
}

// Refresh validates and rotates a refresh credential, then mints a new
// access/refresh pair bound to the same session. A replayed credential
// revokes the whole family and its session before the error returns.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}

	familyID, secret, err := token.DecodeRefreshCredential(refreshToken)
	if err != nil {
		e.metrics.Inc(MetricRefreshFailure)
		return nil, fmt.Errorf("%w: %v", ErrRefreshInvalid, err)
	}

	nextSecret, err := token.NewRefreshSecret()
	if err != nil {
		return nil, err
	}
	nextHash := token.HashSecret(nextSecret)

	binding, err := e.families.Rotate(ctx, familyID.String(), token.HashSecret(secret), nextHash)
	if err != nil {
		return nil, e.failRefresh(ctx, familyID.String(), binding, err)
	}

	sess, err := e.sessions.GetActive(ctx, binding.SessionID)
	if err != nil {
		// A live family with a dead session is an open refresh path.
		_ = e.families.Revoke(ctx, familyID.String())
		e.metrics.Inc(MetricRefreshFailure)
		e.event(EventRefreshFailure).user(binding.UserID).session(binding.SessionID).family(familyID.String()).failed(err).emit(ctx)
		return nil, ErrSessionInvalid
	}

	user, err := e.users.FindUserByID(ctx, binding.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if err := e.sessions.Touch(ctx, sess.ID, nextHash); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	access, err := e.tokens.IssueAccess(user.ID, user.Email, user.Roles, user.Permissions, sess.ID)
	if err != nil {
		return nil, err
	}

	e.metrics.Inc(MetricRefreshSuccess)
	e.event(EventRefreshSuccess).user(user.ID).session(sess.ID).family(familyID.String()).emit(ctx)

	return &RefreshResult{
		AccessToken:  access,
		RefreshToken: token.EncodeRefreshCredential(familyID, nextSecret),
		SessionID:    sess.ID,
	}, nil
}

func (e *Engine) failRefresh(ctx context.Context, familyID string, binding *family.Binding, cause error) error {
	switch {
	case errors.Is(cause, family.ErrReuseDetected):
		// The tracker already revoked the family; kill the paired
		// session too.
		if binding != nil {
			_ = e.sessions.Revoke(ctx, binding.SessionID)
			e.metrics.Inc(MetricSessionRevoked)
		}
		e.metrics.Inc(MetricRefreshReuseDetected)
		event := e.event(EventRefreshReuse).family(familyID).failed(ErrRefreshReuse)
		if binding != nil {
			event = event.user(binding.UserID).session(binding.SessionID)
		}
		event.emit(ctx)
		return ErrRefreshReuse
	case errors.Is(cause, family.ErrRevoked), errors.Is(cause, family.ErrNotFound):
		e.metrics.Inc(MetricRefreshFailure)
		e.event(EventRefreshFailure).family(familyID).failed(cause).emit(ctx)
		return ErrRefreshInvalid
	default:
		// Coordination-store trouble: fail closed, never ambiguous.
		e.metrics.Inc(MetricRefreshFailure)
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, cause)
	}
}

// VerifyAccess checks an access token's signature, expiry, and kind,
// and returns the identity it asserts. Stateless: no store round trip.
func (e *Engine) VerifyAccess(tokenStr string) (*AccessIdentity, error) {
	claims, err := e.tokens.VerifyAccess(tokenStr)
	if err != nil {
		e.metrics.Inc(MetricAccessVerifyFailure)
		return nil, err
	}
	e.metrics.Inc(MetricAccessVerifySuccess)
	return &AccessIdentity{
		UserID:      claims.UserID,
		Email:       claims.Email,
		Roles:       claims.Roles,
		Permissions: claims.Permissions,
		SessionID:   claims.SessionID,
	}, nil
}

// Logout revokes one session and its token family.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	if err := e.sessions.Revoke(ctx, sessionID); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return ErrSessionInvalid
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	e.metrics.Inc(MetricLogout)
	e.metrics.Inc(MetricSessionRevoked)
	e.event(EventLogout).session(sessionID).emit(ctx)
	return nil
}

// RevokeAllSessions revokes every session and family of a user. With a
// non-empty exceptSessionID that one survives, for the common
// "sign out everywhere else" flow.
func (e *Engine) RevokeAllSessions(ctx context.Context, userID, exceptSessionID string) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	var err error
	if exceptSessionID == "" {
		err = e.sessions.RevokeAll(ctx, userID)
	} else {
		err = e.sessions.RevokeAllExcept(ctx, userID, exceptSessionID)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	e.metrics.Inc(MetricLogoutAll)
	e.event(EventLogoutAll).user(userID).session(exceptSessionID).emit(ctx)
	return nil
}

// CleanupSessions purges expired sessions and revokes idle ones.
func (e *Engine) CleanupSessions(ctx context.Context) (purged, revoked int, err error) {
	return e.sessions.Cleanup(ctx)
}

// MetricsSnapshot returns a copy of all counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	return e.metrics.Snapshot()
}

// Metrics exposes the live counter set, for exporters.
func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

// AuditDropped reports audit events discarded under backpressure.
func (e *Engine) AuditDropped() uint64 {
	return e.auditor.Dropped()
}

// Close stops background delivery. The engine rejects calls afterward.
func (e *Engine) Close() {
	if e.closed.Swap(true) {
		return
	}
	e.auditor.Close()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
