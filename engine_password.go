package aegis

import (
	"context"
	"errors"
	"fmt"

	"github.com/aegisauth/aegis/token"
)

// ChangePassword rotates a password after verifying the current one.
// Every other session is revoked; the calling session survives.
func (e *Engine) ChangePassword(ctx context.Context, userID, current, next, keepSessionID string) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}

	user, err := e.users.FindUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	ok, err := e.hasher.Verify(ctx, current, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if !ok {
		return ErrInvalidCredentials
	}

	if same, err := e.hasher.Verify(ctx, next, user.PasswordHash); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	} else if same {
		return ErrPasswordReuse
	}

	hash, err := e.hasher.Hash(ctx, next)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	user.UpdatedAt = e.clock()
	if err := e.users.UpdateUser(ctx, user); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	// A changed password invalidates every other credential the old
	// one minted.
	if err := e.sessions.RevokeAllExcept(ctx, userID, keepSessionID); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.metrics.Inc(MetricPasswordChange)
	e.event(EventPasswordChange).user(userID).session(keepSessionID).emit(ctx)
	return nil
}

// RequestPasswordReset issues a reset token for the account. The empty
// string comes back for unknown emails, with no error, so the call
// reveals nothing about account existence.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	if e.closed.Load() {
		return "", ErrEngineClosed
	}

	user, err := e.users.FindUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.event(EventPasswordResetRequest).why("unknown email").emit(ctx)
			return "", nil
		}
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	resetToken, err := e.tokens.IssueScoped(token.KindReset, user.ID)
	if err != nil {
		return "", err
	}

	e.metrics.Inc(MetricPasswordResetRequest)
	e.event(EventPasswordResetRequest).user(user.ID).emit(ctx)
	return resetToken, nil
}

// ResetPassword redeems a reset token and revokes every session of the
// account, MFA state included in the audit trail.
func (e *Engine) ResetPassword(ctx context.Context, resetToken, next string) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}

	userID, err := e.tokens.VerifyScoped(token.KindReset, resetToken)
	if err != nil {
		return err
	}

	user, err := e.users.FindUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	hash, err := e.hasher.Hash(ctx, next)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	user.UpdatedAt = e.clock()
	e.lockout.recordSuccess(user)
	if err := e.users.UpdateUser(ctx, user); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if err := e.sessions.RevokeAll(ctx, userID); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.metrics.Inc(MetricPasswordResetConfirm)
	e.event(EventPasswordResetConfirm).user(userID).emit(ctx)
	return nil
}
