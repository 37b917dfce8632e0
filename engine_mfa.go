package aegis

import (
	"context"
	"errors"
	"fmt"

	"github.com/aegisauth/aegis/mfa"
)

// mfaAccounts adapts the UserStore to the narrow account view the MFA
// engine needs. Reads always hit the store; MFA state is never cached.
type mfaAccounts struct {
	users UserStore
}

func (a mfaAccounts) MFAAccount(ctx context.Context, userID string) (*mfa.Account, error) {
	user, err := a.users.FindUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &mfa.Account{
		ID:               user.ID,
		Enabled:          user.MFAEnabled,
		Secret:           user.MFASecret,
		BackupCodeHashes: user.MFABackupCodes,
	}, nil
}

func (a mfaAccounts) SaveMFAAccount(ctx context.Context, account *mfa.Account) error {
	user, err := a.users.FindUserByID(ctx, account.ID)
	if err != nil {
		return err
	}
	user.MFAEnabled = account.Enabled
	user.MFASecret = account.Secret
	user.MFABackupCodes = account.BackupCodeHashes
	return a.users.UpdateUser(ctx, user)
}

// SetupTOTP generates a pending secret, provisioning URI, and backup
// codes. The account's MFA flag does not flip until ConfirmTOTPSetup
// verifies the first code, so a mistyped secret cannot lock the user
// out.
func (e *Engine) SetupTOTP(ctx context.Context, userID string) (*TOTPSetup, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}

	user, err := e.users.FindUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	secret, uri, codes, err := e.mfa.Setup(ctx, user.ID, user.Email)
	if err != nil {
		return nil, e.mapMFAError(err)
	}
	return &TOTPSetup{Secret: secret, URI: uri, BackupCodes: codes}, nil
}

// ConfirmTOTPSetup enables MFA after the first valid code.
func (e *Engine) ConfirmTOTPSetup(ctx context.Context, userID, code string) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	if err := e.mfa.ConfirmSetup(ctx, userID, code); err != nil {
		return e.mapMFAError(err)
	}
	e.event(EventMFAEnabled).user(userID).emit(ctx)
	return nil
}

// DisableMFA turns MFA off. It requires both a valid code and an
// authentication within the recent-auth window, so a hijacked session
// that sat idle cannot strip the second factor.
func (e *Engine) DisableMFA(ctx context.Context, userID, code string) error {
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
	if user.LastAuthenticatedAt.IsZero() ||
		e.clock().Sub(user.LastAuthenticatedAt) > e.config.MFA.RecentAuthWindow {
		return ErrRecentAuthRequired
	}

	if err := e.mfa.Disable(ctx, userID, code); err != nil {
		return e.mapMFAError(err)
	}
	e.event(EventMFADisabled).user(userID).emit(ctx)
	return nil
}

// RegenerateBackupCodes replaces the backup code set. Requires a fresh
// authentication like DisableMFA.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, userID string) ([]string, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}

	user, err := e.users.FindUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if user.LastAuthenticatedAt.IsZero() ||
		e.clock().Sub(user.LastAuthenticatedAt) > e.config.MFA.RecentAuthWindow {
		return nil, ErrRecentAuthRequired
	}

	codes, err := e.mfa.RegenerateBackupCodes(ctx, userID)
	if err != nil {
		return nil, e.mapMFAError(err)
	}
	return codes, nil
}

func (e *Engine) mapMFAError(err error) error {
	switch {
	case errors.Is(err, mfa.ErrCodeInvalid):
		return ErrMFACodeInvalid
	case errors.Is(err, mfa.ErrChallengeNotFound),
		errors.Is(err, mfa.ErrChallengeExpired),
		errors.Is(err, mfa.ErrTooManyAttempts):
		return fmt.Errorf("%w: %v", ErrMFAChallengeInvalid, err)
	case errors.Is(err, mfa.ErrNotEnabled), errors.Is(err, mfa.ErrSetupNotPending):
		return ErrMFANotEnabled
	case errors.Is(err, mfa.ErrAlreadyEnabled):
		return ErrMFAAlreadyEnabled
	case errors.Is(err, mfa.ErrUnavailable):
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	default:
		return err
	}
}
