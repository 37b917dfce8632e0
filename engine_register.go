package aegis

import (
	"context"
	"errors"
	"fmt"
	"net/mail"

	"github.com/google/uuid"

	"github.com/aegisauth/aegis/token"
)

// Register creates an account, issues its first session and
// access/refresh pair, and returns an email verification token for the
// caller to deliver. The account starts unverified. No device context
// is attached yet, so the first real login still counts as a new
// location.
func (e *Engine) Register(ctx context.Context, email, plaintext, name string) (*RegisterResult, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}

	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrEmailInvalid
	}

	if _, err := e.users.FindUserByEmail(ctx, email); err == nil {
		e.metrics.Inc(MetricRegisterDuplicate)
		return nil, ErrAccountExists
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	hash, err := e.hasher.Hash(ctx, plaintext)
	if err != nil {
		return nil, err
	}

	now := e.clock()
	user := &UserRecord{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, ErrAccountExists) {
			e.metrics.Inc(MetricRegisterDuplicate)
			return nil, ErrAccountExists
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	verifyToken, err := e.tokens.IssueScoped(token.KindVerify, user.ID)
	if err != nil {
		return nil, err
	}

	issued, err := e.issueSession(ctx, user, DeviceContext{})
	if err != nil {
		return nil, err
	}

	e.metrics.Inc(MetricRegisterSuccess)
	e.event(EventRegister).user(user.ID).session(issued.Session.ID).emit(ctx)

	return &RegisterResult{
		User:              user,
		AccessToken:       issued.AccessToken,
		RefreshToken:      issued.RefreshToken,
		VerificationToken: verifyToken,
		Session:           issued.Session,
	}, nil
}

// VerifyEmail redeems a verification token. Idempotent: verifying an
// already verified account succeeds.
func (e *Engine) VerifyEmail(ctx context.Context, verifyToken string) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}

	userID, err := e.tokens.VerifyScoped(token.KindVerify, verifyToken)
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
	if user.EmailVerified {
		return nil
	}

	user.EmailVerified = true
	user.UpdatedAt = e.clock()
	if err := e.users.UpdateUser(ctx, user); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.metrics.Inc(MetricEmailVerified)
	e.event(EventEmailVerified).user(user.ID).emit(ctx)
	return nil
}
