package mfa

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/aegisauth/aegis/internal"
)

const (
	totpPeriod = 30
	totpSkew   = 1

	// BackupCodeCount is the number of single-use codes issued per
	// setup. Codes are never replenished; regeneration replaces the
	// whole set.
	BackupCodeCount = 10
)

var (
	// ErrCodeInvalid indicates neither TOTP nor backup code matched.
	ErrCodeInvalid = errors.New("invalid mfa code")
	// ErrNotEnabled indicates the account has no confirmed MFA.
	ErrNotEnabled = errors.New("mfa not enabled")
	// ErrAlreadyEnabled indicates a setup attempt over confirmed MFA.
	ErrAlreadyEnabled = errors.New("mfa already enabled")
	// ErrSetupNotPending indicates ConfirmSetup without a prior Setup.
	ErrSetupNotPending = errors.New("mfa setup not pending")
	// ErrTooManyAttempts indicates the challenge burned through its
	// attempt budget and has been destroyed.
	ErrTooManyAttempts = errors.New("mfa challenge attempts exceeded")
)

// Account is the MFA-relevant slice of a user record. Enabled flips
// only after the first code is verified in ConfirmSetup; until then
// the secret is pending and logins do not require a second factor.
type Account struct {
	ID               string
	Enabled          bool
	Secret           string
	BackupCodeHashes [][32]byte
}

// AccountStore loads and persists the MFA slice of user records. The
// engine never caches accounts; every decision reads fresh state.
//
// Backup-code consumption is a read-modify-write through
// SaveMFAAccount. Sequential reuse of a spent code is always rejected,
// but two verifications racing on the same account can both observe a
// code as unspent. Implementations that must close that window should
// make SaveMFAAccount a conditional update (version column or
// compare-and-set) and return an error on a lost race.
type AccountStore interface {
	MFAAccount(ctx context.Context, userID string) (*Account, error)
	SaveMFAAccount(ctx context.Context, account *Account) error
}

// Config carries the challenge and enrollment knobs.
type Config struct {
	Issuer       string
	ChallengeTTL time.Duration
	MaxAttempts  int
}

// Engine drives challenge issuance and code verification.
type Engine struct {
	store    *ChallengeStore
	accounts AccountStore
	config   Config
	clock    func() time.Time
}

// NewEngine wires the challenge store and account store together.
func NewEngine(store *ChallengeStore, accounts AccountStore, cfg Config, clock func() time.Time) (*Engine, error) {
	if store == nil {
		return nil, errors.New("mfa: challenge store is required")
	}
	if accounts == nil {
		return nil, errors.New("mfa: account store is required")
	}
	if cfg.ChallengeTTL <= 0 {
		cfg.ChallengeTTL = 5 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if clock == nil {
		clock = time.Now
	}
	return &Engine{store: store, accounts: accounts, config: cfg, clock: clock}, nil
}

// CreateChallenge opens a challenge for a user whose password already
// verified. The returned ID is the only handle to complete the login.
func (e *Engine) CreateChallenge(ctx context.Context, userID string) (string, error) {
	challengeID := uuid.NewString()
	record := &Challenge{
		UserID:    userID,
		ExpiresAt: e.clock().Add(e.config.ChallengeTTL).Unix(),
	}
	if err := e.store.Save(ctx, challengeID, record, e.config.ChallengeTTL); err != nil {
		return "", err
	}
	return challengeID, nil
}

// Verify consumes a challenge against a TOTP or backup code and
// returns the user ID it was opened for, plus whether a backup code
// was spent. The challenge is destroyed on success; of two racing
// verifications exactly one wins. Failures count against the
// challenge's attempt budget.
func (e *Engine) Verify(ctx context.Context, challengeID, code string) (userID string, usedBackup bool, err error) {
	record, err := e.store.Get(ctx, challengeID)
	if err != nil {
		return "", false, err
	}

	account, err := e.accounts.MFAAccount(ctx, record.UserID)
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !account.Enabled {
		_, _ = e.store.Delete(ctx, challengeID)
		return "", false, ErrNotEnabled
	}

	usedBackup, err = e.checkCode(ctx, account, code)
	if err != nil {
		if errors.Is(err, ErrCodeInvalid) {
			exceeded, recErr := e.store.RecordFailure(ctx, challengeID, e.config.MaxAttempts)
			if recErr != nil {
				return "", false, recErr
			}
			if exceeded {
				return "", false, ErrTooManyAttempts
			}
		}
		return "", false, err
	}

	consumed, err := e.store.Delete(ctx, challengeID)
	if err != nil {
		return "", false, err
	}
	if !consumed {
		return "", false, ErrChallengeNotFound
	}
	return record.UserID, usedBackup, nil
}

// Setup generates a pending TOTP secret and a fresh backup code set.
// The plaintext codes are returned exactly once; only hashes persist.
// MFA stays disabled until ConfirmSetup sees a valid code.
func (e *Engine) Setup(ctx context.Context, userID, accountName string) (secret, uri string, backupCodes []string, err error) {
	account, err := e.accounts.MFAAccount(ctx, userID)
	if err != nil {
		return "", "", nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if account.Enabled {
		return "", "", nil, ErrAlreadyEnabled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.config.Issuer,
		AccountName: accountName,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", "", nil, err
	}

	backupCodes, err = internal.NewBackupCodes(BackupCodeCount)
	if err != nil {
		return "", "", nil, err
	}

	account.Secret = key.Secret()
	account.BackupCodeHashes = make([][32]byte, 0, len(backupCodes))
	for _, code := range backupCodes {
		account.BackupCodeHashes = append(account.BackupCodeHashes, internal.HashCode(code))
	}
	if err := e.accounts.SaveMFAAccount(ctx, account); err != nil {
		return "", "", nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return key.Secret(), key.URL(), backupCodes, nil
}

// ConfirmSetup flips MFA on after the first valid TOTP code proves
// the user captured the secret.
func (e *Engine) ConfirmSetup(ctx context.Context, userID, code string) error {
	account, err := e.accounts.MFAAccount(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if account.Enabled {
		return ErrAlreadyEnabled
	}
	if account.Secret == "" {
		return ErrSetupNotPending
	}

	if !e.validTOTP(account.Secret, code) {
		return ErrCodeInvalid
	}

	account.Enabled = true
	if err := e.accounts.SaveMFAAccount(ctx, account); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Disable verifies one last code and wipes the MFA material.
func (e *Engine) Disable(ctx context.Context, userID, code string) error {
	account, err := e.accounts.MFAAccount(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !account.Enabled {
		return ErrNotEnabled
	}

	if _, err := e.checkCode(ctx, account, code); err != nil {
		return err
	}

	account.Enabled = false
	account.Secret = ""
	account.BackupCodeHashes = nil
	if err := e.accounts.SaveMFAAccount(ctx, account); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// RegenerateBackupCodes replaces the whole backup code set. Previously
// issued codes stop working immediately.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, userID string) ([]string, error) {
	account, err := e.accounts.MFAAccount(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !account.Enabled {
		return nil, ErrNotEnabled
	}

	codes, err := internal.NewBackupCodes(BackupCodeCount)
	if err != nil {
		return nil, err
	}
	account.BackupCodeHashes = make([][32]byte, 0, len(codes))
	for _, code := range codes {
		account.BackupCodeHashes = append(account.BackupCodeHashes, internal.HashCode(code))
	}
	if err := e.accounts.SaveMFAAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return codes, nil
}

// checkCode tries TOTP first, then the backup code set. A matched
// backup code is consumed before the call returns.
func (e *Engine) checkCode(ctx context.Context, account *Account, code string) (usedBackup bool, err error) {
	if e.validTOTP(account.Secret, code) {
		return false, nil
	}

	hash := internal.HashCode(code)
	for i, stored := range account.BackupCodeHashes {
		if subtle.ConstantTimeCompare(hash[:], stored[:]) == 1 {
			account.BackupCodeHashes = append(account.BackupCodeHashes[:i], account.BackupCodeHashes[i+1:]...)
			if err := e.accounts.SaveMFAAccount(ctx, account); err != nil {
				return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
			return true, nil
		}
	}
	return false, ErrCodeInvalid
}

func (e *Engine) validTOTP(secret, code string) bool {
	if secret == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, e.clock(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}
