package aegis

import (
	"errors"
	"time"

	"github.com/aegisauth/aegis/password"
	"github.com/aegisauth/aegis/token"
)

// TokenConfig carries signing material and lifetimes. Key material is
// mandatory; there are no generated fallback keys.
type TokenConfig struct {
	SigningMethod token.SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	VerifyTTL     time.Duration
	ResetTTL      time.Duration
	Leeway        time.Duration
}

// SessionConfig bounds session lifetime and idleness.
type SessionConfig struct {
	Lifetime        time.Duration
	InactivityLimit time.Duration
}

// MFAConfig controls challenge issuance and the recent-auth gate on
// disabling MFA.
type MFAConfig struct {
	Issuer           string
	ChallengeTTL     time.Duration
	MaxAttempts      int
	RecentAuthWindow time.Duration
}

// LockoutConfig is the failed-attempt policy. Attempts outside Window
// of each other reset the counter; Threshold consecutive failures lock
// the account for Duration.
type LockoutConfig struct {
	Threshold int
	Window    time.Duration
	Duration  time.Duration
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles counter collection.
type MetricsConfig struct {
	Enabled bool
}

// Config is the engine-wide configuration. Zero durations are filled
// from DefaultConfig at Build time; key material never is.
type Config struct {
	Token    TokenConfig
	Password password.Config
	Session  SessionConfig
	MFA      MFAConfig
	Lockout  LockoutConfig
	Audit    AuditConfig
	Metrics  MetricsConfig

	// RequireVerifiedEmail blocks login until VerifyEmail completed.
	RequireVerifiedEmail bool

	// KeyPrefix namespaces all coordination-store keys.
	KeyPrefix string
}

// DefaultConfig returns the stock policy. Signing keys must still be
// supplied by the caller.
func DefaultConfig() Config {
	return Config{
		Token: TokenConfig{
			SigningMethod: token.MethodEd25519,
			Issuer:        "aegis",
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			VerifyTTL:     24 * time.Hour,
			ResetTTL:      30 * time.Minute,
			// Leeway stays zero so expiry is exact. Deployments with
			// real clock skew opt in explicitly.
			Leeway: 0,
		},
		Password: password.DefaultConfig(),
		Session: SessionConfig{
			Lifetime:        7 * 24 * time.Hour,
			InactivityLimit: 30 * 24 * time.Hour,
		},
		MFA: MFAConfig{
			Issuer:           "aegis",
			ChallengeTTL:     5 * time.Minute,
			MaxAttempts:      5,
			RecentAuthWindow: 15 * time.Minute,
		},
		Lockout: LockoutConfig{
			Threshold: 5,
			Window:    15 * time.Minute,
			Duration:  15 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics:   MetricsConfig{Enabled: true},
		KeyPrefix: "aegis",
	}
}

func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.Token.SigningMethod == "" {
		c.Token.SigningMethod = defaults.Token.SigningMethod
	}
	if c.Token.Issuer == "" {
		c.Token.Issuer = defaults.Token.Issuer
	}
	if c.Token.AccessTTL <= 0 {
		c.Token.AccessTTL = defaults.Token.AccessTTL
	}
	if c.Token.RefreshTTL <= 0 {
		c.Token.RefreshTTL = defaults.Token.RefreshTTL
	}
	if c.Token.VerifyTTL <= 0 {
		c.Token.VerifyTTL = defaults.Token.VerifyTTL
	}
	if c.Token.ResetTTL <= 0 {
		c.Token.ResetTTL = defaults.Token.ResetTTL
	}
	if c.Session.Lifetime <= 0 {
		c.Session.Lifetime = defaults.Session.Lifetime
	}
	if c.Session.InactivityLimit <= 0 {
		c.Session.InactivityLimit = defaults.Session.InactivityLimit
	}
	if c.MFA.Issuer == "" {
		c.MFA.Issuer = defaults.MFA.Issuer
	}
	if c.MFA.ChallengeTTL <= 0 {
		c.MFA.ChallengeTTL = defaults.MFA.ChallengeTTL
	}
	if c.MFA.MaxAttempts <= 0 {
		c.MFA.MaxAttempts = defaults.MFA.MaxAttempts
	}
	if c.MFA.RecentAuthWindow <= 0 {
		c.MFA.RecentAuthWindow = defaults.MFA.RecentAuthWindow
	}
	if c.Lockout.Threshold <= 0 {
		c.Lockout.Threshold = defaults.Lockout.Threshold
	}
	if c.Lockout.Window <= 0 {
		c.Lockout.Window = defaults.Lockout.Window
	}
	if c.Lockout.Duration <= 0 {
		c.Lockout.Duration = defaults.Lockout.Duration
	}
	if c.Audit.BufferSize <= 0 {
		c.Audit.BufferSize = defaults.Audit.BufferSize
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = defaults.KeyPrefix
	}
}

func (c *Config) validate() error {
	if len(c.Token.PrivateKey) == 0 {
		return errors.New("aegis: token private key is required")
	}
	if c.Token.SigningMethod == token.MethodEd25519 && len(c.Token.PublicKey) == 0 {
		return errors.New("aegis: token public key is required for ed25519")
	}
	return nil
}
