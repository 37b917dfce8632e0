// Package token implements stateless credential construction and
// verification: signed access tokens plus one-shot verification and
// reset tokens, and the opaque refresh secret primitives.
package token

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Kind discriminates token purposes. Every token carries its kind in a
// "type" claim and verification rejects any mismatch, so a verification
// token can never be replayed as an access token.
type Kind string

const (
	// KindAccess is the short-lived API bearer token.
	KindAccess Kind = "access"
	// KindVerify is the one-shot email verification token.
	KindVerify Kind = "verify"
	// KindReset is the one-shot password reset token.
	KindReset Kind = "reset"
)

// SigningMethod selects the JWT signature algorithm.
type SigningMethod string

const (
	// MethodEd25519 is the default; asymmetric so any service holding
	// the public key can verify without being able to mint.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 is supported for single-service deployments.
	MethodHS256 SigningMethod = "hs256"
)

var (
	// ErrTokenExpired is returned when a token's exp claim has elapsed.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid is returned for any other verification failure,
	// including a kind mismatch.
	ErrTokenInvalid = errors.New("token invalid")
)

// Config holds signing material and per-kind lifetimes. Key material is
// mandatory: there is no embedded fallback key, construction fails
// instead of operating insecurely.
type Config struct {
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	AccessTTL     time.Duration
	VerifyTTL     time.Duration
	ResetTTL      time.Duration
	Leeway        time.Duration
	Now           func() time.Time
}

// AccessClaims is the claim set carried by access tokens.
type AccessClaims struct {
	UserID      string   `json:"userId"`
	Email       string   `json:"email"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	SessionID   string   `json:"sessionId"`
	TokenType   string   `json:"type"`
	jwt.RegisteredClaims
}

type scopedClaims struct {
	UserID    string `json:"userId"`
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

// Manager signs and verifies tokens. Instances are immutable after
// construction and safe for concurrent use.
type Manager struct {
	config Config
}

// NewManager validates the signing configuration and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("access TTL must be positive")
	}
	if cfg.VerifyTTL <= 0 || cfg.ResetTTL <= 0 {
		return nil, errors.New("verify and reset TTLs must be positive")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires a signing key")
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("ed25519 requires a private key")
		}
		if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
			return nil, err
		}
		if len(cfg.PublicKey) == 0 {
			return nil, errors.New("ed25519 requires a public key")
		}
		if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return &Manager{config: cfg}, nil
}

// IssueAccess signs an access token bound to the given session.
func (m *Manager) IssueAccess(userID, email string, roles, permissions []string, sessionID string) (string, error) {
	now := m.config.Now()

	claims := AccessClaims{
		UserID:      userID,
		Email:       email,
		Roles:       roles,
		Permissions: permissions,
		SessionID:   sessionID,
		TokenType:   string(KindAccess),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.AccessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.config.Issuer,
		},
	}

	tok := jwt.NewWithClaims(m.method(), claims)
	key, err := m.signKey()
	if err != nil {
		return "", err
	}
	return tok.SignedString(key)
}

// VerifyAccess parses and validates an access token, rejecting tokens
// of any other kind.
func (m *Manager) VerifyAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := m.parse(tokenStr, claims); err != nil {
		return nil, err
	}
	if claims.TokenType != string(KindAccess) {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// IssueScoped signs a one-shot verification or reset token for a user.
func (m *Manager) IssueScoped(kind Kind, userID string) (string, error) {
	var ttl time.Duration
	switch kind {
	case KindVerify:
		ttl = m.config.VerifyTTL
	case KindReset:
		ttl = m.config.ResetTTL
	default:
		return "", fmt.Errorf("%w: unsupported scoped kind %q", ErrTokenInvalid, kind)
	}

	now := m.config.Now()
	claims := scopedClaims{
		UserID:    userID,
		TokenType: string(kind),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.config.Issuer,
		},
	}

	tok := jwt.NewWithClaims(m.method(), claims)
	key, err := m.signKey()
	if err != nil {
		return "", err
	}
	return tok.SignedString(key)
}

// VerifyScoped validates a one-shot token of the expected kind and
// returns the bound user ID.
func (m *Manager) VerifyScoped(kind Kind, tokenStr string) (string, error) {
	claims := &scopedClaims{}
	if err := m.parse(tokenStr, claims); err != nil {
		return "", err
	}
	if claims.TokenType != string(kind) {
		return "", ErrTokenInvalid
	}
	return claims.UserID, nil
}

func (m *Manager) parse(tokenStr string, claims jwt.Claims) error {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method().Alg()}),
		jwt.WithTimeFunc(m.config.Now),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	tok, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return m.verifyKey()
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrTokenInvalid
	}
	if !tok.Valid {
		return ErrTokenInvalid
	}
	return nil
}

func (m *Manager) method() jwt.SigningMethod {
	if m.config.SigningMethod == MethodHS256 {
		return jwt.SigningMethodHS256
	}
	return jwt.SigningMethodEdDSA
}

func (m *Manager) signKey() (interface{}, error) {
	if m.config.SigningMethod == MethodHS256 {
		return m.config.PrivateKey, nil
	}
	return parseEdPrivateKey(m.config.PrivateKey)
}

func (m *Manager) verifyKey() (interface{}, error) {
	if m.config.SigningMethod == MethodHS256 {
		return m.config.PrivateKey, nil
	}
	return parseEdPublicKey(m.config.PublicKey)
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
