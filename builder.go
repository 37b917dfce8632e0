package aegis

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aegisauth/aegis/audit"
	"github.com/aegisauth/aegis/family"
	"github.com/aegisauth/aegis/mfa"
	"github.com/aegisauth/aegis/password"
	"github.com/aegisauth/aegis/session"
	"github.com/aegisauth/aegis/token"
)

// Builder assembles an Engine. Redis, a UserStore, a session.Store,
// and signing key material are mandatory; everything else has
// defaults.
type Builder struct {
	config       Config
	configSet    bool
	redis        redis.UniversalClient
	users        UserStore
	sessionStore session.Store
	sink         audit.Sink
	clock        func() time.Time
}

// New starts a Builder with DefaultConfig.
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig replaces the whole configuration. Zero fields are filled
// from defaults at Build time.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	b.configSet = true
	return b
}

// WithRedis sets the coordination store client.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserStore sets the credential store.
func (b *Builder) WithUserStore(store UserStore) *Builder {
	b.users = store
	return b
}

// WithSessionStore sets the session repository.
func (b *Builder) WithSessionStore(store session.Store) *Builder {
	b.sessionStore = store
	return b
}

// WithAuditSink sets the audit destination. Without one, events are
// dropped by a NoOpSink.
func (b *Builder) WithAuditSink(sink audit.Sink) *Builder {
	b.sink = sink
	return b
}

// WithClock overrides the time source. Tests use this.
func (b *Builder) WithClock(clock func() time.Time) *Builder {
	b.clock = clock
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.redis == nil {
		return nil, errors.New("aegis: redis client is required")
	}
	if b.users == nil {
		return nil, errors.New("aegis: user store is required")
	}
	if b.sessionStore == nil {
		return nil, errors.New("aegis: session store is required")
	}

	cfg := b.config
	if b.configSet {
		cfg.applyDefaults()
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	tokens, err := token.NewManager(token.Config{
		SigningMethod: cfg.Token.SigningMethod,
		PrivateKey:    cfg.Token.PrivateKey,
		PublicKey:     cfg.Token.PublicKey,
		Issuer:        cfg.Token.Issuer,
		AccessTTL:     cfg.Token.AccessTTL,
		VerifyTTL:     cfg.Token.VerifyTTL,
		ResetTTL:      cfg.Token.ResetTTL,
		Leeway:        cfg.Token.Leeway,
		Now:           clock,
	})
	if err != nil {
		return nil, err
	}

	hasher, err := password.NewHasher(cfg.Password)
	if err != nil {
		return nil, err
	}

	families := family.NewTracker(b.redis, cfg.KeyPrefix+":tf", cfg.Token.RefreshTTL)

	sessions := session.NewManager(b.sessionStore, families, clock, session.Config{
		Lifetime:        cfg.Session.Lifetime,
		InactivityLimit: cfg.Session.InactivityLimit,
	})

	engine := &Engine{
		config:   cfg,
		users:    b.users,
		tokens:   tokens,
		hasher:   hasher,
		families: families,
		sessions: sessions,
		metrics:  NewMetrics(cfg.Metrics),
		clock:    clock,
		lockout:  lockoutPolicy{config: cfg.Lockout, clock: clock},
	}

	challenges := mfa.NewChallengeStore(b.redis, cfg.KeyPrefix+":mc", clock)
	engine.mfa, err = mfa.NewEngine(challenges, mfaAccounts{users: b.users}, mfa.Config{
		Issuer:       cfg.MFA.Issuer,
		ChallengeTTL: cfg.MFA.ChallengeTTL,
		MaxAttempts:  cfg.MFA.MaxAttempts,
	}, clock)
	if err != nil {
		return nil, err
	}

	if cfg.Audit.Enabled {
		engine.auditor = audit.NewDispatcher(audit.DispatcherConfig{
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.sink)
	}

	return engine, nil
}

// Engine is the authentication façade. All methods are safe for
// concurrent use.
type Engine struct {
	config   Config
	users    UserStore
	tokens   *token.Manager
	hasher   *password.Hasher
	families *family.Tracker
	sessions *session.Manager
	mfa      *mfa.Engine
	auditor  *audit.Dispatcher
	metrics  *Metrics
	clock    func() time.Time
	lockout  lockoutPolicy
	closed   atomic.Bool
}
