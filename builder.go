package authkernel

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/authkernel/authkernel/geo"
	"github.com/authkernel/authkernel/password"
	"github.com/authkernel/authkernel/ratelimit"
	"github.com/authkernel/authkernel/rbac"
	"github.com/authkernel/authkernel/session"
	"github.com/authkernel/authkernel/token"
	"github.com/authkernel/authkernel/username"
)

// Builder assembles an [Engine]. A builder is single-use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	userStore UserStore
	roleStore RoleStore
	locator   geo.Locator
	auditSink AuditSink
	logger    zerolog.Logger
	hasLogger bool
	clock     func() time.Time

	built bool
}

// New creates a builder seeded with defaults.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the builder's configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing sessions, rate limits, and the
// geolocation cache.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserStore sets the user persistence port.
func (b *Builder) WithUserStore(store UserStore) *Builder {
	b.userStore = store
	return b
}

// WithRoleStore sets the role and permission persistence port.
func (b *Builder) WithRoleStore(store RoleStore) *Builder {
	b.roleStore = store
	return b
}

// WithLocator overrides the geolocation collaborator. When unset and
// geolocation is enabled, an HTTP locator with a Redis cache is built
// from the Geo config section.
func (b *Builder) WithLocator(locator geo.Locator) *Builder {
	b.locator = locator
	return b
}

// WithAuditSink sets the audit event consumer.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the engine logger. Defaults to a disabled logger.
func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = logger
	b.hasLogger = true
	return b
}

// WithClock overrides the engine clock, for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// Build wires and validates the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.userStore == nil {
		return nil, errors.New("user store required")
	}
	if b.roleStore == nil {
		return nil, errors.New("role store required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := zerolog.Nop()
	if b.hasLogger {
		logger = b.logger
	}
	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	// Supplying a sink implies the caller wants audit events.
	if b.auditSink != nil {
		cfg.Audit.Enabled = true
	}

	engine := &Engine{
		config: cfg,
		logger: logger,
		users:  b.userStore,
		roles:  b.roleStore,
		now:    clock,
	}

	hasher, err := password.NewHasher(password.Config{Cost: cfg.Password.Cost})
	if err != nil {
		return nil, err
	}
	engine.hasher = hasher

	policy, err := password.NewPolicy(cfg.Password.MinLength, cfg.Password.MaxLength)
	if err != nil {
		return nil, err
	}
	engine.policy = policy

	tokens, err := token.NewManager(token.Config{
		AccessTTL:     cfg.Token.AccessTTL,
		RefreshTTL:    cfg.Token.RefreshTTL,
		SigningMethod: token.SigningMethod(cfg.Token.SigningMethod),
		PrivateKey:    cloneBytes(cfg.Token.PrivateKey),
		PublicKey:     cloneBytes(cfg.Token.PublicKey),
		Issuer:        cfg.Token.Issuer,
		Audience:      cfg.Token.Audience,
		Leeway:        cfg.Token.Leeway,
		KeyID:         cfg.Token.KeyID,
		VerifyKeys:    cfg.Token.VerifyKeys,
	})
	if err != nil {
		return nil, err
	}
	engine.tokens = tokens.WithClock(clock)

	resolver, err := username.NewResolver(username.Config{
		MaxLength:       cfg.Username.MaxLength,
		NumericAttempts: cfg.Username.NumericAttempts,
	}, b.userStore.UsernameExists)
	if err != nil {
		return nil, err
	}
	engine.usernames = resolver

	evaluator, err := rbac.NewEvaluator(b.roleStore)
	if err != nil {
		return nil, err
	}
	engine.evaluator = evaluator

	engine.sessions = session.NewStore(b.redis, cfg.Session.RedisPrefix)

	if cfg.RateLimit.Enabled {
		engine.limiter = ratelimit.New(b.redis, ratelimit.Config{
			Identifier: cfg.RateLimit.Identifier,
			User:       cfg.RateLimit.User,
			Global:     cfg.RateLimit.Global,
		}, cfg.Session.RedisPrefix).WithClock(clock)
	}

	engine.locator = b.locator
	if engine.locator == nil && cfg.Geo.Enabled {
		httpLocator := geo.NewHTTPLocator(geo.HTTPConfig{
			BaseURL: cfg.Geo.BaseURL,
			Timeout: cfg.Geo.Timeout,
		}, logger)
		engine.locator = geo.NewCachedLocator(httpLocator, b.redis, cfg.Session.RedisPrefix, cfg.Geo.CacheTTL)
	}

	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	b.built = true

	return engine, nil
}
