package authkernel

import (
	"errors"
	"fmt"
	"time"

	"github.com/authkernel/authkernel/ratelimit"
)

// Config carries every engine tuning knob. Zero values are filled from
// defaultConfig by the builder; Validate rejects combinations the engine
// cannot run with.
type Config struct {
	Token     TokenConfig
	Password  PasswordConfig
	Session   SessionConfig
	RateLimit RateLimitConfig
	Username  UsernameConfig
	Geo       GeoConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

// TokenConfig configures signing and lifetimes for the token service.
type TokenConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "ed25519" (default) or "hs256"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	// KeyID names the signing key in issued headers; VerifyKeys maps key
	// ids to Ed25519 public keys for verification during rotation.
	KeyID      string
	VerifyKeys map[string][]byte
}

// PasswordConfig configures hashing cost and the strength policy.
type PasswordConfig struct {
	Cost           int
	MinLength      int
	MaxLength      int
	UpgradeOnLogin bool
}

// SessionConfig configures session storage and per-user limits.
type SessionConfig struct {
	RedisPrefix string
	// MaxSessionsPerUser caps concurrent active sessions; 0 disables the cap.
	MaxSessionsPerUser int
	// EnforceSingleSession invalidates all other sessions on every login.
	EnforceSingleSession bool
}

// RateLimitConfig holds one sliding-window policy per scope. A scope
// with MaxAttempts 0 is disabled.
type RateLimitConfig struct {
	Enabled    bool
	Identifier ratelimit.Policy
	User       ratelimit.Policy
	Global     ratelimit.Policy
}

// UsernameConfig configures handle generation.
type UsernameConfig struct {
	MaxLength       int
	NumericAttempts int
}

// GeoConfig configures the optional geolocation collaborator.
type GeoConfig struct {
	Enabled  bool
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// AuditConfig configures the audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig configures the internal counter registry.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns a configuration with conservative defaults.
// Callers must still provide signing key material before Build.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "ed25519",
			Leeway:        30 * time.Second,
		},
		Password: PasswordConfig{
			Cost:      12,
			MinLength: 8,
			MaxLength: 64,
		},
		Session: SessionConfig{
			RedisPrefix: "ak",
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			Identifier: ratelimit.Policy{
				MaxAttempts: 10,
				Window:      15 * time.Minute,
				Block:       30 * time.Minute,
			},
			User: ratelimit.Policy{
				MaxAttempts: 5,
				Window:      15 * time.Minute,
				Block:       30 * time.Minute,
			},
		},
		Username: UsernameConfig{
			MaxLength:       64,
			NumericAttempts: 100,
		},
		Geo: GeoConfig{
			Timeout:  2 * time.Second,
			CacheTTL: 24 * time.Hour,
		},
		Audit: AuditConfig{
			BufferSize: 256,
			DropIfFull: true,
		},
	}
}

// Validate checks cross-field invariants the subsystem constructors do
// not cover themselves.
func (c *Config) Validate() error {
	if c.Token.AccessTTL <= 0 || c.Token.RefreshTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if c.Token.AccessTTL >= c.Token.RefreshTTL {
		return errors.New("access TTL must be shorter than refresh TTL")
	}
	switch c.Token.SigningMethod {
	case "ed25519", "hs256":
	default:
		return fmt.Errorf("unsupported signing method %q", c.Token.SigningMethod)
	}
	if c.Password.MinLength <= 0 || c.Password.MaxLength < c.Password.MinLength {
		return errors.New("invalid password length bounds")
	}
	if c.Session.MaxSessionsPerUser < 0 {
		return errors.New("MaxSessionsPerUser cannot be negative")
	}
	if c.RateLimit.Enabled {
		for _, p := range []ratelimit.Policy{c.RateLimit.Identifier, c.RateLimit.User, c.RateLimit.Global} {
			if p.MaxAttempts > 0 && (p.Window <= 0 || p.Block <= 0) {
				return errors.New("enabled rate limit scopes need positive window and block durations")
			}
		}
	}
	if c.Geo.Enabled && c.Geo.BaseURL == "" {
		return errors.New("geolocation requires a base URL")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.PrivateKey = cloneBytes(cfg.Token.PrivateKey)
	out.Token.PublicKey = cloneBytes(cfg.Token.PublicKey)
	if cfg.Token.VerifyKeys != nil {
		out.Token.VerifyKeys = make(map[string][]byte, len(cfg.Token.VerifyKeys))
		for kid, key := range cfg.Token.VerifyKeys {
			out.Token.VerifyKeys[kid] = cloneBytes(key)
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
