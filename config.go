package authlife

import (
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/authlife/secret"
)

// Config is the complete engine configuration. Obtain defaults from
// [DefaultConfig] or the environment through [LoadConfig]; the Builder
// validates it once at Build.
type Config struct {
	// Environment names the deployment (development, staging, production).
	// It is stamped on audit events and rotation notices.
	Environment string
	Secrets     SecretsConfig
	Session     SessionConfig
	Tokens      TokenConfig
	Audit       AuditConfig
	Metrics     MetricsConfig
}

/*
====================================
SECRETS CONFIG
====================================
*/

// SecretsConfig controls the signing-secret keyring and rotation schedule.
type SecretsConfig struct {
	// Seed overrides the initial current secret. Empty means generate one.
	Seed string
	// Legacy seeds the previous-secret history, most recent first. Entries
	// beyond the history bound are ignored.
	Legacy []string
	// RotationInterval is the automatic rotation cadence.
	RotationInterval time.Duration
	// AutoRotate starts the scheduler at Build.
	AutoRotate bool
	// NotifyTimeout bounds a single key-management notification.
	NotifyTimeout time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig holds the global session timeout policy. Policy is not
// adjustable per session.
type SessionConfig struct {
	IdleTimeout     time.Duration
	AbsoluteTimeout time.Duration
	// WarningThreshold is how close to the nearer timeout a session counts
	// as expiring soon.
	WarningThreshold time.Duration
	// MinExtensionInterval suppresses store writes for activity that follows
	// the previous recorded activity too closely.
	MinExtensionInterval time.Duration
	ExtendOnActivity     bool
	// TokenPrefix namespaces opaque session tokens. It must not contain '_'.
	TokenPrefix string
	// RedisPrefix namespaces Redis keys when the engine builds its own
	// RedisStore from a client.
	RedisPrefix string
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig controls access tokens signed with the rotating secret.
type TokenConfig struct {
	AccessTTL time.Duration
	Issuer    string
	Audience  string
	// Leeway tolerates clock skew on exp/iat checks. At most 2 minutes.
	Leeway time.Duration
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// EmitTimeout bounds one sink write.
	EmitTimeout time.Duration
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

const (
	defaultRotationInterval = 7 * 24 * time.Hour
	defaultNotifyTimeout    = 5 * time.Second
)

// DefaultConfig returns the defaults documented on each field: 7 day
// rotation, 30 minute idle timeout, 8 hour absolute timeout, 5 minute
// warning threshold and 1 minute minimum extension interval.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Environment: "development",
		Secrets: SecretsConfig{
			RotationInterval: defaultRotationInterval,
			AutoRotate:       false,
			NotifyTimeout:    defaultNotifyTimeout,
		},
		Session: SessionConfig{
			IdleTimeout:          30 * time.Minute,
			AbsoluteTimeout:      8 * time.Hour,
			WarningThreshold:     5 * time.Minute,
			MinExtensionInterval: 1 * time.Minute,
			ExtendOnActivity:     true,
			TokenPrefix:          "sess",
			RedisPrefix:          "als",
		},
		Tokens: TokenConfig{
			AccessTTL: 15 * time.Minute,
			Issuer:    "authlife",
		},
		Audit: AuditConfig{
			Enabled:     false,
			BufferSize:  1024,
			DropIfFull:  true,
			EmitTimeout: 2 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

// IsProductionLike reports whether env enables automatic rotation by default.
func IsProductionLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "production", "prod", "staging":
		return true
	default:
		return false
	}
}

// withoutKeyMaterial drops the seed and legacy secrets. After Build the
// keyring is their only holder.
func (c SecretsConfig) withoutKeyMaterial() SecretsConfig {
	c.Seed = ""
	c.Legacy = nil
	return c
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if len(cfg.Secrets.Legacy) > 0 {
		out.Secrets.Legacy = append([]string(nil), cfg.Secrets.Legacy...)
	}
	return out
}

/*
====================================
VALIDATION
====================================
*/

// MaxTokenPrefixLength bounds Session.TokenPrefix so a full session token
// stays within the store's identity encoding limits.
const MaxTokenPrefixLength = 32

// Validate reports the first invalid field. Every error wraps
// [ErrConfiguration].
func (c *Config) Validate() error {
	for _, check := range []func() error{
		c.validateSecrets,
		c.validateSession,
		c.validateTokens,
		c.validateAudit,
	} {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateSecrets() error {
	if c.Secrets.Seed != "" && len(c.Secrets.Seed) < secret.MinSeedLength {
		return configErrorf("Secrets Seed must be at least %d characters", secret.MinSeedLength)
	}
	for i, s := range c.Secrets.Legacy {
		if len(s) < secret.MinSeedLength {
			return configErrorf("Secrets Legacy[%d] must be at least %d characters", i, secret.MinSeedLength)
		}
	}
	if c.Secrets.RotationInterval < 0 {
		return configErrorf("Secrets RotationInterval must be >= 0")
	}
	if c.Secrets.AutoRotate && c.Secrets.RotationInterval == 0 {
		return configErrorf("Secrets AutoRotate requires RotationInterval > 0")
	}
	if c.Secrets.NotifyTimeout <= 0 {
		return configErrorf("Secrets NotifyTimeout must be > 0")
	}
	return nil
}

func (c *Config) validateSession() error {
	if c.Session.IdleTimeout <= 0 {
		return configErrorf("Session IdleTimeout must be > 0")
	}
	if c.Session.AbsoluteTimeout <= 0 {
		return configErrorf("Session AbsoluteTimeout must be > 0")
	}
	if c.Session.IdleTimeout > c.Session.AbsoluteTimeout {
		return configErrorf("Session IdleTimeout must be <= AbsoluteTimeout")
	}
	if c.Session.WarningThreshold < 0 || c.Session.WarningThreshold >= c.Session.AbsoluteTimeout {
		return configErrorf("Session WarningThreshold must be in [0, AbsoluteTimeout)")
	}
	if c.Session.MinExtensionInterval < 0 || c.Session.MinExtensionInterval >= c.Session.IdleTimeout {
		return configErrorf("Session MinExtensionInterval must be in [0, IdleTimeout)")
	}
	if c.Session.TokenPrefix == "" || strings.Contains(c.Session.TokenPrefix, "_") {
		return configErrorf("Session TokenPrefix must be non-empty and must not contain '_'")
	}
	if len(c.Session.TokenPrefix) > MaxTokenPrefixLength {
		return configErrorf("Session TokenPrefix must be at most %d characters", MaxTokenPrefixLength)
	}
	return nil
}

func (c *Config) validateTokens() error {
	if c.Tokens.AccessTTL <= 0 {
		return configErrorf("Tokens AccessTTL must be > 0")
	}
	if c.Tokens.Leeway < 0 || c.Tokens.Leeway > 2*time.Minute {
		return configErrorf("Tokens Leeway must be in [0, 2m]")
	}
	return nil
}

func (c *Config) validateAudit() error {
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return configErrorf("Audit BufferSize must be > 0 when audit is enabled")
	}
	if c.Audit.EmitTimeout < 0 {
		return configErrorf("Audit EmitTimeout must be >= 0")
	}
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return configErrorf("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}
	return nil
}

func configErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrConfiguration}, args...)...)
}
