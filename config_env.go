package authlife

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/MrEthical07/authlife/secret"
)

// Environment keys read by LoadConfig.
const (
	EnvAppEnv                  = "APP_ENV"
	EnvSecret                  = "JWT_SECRET"
	EnvRotationIntervalHours   = "JWT_ROTATION_INTERVAL_HOURS"
	EnvValidSecrets            = "JWT_VALID_SECRETS"
	EnvAutoRotate              = "JWT_AUTO_ROTATE"
	EnvNotifyTimeout           = "JWT_NOTIFY_TIMEOUT"
	EnvSessionIdleTimeout      = "SESSION_IDLE_TIMEOUT"
	EnvSessionAbsoluteTimeout  = "SESSION_ABSOLUTE_TIMEOUT"
	EnvSessionWarningThreshold = "SESSION_WARNING_THRESHOLD"
	EnvSessionMinExtension     = "SESSION_MIN_EXTENSION_INTERVAL"
	EnvSessionExtendOnActivity = "SESSION_EXTEND_ON_ACTIVITY"
	EnvSessionTokenPrefix      = "SESSION_TOKEN_PREFIX"
	EnvSessionRedisPrefix      = "SESSION_REDIS_PREFIX"
	EnvAccessTTL               = "JWT_ACCESS_TTL"
	EnvIssuer                  = "JWT_ISSUER"
	EnvAudience                = "JWT_AUDIENCE"
	EnvAuditEnabled            = "AUDIT_ENABLED"
	EnvAuditBufferSize         = "AUDIT_BUFFER_SIZE"
	EnvAuditDropIfFull         = "AUDIT_DROP_IF_FULL"
	EnvMetricsEnabled          = "METRICS_ENABLED"
	EnvMetricsLatency          = "METRICS_LATENCY_HISTOGRAMS"
)

// NewViper returns a viper instance reading an optional .env file in the
// working directory, overridden by process environment variables.
func NewViper() *viper.Viper {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // a missing .env is fine

	v.AutomaticEnv()
	return v
}

// LoadConfig reads the engine configuration from the environment. See
// [LoadConfigFrom].
func LoadConfig(logger *slog.Logger) (Config, []error) {
	return LoadConfigFrom(NewViper(), logger)
}

// LoadConfigFrom builds a Config from v. It never fails: every malformed
// value is logged, reported as an [ErrConfiguration] warning and replaced by
// its default. A missing or short JWT_SECRET leaves Seed empty so a fresh
// secret is generated at Build.
func LoadConfigFrom(v *viper.Viper, logger *slog.Logger) (Config, []error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := envLoader{v: v, logger: logger}
	cfg := defaultConfig()

	if env := strings.TrimSpace(v.GetString(EnvAppEnv)); env != "" {
		cfg.Environment = env
	}

	// Secrets
	if seed := strings.TrimSpace(v.GetString(EnvSecret)); seed != "" {
		if len(seed) < secret.MinSeedLength {
			l.warn(EnvSecret, secret.Mask(seed), fmt.Sprintf("shorter than %d characters, generating a new secret", secret.MinSeedLength))
		} else {
			cfg.Secrets.Seed = seed
		}
	}
	if raw := v.GetString(EnvValidSecrets); raw != "" {
		for _, s := range splitList(raw) {
			if len(s) < secret.MinSeedLength {
				l.warn(EnvValidSecrets, secret.Mask(s), "legacy secret too short, ignored")
				continue
			}
			cfg.Secrets.Legacy = append(cfg.Secrets.Legacy, s)
		}
	}
	cfg.Secrets.RotationInterval = l.hours(EnvRotationIntervalHours, cfg.Secrets.RotationInterval)
	cfg.Secrets.AutoRotate = l.boolean(EnvAutoRotate, IsProductionLike(cfg.Environment))
	cfg.Secrets.NotifyTimeout = l.duration(EnvNotifyTimeout, cfg.Secrets.NotifyTimeout)

	// Session
	sess := cfg.Session
	sess.IdleTimeout = l.duration(EnvSessionIdleTimeout, sess.IdleTimeout)
	sess.AbsoluteTimeout = l.duration(EnvSessionAbsoluteTimeout, sess.AbsoluteTimeout)
	sess.WarningThreshold = l.durationAllowZero(EnvSessionWarningThreshold, sess.WarningThreshold)
	sess.MinExtensionInterval = l.durationAllowZero(EnvSessionMinExtension, sess.MinExtensionInterval)
	sess.ExtendOnActivity = l.boolean(EnvSessionExtendOnActivity, sess.ExtendOnActivity)
	if p := strings.TrimSpace(v.GetString(EnvSessionTokenPrefix)); p != "" {
		if strings.Contains(p, "_") {
			l.warn(EnvSessionTokenPrefix, p, "must not contain '_'")
		} else if len(p) > MaxTokenPrefixLength {
			l.warn(EnvSessionTokenPrefix, p, fmt.Sprintf("longer than %d characters", MaxTokenPrefixLength))
		} else {
			sess.TokenPrefix = p
		}
	}
	if p := strings.TrimSpace(v.GetString(EnvSessionRedisPrefix)); p != "" {
		sess.RedisPrefix = p
	}

	// Tokens
	cfg.Tokens.AccessTTL = l.duration(EnvAccessTTL, cfg.Tokens.AccessTTL)
	if iss := strings.TrimSpace(v.GetString(EnvIssuer)); iss != "" {
		cfg.Tokens.Issuer = iss
	}
	cfg.Tokens.Audience = strings.TrimSpace(v.GetString(EnvAudience))

	// Audit / metrics
	cfg.Audit.Enabled = l.boolean(EnvAuditEnabled, cfg.Audit.Enabled)
	cfg.Audit.BufferSize = l.positiveInt(EnvAuditBufferSize, cfg.Audit.BufferSize)
	cfg.Audit.DropIfFull = l.boolean(EnvAuditDropIfFull, cfg.Audit.DropIfFull)
	cfg.Metrics.Enabled = l.boolean(EnvMetricsEnabled, cfg.Metrics.Enabled)
	cfg.Metrics.EnableLatencyHistograms = cfg.Metrics.Enabled && l.boolean(EnvMetricsLatency, false)

	// Individually valid values can still be inconsistent with each other.
	// Each failing section falls back to its defaults on its own.
	cfg.Session = sess
	def := defaultConfig()
	if err := cfg.validateSecrets(); err != nil {
		l.warnErr("JWT_*", err, "secret rotation settings inconsistent, using defaults")
		cfg.Secrets.RotationInterval = def.Secrets.RotationInterval
		cfg.Secrets.NotifyTimeout = def.Secrets.NotifyTimeout
	}
	if err := cfg.validateSession(); err != nil {
		l.warnErr("SESSION_*", err, "session policy inconsistent, using defaults")
		cfg.Session = def.Session
		cfg.Session.TokenPrefix = sess.TokenPrefix
		cfg.Session.RedisPrefix = sess.RedisPrefix
	}
	if err := cfg.validateTokens(); err != nil {
		l.warnErr("JWT_ACCESS_TTL", err, "token settings inconsistent, using defaults")
		cfg.Tokens.AccessTTL = def.Tokens.AccessTTL
		cfg.Tokens.Leeway = def.Tokens.Leeway
	}
	if err := cfg.validateAudit(); err != nil {
		l.warnErr("AUDIT_*", err, "audit settings inconsistent, using defaults")
		cfg.Audit = def.Audit
	}

	return cfg, l.warnings
}

type envLoader struct {
	v        *viper.Viper
	logger   *slog.Logger
	warnings []error
}

func (l *envLoader) warn(key, value, reason string) {
	err := fmt.Errorf("%w: %s=%q: %s", ErrConfiguration, key, value, reason)
	l.warnings = append(l.warnings, err)
	l.logger.Warn("configuration value rejected",
		slog.String("key", key),
		slog.String("reason", reason),
	)
}

func (l *envLoader) warnErr(key string, cause error, reason string) {
	l.warnings = append(l.warnings, cause)
	l.logger.Warn("configuration value rejected",
		slog.String("key", key),
		slog.String("reason", reason),
		slog.Any("error", cause),
	)
}

func (l *envLoader) raw(key string) (string, bool) {
	if !l.v.IsSet(key) {
		return "", false
	}
	s := strings.TrimSpace(l.v.GetString(key))
	return s, s != ""
}

// maxHours is the largest hour count representable as a time.Duration.
const maxHours = float64(math.MaxInt64) / float64(time.Hour)

func (l *envLoader) hours(key string, def time.Duration) time.Duration {
	s, ok := l.raw(key)
	if !ok {
		return def
	}
	h, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(h) || math.IsInf(h, 0) || h <= 0 || h >= maxHours {
		l.warn(key, s, "expected a positive number of hours")
		return def
	}
	return time.Duration(h * float64(time.Hour))
}

func (l *envLoader) duration(key string, def time.Duration) time.Duration {
	s, ok := l.raw(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		l.warn(key, s, "expected a positive duration")
		return def
	}
	return d
}

func (l *envLoader) durationAllowZero(key string, def time.Duration) time.Duration {
	s, ok := l.raw(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		l.warn(key, s, "expected a non-negative duration")
		return def
	}
	return d
}

func (l *envLoader) boolean(key string, def bool) bool {
	s, ok := l.raw(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		l.warn(key, s, "expected a boolean")
		return def
	}
	return b
}

func (l *envLoader) positiveInt(key string, def int) int {
	s, ok := l.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		l.warn(key, s, "expected a positive integer")
		return def
	}
	return n
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
