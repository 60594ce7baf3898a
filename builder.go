package authlife

import (
	"errors"
	"log/slog"

	"github.com/juju/clock"
	"github.com/redis/go-redis/v9"

	internalaudit "github.com/MrEthical07/authlife/internal/audit"
	"github.com/MrEthical07/authlife/jwt"
	"github.com/MrEthical07/authlife/keysink"
	"github.com/MrEthical07/authlife/secret"
	"github.com/MrEthical07/authlife/session"
)

// Builder assembles an [Engine]. Builder instances are intended to be
// configured during initialization and used for exactly one Build.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	store  session.Store

	auditSink AuditSink
	notifier  keysink.Notifier
	clock     clock.Clock
	logger    *slog.Logger
	generator secret.Generator

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration. It is validated at Build.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis makes Build create a [session.RedisStore] on client using
// Session.RedisPrefix. An explicit WithSessionStore takes precedence.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithSessionStore sets the session persistence backend.
func (b *Builder) WithSessionStore(store session.Store) *Builder {
	b.store = store
	return b
}

// WithAuditSink sets the audit destination. It only receives events when
// Audit.Enabled is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithKeyNotifier sets the best-effort collaborator told about every
// rotation. Use [keysink.Multi] for several.
func (b *Builder) WithKeyNotifier(n keysink.Notifier) *Builder {
	b.notifier = n
	return b
}

// WithClock overrides the wall clock for both managers and the scheduler.
func (b *Builder) WithClock(clk clock.Clock) *Builder {
	b.clock = clk
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithGenerator overrides secret generation.
func (b *Builder) WithGenerator(g secret.Generator) *Builder {
	b.generator = g
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine. When
// Secrets.AutoRotate is set the rotation scheduler is started before Build
// returns.
//
// Build may return an error when validation fails, no session backend was
// supplied, or the initial secret cannot be generated.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store := b.store
	if store == nil {
		if b.redis == nil {
			return nil, errors.New("session store or redis client required")
		}
		store = session.NewRedisStore(b.redis, cfg.Session.RedisPrefix)
	}

	clk := b.clock
	if clk == nil {
		clk = clock.WallClock
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	retained := cloneConfig(cfg)
	retained.Secrets = retained.Secrets.withoutKeyMaterial()
	engine := &Engine{
		config: retained,
		store:  store,
		logger: logger,
	}
	engine.metrics = NewMetrics(cfg.Metrics)
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:     cfg.Audit.Enabled,
		BufferSize:  cfg.Audit.BufferSize,
		DropIfFull:  cfg.Audit.DropIfFull,
		EmitTimeout: cfg.Audit.EmitTimeout,
		Logger:      logger.With(slog.String("component", "audit")),
		OnFailure: func(error) {
			engine.metrics.Inc(MetricAuditSinkFailed)
		},
	}, b.auditSink)

	aud := &auditor{
		dispatcher:  engine.audit,
		environment: cfg.Environment,
		now:         clk.Now,
	}

	// -------- SECRETS --------
	rotation, err := newRotationManager(rotationDeps{
		cfg:         cfg.Secrets,
		environment: cfg.Environment,
		generator:   b.generator,
		clock:       clk,
		logger:      logger.With(slog.String("component", "rotation")),
		audit:       aud,
		metrics:     engine.metrics,
		notifier:    b.notifier,
	})
	if err != nil {
		engine.audit.Close()
		return nil, err
	}
	engine.rotation = rotation

	// -------- SESSIONS --------
	engine.sessions = newSessionManager(sessionDeps{
		store:   store,
		policy:  cfg.Session,
		clock:   clk,
		logger:  logger.With(slog.String("component", "session")),
		audit:   aud,
		metrics: engine.metrics,
	})

	// -------- TOKENS --------
	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL: cfg.Tokens.AccessTTL,
		Issuer:    cfg.Tokens.Issuer,
		Audience:  cfg.Tokens.Audience,
		Leeway:    cfg.Tokens.Leeway,
		Now:       clk.Now,
	}, rotation)
	if err != nil {
		engine.Close()
		return nil, err
	}
	engine.tokens = tokens

	if cfg.Secrets.AutoRotate {
		if err := rotation.StartAutomaticRotation(); err != nil {
			engine.Close()
			return nil, err
		}
	}

	b.built = true
	b.config.Secrets = b.config.Secrets.withoutKeyMaterial()
	return engine, nil
}
