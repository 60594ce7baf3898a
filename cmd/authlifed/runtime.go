package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authlife"
	"github.com/MrEthical07/authlife/keysink"
	"github.com/MrEthical07/authlife/session/sqlstore"
)

var errNoBackend = errors.New("REDIS_ADDR or DATABASE_URL is required")

// runtime owns the engine and every connection it was built on.
type runtime struct {
	engine *authlife.Engine
	redis  redis.UniversalClient
	db     *sql.DB
	logger *slog.Logger
}

// runtimeOptions lets tests inject pre-built clients.
type runtimeOptions struct {
	redis    redis.UniversalClient
	db       *sql.DB
	auditOut io.Writer
}

func openRuntime(ctx context.Context, a *app, opts runtimeOptions) (*runtime, error) {
	cfg, warnings := authlife.LoadConfigFrom(a.v, a.logger)
	for _, w := range warnings {
		a.logger.Warn("configuration warning", "error", w)
	}

	if a.settings.AuditLog {
		cfg.Audit.Enabled = true
	}

	rt := &runtime{redis: opts.redis, db: opts.db, logger: a.logger}

	if rt.redis == nil && a.settings.RedisAddr != "" {
		rt.redis = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{a.settings.RedisAddr}})
	}
	if rt.db == nil && a.settings.DatabaseURL != "" {
		db, err := sql.Open("pgx", a.settings.DatabaseURL)
		if err != nil {
			rt.close()
			return nil, fmt.Errorf("open database: %w", err)
		}
		rt.db = db
	}
	if rt.redis == nil && rt.db == nil {
		return nil, errNoBackend
	}

	b := authlife.New().
		WithConfig(cfg).
		WithLogger(a.logger)

	if rt.db != nil {
		store := sqlstore.New(rt.db)
		if err := store.Migrate(ctx); err != nil {
			rt.close()
			return nil, err
		}
		b = b.WithSessionStore(store)
	} else {
		b = b.WithRedis(rt.redis)
	}

	notifier, err := keyNotifier(ctx, a.settings, rt.redis)
	if err != nil {
		rt.close()
		return nil, err
	}
	if notifier != nil {
		b = b.WithKeyNotifier(notifier)
	}

	if a.settings.AuditLog {
		out := opts.auditOut
		if out == nil {
			out = os.Stdout
		}
		b = b.WithAuditSink(authlife.NewJSONWriterSink(out))
	}

	engine, err := b.Build()
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.engine = engine
	return rt, nil
}

// keyNotifier builds the rotation notifier chain from the daemon settings.
// It returns nil when no sink is configured.
func keyNotifier(ctx context.Context, s settings, client redis.UniversalClient) (keysink.Notifier, error) {
	var chain keysink.Multi
	if s.KeysinkChannel != "" {
		if client == nil {
			return nil, fmt.Errorf("%s requires %s", keyKeysinkChannel, keyRedisAddr)
		}
		chain = append(chain, keysink.NewRedisPublisher(client, s.KeysinkChannel))
	}
	if s.KeysinkAWS != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		chain = append(chain, keysink.NewSecretsManager(secretsmanager.NewFromConfig(awsCfg), s.KeysinkAWS))
	}
	if len(chain) == 0 {
		return nil, nil
	}
	return chain, nil
}

func (rt *runtime) close() {
	if rt.engine != nil {
		rt.engine.Close()
	}
	if rt.redis != nil {
		if err := rt.redis.Close(); err != nil {
			rt.logger.Warn("redis close failed", "error", err)
		}
	}
	if rt.db != nil {
		if err := rt.db.Close(); err != nil {
			rt.logger.Warn("database close failed", "error", err)
		}
	}
}
