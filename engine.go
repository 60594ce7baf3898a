package authlife

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	internalaudit "github.com/MrEthical07/authlife/internal/audit"
	"github.com/MrEthical07/authlife/jwt"
	"github.com/MrEthical07/authlife/session"
)

// Engine is the composition root: one RotationManager, one SessionManager
// and the token manager bound to the rotating keyring. Build it with
// [Builder]; shut it down with Close.
type Engine struct {
	config   Config
	store    session.Store
	rotation *RotationManager
	sessions *SessionManager
	tokens   *jwt.Manager
	audit    *internalaudit.Dispatcher
	metrics  *Metrics
	logger   *slog.Logger

	closeOnce sync.Once
}

// Secrets returns the signing-secret rotation manager.
func (e *Engine) Secrets() *RotationManager {
	return e.rotation
}

// Sessions returns the session lifecycle manager.
func (e *Engine) Sessions() *SessionManager {
	return e.sessions
}

// Tokens returns the access-token manager.
func (e *Engine) Tokens() *jwt.Manager {
	return e.tokens
}

// Config returns a copy of the configuration the engine was built with.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

type pinger interface {
	Ping(ctx context.Context) (time.Duration, error)
}

// Health reports whether the engine can serve authentication. It fails when
// the engine is closed or the session store does not answer a ping.
func (e *Engine) Health(ctx context.Context) error {
	if e == nil || e.rotation == nil {
		return ErrEngineNotReady
	}
	if e.rotation.closed.Load() {
		return ErrManagerClosed
	}
	if p, ok := e.store.(pinger); ok {
		if _, err := p.Ping(ctx); err != nil {
			return errors.Join(ErrSessionPersistence, err)
		}
	}
	return nil
}

// Close is the shutdown hook: it stops automatic rotation, drops all secret
// material and drains pending audit events. It is idempotent and does not
// close the session store, which the caller owns.
//
// Close does not mutate shared global state and can be used concurrently.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		if e.rotation != nil {
			e.rotation.Close()
		}
		e.audit.Close()
		e.logger.Info("engine closed")
	})
}

// AuditDropped returns how many audit events were dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// AuditFailed returns how many audit events the sink rejected.
func (e *Engine) AuditFailed() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Failed()
}

// MetricsSnapshot returns a point-in-time copy of all counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}
