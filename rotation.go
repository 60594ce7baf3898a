package authlife

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/clock"

	"github.com/MrEthical07/authlife/keysink"
	"github.com/MrEthical07/authlife/secret"
)

const (
	// ReasonAutomatic tags scheduler-driven rotations.
	ReasonAutomatic = "automatic_rotation"
	// ReasonManual is used when RotateSecret is called with an empty reason.
	ReasonManual = "manual_rotation"
	// ReasonEmergency tags emergency rotations.
	ReasonEmergency = "emergency_security_breach"

	generateAttempts = 3
)

// RotationResult describes a completed rotation. Secret is the new current
// secret; callers must not log it.
type RotationResult struct {
	Secret        string
	Fingerprint   string
	RotatedAt     time.Time
	RotationCount uint64
	Emergency     bool
}

// RotationStatus is a read-only view of the rotation state.
type RotationStatus struct {
	CurrentSecretAge     time.Duration
	NextRotationIn       time.Duration
	PreviousSecretsCount int
	AutoRotationEnabled  bool
	RotatedAt            time.Time
	RotationCount        uint64
	RotationInterval     time.Duration
}

// RotationManager owns the signing-secret keyring. Reads are lock-free;
// rotations are serialized so the bounded history is never torn.
type RotationManager struct {
	keyring     *secret.Keyring
	generator   secret.Generator
	clock       clock.Clock
	logger      *slog.Logger
	audit       *auditor
	metrics     *Metrics
	notifier    keysink.Notifier
	cfg         SecretsConfig
	environment string
	scheduler   *RotationScheduler

	mu        sync.Mutex
	count     atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

type rotationDeps struct {
	cfg         SecretsConfig
	environment string
	generator   secret.Generator
	clock       clock.Clock
	logger      *slog.Logger
	audit       *auditor
	metrics     *Metrics
	notifier    keysink.Notifier
}

func newRotationManager(d rotationDeps) (*RotationManager, error) {
	if d.generator == nil {
		d.generator = secret.RandomGenerator{}
	}

	var seed []byte
	if d.cfg.Seed != "" {
		seed = []byte(d.cfg.Seed)
	} else {
		generated, err := d.generator.Generate()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSecretGeneration, err)
		}
		seed = generated
	}
	legacy := make([][]byte, 0, len(d.cfg.Legacy))
	for _, s := range d.cfg.Legacy {
		legacy = append(legacy, []byte(s))
	}

	keyring, err := secret.NewKeyring(seed, legacy, d.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSecretGeneration, err)
	}

	m := &RotationManager{
		keyring:     keyring,
		generator:   d.generator,
		clock:       d.clock,
		logger:      d.logger,
		audit:       d.audit,
		metrics:     d.metrics,
		notifier:    d.notifier,
		cfg:         d.cfg.withoutKeyMaterial(),
		environment: d.environment,
	}
	m.scheduler = newRotationScheduler(d.clock, d.cfg.RotationInterval, m.automaticRotation, d.logger)

	m.logger.Info("signing keyring initialized",
		slog.String("fingerprint", keyring.CurrentFingerprint()),
		slog.Int("previous", keyring.PreviousCount()),
		slog.Bool("seeded", d.cfg.Seed != ""),
	)
	return m, nil
}

// GetCurrentSecret returns the active signing secret, or "" after Close.
func (m *RotationManager) GetCurrentSecret() string {
	return m.keyring.Current()
}

// CurrentFingerprint identifies the active secret without revealing it.
func (m *RotationManager) CurrentFingerprint() string {
	return m.keyring.CurrentFingerprint()
}

// GetAllValidSecrets returns the current secret followed by previous
// secrets, most recent first, from a single consistent snapshot.
func (m *RotationManager) GetAllValidSecrets() []string {
	return m.keyring.All()
}

// SecretByFingerprint returns the valid secret whose fingerprint matches.
func (m *RotationManager) SecretByFingerprint(fingerprint string) (string, bool) {
	return m.keyring.Lookup(fingerprint)
}

// IsSecretValid reports whether candidate is the current or a retained
// previous secret. Empty and unknown values are never valid.
func (m *RotationManager) IsSecretValid(candidate string) bool {
	return m.keyring.Contains(candidate)
}

// RotateSecret installs a freshly generated secret. The outgoing secret
// stays valid as the most recent previous secret and the oldest beyond the
// history bound is evicted. Audit and key-sink failures are logged and never
// fail the rotation.
func (m *RotationManager) RotateSecret(ctx context.Context, reason string) (RotationResult, error) {
	if reason == "" {
		reason = ReasonManual
	}
	return m.rotate(ctx, reason, false)
}

// EmergencyRotation installs a new secret and discards every previous one,
// invalidating all tokens signed before the call.
func (m *RotationManager) EmergencyRotation(ctx context.Context) (RotationResult, error) {
	return m.rotate(ctx, ReasonEmergency, true)
}

func (m *RotationManager) rotate(ctx context.Context, reason string, emergency bool) (RotationResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if m.closed.Load() {
		return RotationResult{}, ErrManagerClosed
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		next    string
		at      time.Time
		lastErr error
	)
	for attempt := 0; attempt < generateAttempts; attempt++ {
		b, err := m.generator.Generate()
		if err != nil {
			lastErr = err
			continue
		}
		candidate := string(b)
		at, err = m.keyring.Rotate(b, m.clock.Now(), emergency)
		if err == nil {
			next = candidate
			lastErr = nil
			break
		}
		if errors.Is(err, secret.ErrKeyringClosed) {
			return RotationResult{}, ErrManagerClosed
		}
		lastErr = err
	}
	if lastErr != nil {
		err := fmt.Errorf("%w: %v", ErrSecretGeneration, lastErr)
		m.metrics.Inc(MetricRotationFailed)
		m.logger.Error("secret rotation failed", slog.String("reason", reason), slog.Any("error", lastErr))
		m.audit.emit(ctx, AuditEventSecretRotationFailed, false, "", "", "", err, func() map[string]string {
			return map[string]string{"reason": reason}
		})
		return RotationResult{}, err
	}

	count := m.count.Add(1)
	result := RotationResult{
		Secret:        next,
		Fingerprint:   secret.Fingerprint(next),
		RotatedAt:     at,
		RotationCount: count,
		Emergency:     emergency,
	}

	eventType := AuditEventSecretRotated
	if emergency {
		eventType = AuditEventSecretEmergency
		m.metrics.Inc(MetricSecretEmergencyRotation)
		m.logger.Warn("emergency secret rotation, all previous secrets revoked",
			slog.String("fingerprint", result.Fingerprint),
			slog.Uint64("rotation_count", count),
		)
	} else {
		m.metrics.Inc(MetricSecretRotated)
		m.logger.Info("signing secret rotated",
			slog.String("reason", reason),
			slog.String("secret", secret.Mask(next)),
			slog.String("fingerprint", result.Fingerprint),
			slog.Int("previous", m.keyring.PreviousCount()),
			slog.Uint64("rotation_count", count),
		)
	}

	previous := m.keyring.PreviousCount()
	m.audit.emit(ctx, eventType, true, "", "", "", nil, func() map[string]string {
		return map[string]string{
			"reason":         reason,
			"rotated_at":     at.UTC().Format(time.RFC3339Nano),
			"rotation_count": strconv.FormatUint(count, 10),
			"fingerprint":    result.Fingerprint,
			"previous_count": strconv.Itoa(previous),
		}
	})

	// Notices are sent under the rotation lock so sinks observe rotations
	// in order.
	m.notify(ctx, keysink.Notice{
		Reason:        reason,
		RotatedAt:     at,
		RotationCount: count,
		Environment:   m.environment,
		Emergency:     emergency,
		Fingerprint:   result.Fingerprint,
		Secret:        next,
	})

	return result, nil
}

func (m *RotationManager) notify(ctx context.Context, n keysink.Notice) {
	if m.notifier == nil {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.NotifyTimeout)
	defer cancel()

	if err := m.notifier.Notify(nctx, n); err != nil {
		m.metrics.Inc(MetricRotationNotifyFailed)
		m.logger.Warn("rotation notice failed",
			slog.String("reason", n.Reason),
			slog.String("fingerprint", n.Fingerprint),
			slog.Any("error", err),
		)
	}
}

func (m *RotationManager) automaticRotation(ctx context.Context) {
	m.metrics.Inc(MetricAutoRotationFired)
	if _, err := m.rotate(ctx, ReasonAutomatic, false); err != nil && !errors.Is(err, ErrManagerClosed) {
		m.logger.Error("automatic rotation failed", slog.Any("error", err))
	}
}

// StartAutomaticRotation arms the scheduler. Manual and emergency rotations
// do not reset its timer.
func (m *RotationManager) StartAutomaticRotation() error {
	if m.closed.Load() {
		return ErrManagerClosed
	}
	return m.scheduler.Start()
}

// StopAutomaticRotation cancels the scheduler. After it returns no automatic
// rotation fires until StartAutomaticRotation is called again.
func (m *RotationManager) StopAutomaticRotation(ctx context.Context) {
	if !m.scheduler.Stop() {
		return
	}
	m.audit.emit(ctx, AuditEventRotationStopped, true, "", "", "", nil, func() map[string]string {
		return map[string]string{"rotation_count": strconv.FormatUint(m.count.Load(), 10)}
	})
}

// AutoRotationEnabled reports whether the scheduler is running.
func (m *RotationManager) AutoRotationEnabled() bool {
	return m.scheduler.Running()
}

// RotationStatus derives the current status without side effects.
func (m *RotationManager) RotationStatus() RotationStatus {
	now := m.clock.Now()
	rotatedAt := m.keyring.RotatedAt()

	status := RotationStatus{
		PreviousSecretsCount: m.keyring.PreviousCount(),
		RotatedAt:            rotatedAt,
		RotationCount:        m.count.Load(),
		RotationInterval:     m.cfg.RotationInterval,
	}
	if !rotatedAt.IsZero() {
		status.CurrentSecretAge = nonNegative(now.Sub(rotatedAt))
	}

	if next, ok := m.scheduler.NextAt(); ok {
		status.AutoRotationEnabled = true
		status.NextRotationIn = nonNegative(next.Sub(now))
	} else if m.cfg.RotationInterval > 0 {
		status.NextRotationIn = nonNegative(m.cfg.RotationInterval - status.CurrentSecretAge)
	}
	return status
}

// Close stops the scheduler and drops all secret material. It is idempotent;
// afterwards rotations fail with ErrManagerClosed and reads return empty
// values.
func (m *RotationManager) Close() {
	m.closeOnce.Do(func() {
		m.closed.Store(true)
		m.StopAutomaticRotation(context.Background())

		m.mu.Lock()
		m.keyring.Destroy()
		m.mu.Unlock()

		m.logger.Info("signing keyring destroyed")
	})
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
