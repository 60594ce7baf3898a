package authlife

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/juju/clock"

	"github.com/MrEthical07/authlife/internal"
	"github.com/MrEthical07/authlife/session"
)

// Session is the record handed to callers. Values returned by the manager are
// copies; mutating them does not touch the store.
type Session = session.Session

// RequestMeta carries request details captured at session creation. Empty
// fields fall back to values attached with [WithClientIP] and
// [WithUserAgent].
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// SessionManager applies the idle and absolute timeout policies on top of a
// [session.Store]. It holds no session state itself; every instance sharing a
// store sees the same sessions.
type SessionManager struct {
	store   session.Store
	policy  SessionConfig
	clock   clock.Clock
	logger  *slog.Logger
	audit   *auditor
	metrics *Metrics
}

type sessionDeps struct {
	store   session.Store
	policy  SessionConfig
	clock   clock.Clock
	logger  *slog.Logger
	audit   *auditor
	metrics *Metrics
}

func newSessionManager(d sessionDeps) *SessionManager {
	return &SessionManager{
		store:   d.store,
		policy:  d.policy,
		clock:   d.clock,
		logger:  d.logger,
		audit:   d.audit,
		metrics: d.metrics,
	}
}

// Policy returns the timeout policy in effect.
func (m *SessionManager) Policy() SessionConfig {
	return m.policy
}

// CreateSession persists a new session with createdAt = lastActivityAt = now
// and expiresAt = now + AbsoluteTimeout. It fails only when identifiers
// cannot be generated or the store rejects the write.
func (m *SessionManager) CreateSession(ctx context.Context, userID, tenantID, role, email string, meta RequestMeta) (*Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id required", ErrInvalidArgument)
	}
	if tenantID == "" {
		tenantID = tenantIDFromContext(ctx)
	}
	if meta.IPAddress == "" {
		meta.IPAddress = clientIPFromContext(ctx)
	}
	if meta.UserAgent == "" {
		meta.UserAgent = userAgentFromContext(ctx)
	}

	now := m.now()
	id, err := internal.NewSessionID()
	if err != nil {
		m.metrics.Inc(MetricSessionCreateFailed)
		return nil, fmt.Errorf("%w: %v", ErrSessionPersistence, err)
	}
	token, err := internal.NewSessionToken(m.policy.TokenPrefix, id, now)
	if err != nil {
		m.metrics.Inc(MetricSessionCreateFailed)
		return nil, fmt.Errorf("%w: %v", ErrSessionPersistence, err)
	}

	s := &Session{
		ID:             id,
		UserID:         userID,
		TenantID:       tenantID,
		Role:           role,
		Email:          email,
		Token:          token,
		IPAddress:      meta.IPAddress,
		UserAgent:      meta.UserAgent,
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(m.policy.AbsoluteTimeout),
	}

	if err := m.store.Create(ctx, s); err != nil {
		m.metrics.Inc(MetricSessionCreateFailed)
		err = m.persistenceError("create", err)
		m.audit.emit(ctx, AuditEventSessionCreated, false, userID, tenantID, id, err, nil)
		return nil, err
	}

	m.metrics.Inc(MetricSessionCreated)
	m.audit.emit(ctx, AuditEventSessionCreated, true, userID, tenantID, id, nil, func() map[string]string {
		return map[string]string{
			"expires_at": s.ExpiresAt.UTC().Format(time.RFC3339),
			"user_agent": s.UserAgent,
		}
	})
	return s.Clone(), nil
}

// GetSession returns the session if it is still usable. Absent, expired and
// invalidated sessions all yield ErrSessionNotFound; expired ones are deleted
// as a side effect. Store failures yield ErrSessionPersistence.
func (m *SessionManager) GetSession(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrSessionNotFound
	}
	return m.load(ctx, func() (*Session, error) {
		return m.store.Get(ctx, id)
	})
}

// GetSessionByToken resolves an opaque session token with the same semantics
// as GetSession.
func (m *SessionManager) GetSessionByToken(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrSessionNotFound
	}
	return m.load(ctx, func() (*Session, error) {
		return m.store.GetByToken(ctx, token)
	})
}

func (m *SessionManager) load(ctx context.Context, fetch func() (*Session, error)) (*Session, error) {
	start := m.clock.Now()
	s, err := fetch()
	m.metrics.Observe(MetricSessionLookupLatency, m.clock.Now().Sub(start))

	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			m.metrics.Inc(MetricSessionLookupMiss)
			return nil, ErrSessionNotFound
		}
		return nil, m.persistenceError("get", err)
	}

	now := m.now()
	if reason := m.expiry(s, now); reason != "" {
		m.metrics.Inc(MetricSessionLookupMiss)
		m.evict(ctx, s, reason)
		return nil, ErrSessionNotFound
	}

	m.metrics.Inc(MetricSessionLookupHit)
	return s, nil
}

// expiry returns why s is no longer valid at now, or "" if it is.
func (m *SessionManager) expiry(s *Session, now time.Time) string {
	if !now.Before(s.ExpiresAt) || !now.Before(m.absoluteDeadline(s)) {
		return "absolute_timeout"
	}
	if now.Sub(s.LastActivityAt) > m.policy.IdleTimeout {
		return "idle_timeout"
	}
	return ""
}

func (m *SessionManager) absoluteDeadline(s *Session) time.Time {
	return s.CreatedAt.Add(m.policy.AbsoluteTimeout)
}

// evict deletes an expired session. A failed delete is logged; the session
// is reported absent either way and the sweep removes it later.
func (m *SessionManager) evict(ctx context.Context, s *Session, reason string) {
	if err := m.store.Delete(ctx, s.ID); err != nil {
		m.metrics.Inc(MetricSessionStoreError)
		m.logger.Warn("expired session eviction failed",
			slog.String("session_id", s.ID),
			slog.String("reason", reason),
			slog.Any("error", err),
		)
		return
	}

	m.metrics.Inc(MetricSessionExpired)
	m.logger.Debug("expired session evicted",
		slog.String("session_id", s.ID),
		slog.String("reason", reason),
	)
	m.audit.emit(ctx, AuditEventSessionExpired, true, s.UserID, s.TenantID, s.ID, nil, func() map[string]string {
		return map[string]string{"reason": reason}
	})
}

// UpdateActivity records activity on a live session. Activity within
// MinExtensionInterval of the previous recorded activity is not written. When
// extend is set and the policy allows it, expiresAt advances to
// min(now + IdleTimeout, createdAt + AbsoluteTimeout); the store never moves
// it backwards.
func (m *SessionManager) UpdateActivity(ctx context.Context, id string, extend bool) (*Session, error) {
	s, err := m.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	now := m.now()
	if now.Sub(s.LastActivityAt) < m.policy.MinExtensionInterval {
		m.metrics.Inc(MetricSessionActivitySkipped)
		return s, nil
	}

	var expiresAt time.Time
	if extend && m.policy.ExtendOnActivity {
		expiresAt = now.Add(m.policy.IdleTimeout)
		if limit := m.absoluteDeadline(s); expiresAt.After(limit) {
			expiresAt = limit
		}
	}

	if err := m.store.Touch(ctx, id, now, expiresAt); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, m.persistenceError("touch", err)
	}

	m.metrics.Inc(MetricSessionActivityRecorded)
	if now.After(s.LastActivityAt) {
		s.LastActivityAt = now
	}
	if expiresAt.After(s.ExpiresAt) {
		s.ExpiresAt = expiresAt
		m.metrics.Inc(MetricSessionExtended)
	}
	return s, nil
}

// VerifyMFAForSession marks the session MFA-verified. Repeated calls keep the
// first verification time.
func (m *SessionManager) VerifyMFAForSession(ctx context.Context, id string) (*Session, error) {
	s, err := m.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.MFAVerified {
		return s, nil
	}

	now := m.now()
	if err := m.store.MarkMFAVerified(ctx, id, now); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, m.persistenceError("mark_mfa", err)
	}

	s.MFAVerified = true
	s.MFAVerifiedAt = now
	m.metrics.Inc(MetricSessionMFAVerified)
	m.audit.emit(ctx, AuditEventSessionMFAVerified, true, s.UserID, s.TenantID, s.ID, nil, nil)
	return s, nil
}

// InvalidateSession deletes the session. Unknown IDs are not an error.
func (m *SessionManager) InvalidateSession(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := m.store.Delete(ctx, id); err != nil {
		return m.persistenceError("delete", err)
	}

	m.metrics.Inc(MetricSessionInvalidated)
	m.audit.emit(ctx, AuditEventSessionInvalidated, true, "", "", id, nil, nil)
	return nil
}

// InvalidateAllUserSessions deletes every session of userID and returns how
// many were removed.
func (m *SessionManager) InvalidateAllUserSessions(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, fmt.Errorf("%w: user id required", ErrInvalidArgument)
	}
	n, err := m.store.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, m.persistenceError("delete_by_user", err)
	}

	m.metrics.Inc(MetricUserSessionsInvalidated)
	m.logger.Info("user sessions invalidated",
		slog.String("user_id", userID),
		slog.Int("count", n),
	)
	m.audit.emit(ctx, AuditEventUserSessionsInvalidate, true, userID, "", "", nil, func() map[string]string {
		return map[string]string{"count": strconv.Itoa(n)}
	})
	return n, nil
}

// GetUserSessions lists the user's live sessions. Expired sessions are left
// out of the result but not deleted.
func (m *SessionManager) GetUserSessions(ctx context.Context, userID string) ([]*Session, error) {
	if userID == "" {
		return nil, nil
	}
	all, err := m.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, m.persistenceError("list_by_user", err)
	}

	now := m.now()
	live := make([]*Session, 0, len(all))
	for _, s := range all {
		if m.expiry(s, now) == "" {
			live = append(live, s)
		}
	}
	return live, nil
}

// IsSessionExpiringSoon reports whether the nearer of the absolute and idle
// deadlines is within WarningThreshold.
func (m *SessionManager) IsSessionExpiringSoon(s *Session) bool {
	if s == nil {
		return false
	}
	now := m.now()

	absolute := s.ExpiresAt
	if limit := m.absoluteDeadline(s); limit.Before(absolute) {
		absolute = limit
	}
	remaining := absolute.Sub(now)
	if idle := s.LastActivityAt.Add(m.policy.IdleTimeout).Sub(now); idle < remaining {
		remaining = idle
	}
	return remaining <= m.policy.WarningThreshold
}

// CleanupExpiredSessions removes every session past its absolute expiry and
// returns how many were deleted. Idle-expired sessions are left to lazy
// eviction.
func (m *SessionManager) CleanupExpiredSessions(ctx context.Context) (int, error) {
	n, err := m.store.DeleteExpired(ctx, m.now())
	if err != nil {
		return n, m.persistenceError("delete_expired", err)
	}

	m.metrics.Add(MetricSessionsSwept, uint64(n))
	if n > 0 {
		m.logger.Info("expired sessions swept", slog.Int("count", n))
	}
	m.audit.emit(ctx, AuditEventSessionsSwept, true, "", "", "", nil, func() map[string]string {
		return map[string]string{"count": strconv.Itoa(n)}
	})
	return n, nil
}

func (m *SessionManager) persistenceError(op string, err error) error {
	m.metrics.Inc(MetricSessionStoreError)
	m.logger.Error("session store failure", slog.String("op", op), slog.Any("error", err))
	return fmt.Errorf("%w: %v", ErrSessionPersistence, err)
}

func (m *SessionManager) now() time.Time {
	return m.clock.Now().UTC()
}
