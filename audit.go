package authlife

import (
	"context"
	"errors"
	"io"
	"time"

	internalaudit "github.com/MrEthical07/authlife/internal/audit"
)

// AuditEvent is the structured record delivered to an [AuditSink].
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
// Emit errors are logged as [ErrAuditSink] and counted; they never fail the
// operation that produced the event.
type AuditSink = internalaudit.Sink

// AuditSinkFunc adapts a function to [AuditSink].
type AuditSinkFunc = internalaudit.SinkFunc

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer], one per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// MultiSink fans events out to several sinks.
type MultiSink = internalaudit.MultiSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink].
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

const (
	AuditEventSecretRotated          = "jwt_secret_rotated"
	AuditEventSecretEmergency        = "jwt_secret_emergency_rotation"
	AuditEventSecretRotationFailed   = "jwt_secret_rotation_failed"
	AuditEventRotationStopped        = "jwt_rotation_stopped"
	AuditEventSessionCreated         = "session_created"
	AuditEventSessionExpired         = "session_expired"
	AuditEventSessionInvalidated     = "session_invalidated"
	AuditEventUserSessionsInvalidate = "user_sessions_invalidated"
	AuditEventSessionMFAVerified     = "session_mfa_verified"
	AuditEventSessionsSwept          = "sessions_swept"
)

// AuditErrorCode is the coarse error classification placed on failed events.
type AuditErrorCode string

const (
	auditErrSessionNotFound AuditErrorCode = "session_not_found"
	auditErrPersistence     AuditErrorCode = "persistence_failure"
	auditErrGeneration      AuditErrorCode = "secret_generation_failed"
	auditErrClosed          AuditErrorCode = "manager_closed"
	auditErrInternal        AuditErrorCode = "internal_error"
)

// auditor stamps common fields and forwards to the dispatcher. A nil
// dispatcher makes every call a no-op.
type auditor struct {
	dispatcher  *internalaudit.Dispatcher
	environment string
	now         func() time.Time
}

func (a *auditor) emit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	tenantID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if a == nil || a.dispatcher == nil {
		return
	}
	if tenantID == "" {
		tenantID = tenantIDFromContext(ctx)
	}

	metadata := map[string]string{}
	if metadataBuilder != nil {
		for k, v := range metadataBuilder() {
			metadata[k] = v
		}
	}
	if a.environment != "" {
		metadata["environment"] = a.environment
	}

	event := AuditEvent{
		Timestamp: a.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		TenantID:  tenantID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	a.dispatcher.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrSessionPersistence):
		return auditErrPersistence
	case errors.Is(err, ErrSecretGeneration):
		return auditErrGeneration
	case errors.Is(err, ErrManagerClosed):
		return auditErrClosed
	default:
		return auditErrInternal
	}
}
