package authlife

import "errors"

var (
	// ErrConfiguration marks malformed configuration input. LoadConfig
	// recovers from it by falling back to defaults; Build rejects it.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrAuditSink marks a failed audit write. It is logged and counted and
	// never fails the operation that produced the event.
	ErrAuditSink = errors.New("audit sink failure")
	// ErrSessionPersistence wraps session store failures. Callers should treat
	// it as "authentication unavailable", not "unauthenticated".
	ErrSessionPersistence = errors.New("session persistence failure")
	// ErrSessionNotFound covers absent, expired and invalidated sessions alike.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSecretGeneration is returned when a new signing secret could not be
	// produced or installed. No rotation state changes in that case.
	ErrSecretGeneration = errors.New("secret generation failed")
	// ErrManagerClosed is returned by rotation and scheduler calls after Close.
	ErrManagerClosed = errors.New("rotation manager closed")
	// ErrRotationDisabled is returned when starting the scheduler without a
	// positive rotation interval.
	ErrRotationDisabled = errors.New("automatic rotation disabled")
	ErrEngineNotReady   = errors.New("engine not initialized")
	ErrInvalidArgument  = errors.New("invalid argument")
)
