package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no record exists for the requested key.
	ErrNotFound = errors.New("session not found")
	// ErrStoreUnavailable wraps backend I/O failures.
	ErrStoreUnavailable = errors.New("session store unavailable")
	// ErrCorrupt is returned when a stored record cannot be decoded.
	ErrCorrupt = errors.New("session record corrupt")
)

// Store persists session records. Implementations must be safe for concurrent
// use and must not assume exclusive access to the backend.
type Store interface {
	// Create persists a new session.
	Create(ctx context.Context, s *Session) error
	// Get returns ErrNotFound when the ID is unknown.
	Get(ctx context.Context, id string) (*Session, error)
	// GetByToken resolves an opaque session token.
	GetByToken(ctx context.Context, token string) (*Session, error)
	// Touch records activity. LastActivityAt and ExpiresAt only move forward;
	// a zero expiresAt leaves expiry unchanged.
	Touch(ctx context.Context, id string, lastActivityAt, expiresAt time.Time) error
	// MarkMFAVerified sets the MFA flag once; later calls keep the first timestamp.
	MarkMFAVerified(ctx context.Context, id string, at time.Time) error
	// Delete is idempotent.
	Delete(ctx context.Context, id string) error
	// DeleteByUser removes every session of userID and returns how many existed.
	DeleteByUser(ctx context.Context, userID string) (int, error)
	// ListByUser returns stored sessions without filtering or mutation.
	ListByUser(ctx context.Context, userID string) ([]*Session, error)
	// DeleteExpired removes sessions whose ExpiresAt is not after now.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
