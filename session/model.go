package session

import "time"

// Session is a persisted login session. Identity fields and request metadata
// are immutable after creation; LastActivityAt, ExpiresAt and the MFA fields
// are the only mutable state.
type Session struct {
	ID       string
	UserID   string
	TenantID string
	Role     string
	Email    string
	Token    string

	MFAVerified   bool
	MFAVerifiedAt time.Time

	IPAddress string
	UserAgent string

	CreatedAt      time.Time
	LastActivityAt time.Time
	ExpiresAt      time.Time
}

// Clone returns a copy safe to hand to callers.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
