package domain

import (
	"time"

	"github.com/google/uuid"
)

// Session represents an authentication session. The session ID is not
// secret; the token is, and only its hash is persisted.
type Session struct {
	ID         string
	UserID     uuid.UUID
	TokenHash  string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	RevokedAt  *time.Time
	LastSeenAt *time.Time
	UserAgent  string
}

// IsValid checks if the session is usable at the given instant (not
// expired and not revoked). Token verification is a separate step.
func (s *Session) IsValid(now time.Time) bool {
	if s.RevokedAt != nil {
		return false
	}
	return now.Before(s.ExpiresAt)
}

// Identity is the result of resolving a session.
type Identity struct {
	UserID             uuid.UUID `json:"user_id"`
	Username           string    `json:"username"`
	MustChangePassword bool      `json:"must_change_password"`
}

// SessionHandle is the (id, token) pair a client must present to resolve a
// session. Token is plaintext and returned to the caller exactly once.
type SessionHandle struct {
	SessionID string `json:"session_id"`
	Token     string `json:"token"`
}
