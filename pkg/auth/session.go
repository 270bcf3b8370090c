package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/psantos/driverauth/pkg/domain"
	"github.com/psantos/driverauth/pkg/store"
)

// Default session lifetimes.
const (
	DefaultSessionTTL       = 7 * 24 * time.Hour
	DefaultRotationInterval = 24 * time.Hour
)

// SessionConfig holds session manager configuration.
type SessionConfig struct {
	SessionTTL       time.Duration
	RotationInterval time.Duration
}

// SessionManager issues, resolves, rotates and revokes sessions against
// the session store. Tokens are opaque 256-bit secrets; only their SHA-256
// digest is persisted, so a token can never be recovered from the store.
type SessionManager struct {
	config   SessionConfig
	sessions store.SessionStore
	logger   *slog.Logger
	now      func() time.Time
}

// NewSessionManager creates a session manager.
func NewSessionManager(config SessionConfig, sessions store.SessionStore, logger *slog.Logger) *SessionManager {
	if config.SessionTTL == 0 {
		config.SessionTTL = DefaultSessionTTL
	}
	if config.RotationInterval == 0 {
		config.RotationInterval = DefaultRotationInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{
		config:   config,
		sessions: sessions,
		logger:   logger,
		now:      time.Now,
	}
}

// SessionTTL returns the configured session lifetime.
func (m *SessionManager) SessionTTL() time.Duration {
	return m.config.SessionTTL
}

// Create issues a new session for the user and returns the (session_id,
// token) pair. The plaintext token is returned exactly once.
func (m *SessionManager) Create(ctx context.Context, userID uuid.UUID, userAgent string) (*domain.SessionHandle, error) {
	token, err := GenerateToken(tokenLen)
	if err != nil {
		return nil, fmt.Errorf("generating session token: %w", err)
	}

	now := m.now()
	seen := now
	session := &domain.Session{
		ID:         uuid.NewString(),
		UserID:     userID,
		TokenHash:  HashToken(token),
		CreatedAt:  now,
		ExpiresAt:  now.Add(m.config.SessionTTL),
		LastSeenAt: &seen,
		UserAgent:  userAgent,
	}

	if err := m.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("persisting session: %w", err)
	}

	return &domain.SessionHandle{SessionID: session.ID, Token: token}, nil
}

// Resolve loads the session, rejects it when revoked, expired or when the
// presented token does not hash to the stored digest, and updates
// last_seen_at on success. Store failures resolve to invalid: this call
// fails closed.
func (m *SessionManager) Resolve(ctx context.Context, sessionID, token string) (*domain.Session, error) {
	if sessionID == "" || token == "" {
		return nil, domain.ErrInvalidSession
	}

	session, err := m.sessions.GetByID(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, domain.ErrInvalidSession
	}
	if err != nil {
		m.logger.Error("session lookup failed", "error", err)
		return nil, domain.ErrInvalidSession
	}

	if !constantTimeCompare([]byte(session.TokenHash), []byte(HashToken(token))) {
		return nil, domain.ErrInvalidSession
	}
	if !session.IsValid(m.now()) {
		return nil, domain.ErrInvalidSession
	}

	if err := m.sessions.UpdateLastSeen(ctx, sessionID, m.now()); err != nil {
		m.logger.Warn("updating last_seen_at failed", "session_id", sessionID, "error", err)
	}

	return session, nil
}

// MaybeRotate replaces the session when it has not been rotated within the
// rotation interval. The new session is durably written before the old one
// is revoked, so a concurrent reader never observes a session with no valid
// token. The returned handle is nil when no rotation was due; the caller
// must adopt the new pair when it is not.
func (m *SessionManager) MaybeRotate(ctx context.Context, session *domain.Session, userAgent string) (*domain.SessionHandle, error) {
	last := session.CreatedAt
	if session.LastSeenAt != nil {
		last = *session.LastSeenAt
	}
	if m.now().Sub(last) < m.config.RotationInterval {
		return nil, nil
	}

	handle, err := m.Create(ctx, session.UserID, userAgent)
	if err != nil {
		return nil, err
	}

	// Create-before-revoke: a failed revoke leaves two usable sessions,
	// never zero. The sweep reaps the stale one at expiry.
	if err := m.Revoke(ctx, session.ID); err != nil {
		m.logger.Warn("revoking rotated session failed", "session_id", session.ID, "error", err)
	}

	m.logger.Info("session rotated", "old_session_id", session.ID, "new_session_id", handle.SessionID)
	return handle, nil
}

// Revoke marks the session revoked. Idempotent; revoking an unknown or
// already revoked session is not an error.
func (m *SessionManager) Revoke(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	err := m.sessions.Revoke(ctx, sessionID, m.now())
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

// PurgeExpired removes sessions that expired or were revoked before the
// retention cutoff. Pure housekeeping; correctness never depends on it.
func (m *SessionManager) PurgeExpired(ctx context.Context, olderThan time.Duration) (int, error) {
	return m.sessions.DeleteExpired(ctx, m.now().Add(-olderThan))
}
