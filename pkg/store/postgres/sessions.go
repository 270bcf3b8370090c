package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/psantos/driverauth/pkg/domain"
	"github.com/psantos/driverauth/pkg/store"
)

// SessionStore persists sessions in PostgreSQL.
type SessionStore struct {
	db *sql.DB
}

var _ store.SessionStore = (*SessionStore)(nil)

// NewSessionStore creates a Postgres-backed session store.
func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db}
}

// Create inserts a new session row.
func (s *SessionStore) Create(ctx context.Context, session *domain.Session) error {
	query := `
		INSERT INTO sessions (id, user_id, token_hash, created_at, expires_at, revoked_at, last_seen_at, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		session.ID, session.UserID, session.TokenHash,
		session.CreatedAt, session.ExpiresAt, session.RevokedAt,
		session.LastSeenAt, session.UserAgent,
	)
	return err
}

// GetByID retrieves a session by ID.
func (s *SessionStore) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	query := `
		SELECT id, user_id, token_hash, created_at, expires_at, revoked_at, last_seen_at, user_agent
		FROM sessions
		WHERE id = $1
	`
	session := &domain.Session{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&session.ID, &session.UserID, &session.TokenHash,
		&session.CreatedAt, &session.ExpiresAt, &session.RevokedAt,
		&session.LastSeenAt, &session.UserAgent,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Revoke sets revoked_at once. The conditional update makes revocation
// linearizable: a delayed concurrent write can never clear it again.
func (s *SessionStore) Revoke(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE sessions
		SET revoked_at = $2
		WHERE id = $1 AND revoked_at IS NULL
	`
	result, err := s.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		// Either unknown or already revoked; distinguish for the caller.
		var exists bool
		if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return store.ErrNotFound
		}
	}
	return nil
}

// UpdateLastSeen updates the last_seen_at timestamp of a live session.
func (s *SessionStore) UpdateLastSeen(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE sessions
		SET last_seen_at = $2
		WHERE id = $1 AND revoked_at IS NULL
	`
	_, err := s.db.ExecContext(ctx, query, id, at)
	return err
}

// DeleteExpired removes sessions expired or revoked before the cutoff.
func (s *SessionStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int, error) {
	query := `
		DELETE FROM sessions
		WHERE expires_at < $1 OR (revoked_at IS NOT NULL AND revoked_at < $1)
	`
	result, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rows), nil
}
