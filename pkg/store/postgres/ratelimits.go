package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/psantos/driverauth/pkg/domain"
	"github.com/psantos/driverauth/pkg/store"
)

// RateLimitStore persists abuse counters in PostgreSQL.
type RateLimitStore struct {
	db *sql.DB
}

var _ store.RateLimitStore = (*RateLimitStore)(nil)

// NewRateLimitStore creates a Postgres-backed rate limit store.
func NewRateLimitStore(db *sql.DB) *RateLimitStore {
	return &RateLimitStore{db: db}
}

// Get retrieves the counter for (action, key).
func (s *RateLimitStore) Get(ctx context.Context, action, key string) (*domain.RateLimitEntry, error) {
	query := `
		SELECT action, key, failures, blocked_until, last_failure_at
		FROM rate_limits
		WHERE action = $1 AND key = $2
	`
	entry := &domain.RateLimitEntry{}
	err := s.db.QueryRowContext(ctx, query, action, key).Scan(
		&entry.Action, &entry.Key, &entry.Failures, &entry.BlockedUntil, &entry.LastFailureAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// IncrementFailure increments the counter in a single statement so
// concurrent failed attempts against the same key never lose updates.
func (s *RateLimitStore) IncrementFailure(ctx context.Context, action, key string, threshold int, cooldown time.Duration, now time.Time) (*domain.RateLimitEntry, error) {
	blocked := now.Add(cooldown)
	query := `
		INSERT INTO rate_limits (action, key, failures, blocked_until, last_failure_at)
		VALUES ($1, $2, 1, CASE WHEN 1 >= $3 THEN $5::timestamptz ELSE NULL END, $4)
		ON CONFLICT (action, key) DO UPDATE SET
			failures = rate_limits.failures + 1,
			blocked_until = CASE
				WHEN rate_limits.failures + 1 >= $3 THEN $5::timestamptz
				ELSE rate_limits.blocked_until
			END,
			last_failure_at = $4
		RETURNING failures, blocked_until, last_failure_at
	`
	entry := &domain.RateLimitEntry{Action: action, Key: key}
	err := s.db.QueryRowContext(ctx, query, action, key, threshold, now, blocked).Scan(
		&entry.Failures, &entry.BlockedUntil, &entry.LastFailureAt,
	)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Reset zeroes the counter and clears any block.
func (s *RateLimitStore) Reset(ctx context.Context, action, key string) error {
	query := `
		UPDATE rate_limits
		SET failures = 0, blocked_until = NULL
		WHERE action = $1 AND key = $2
	`
	_, err := s.db.ExecContext(ctx, query, action, key)
	return err
}
