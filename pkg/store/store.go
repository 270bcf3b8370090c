// Package store defines the persistence interfaces the authentication
// subsystem depends on. The physical backend (Postgres, bbolt, memory) is a
// deployment choice made in cmd; services only see these interfaces.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/psantos/driverauth/pkg/domain"
)

// ErrNotFound is returned by all backends when a record does not exist.
var ErrNotFound = errors.New("record not found")

// RecoveryFactors is the exact-match tuple used for knowledge-based
// account recovery. All four fields must match; there is no fuzzy lookup.
type RecoveryFactors struct {
	NationalID     string
	BirthDate      string
	SecretQuestion string
	AnswerHash     string
}

// UserStore persists user records keyed by normalized username.
type UserStore interface {
	// GetByUsername matches case-insensitively on the normalized username.
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	// GetByID looks a user up by its stable identifier.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	// GetByNationalID matches on the digits-only national ID.
	GetByNationalID(ctx context.Context, nationalID string) (*domain.User, error)
	// GetByRecoveryFactors requires equality on every factor.
	GetByRecoveryFactors(ctx context.Context, f RecoveryFactors) (*domain.User, error)
	// Upsert creates or replaces the record keyed by username. The ID of an
	// existing record never changes.
	Upsert(ctx context.Context, user *domain.User) error
	// HasNonAdminUser reports whether any account other than the bootstrap
	// admin exists.
	HasNonAdminUser(ctx context.Context) (bool, error)
}

// SessionStore persists session records keyed by session ID.
type SessionStore interface {
	Create(ctx context.Context, session *domain.Session) error
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	// Revoke sets revoked_at if not already set. Revoking an already revoked
	// session is a no-op, not an error.
	Revoke(ctx context.Context, id string, at time.Time) error
	UpdateLastSeen(ctx context.Context, id string, at time.Time) error
	// DeleteExpired removes sessions expired or revoked before the cutoff
	// and returns how many were purged.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int, error)
}

// RateLimitStore persists abuse counters keyed by (action, key).
type RateLimitStore interface {
	// Get returns the entry, or ErrNotFound when the key was never touched.
	Get(ctx context.Context, action, key string) (*domain.RateLimitEntry, error)
	// IncrementFailure atomically creates-or-increments the counter and sets
	// blocked_until once the incremented count reaches the threshold. It
	// returns the updated entry.
	IncrementFailure(ctx context.Context, action, key string, threshold int, cooldown time.Duration, now time.Time) (*domain.RateLimitEntry, error)
	// Reset zeroes the counter and clears any block.
	Reset(ctx context.Context, action, key string) error
}
