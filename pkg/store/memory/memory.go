// Package memory provides thread-safe in-memory store implementations.
// Suitable for tests and ephemeral single-process deployments.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/psantos/driverauth/pkg/domain"
	"github.com/psantos/driverauth/pkg/store"
)

// UserStore keeps users in a mutex-guarded map keyed by folded username.
type UserStore struct {
	mu    sync.RWMutex
	users map[string]*domain.User
}

var _ store.UserStore = (*UserStore)(nil)

// NewUserStore creates an empty in-memory user store.
func NewUserStore() *UserStore {
	return &UserStore{users: make(map[string]*domain.User)}
}

func userKey(username string) string {
	return strings.ToLower(domain.NormalizeUsername(username))
}

func cloneUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

func (s *UserStore) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userKey(username)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneUser(u), nil
}

func (s *UserStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.ID == id {
			return cloneUser(u), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *UserStore) GetByNationalID(ctx context.Context, nationalID string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.NationalID != "" && u.NationalID == nationalID {
			return cloneUser(u), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *UserStore) GetByRecoveryFactors(ctx context.Context, f store.RecoveryFactors) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.NationalID == f.NationalID &&
			u.BirthDate == f.BirthDate &&
			u.SecretQuestion == f.SecretQuestion &&
			u.SecretAnswerHash == f.AnswerHash {
			return cloneUser(u), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *UserStore) Upsert(ctx context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := userKey(user.Username)
	c := cloneUser(user)
	if existing, ok := s.users[key]; ok {
		c.ID = existing.ID
		c.CreatedAt = existing.CreatedAt
	}
	s.users[key] = c
	return nil
}

func (s *UserStore) HasNonAdminUser(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if !u.IsAdmin() {
			return true, nil
		}
	}
	return false, nil
}

// SessionStore keeps sessions in a mutex-guarded map keyed by session ID.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
}

var _ store.SessionStore = (*SessionStore)(nil)

// NewSessionStore creates an empty in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*domain.Session)}
}

func cloneSession(s *domain.Session) *domain.Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.RevokedAt != nil {
		t := *s.RevokedAt
		c.RevokedAt = &t
	}
	if s.LastSeenAt != nil {
		t := *s.LastSeenAt
		c.LastSeenAt = &t
	}
	return &c
}

func (s *SessionStore) Create(ctx context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = cloneSession(session)
	return nil
}

func (s *SessionStore) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneSession(sess), nil
}

func (s *SessionStore) Revoke(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return store.ErrNotFound
	}
	if sess.RevokedAt == nil {
		t := at
		sess.RevokedAt = &t
	}
	return nil
}

func (s *SessionStore) UpdateLastSeen(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return store.ErrNotFound
	}
	if sess.RevokedAt == nil {
		t := at
		sess.LastSeenAt = &t
	}
	return nil
}

func (s *SessionStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	purged := 0
	for id, sess := range s.sessions {
		if sess.ExpiresAt.Before(cutoff) || (sess.RevokedAt != nil && sess.RevokedAt.Before(cutoff)) {
			delete(s.sessions, id)
			purged++
		}
	}
	return purged, nil
}

// RateLimitStore keeps abuse counters in a mutex-guarded map.
type RateLimitStore struct {
	mu     sync.Mutex
	limits map[string]*domain.RateLimitEntry
}

var _ store.RateLimitStore = (*RateLimitStore)(nil)

// NewRateLimitStore creates an empty in-memory rate limit store.
func NewRateLimitStore() *RateLimitStore {
	return &RateLimitStore{limits: make(map[string]*domain.RateLimitEntry)}
}

func limitKey(action, key string) string {
	return action + "\x00" + key
}

func cloneEntry(e *domain.RateLimitEntry) *domain.RateLimitEntry {
	if e == nil {
		return nil
	}
	c := *e
	if e.BlockedUntil != nil {
		t := *e.BlockedUntil
		c.BlockedUntil = &t
	}
	if e.LastFailureAt != nil {
		t := *e.LastFailureAt
		c.LastFailureAt = &t
	}
	return &c
}

func (s *RateLimitStore) Get(ctx context.Context, action, key string) (*domain.RateLimitEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.limits[limitKey(action, key)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneEntry(e), nil
}

func (s *RateLimitStore) IncrementFailure(ctx context.Context, action, key string, threshold int, cooldown time.Duration, now time.Time) (*domain.RateLimitEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := limitKey(action, key)
	e, ok := s.limits[k]
	if !ok {
		e = &domain.RateLimitEntry{Action: action, Key: key}
		s.limits[k] = e
	}
	e.Failures++
	t := now
	e.LastFailureAt = &t
	if e.Failures >= threshold {
		until := now.Add(cooldown)
		e.BlockedUntil = &until
	}
	return cloneEntry(e), nil
}

func (s *RateLimitStore) Reset(ctx context.Context, action, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.limits[limitKey(action, key)]
	if !ok {
		return nil
	}
	e.Failures = 0
	e.BlockedUntil = nil
	return nil
}
