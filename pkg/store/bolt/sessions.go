package bolt

import (
	"context"
	"encoding/json"
	"time"

	"github.com/psantos/driverauth/pkg/domain"
	"github.com/psantos/driverauth/pkg/store"
	"go.etcd.io/bbolt"
)

// SessionStore persists sessions in the sessions bucket, keyed by ID.
type SessionStore struct {
	db *bbolt.DB
}

var _ store.SessionStore = (*SessionStore)(nil)

// NewSessionStore creates a bolt-backed session store.
func NewSessionStore(db *bbolt.DB) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) Create(ctx context.Context, session *domain.Session) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(session)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketSessions).Put([]byte(session.ID), data)
	})
}

func (s *SessionStore) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	var session domain.Session
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketSessions).Get([]byte(id))
		if data == nil {
			return store.ErrNotFound
		}
		return json.Unmarshal(data, &session)
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// update applies fn to the session inside one bbolt write transaction, so
// read-modify-write on revoked_at and last_seen_at is linearizable.
func (s *SessionStore) update(id string, fn func(*domain.Session)) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		data := b.Get([]byte(id))
		if data == nil {
			return store.ErrNotFound
		}
		var session domain.Session
		if err := json.Unmarshal(data, &session); err != nil {
			return err
		}
		fn(&session)
		updated, err := json.Marshal(&session)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), updated)
	})
}

func (s *SessionStore) Revoke(ctx context.Context, id string, at time.Time) error {
	return s.update(id, func(session *domain.Session) {
		if session.RevokedAt == nil {
			t := at
			session.RevokedAt = &t
		}
	})
}

func (s *SessionStore) UpdateLastSeen(ctx context.Context, id string, at time.Time) error {
	return s.update(id, func(session *domain.Session) {
		if session.RevokedAt == nil {
			t := at
			session.LastSeenAt = &t
		}
	})
}

func (s *SessionStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int, error) {
	purged := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		var stale [][]byte
		err := b.ForEach(func(k, data []byte) error {
			var session domain.Session
			if err := json.Unmarshal(data, &session); err != nil {
				return err
			}
			if session.ExpiresAt.Before(cutoff) || (session.RevokedAt != nil && session.RevokedAt.Before(cutoff)) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
			purged++
		}
		return nil
	})
	return purged, err
}
