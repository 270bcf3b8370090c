package bolt

import (
	"context"
	"encoding/json"
	"time"

	"github.com/psantos/driverauth/pkg/domain"
	"github.com/psantos/driverauth/pkg/store"
	"go.etcd.io/bbolt"
)

// RateLimitStore persists abuse counters in the rate_limits bucket.
type RateLimitStore struct {
	db *bbolt.DB
}

var _ store.RateLimitStore = (*RateLimitStore)(nil)

// NewRateLimitStore creates a bolt-backed rate limit store.
func NewRateLimitStore(db *bbolt.DB) *RateLimitStore {
	return &RateLimitStore{db: db}
}

func (s *RateLimitStore) Get(ctx context.Context, action, key string) (*domain.RateLimitEntry, error) {
	var entry domain.RateLimitEntry
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketRateLimits).Get(limitKey(action, key))
		if data == nil {
			return store.ErrNotFound
		}
		return json.Unmarshal(data, &entry)
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// IncrementFailure runs inside one write transaction, which makes the
// counter update atomic with respect to concurrent attempts.
func (s *RateLimitStore) IncrementFailure(ctx context.Context, action, key string, threshold int, cooldown time.Duration, now time.Time) (*domain.RateLimitEntry, error) {
	var entry domain.RateLimitEntry
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRateLimits)
		k := limitKey(action, key)
		if data := b.Get(k); data != nil {
			if err := json.Unmarshal(data, &entry); err != nil {
				return err
			}
		} else {
			entry = domain.RateLimitEntry{Action: action, Key: key}
		}
		entry.Failures++
		t := now
		entry.LastFailureAt = &t
		if entry.Failures >= threshold {
			until := now.Add(cooldown)
			entry.BlockedUntil = &until
		}
		data, err := json.Marshal(&entry)
		if err != nil {
			return err
		}
		return b.Put(k, data)
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *RateLimitStore) Reset(ctx context.Context, action, key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRateLimits)
		k := limitKey(action, key)
		data := b.Get(k)
		if data == nil {
			return nil
		}
		var entry domain.RateLimitEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			return err
		}
		entry.Failures = 0
		entry.BlockedUntil = nil
		updated, err := json.Marshal(&entry)
		if err != nil {
			return err
		}
		return b.Put(k, updated)
	})
}
