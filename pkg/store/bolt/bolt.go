// Package bolt implements the store interfaces on a bbolt database. This
// is the local single-file deployment backend: same contracts as the
// Postgres backend, no server required.
package bolt

import (
	"fmt"
	"strings"
	"time"

	"github.com/psantos/driverauth/pkg/domain"
	"go.etcd.io/bbolt"
)

var (
	bucketUsers      = []byte("users")
	bucketSessions   = []byte("sessions")
	bucketRateLimits = []byte("rate_limits")
)

// Open opens (or creates) a bbolt database at path and creates the
// buckets the stores expect.
func Open(path string) (*bbolt.DB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt db: %w", err)
	}
	if err := EnsureBuckets(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// EnsureBuckets creates the buckets when they do not exist. Idempotent.
func EnsureBuckets(db *bbolt.DB) error {
	err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketUsers, bucketSessions, bucketRateLimits} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("creating buckets: %w", err)
	}
	return nil
}

func userKey(username string) []byte {
	return []byte(strings.ToLower(domain.NormalizeUsername(username)))
}

func limitKey(action, key string) []byte {
	return []byte(action + "\x00" + key)
}
