package bolt

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/psantos/driverauth/pkg/domain"
	"github.com/psantos/driverauth/pkg/store"
	"go.etcd.io/bbolt"
)

// UserStore persists users in the users bucket, keyed by folded username.
type UserStore struct {
	db *bbolt.DB
}

var _ store.UserStore = (*UserStore)(nil)

// NewUserStore creates a bolt-backed user store.
func NewUserStore(db *bbolt.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	var user domain.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketUsers).Get(userKey(username))
		if data == nil {
			return store.ErrNotFound
		}
		return json.Unmarshal(data, &user)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// scan walks the users bucket until match returns true. The bucket holds
// at most two accounts, so a scan is not a performance concern.
func (s *UserStore) scan(match func(*domain.User) bool) (*domain.User, error) {
	var found *domain.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketUsers).ForEach(func(_, data []byte) error {
			var user domain.User
			if err := json.Unmarshal(data, &user); err != nil {
				return err
			}
			if found == nil && match(&user) {
				found = &user
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, store.ErrNotFound
	}
	return found, nil
}

func (s *UserStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return s.scan(func(u *domain.User) bool { return u.ID == id })
}

func (s *UserStore) GetByNationalID(ctx context.Context, nationalID string) (*domain.User, error) {
	return s.scan(func(u *domain.User) bool {
		return u.NationalID != "" && u.NationalID == nationalID
	})
}

func (s *UserStore) GetByRecoveryFactors(ctx context.Context, f store.RecoveryFactors) (*domain.User, error) {
	return s.scan(func(u *domain.User) bool {
		return u.NationalID == f.NationalID &&
			u.BirthDate == f.BirthDate &&
			u.SecretQuestion == f.SecretQuestion &&
			u.SecretAnswerHash == f.AnswerHash
	})
}

func (s *UserStore) Upsert(ctx context.Context, user *domain.User) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		key := userKey(user.Username)
		record := *user
		if data := b.Get(key); data != nil {
			var existing domain.User
			if err := json.Unmarshal(data, &existing); err != nil {
				return err
			}
			record.ID = existing.ID
			record.CreatedAt = existing.CreatedAt
		}
		data, err := json.Marshal(&record)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
}

func (s *UserStore) HasNonAdminUser(ctx context.Context) (bool, error) {
	_, err := s.scan(func(u *domain.User) bool { return !u.IsAdmin() })
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
