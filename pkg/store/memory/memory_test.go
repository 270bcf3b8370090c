package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psantos/driverauth/pkg/domain"
	"github.com/psantos/driverauth/pkg/store"
)

func TestUserStore(t *testing.T) {
	ctx := context.Background()
	s := NewUserStore()

	user := &domain.User{
		ID:               uuid.New(),
		Username:         "ana",
		PasswordHash:     "hash",
		NationalID:       "12345678909",
		BirthDate:        "1990-05-01",
		SecretQuestion:   "first pet",
		SecretAnswerHash: "answerhash",
		CreatedAt:        time.Now().UTC(),
	}
	require.NoError(t, s.Upsert(ctx, user))

	t.Run("get by username folds case", func(t *testing.T) {
		for _, name := range []string{"ana", "ANA", "Ana"} {
			got, err := s.GetByUsername(ctx, name)
			require.NoError(t, err)
			assert.Equal(t, user.ID, got.ID)
		}
		_, err := s.GetByUsername(ctx, "nobody")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("get by id", func(t *testing.T) {
		got, err := s.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "ana", got.Username)

		_, err = s.GetByID(ctx, uuid.New())
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("get by national id", func(t *testing.T) {
		got, err := s.GetByNationalID(ctx, "12345678909")
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)

		_, err = s.GetByNationalID(ctx, "")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("recovery factors require a full match", func(t *testing.T) {
		exact := store.RecoveryFactors{
			NationalID:     "12345678909",
			BirthDate:      "1990-05-01",
			SecretQuestion: "first pet",
			AnswerHash:     "answerhash",
		}
		got, err := s.GetByRecoveryFactors(ctx, exact)
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)

		for name, mutate := range map[string]func(*store.RecoveryFactors){
			"national id": func(f *store.RecoveryFactors) { f.NationalID = "0" },
			"birth date":  func(f *store.RecoveryFactors) { f.BirthDate = "1990-05-02" },
			"question":    func(f *store.RecoveryFactors) { f.SecretQuestion = "other" },
			"answer hash": func(f *store.RecoveryFactors) { f.AnswerHash = "other" },
		} {
			f := exact
			mutate(&f)
			_, err := s.GetByRecoveryFactors(ctx, f)
			assert.ErrorIs(t, err, store.ErrNotFound, "mismatched %s still matched", name)
		}
	})

	t.Run("upsert preserves id and created_at", func(t *testing.T) {
		updated := *user
		updated.ID = uuid.New()
		updated.PasswordHash = "newhash"
		require.NoError(t, s.Upsert(ctx, &updated))

		got, err := s.GetByUsername(ctx, "ana")
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
		assert.Equal(t, user.CreatedAt, got.CreatedAt)
		assert.Equal(t, "newhash", got.PasswordHash)
	})

	t.Run("returned records are copies", func(t *testing.T) {
		got, err := s.GetByUsername(ctx, "ana")
		require.NoError(t, err)
		got.PasswordHash = "tampered"

		again, err := s.GetByUsername(ctx, "ana")
		require.NoError(t, err)
		assert.NotEqual(t, "tampered", again.PasswordHash)
	})
}

func TestUserStoreHasNonAdminUser(t *testing.T) {
	ctx := context.Background()
	s := NewUserStore()

	has, err := s.HasNonAdminUser(ctx)
	require.NoError(t, err)
	assert.False(t, has, "empty store reports a registered account")

	require.NoError(t, s.Upsert(ctx, &domain.User{ID: uuid.New(), Username: "admin"}))
	has, err = s.HasNonAdminUser(ctx)
	require.NoError(t, err)
	assert.False(t, has, "the bootstrap admin counts as a registered account")

	require.NoError(t, s.Upsert(ctx, &domain.User{ID: uuid.New(), Username: "ana"}))
	has, err = s.HasNonAdminUser(ctx)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestSessionStore(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore()
	now := time.Now().UTC()

	session := &domain.Session{
		ID:        "sess-1",
		UserID:    uuid.New(),
		TokenHash: "tokenhash",
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
	require.NoError(t, s.Create(ctx, session))

	t.Run("get by id", func(t *testing.T) {
		got, err := s.GetByID(ctx, "sess-1")
		require.NoError(t, err)
		assert.Equal(t, session.UserID, got.UserID)
		assert.Equal(t, "tokenhash", got.TokenHash)

		_, err = s.GetByID(ctx, "missing")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("update last seen", func(t *testing.T) {
		seen := now.Add(time.Minute)
		require.NoError(t, s.UpdateLastSeen(ctx, "sess-1", seen))
		got, err := s.GetByID(ctx, "sess-1")
		require.NoError(t, err)
		require.NotNil(t, got.LastSeenAt)
		assert.True(t, got.LastSeenAt.Equal(seen))

		assert.ErrorIs(t, s.UpdateLastSeen(ctx, "missing", seen), store.ErrNotFound)
	})

	t.Run("revoke sticks at the first timestamp", func(t *testing.T) {
		first := now.Add(2 * time.Minute)
		require.NoError(t, s.Revoke(ctx, "sess-1", first))
		require.NoError(t, s.Revoke(ctx, "sess-1", now.Add(time.Hour)))

		got, err := s.GetByID(ctx, "sess-1")
		require.NoError(t, err)
		require.NotNil(t, got.RevokedAt)
		assert.True(t, got.RevokedAt.Equal(first))

		assert.ErrorIs(t, s.Revoke(ctx, "missing", first), store.ErrNotFound)
	})

	t.Run("delete expired", func(t *testing.T) {
		require.NoError(t, s.Create(ctx, &domain.Session{
			ID:        "sess-old",
			ExpiresAt: now.Add(-time.Hour),
		}))
		require.NoError(t, s.Create(ctx, &domain.Session{
			ID:        "sess-live",
			ExpiresAt: now.Add(time.Hour),
		}))

		purged, err := s.DeleteExpired(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, 1, purged)

		_, err = s.GetByID(ctx, "sess-old")
		assert.ErrorIs(t, err, store.ErrNotFound)
		_, err = s.GetByID(ctx, "sess-live")
		assert.NoError(t, err)
	})
}

func TestRateLimitStore(t *testing.T) {
	ctx := context.Background()
	s := NewRateLimitStore()
	now := time.Now().UTC()

	_, err := s.Get(ctx, domain.ActionLogin, "ana")
	assert.ErrorIs(t, err, store.ErrNotFound)

	for i := 1; i <= 4; i++ {
		entry, err := s.IncrementFailure(ctx, domain.ActionLogin, "ana", 5, 15*time.Minute, now)
		require.NoError(t, err)
		assert.Equal(t, i, entry.Failures)
		assert.Nil(t, entry.BlockedUntil)
	}

	entry, err := s.IncrementFailure(ctx, domain.ActionLogin, "ana", 5, 15*time.Minute, now)
	require.NoError(t, err)
	assert.Equal(t, 5, entry.Failures)
	require.NotNil(t, entry.BlockedUntil)
	assert.True(t, entry.BlockedUntil.Equal(now.Add(15*time.Minute)))

	// Actions are separate counters.
	other, err := s.IncrementFailure(ctx, domain.ActionRecovery, "ana", 5, 15*time.Minute, now)
	require.NoError(t, err)
	assert.Equal(t, 1, other.Failures)

	require.NoError(t, s.Reset(ctx, domain.ActionLogin, "ana"))
	got, err := s.Get(ctx, domain.ActionLogin, "ana")
	require.NoError(t, err)
	assert.Zero(t, got.Failures)
	assert.Nil(t, got.BlockedUntil)

	// Resetting an unknown key is a no-op.
	assert.NoError(t, s.Reset(ctx, domain.ActionLogin, "ghost"))
}
