package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/psantos/driverauth/pkg/domain"
	"github.com/psantos/driverauth/pkg/store"
	"github.com/psantos/driverauth/pkg/store/memory"
)

func newTestSessionManager(cfg SessionConfig) (*SessionManager, *memory.SessionStore, *fakeClock) {
	clk := newFakeClock()
	sessions := memory.NewSessionStore()
	m := NewSessionManager(cfg, sessions, testLogger())
	m.now = clk.Now
	return m, sessions, clk
}

func TestSessionCreateAndResolve(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestSessionManager(SessionConfig{})
	userID := uuid.New()

	handle, err := m.Create(ctx, userID, "test-agent")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if handle.SessionID == "" || handle.Token == "" {
		t.Fatal("handle is missing its ID or token")
	}

	session, err := m.Resolve(ctx, handle.SessionID, handle.Token)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if session.UserID != userID {
		t.Errorf("resolved user = %s, want %s", session.UserID, userID)
	}
}

func TestSessionResolveRejections(t *testing.T) {
	ctx := context.Background()
	m, _, clk := newTestSessionManager(SessionConfig{SessionTTL: time.Hour})

	handle, err := m.Create(ctx, uuid.New(), "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	revoked, err := m.Create(ctx, uuid.New(), "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := m.Revoke(ctx, revoked.SessionID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	tests := []struct {
		name      string
		sessionID string
		token     string
	}{
		{"unknown session id", "no-such-session", handle.Token},
		{"wrong token", handle.SessionID, "not-the-token"},
		{"token for another session", revoked.SessionID, handle.Token},
		{"revoked session", revoked.SessionID, revoked.Token},
		{"empty session id", "", handle.Token},
		{"empty token", handle.SessionID, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.Resolve(ctx, tt.sessionID, tt.token); !errors.Is(err, domain.ErrInvalidSession) {
				t.Errorf("Resolve = %v, want ErrInvalidSession", err)
			}
		})
	}

	t.Run("expired session", func(t *testing.T) {
		clk.Advance(2 * time.Hour)
		if _, err := m.Resolve(ctx, handle.SessionID, handle.Token); !errors.Is(err, domain.ErrInvalidSession) {
			t.Errorf("Resolve = %v, want ErrInvalidSession", err)
		}
	})
}

type flakySessionStore struct {
	*memory.SessionStore
	failGet    bool
	failRevoke bool
}

func (s *flakySessionStore) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	if s.failGet {
		return nil, errors.New("store down")
	}
	return s.SessionStore.GetByID(ctx, id)
}

func (s *flakySessionStore) Revoke(ctx context.Context, id string, at time.Time) error {
	if s.failRevoke {
		return errors.New("store down")
	}
	return s.SessionStore.Revoke(ctx, id, at)
}

func TestSessionResolveFailsClosedOnStoreError(t *testing.T) {
	ctx := context.Background()
	flaky := &flakySessionStore{SessionStore: memory.NewSessionStore()}
	m := NewSessionManager(SessionConfig{}, flaky, testLogger())

	handle, err := m.Create(ctx, uuid.New(), "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	flaky.failGet = true
	if _, err := m.Resolve(ctx, handle.SessionID, handle.Token); !errors.Is(err, domain.ErrInvalidSession) {
		t.Errorf("Resolve during outage = %v, want ErrInvalidSession", err)
	}
}

func TestSessionRotation(t *testing.T) {
	ctx := context.Background()
	m, _, clk := newTestSessionManager(SessionConfig{
		SessionTTL:       7 * 24 * time.Hour,
		RotationInterval: 24 * time.Hour,
	})

	handle, err := m.Create(ctx, uuid.New(), "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	session, err := m.Resolve(ctx, handle.SessionID, handle.Token)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	rotated, err := m.MaybeRotate(ctx, session, "")
	if err != nil {
		t.Fatalf("MaybeRotate: %v", err)
	}
	if rotated != nil {
		t.Fatal("rotation happened before the interval elapsed")
	}

	clk.Advance(25 * time.Hour)
	rotated, err = m.MaybeRotate(ctx, session, "")
	if err != nil {
		t.Fatalf("MaybeRotate: %v", err)
	}
	if rotated == nil {
		t.Fatal("no rotation after the interval elapsed")
	}
	if rotated.SessionID == handle.SessionID {
		t.Error("rotation reused the old session ID")
	}

	// The old pair is dead, the new pair works.
	if _, err := m.Resolve(ctx, handle.SessionID, handle.Token); !errors.Is(err, domain.ErrInvalidSession) {
		t.Errorf("old pair still resolves after rotation: %v", err)
	}
	if _, err := m.Resolve(ctx, rotated.SessionID, rotated.Token); err != nil {
		t.Errorf("new pair does not resolve: %v", err)
	}
}

func TestSessionRotationCreateBeforeRevoke(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	flaky := &flakySessionStore{SessionStore: memory.NewSessionStore()}
	m := NewSessionManager(SessionConfig{RotationInterval: time.Hour}, flaky, testLogger())
	m.now = clk.Now

	handle, err := m.Create(ctx, uuid.New(), "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	session, err := m.Resolve(ctx, handle.SessionID, handle.Token)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	clk.Advance(2 * time.Hour)
	flaky.failRevoke = true

	rotated, err := m.MaybeRotate(ctx, session, "")
	if err != nil {
		t.Fatalf("MaybeRotate: %v", err)
	}
	if rotated == nil {
		t.Fatal("no rotation after the interval elapsed")
	}

	// A failed revoke leaves both pairs usable, never zero.
	flaky.failRevoke = false
	if _, err := m.Resolve(ctx, rotated.SessionID, rotated.Token); err != nil {
		t.Errorf("new pair does not resolve: %v", err)
	}
	if _, err := m.Resolve(ctx, handle.SessionID, handle.Token); err != nil {
		t.Errorf("old pair dropped although its revoke failed: %v", err)
	}
}

func TestSessionRevokeIdempotent(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestSessionManager(SessionConfig{})

	handle, err := m.Create(ctx, uuid.New(), "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := m.Revoke(ctx, handle.SessionID); err != nil {
		t.Fatalf("first Revoke: %v", err)
	}
	if err := m.Revoke(ctx, handle.SessionID); err != nil {
		t.Errorf("second Revoke: %v", err)
	}
	if err := m.Revoke(ctx, "never-existed"); err != nil {
		t.Errorf("Revoke of unknown session: %v", err)
	}
	if err := m.Revoke(ctx, ""); err != nil {
		t.Errorf("Revoke of empty session ID: %v", err)
	}
}

func TestSessionPurgeExpired(t *testing.T) {
	ctx := context.Background()
	m, sessions, clk := newTestSessionManager(SessionConfig{SessionTTL: time.Hour})

	old, err := m.Create(ctx, uuid.New(), "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	clk.Advance(48 * time.Hour)
	fresh, err := m.Create(ctx, uuid.New(), "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	n, err := m.PurgeExpired(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d sessions, want 1", n)
	}

	if _, err := sessions.GetByID(ctx, old.SessionID); !errors.Is(err, store.ErrNotFound) {
		t.Error("expired session survived the purge")
	}
	if _, err := sessions.GetByID(ctx, fresh.SessionID); err != nil {
		t.Errorf("live session was purged: %v", err)
	}
}
