package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/psantos/driverauth/pkg/domain"
)

// Authenticator is the produced interface of the subsystem, composing the
// directory, hasher, rate limiter and session manager. The UI layer talks
// only to this type.
type Authenticator struct {
	directory *UserDirectory
	sessions  *SessionManager
	limiter   *RateLimiter
	recovery  *RecoveryFlow
	logger    *slog.Logger
}

// NewAuthenticator wires the subsystem together.
func NewAuthenticator(directory *UserDirectory, sessions *SessionManager, limiter *RateLimiter, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{
		directory: directory,
		sessions:  sessions,
		limiter:   limiter,
		recovery:  NewRecoveryFlow(directory, limiter, logger),
		logger:    logger,
	}
}

// LoginResult is returned on successful authentication.
type LoginResult struct {
	Handle   domain.SessionHandle
	Identity domain.Identity
}

// Login verifies the credentials and issues a session.
//
// The lockout gate runs before any lookup or hash so a blocked caller
// never costs a hashing operation. A missing user and a wrong password are
// indistinguishable to the caller, and both count against the limiter key:
// probes with fabricated usernames still accumulate.
func (a *Authenticator) Login(ctx context.Context, username, password, userAgent string) (*LoginResult, error) {
	key := domain.NormalizeUsername(username)
	if key == "" || password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	if a.limiter.IsBlocked(ctx, domain.ActionLogin, key) {
		return nil, domain.ErrTooManyAttempts
	}

	user, err := a.directory.FindByUsername(ctx, username)
	if errors.Is(err, domain.ErrUserNotFound) {
		a.limiter.RecordFailure(ctx, domain.ActionLogin, key)
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if !VerifyPassword(password, user.PasswordHash) {
		a.limiter.RecordFailure(ctx, domain.ActionLogin, key)
		return nil, domain.ErrInvalidCredentials
	}

	a.limiter.RecordSuccess(ctx, domain.ActionLogin, key)
	a.upgradePasswordIfNeeded(ctx, user, password)

	handle, err := a.sessions.Create(ctx, user.ID, userAgent)
	if err != nil {
		return nil, domain.ErrUnavailable
	}

	a.logger.Info("login", "user_id", user.ID, "session_id", handle.SessionID)
	return &LoginResult{
		Handle: *handle,
		Identity: domain.Identity{
			UserID:             user.ID,
			Username:           user.Username,
			MustChangePassword: user.MustChangePassword,
		},
	}, nil
}

// upgradePasswordIfNeeded transparently re-hashes a legacy credential
// while the plaintext is at hand. Best effort: a failed upgrade never
// fails the login, the old hash keeps verifying.
func (a *Authenticator) upgradePasswordIfNeeded(ctx context.Context, user *domain.User, password string) {
	if !NeedsUpgrade(user.PasswordHash) {
		return
	}
	hash, err := HashPassword(password)
	if err != nil {
		a.logger.Error("password upgrade hash failed", "user_id", user.ID, "error", err)
		return
	}
	user.PasswordHash = hash
	if err := a.directory.Upsert(ctx, user); err != nil {
		a.logger.Error("password upgrade write failed", "user_id", user.ID, "error", err)
		return
	}
	a.logger.Info("password hash upgraded on login", "user_id", user.ID)
}

// ResolveResult carries the resolved identity and, when rotation was due,
// the replacement pair the caller must adopt.
type ResolveResult struct {
	Identity domain.Identity
	Rotated  *domain.SessionHandle
}

// Resolve validates a (session_id, token) pair and rotates the session
// when it is due. Any failure, including store I/O, resolves to
// ErrInvalidSession.
func (a *Authenticator) Resolve(ctx context.Context, sessionID, token, userAgent string) (*ResolveResult, error) {
	session, err := a.sessions.Resolve(ctx, sessionID, token)
	if err != nil {
		return nil, domain.ErrInvalidSession
	}

	user, err := a.directory.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, domain.ErrInvalidSession
	}

	rotated, err := a.sessions.MaybeRotate(ctx, session, userAgent)
	if err != nil {
		// Rotation is housekeeping; the presented session is still good.
		a.logger.Warn("session rotation failed", "session_id", session.ID, "error", err)
		rotated = nil
	}

	return &ResolveResult{
		Identity: domain.Identity{
			UserID:             user.ID,
			Username:           user.Username,
			MustChangePassword: user.MustChangePassword,
		},
		Rotated: rotated,
	}, nil
}

// Logout revokes the session. Idempotent.
func (a *Authenticator) Logout(ctx context.Context, sessionID string) error {
	return a.sessions.Revoke(ctx, sessionID)
}

// Register creates the primary account, subject to the registration lock.
func (a *Authenticator) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	return a.directory.Register(ctx, in)
}

// ChangePassword verifies the current password and installs a new
// Argon2id hash, clearing any forced-change flag.
func (a *Authenticator) ChangePassword(ctx context.Context, username, current, newPassword string) error {
	if newPassword == "" {
		return domain.ErrMissingFields
	}

	user, err := a.directory.FindByUsername(ctx, username)
	if errors.Is(err, domain.ErrUserNotFound) {
		return domain.ErrInvalidCredentials
	}
	if err != nil {
		return err
	}

	if !VerifyPassword(current, user.PasswordHash) {
		return domain.ErrInvalidCredentials
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return domain.ErrUnavailable
	}

	user.PasswordHash = hash
	user.MustChangePassword = false
	if err := a.directory.Upsert(ctx, user); err != nil {
		return err
	}

	a.logger.Info("password changed", "user_id", user.ID)
	return nil
}

// RequestRecovery runs the knowledge-based reset flow. The acknowledgment
// is byte-identical on every outcome.
func (a *Authenticator) RequestRecovery(ctx context.Context, in RecoveryInput) string {
	return a.recovery.Request(ctx, in)
}
