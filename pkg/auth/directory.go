package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/psantos/driverauth/pkg/domain"
	"github.com/psantos/driverauth/pkg/store"
)

// UserDirectory is the credential and profile lookup layer over the user
// store. It owns the single-registered-account policy: this system serves
// exactly one primary end-user account plus the bootstrap admin.
type UserDirectory struct {
	users  store.UserStore
	logger *slog.Logger
	now    func() time.Time
}

// NewUserDirectory creates a user directory.
func NewUserDirectory(users store.UserStore, logger *slog.Logger) *UserDirectory {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserDirectory{
		users:  users,
		logger: logger,
		now:    time.Now,
	}
}

// FindByUsername looks up a user by normalized username,
// case-insensitively.
func (d *UserDirectory) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	normalized := domain.NormalizeUsername(username)
	if normalized == "" {
		return nil, domain.ErrUserNotFound
	}
	user, err := d.users.GetByUsername(ctx, normalized)
	if errors.Is(err, store.ErrNotFound) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
	return user, nil
}

// FindByID looks a user up by its stable identifier.
func (d *UserDirectory) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	user, err := d.users.GetByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
	return user, nil
}

// FindForRecovery matches a user on the exact AND of all four recovery
// factors. Any mismatch is reported as not found.
func (d *UserDirectory) FindForRecovery(ctx context.Context, nationalID, birthDate, question, answerHash string) (*domain.User, error) {
	factors := store.RecoveryFactors{
		NationalID:     domain.NormalizeNationalID(nationalID),
		BirthDate:      domain.NormalizeBirthDate(birthDate),
		SecretQuestion: domain.NormalizeUsername(question),
		AnswerHash:     answerHash,
	}
	user, err := d.users.GetByRecoveryFactors(ctx, factors)
	if errors.Is(err, store.ErrNotFound) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
	return user, nil
}

// Upsert writes the user record keyed by username. The ID of an existing
// record never changes.
func (d *UserDirectory) Upsert(ctx context.Context, user *domain.User) error {
	user.Username = domain.NormalizeUsername(user.Username)
	user.UpdatedAt = d.now()
	if err := d.users.Upsert(ctx, user); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
	return nil
}

// HasAnyRegisteredAccount reports whether any account other than the
// bootstrap admin exists.
func (d *UserDirectory) HasAnyRegisteredAccount(ctx context.Context) (bool, error) {
	has, err := d.users.HasNonAdminUser(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
	return has, nil
}

// RegisterInput carries the fields of a registration request.
type RegisterInput struct {
	Username        string
	Password        string
	PasswordConfirm string
	FullName        string
	NationalID      string
	BirthDate       string
	SecretQuestion  string
	SecretAnswer    string
}

// Register creates the primary end-user account. Once one non-admin
// account exists, every further attempt is rejected with
// ErrRegistrationClosed regardless of requester; this is an intentional
// single-account business rule, not an oversight.
func (d *UserDirectory) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	username := domain.NormalizeUsername(in.Username)
	nationalID := domain.NormalizeNationalID(in.NationalID)
	question := domain.NormalizeUsername(in.SecretQuestion)

	if username == "" || in.Password == "" || nationalID == "" || question == "" ||
		domain.NormalizeUsername(in.SecretAnswer) == "" || domain.NormalizeBirthDate(in.BirthDate) == "" {
		return nil, domain.ErrMissingFields
	}
	if in.Password != in.PasswordConfirm {
		return nil, domain.ErrPasswordMismatch
	}

	locked, err := d.HasAnyRegisteredAccount(ctx)
	if err != nil {
		return nil, err
	}
	if locked {
		return nil, domain.ErrRegistrationClosed
	}

	if _, err := d.FindByUsername(ctx, username); err == nil {
		return nil, domain.ErrUserExists
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}

	if _, err := d.users.GetByNationalID(ctx, nationalID); err == nil {
		return nil, domain.ErrNationalIDTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	now := d.now()
	user := &domain.User{
		ID:               uuid.New(),
		Username:         username,
		PasswordHash:     hash,
		FullName:         domain.NormalizeUsername(in.FullName),
		NationalID:       nationalID,
		BirthDate:        domain.NormalizeBirthDate(in.BirthDate),
		SecretQuestion:   question,
		SecretAnswerHash: HashAnswer(in.SecretAnswer),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := d.users.Upsert(ctx, user); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}

	d.logger.Info("account registered", "user_id", user.ID, "username", user.Username)
	return user, nil
}

// EnsureDefaultAdmin creates the bootstrap admin account with a forced
// password change on first login. Only active in non-production deployment
// mode; the flag is owned by configuration, not by the directory.
func (d *UserDirectory) EnsureDefaultAdmin(ctx context.Context, devMode bool) error {
	if !devMode {
		return nil
	}

	_, err := d.FindByUsername(ctx, domain.AdminUsername)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return err
	}

	hash, err := HashPassword(domain.AdminUsername)
	if err != nil {
		return fmt.Errorf("hashing bootstrap password: %w", err)
	}

	now := d.now()
	admin := &domain.User{
		ID:                 uuid.New(),
		Username:           domain.AdminUsername,
		PasswordHash:       hash,
		MustChangePassword: true,
		FullName:           "Administrator",
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := d.users.Upsert(ctx, admin); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}

	d.logger.Warn("bootstrap admin created with default password; change it on first login")
	return nil
}
