package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/psantos/driverauth/pkg/domain"
	"github.com/psantos/driverauth/pkg/store"
)

// UserStore persists users in PostgreSQL.
type UserStore struct {
	db *sql.DB
}

var _ store.UserStore = (*UserStore)(nil)

// NewUserStore creates a Postgres-backed user store.
func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

const userColumns = `id, username, password_hash, must_change_password, full_name,
	national_id, birth_date, secret_question, secret_answer_hash, created_at, updated_at`

func scanUser(row *sql.Row) (*domain.User, error) {
	user := &domain.User{}
	err := row.Scan(
		&user.ID, &user.Username, &user.PasswordHash, &user.MustChangePassword,
		&user.FullName, &user.NationalID, &user.BirthDate, &user.SecretQuestion,
		&user.SecretAnswerHash, &user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetByUsername retrieves a user by username, case-insensitively.
func (s *UserStore) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE LOWER(username) = LOWER($1)
	`
	return scanUser(s.db.QueryRowContext(ctx, query, username))
}

// GetByID retrieves a user by ID.
func (s *UserStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1
	`
	return scanUser(s.db.QueryRowContext(ctx, query, id))
}

// GetByNationalID retrieves a user by its digits-only national ID.
func (s *UserStore) GetByNationalID(ctx context.Context, nationalID string) (*domain.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE national_id = $1 AND national_id <> ''
	`
	return scanUser(s.db.QueryRowContext(ctx, query, nationalID))
}

// GetByRecoveryFactors retrieves a user matching all four recovery factors
// exactly.
func (s *UserStore) GetByRecoveryFactors(ctx context.Context, f store.RecoveryFactors) (*domain.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE national_id = $1
		  AND birth_date = $2
		  AND secret_question = $3
		  AND secret_answer_hash = $4
	`
	return scanUser(s.db.QueryRowContext(ctx, query, f.NationalID, f.BirthDate, f.SecretQuestion, f.AnswerHash))
}

// Upsert creates or updates the record keyed by username. The ID and
// created_at of an existing row are preserved.
func (s *UserStore) Upsert(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (LOWER(username)) DO UPDATE SET
			password_hash = EXCLUDED.password_hash,
			must_change_password = EXCLUDED.must_change_password,
			full_name = EXCLUDED.full_name,
			national_id = EXCLUDED.national_id,
			birth_date = EXCLUDED.birth_date,
			secret_question = EXCLUDED.secret_question,
			secret_answer_hash = EXCLUDED.secret_answer_hash,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		user.ID, user.Username, user.PasswordHash, user.MustChangePassword,
		user.FullName, user.NationalID, user.BirthDate, user.SecretQuestion,
		user.SecretAnswerHash, user.CreatedAt, user.UpdatedAt,
	)
	return err
}

// HasNonAdminUser reports whether any account other than the bootstrap
// admin exists.
func (s *UserStore) HasNonAdminUser(ctx context.Context) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM users WHERE LOWER(username) <> $1
		)
	`
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, domain.AdminUsername).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}
