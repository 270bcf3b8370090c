package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// EnsureSchema creates the authentication tables when they do not exist.
// Idempotent; safe to run at every startup.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			username TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			must_change_password BOOLEAN NOT NULL DEFAULT FALSE,
			full_name TEXT NOT NULL DEFAULT '',
			national_id TEXT NOT NULL DEFAULT '',
			birth_date TEXT NOT NULL DEFAULT '',
			secret_question TEXT NOT NULL DEFAULT '',
			secret_answer_hash TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS users_username_lower_idx
			ON users (LOWER(username))`,
		`CREATE UNIQUE INDEX IF NOT EXISTS users_national_id_idx
			ON users (national_id) WHERE national_id <> ''`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			user_id UUID NOT NULL,
			token_hash TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			revoked_at TIMESTAMPTZ,
			last_seen_at TIMESTAMPTZ,
			user_agent TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS sessions_user_id_idx ON sessions (user_id)`,
		`CREATE TABLE IF NOT EXISTS rate_limits (
			action TEXT NOT NULL,
			key TEXT NOT NULL,
			failures INTEGER NOT NULL DEFAULT 0,
			blocked_until TIMESTAMPTZ,
			last_failure_at TIMESTAMPTZ,
			PRIMARY KEY (action, key)
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensuring schema: %w", err)
		}
	}
	return nil
}
