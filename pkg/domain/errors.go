package domain

import "errors"

// Authentication errors. Callers must never be able to tell an unknown
// username from a wrong password; both surface as ErrInvalidCredentials.
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTooManyAttempts    = errors.New("too many attempts")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionExpired     = errors.New("session expired")
	ErrSessionRevoked     = errors.New("session revoked")
	ErrInvalidSession     = errors.New("invalid session")
	ErrInvalidToken       = errors.New("invalid token")
)

// Policy errors carry no secret information and may be shown verbatim.
var (
	ErrRegistrationClosed = errors.New("registration closed: an account already exists")
	ErrUserExists         = errors.New("user already exists")
	ErrNationalIDTaken    = errors.New("national id already registered")
)

// Validation errors.
var (
	ErrMissingFields    = errors.New("required fields missing")
	ErrPasswordMismatch = errors.New("password confirmation does not match")
)

// ErrUnavailable wraps store failures. It is retryable and must stay
// distinct from ErrInvalidCredentials so clients do not report an outage
// as a wrong password.
var ErrUnavailable = errors.New("service unavailable")
