package domain

import (
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// AdminUsername is the reserved bootstrap account. It does not count toward
// the registration lock.
const AdminUsername = "admin"

// User represents the account.
type User struct {
	ID                 uuid.UUID
	Username           string
	PasswordHash       string
	MustChangePassword bool
	FullName           string
	NationalID         string
	BirthDate          string
	SecretQuestion     string
	SecretAnswerHash   string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IsAdmin returns true for the bootstrap account.
func (u *User) IsAdmin() bool {
	return strings.EqualFold(NormalizeUsername(u.Username), AdminUsername)
}

// NormalizeUsername trims surrounding whitespace. Matching is
// case-insensitive at the store layer.
func NormalizeUsername(value string) string {
	return strings.TrimSpace(value)
}

// NormalizeNationalID keeps digits only.
func NormalizeNationalID(value string) string {
	var b strings.Builder
	for _, r := range value {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeBirthDate trims the value; dates are stored as ISO-8601 strings.
func NormalizeBirthDate(value string) string {
	return strings.TrimSpace(value)
}
