package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Argon2 parameters (OWASP recommended)
const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4
	argon2KeyLen  = 32
	saltLen       = 16
)

const argon2Prefix = "$argon2id$"

// HashPassword hashes a password using Argon2id. All new and upgraded
// credentials carry this scheme.
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := randomBytes(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
	return encodeArgon2Hash(hash, salt, argon2Time, argon2Memory, argon2Threads), nil
}

// VerifyPassword verifies a password against a stored hash, dispatching on
// the hash's algorithm tag. Earlier versions of the system stored bcrypt,
// unsalted SHA-256 and first-generation plaintext records; all of them
// verify here so they can be upgraded on the next successful login.
// Malformed or empty input returns false, never an error.
func VerifyPassword(password, storedHash string) bool {
	switch {
	case storedHash == "":
		return false
	case isArgon2Hash(storedHash):
		return verifyArgon2(password, storedHash)
	case isBcryptHash(storedHash):
		return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(password)) == nil
	default:
		return verifyLegacy(password, storedHash)
	}
}

// NeedsUpgrade reports whether a stored hash should be re-hashed with the
// preferred algorithm the next time the plaintext is available.
func NeedsUpgrade(storedHash string) bool {
	return !isArgon2Hash(storedHash)
}

// HashAnswer hashes a recovery secret answer. The digest is deterministic
// (unsalted SHA-256 hex) because the store matches it with an equality
// predicate; a salted scheme would break the recovery lookup.
func HashAnswer(answer string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(answer)))
	return hex.EncodeToString(sum[:])
}

func isArgon2Hash(value string) bool {
	return strings.HasPrefix(value, argon2Prefix)
}

func isBcryptHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") ||
		strings.HasPrefix(value, "$2b$") ||
		strings.HasPrefix(value, "$2y$")
}

func verifyArgon2(password, encodedHash string) bool {
	hash, salt, time, memory, threads, err := decodeArgon2Hash(encodedHash)
	if err != nil {
		return false
	}

	computed := argon2.IDKey([]byte(password), salt, time, memory, threads, uint32(len(hash)))
	return constantTimeCompare(hash, computed)
}

// verifyLegacy covers unsalted SHA-256 hex digests and, as a last resort,
// records that still hold the raw password. Both sides are digested before
// comparison so the check stays constant time.
func verifyLegacy(password, storedHash string) bool {
	candidate := sha256.Sum256([]byte(password))
	if constantTimeCompare([]byte(hex.EncodeToString(candidate[:])), []byte(storedHash)) {
		return true
	}
	stored := sha256.Sum256([]byte(storedHash))
	return constantTimeCompare(candidate[:], stored[:])
}

// LegacyHashPassword produces the pre-migration SHA-256 scheme. Kept only
// so tests and data fixtures can build legacy records.
func LegacyHashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}
