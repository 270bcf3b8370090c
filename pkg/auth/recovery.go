package auth

import (
	"context"
	"log/slog"

	"github.com/psantos/driverauth/pkg/domain"
)

// NeutralRecoveryAck is the single response body for every recovery
// request. Returning anything else on any path would let a caller probe
// which identities exist; implementers must not special-case success.
const NeutralRecoveryAck = "if the data is correct, the request will be processed"

// RecoveryInput carries the fields of a password recovery request.
type RecoveryInput struct {
	NationalID      string
	BirthDate       string
	SecretQuestion  string
	SecretAnswer    string
	NewPassword     string
	PasswordConfirm string
}

// RecoveryFlow performs knowledge-based password reset. It is stateless
// across calls except for the rate limiter key.
type RecoveryFlow struct {
	directory *UserDirectory
	limiter   *RateLimiter
	logger    *slog.Logger
}

// NewRecoveryFlow creates a recovery flow.
func NewRecoveryFlow(directory *UserDirectory, limiter *RateLimiter, logger *slog.Logger) *RecoveryFlow {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecoveryFlow{
		directory: directory,
		limiter:   limiter,
		logger:    logger,
	}
}

// recoveryKey derives the rate limiter key from the identifying factors of
// the request. A malformed submission with a real-looking national ID
// still lands on the same key and still counts.
func recoveryKey(in RecoveryInput) string {
	return domain.NormalizeNationalID(in.NationalID) + ":" + domain.NormalizeUsername(in.SecretQuestion)
}

// Request processes a recovery attempt. The returned acknowledgment is
// byte-identical on every path; only the side effects differ.
func (f *RecoveryFlow) Request(ctx context.Context, in RecoveryInput) string {
	key := recoveryKey(in)

	if f.limiter.IsBlocked(ctx, domain.ActionRecovery, key) {
		return NeutralRecoveryAck
	}

	if domain.NormalizeNationalID(in.NationalID) == "" ||
		domain.NormalizeBirthDate(in.BirthDate) == "" ||
		domain.NormalizeUsername(in.SecretQuestion) == "" ||
		domain.NormalizeUsername(in.SecretAnswer) == "" ||
		in.NewPassword == "" ||
		in.NewPassword != in.PasswordConfirm {
		f.limiter.RecordFailure(ctx, domain.ActionRecovery, key)
		return NeutralRecoveryAck
	}

	user, err := f.directory.FindForRecovery(ctx, in.NationalID, in.BirthDate, in.SecretQuestion, HashAnswer(in.SecretAnswer))
	if err != nil {
		f.limiter.RecordFailure(ctx, domain.ActionRecovery, key)
		return NeutralRecoveryAck
	}

	hash, err := HashPassword(in.NewPassword)
	if err != nil {
		f.logger.Error("hashing recovery password failed", "error", err)
		f.limiter.RecordFailure(ctx, domain.ActionRecovery, key)
		return NeutralRecoveryAck
	}

	user.PasswordHash = hash
	user.MustChangePassword = false
	if err := f.directory.Upsert(ctx, user); err != nil {
		f.logger.Error("persisting recovered password failed", "error", err)
		f.limiter.RecordFailure(ctx, domain.ActionRecovery, key)
		return NeutralRecoveryAck
	}

	f.limiter.RecordSuccess(ctx, domain.ActionRecovery, key)
	f.logger.Info("password reset via recovery", "user_id", user.ID)
	return NeutralRecoveryAck
}
