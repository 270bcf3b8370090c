package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/psantos/driverauth/pkg/store"
)

// Default lockout policy.
const (
	DefaultMaxFailures = 5
	DefaultCooldown    = 15 * time.Minute
)

// RateLimiter tracks failure counters and lockout windows keyed by
// (action, identity). It must be consulted before any credential
// comparison so that blocked callers never trigger a hashing operation.
type RateLimiter struct {
	limits      store.RateLimitStore
	logger      *slog.Logger
	maxFailures int
	cooldown    time.Duration
	now         func() time.Time
}

// NewRateLimiter creates a rate limiter. Zero values fall back to the
// default policy (5 failures, 15 minute cooldown).
func NewRateLimiter(limits store.RateLimitStore, logger *slog.Logger, maxFailures int, cooldown time.Duration) *RateLimiter {
	if maxFailures <= 0 {
		maxFailures = DefaultMaxFailures
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{
		limits:      limits,
		logger:      logger,
		maxFailures: maxFailures,
		cooldown:    cooldown,
		now:         time.Now,
	}
}

// IsBlocked reports whether the (action, key) pair is inside a lockout
// window. A store failure counts as blocked: the guard fails closed.
func (rl *RateLimiter) IsBlocked(ctx context.Context, action, key string) bool {
	entry, err := rl.limits.Get(ctx, action, key)
	if errors.Is(err, store.ErrNotFound) {
		return false
	}
	if err != nil {
		rl.logger.Error("rate limit lookup failed", "action", action, "error", err)
		return true
	}
	return entry.IsBlocked(rl.now())
}

// RecordFailure increments the failure counter; crossing the threshold
// starts the cooldown window. Accounting errors are logged, never
// propagated: a broken counter must not abort the caller's rejection path.
func (rl *RateLimiter) RecordFailure(ctx context.Context, action, key string) {
	entry, err := rl.limits.IncrementFailure(ctx, action, key, rl.maxFailures, rl.cooldown, rl.now())
	if err != nil {
		rl.logger.Error("rate limit accounting failed", "action", action, "error", err)
		return
	}
	if entry.BlockedUntil != nil {
		rl.logger.Warn("lockout window started",
			"action", action,
			"failures", entry.Failures,
			"blocked_until", entry.BlockedUntil,
		)
	}
}

// RecordSuccess unconditionally zeroes the counter and clears any block.
func (rl *RateLimiter) RecordSuccess(ctx context.Context, action, key string) {
	if err := rl.limits.Reset(ctx, action, key); err != nil {
		rl.logger.Error("rate limit reset failed", "action", action, "error", err)
	}
}
