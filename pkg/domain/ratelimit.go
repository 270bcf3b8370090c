package domain

import "time"

// Rate-limited actions.
const (
	ActionLogin    = "login"
	ActionRecovery = "recovery"
)

// RateLimitEntry is the abuse counter for one (action, key) pair.
type RateLimitEntry struct {
	Action        string
	Key           string
	Failures      int
	BlockedUntil  *time.Time
	LastFailureAt *time.Time
}

// IsBlocked returns true while the block window is in the future.
func (e *RateLimitEntry) IsBlocked(now time.Time) bool {
	return e.BlockedUntil != nil && now.Before(*e.BlockedUntil)
}
