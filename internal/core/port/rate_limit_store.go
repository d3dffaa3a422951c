package port

import (
	"context"
	"time"
)

// RateLimitDecision is the state of a client's sliding window after one attempt.
type RateLimitDecision struct {
	Allowed bool
	// Count includes the attempt just taken when Allowed.
	Count int
	// Oldest is the earliest attempt still inside the window; the window frees a slot at Oldest+window.
	Oldest time.Time
}

// RateLimitStore counts login attempts per client.
type RateLimitStore interface {
	// Take drops attempts older than window, then records at only if fewer than limit remain.
	Take(ctx context.Context, identifier string, limit int, window time.Duration, at time.Time) (RateLimitDecision, error)
}
