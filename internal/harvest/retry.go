package harvest

import "time"

// RateLimitBackoff is the bounded retry ladder applied to a single
// resource fetch that hits 429: attempt n waits n+1 steps before trying
// again, up to maxAttempts total tries.
type RateLimitBackoff struct {
	maxAttempts int
	step        time.Duration
}

// NewRateLimitBackoff builds a ladder; non-positive arguments fall back
// to 3 attempts stepping by 30 seconds.
func NewRateLimitBackoff(maxAttempts int, step time.Duration) *RateLimitBackoff {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if step <= 0 {
		step = 30 * time.Second
	}
	return &RateLimitBackoff{maxAttempts: maxAttempts, step: step}
}

// ShouldRetry reports whether another attempt is allowed after the given
// zero-based attempt number.
func (p *RateLimitBackoff) ShouldRetry(attempt int) bool {
	return attempt+1 < p.maxAttempts
}

// Backoff returns the wait before retrying after the given zero-based
// attempt: step, 2*step, 3*step, ...
func (p *RateLimitBackoff) Backoff(attempt int) time.Duration {
	return time.Duration(attempt+1) * p.step
}
