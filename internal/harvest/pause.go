package harvest

import (
	"context"
	"time"
)

// Pause sleeps for the given duration or until the context finishes,
// whichever comes first. It returns the context error when interrupted.
// Zero and negative durations return immediately.
func Pause(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
