package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// TestHibernationWaitCompletes verifies Wait returns nil after the cooldown.
func TestHibernationWaitCompletes(t *testing.T) {
	t.Parallel()

	h := NewHibernationController(20*time.Millisecond, zap.NewNop())
	start := time.Now()
	require.NoError(t, h.Wait(context.Background()))
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

// TestHibernationWaitInterrupted verifies cancellation surfaces as an error.
func TestHibernationWaitInterrupted(t *testing.T) {
	t.Parallel()

	h := NewHibernationController(time.Hour, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	require.ErrorIs(t, h.Wait(ctx), context.Canceled)
}

// TestHibernationCountdownTicks verifies the periodic countdown log path runs.
func TestHibernationCountdownTicks(t *testing.T) {
	t.Parallel()

	h := NewHibernationController(30*time.Millisecond, zap.NewNop())
	h.tick = 10 * time.Millisecond
	require.NoError(t, h.Wait(context.Background()))
}

// TestHibernationZeroCooldown verifies a non-positive cooldown is a no-op.
func TestHibernationZeroCooldown(t *testing.T) {
	t.Parallel()

	h := NewHibernationController(0, zap.NewNop())
	require.NoError(t, h.Wait(context.Background()))
}
