package governor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mlefevre/steamharvest/internal/harvest"
)

func testConfig() Config {
	return Config{
		MinConcurrency:       2,
		MaxConcurrency:       8,
		MinDelay:             1 * time.Second,
		MaxDelay:             5 * time.Second,
		HistorySize:          20,
		ThrottleThresholdPct: 10,
	}
}

func fill(g *Governor, outcome harvest.Outcome, n int) {
	for i := 0; i < n; i++ {
		g.Record(outcome)
	}
}

func TestGovernor_InitialState(t *testing.T) {
	t.Parallel()

	g := New(testConfig(), zap.NewNop())
	st := g.Snapshot()
	require.Equal(t, StateOptimizing, st.State)
	require.Equal(t, 2, st.Concurrency)
	require.Equal(t, 3*time.Second, st.Delay)
}

func TestGovernor_SparseWindowMakesNoDecision(t *testing.T) {
	t.Parallel()

	g := New(testConfig(), zap.NewNop())
	fill(g, harvest.OutcomeRateLimited, 9) // below half of 20

	g.AssessAndAdjust()

	st := g.Snapshot()
	require.Equal(t, StateOptimizing, st.State)
	require.Equal(t, 3*time.Second, st.Delay)
}

func TestGovernor_OptimizingEntersThrottledOverThreshold(t *testing.T) {
	t.Parallel()

	g := New(testConfig(), zap.NewNop())
	fill(g, harvest.OutcomeSuccess, 15)
	fill(g, harvest.OutcomeRateLimited, 5) // 25% > 10%

	g.AssessAndAdjust()

	require.Equal(t, StateThrottled, g.Snapshot().State)
}

func TestGovernor_ThrottledBacksOffAndReturns(t *testing.T) {
	t.Parallel()

	g := New(testConfig(), zap.NewNop())
	fill(g, harvest.OutcomeRateLimited, 20)
	g.AssessAndAdjust()
	require.Equal(t, StateThrottled, g.Snapshot().State)

	before := g.Snapshot()
	fill(g, harvest.OutcomeRateLimited, 20)
	g.AssessAndAdjust()
	after := g.Snapshot()

	require.Equal(t, StateThrottled, after.State)
	require.LessOrEqual(t, after.Concurrency, before.Concurrency)
	require.GreaterOrEqual(t, after.Delay, before.Delay)

	// A clean window drops back under the threshold.
	fill(g, harvest.OutcomeSuccess, 20)
	g.AssessAndAdjust()
	require.Equal(t, StateOptimizing, g.Snapshot().State)
}

func TestGovernor_OptimizingSpeedsUpThenAddsConcurrency(t *testing.T) {
	t.Parallel()

	g := New(testConfig(), zap.NewNop())
	fill(g, harvest.OutcomeSuccess, 20)

	// Enough assessments drive delay to its floor, then concurrency
	// climbs toward its ceiling.
	for i := 0; i < 60; i++ {
		g.AssessAndAdjust()
	}

	st := g.Snapshot()
	require.Equal(t, StateOptimizing, st.State)
	require.Equal(t, 1*time.Second, st.Delay)
	require.Equal(t, 8, st.Concurrency)
}

func TestGovernor_BoundsHoldUnderAnyHistory(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	outcomes := []harvest.Outcome{
		harvest.OutcomeSuccess,
		harvest.OutcomeRateLimited,
		harvest.OutcomeTransientFailure,
		harvest.OutcomeHardBlocked,
	}

	g := New(cfg, zap.NewNop())
	for i := 0; i < 500; i++ {
		g.Record(outcomes[i%len(outcomes)])
		if i%7 == 0 {
			g.AssessAndAdjust()
		}
		if i%101 == 0 {
			g.Reset()
		}
		st := g.Snapshot()
		require.GreaterOrEqual(t, st.Concurrency, cfg.MinConcurrency)
		require.LessOrEqual(t, st.Concurrency, cfg.MaxConcurrency)
		require.GreaterOrEqual(t, st.Delay, cfg.MinDelay)
		require.LessOrEqual(t, st.Delay, cfg.MaxDelay)
	}
}

func TestGovernor_ResetEntersRecoveringAtFloor(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	g := New(cfg, zap.NewNop())
	fill(g, harvest.OutcomeSuccess, 20)
	for i := 0; i < 40; i++ {
		g.AssessAndAdjust()
	}

	g.Reset()

	st := g.Snapshot()
	require.Equal(t, StateRecovering, st.State)
	require.Equal(t, cfg.MinConcurrency, st.Concurrency)
	require.Equal(t, cfg.MaxDelay, st.Delay)
	require.Zero(t, st.WindowFill)
}

func TestGovernor_RecoveringPinnedWhileWindowHasRateLimits(t *testing.T) {
	t.Parallel()

	g := New(testConfig(), zap.NewNop())
	g.Reset()

	fill(g, harvest.OutcomeSuccess, 19)
	fill(g, harvest.OutcomeRateLimited, 1)
	g.AssessAndAdjust()
	require.Equal(t, StateRecovering, g.Snapshot().State)

	// A half-full clean window is still not enough: recovery demands a
	// full window with zero rate limits.
	g.Reset()
	fill(g, harvest.OutcomeSuccess, 10)
	g.AssessAndAdjust()
	require.Equal(t, StateRecovering, g.Snapshot().State)

	fill(g, harvest.OutcomeSuccess, 10)
	g.AssessAndAdjust()
	require.Equal(t, StateOptimizing, g.Snapshot().State)
}

func TestGovernor_DelayJitterStaysBounded(t *testing.T) {
	t.Parallel()

	g := New(testConfig(), zap.NewNop())
	base := g.Snapshot().Delay
	for i := 0; i < 200; i++ {
		d := g.Delay()
		require.GreaterOrEqual(t, d, time.Duration(float64(base)*0.8))
		require.LessOrEqual(t, d, time.Duration(float64(base)*1.2))
	}
}

func TestGovernor_ConcurrentRecordIsSafe(t *testing.T) {
	t.Parallel()

	g := New(testConfig(), zap.NewNop())
	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 1000; j++ {
				g.Record(harvest.OutcomeSuccess)
			}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
	require.Equal(t, 20, g.Snapshot().WindowFill)
}
