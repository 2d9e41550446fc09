// Package governor implements the adaptive rate controller that converts
// recent fetch outcomes into a (concurrency, delay) operating point.
package governor

import (
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mlefevre/steamharvest/internal/harvest"
)

// State is the governor's control mode.
type State string

// Governor states. Optimizing pushes toward the configured speed ceiling,
// Throttled backs off under rate-limit pressure, Recovering holds the
// floor after a hard block until a clean window is observed.
const (
	StateOptimizing State = "optimizing"
	StateThrottled  State = "throttled"
	StateRecovering State = "recovering"
)

// Config bounds the governor's operating range.
type Config struct {
	MinConcurrency       int
	MaxConcurrency       int
	MinDelay             time.Duration
	MaxDelay             time.Duration
	HistorySize          int
	ThrottleThresholdPct float64
}

// Governor owns the bounded outcome history and the current rate
// parameters. Record is safe for concurrent use by workers; the
// remaining methods are called from the orchestrator at chunk
// boundaries.
type Governor struct {
	mu     sync.Mutex
	cfg    Config
	state  State
	window *window

	// concurrency is tracked as a float so the optimizing nudge of +0.5
	// accumulates across assessments; callers see the truncated int.
	concurrency float64
	delay       time.Duration

	logger *zap.Logger
	jitter func() float64
}

// Status is a point-in-time view for chunk-boundary reporting.
type Status struct {
	State          State
	Concurrency    int
	Delay          time.Duration
	RateLimitedPct float64
	WindowFill     int
	WindowSize     int
}

// New builds a Governor starting in Optimizing at minimum concurrency
// and the midpoint of the delay range.
func New(cfg Config, logger *zap.Logger) *Governor {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Governor{
		cfg:         cfg,
		state:       StateOptimizing,
		window:      newWindow(cfg.HistorySize),
		concurrency: float64(cfg.MinConcurrency),
		delay:       (cfg.MinDelay + cfg.MaxDelay) / 2,
		logger:      logger,
		jitter:      rand.Float64,
	}
}

// Record appends one outcome to the history window.
func (g *Governor) Record(outcome harvest.Outcome) {
	g.mu.Lock()
	g.window.push(outcome)
	g.mu.Unlock()
}

// Delay returns the current delay jittered by a uniform multiplier in
// [0.8, 1.2] so concurrent workers do not fire in lockstep.
func (g *Governor) Delay() time.Duration {
	g.mu.Lock()
	d := g.delay
	g.mu.Unlock()
	return time.Duration(float64(d) * (0.8 + 0.4*g.jitter()))
}

// Concurrency returns the current concurrency budget.
func (g *Governor) Concurrency() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return int(g.concurrency)
}

// AssessAndAdjust runs one control step: evaluate the rate-limited
// fraction over the window, apply the state transition rule, then the
// state's adjustment rule. It does nothing until the window is at least
// half full, so sparse histories never drive decisions. The decision is
// deterministic given the same history and state.
func (g *Governor) AssessAndAdjust() {
	g.mu.Lock()
	defer g.mu.Unlock()

	fill := g.window.len()
	if fill < g.window.cap()/2 {
		return
	}
	frac := float64(g.window.count(harvest.OutcomeRateLimited)) / float64(fill)
	threshold := g.cfg.ThrottleThresholdPct / 100

	switch g.state {
	case StateOptimizing:
		if frac > threshold {
			g.state = StateThrottled
			g.logger.Warn("rate limit threshold exceeded, throttling",
				zap.Float64("rate_limited_pct", frac*100),
				zap.Float64("threshold_pct", g.cfg.ThrottleThresholdPct),
			)
		}
	case StateThrottled:
		if frac < threshold {
			g.state = StateOptimizing
			g.logger.Info("rate limit pressure cleared, resuming optimization",
				zap.Float64("rate_limited_pct", frac*100),
			)
		}
	case StateRecovering:
		// Leave recovery only on a completely clean, full window; the
		// pinned floor values stay in effect until the next assessment.
		if g.window.full() && g.window.count(harvest.OutcomeRateLimited) == 0 {
			g.state = StateOptimizing
			g.logger.Info("recovery complete, resuming optimization")
		}
		return
	}

	switch g.state {
	case StateOptimizing:
		g.delay = clampDelay(time.Duration(float64(g.delay)*0.95), g.cfg.MinDelay, g.cfg.MaxDelay)
		if g.delay == g.cfg.MinDelay {
			g.concurrency = clampConcurrency(g.concurrency+0.5, g.cfg.MinConcurrency, g.cfg.MaxConcurrency)
		}
	case StateThrottled:
		g.concurrency = clampConcurrency(g.concurrency*0.9, g.cfg.MinConcurrency, g.cfg.MaxConcurrency)
		g.delay = clampDelay(time.Duration(float64(g.delay)*1.1), g.cfg.MinDelay, g.cfg.MaxDelay)
	}
}

// Reset is the emergency brake after hibernation: pin the floor values,
// clear the history, and require a clean full window before optimizing
// again.
func (g *Governor) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = StateRecovering
	g.concurrency = float64(g.cfg.MinConcurrency)
	g.delay = g.cfg.MaxDelay
	g.window.clear()
	g.logger.Warn("governor reset to recovering at minimum speed")
}

// Snapshot returns the current operating point and recent 429 share.
func (g *Governor) Snapshot() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	fill := g.window.len()
	pct := 0.0
	if fill > 0 {
		pct = float64(g.window.count(harvest.OutcomeRateLimited)) / float64(fill) * 100
	}
	return Status{
		State:          g.state,
		Concurrency:    int(g.concurrency),
		Delay:          g.delay,
		RateLimitedPct: pct,
		WindowFill:     fill,
		WindowSize:     g.window.cap(),
	}
}

func clampDelay(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}

func clampConcurrency(c float64, lo, hi int) float64 {
	if c < float64(lo) {
		return float64(lo)
	}
	if c > float64(hi) {
		return float64(hi)
	}
	return c
}
