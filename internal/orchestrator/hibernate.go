package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const defaultCountdownTick = time.Minute

// HibernationController waits out hard blocks. The cooldown is fixed at
// construction; Wait can be interrupted through the context.
type HibernationController struct {
	cooldown time.Duration
	tick     time.Duration
	logger   *zap.Logger
}

// NewHibernationController builds a controller that sleeps for cooldown
// and logs a countdown once per minute while doing so.
func NewHibernationController(cooldown time.Duration, logger *zap.Logger) *HibernationController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HibernationController{
		cooldown: cooldown,
		tick:     defaultCountdownTick,
		logger:   logger,
	}
}

// Cooldown reports the configured sleep duration.
func (h *HibernationController) Cooldown() time.Duration {
	return h.cooldown
}

// Wait blocks for the full cooldown or until the context finishes. It
// returns the context error when interrupted so shutdown is not mistaken
// for a completed cooldown.
func (h *HibernationController) Wait(ctx context.Context) error {
	if h.cooldown <= 0 {
		return ctx.Err()
	}
	deadline := time.Now().Add(h.cooldown)
	h.logger.Warn("hibernating after hard block", zap.Duration("cooldown", h.cooldown))

	timer := time.NewTimer(h.cooldown)
	defer timer.Stop()
	ticker := time.NewTicker(h.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			h.logger.Info("hibernation complete")
			return nil
		case <-ticker.C:
			h.logger.Info("hibernation countdown",
				zap.Duration("remaining", time.Until(deadline).Round(time.Second)))
		}
	}
}
