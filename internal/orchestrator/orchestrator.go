// Package orchestrator owns the outer harvest loop: rescan durable state,
// cut the next chunk, run it, and react to the outcome by adjusting pace
// or hibernating.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mlefevre/steamharvest/internal/governor"
	"github.com/mlefevre/steamharvest/internal/harvest"
	"github.com/mlefevre/steamharvest/internal/progress"
)

// ChunkRunner executes one chunk of identifiers through the pipeline.
type ChunkRunner interface {
	RunChunk(ctx context.Context, ids []harvest.Identifier) error
}

// Governor is the orchestrator-facing slice of the rate governor.
type Governor interface {
	AssessAndAdjust()
	Reset()
	Snapshot() governor.Status
}

// Hibernator sleeps off a hard block.
type Hibernator interface {
	Cooldown() time.Duration
	Wait(ctx context.Context) error
}

// Config wires an Orchestrator.
type Config struct {
	// Universe is the full identifier set discovered from the catalog.
	Universe map[harvest.Identifier]struct{}
	// ChunkSize caps how many identifiers run between assessments.
	ChunkSize int
	// RunID tags progress events for this run.
	RunID [16]byte
}

// Orchestrator drives chunks until the universe is exhausted or the
// context is cancelled. Resume state is recomputed from durable output
// before every chunk, so a crash between chunks loses nothing.
type Orchestrator struct {
	cfg      Config
	tracker  harvest.WorkTracker
	runner   ChunkRunner
	governor Governor
	sink     harvest.RecordSink
	hib      Hibernator
	emitter  progress.Emitter
	logger   *zap.Logger
}

// New assembles an Orchestrator. emitter and logger may be nil.
func New(
	cfg Config,
	tracker harvest.WorkTracker,
	runner ChunkRunner,
	gov Governor,
	sink harvest.RecordSink,
	hib Hibernator,
	emitter progress.Emitter,
	logger *zap.Logger,
) *Orchestrator {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:      cfg,
		tracker:  tracker,
		runner:   runner,
		governor: gov,
		sink:     sink,
		hib:      hib,
		emitter:  emitter,
		logger:   logger,
	}
}

// Run executes the harvest loop to completion. It returns nil once every
// identifier in the universe has a persisted record, or the first
// unrecoverable error. Pending records are flushed before returning.
func (o *Orchestrator) Run(ctx context.Context) error {
	remaining, err := o.remaining()
	if err != nil {
		return err
	}
	o.logger.Info("harvest starting",
		zap.Int("universe", len(o.cfg.Universe)),
		zap.Int("remaining", len(remaining)),
	)
	o.emit(progress.Event{Stage: progress.StageHarvestStart, Remaining: len(remaining)})

	for len(remaining) > 0 {
		chunk := remaining
		if len(chunk) > o.cfg.ChunkSize {
			chunk = chunk[:o.cfg.ChunkSize]
		}
		st := o.governor.Snapshot()
		o.logger.Info("chunk starting",
			zap.Int("remaining", len(remaining)),
			zap.Int("chunk_size", len(chunk)),
			zap.String("state", string(st.State)),
			zap.Int("concurrency", st.Concurrency),
			zap.Duration("delay", st.Delay),
			zap.Float64("rate_limited_pct", st.RateLimitedPct),
		)
		o.emitStatus(progress.StageChunkStart, len(remaining), len(chunk), st)

		runErr := o.runner.RunChunk(ctx, chunk)
		// Records from a partial chunk are kept; only then is resume
		// state recomputed.
		if err := o.sink.FlushAll(); err != nil {
			return fmt.Errorf("flush after chunk: %w", err)
		}

		switch {
		case runErr == nil:
			o.governor.AssessAndAdjust()
			st = o.governor.Snapshot()
			o.emitStatus(progress.StageChunkDone, len(remaining)-len(chunk), len(chunk), st)
		case errors.Is(runErr, harvest.ErrHardBlocked):
			if err := o.hibernate(ctx, runErr); err != nil {
				return err
			}
		default:
			return runErr
		}

		if remaining, err = o.remaining(); err != nil {
			return err
		}
	}

	o.logger.Info("harvest complete", zap.Int("universe", len(o.cfg.Universe)))
	o.emit(progress.Event{Stage: progress.StageHarvestDone})
	return nil
}

// hibernate sleeps off a hard block and resets the pacer to its floor so
// the next chunks probe the remote gently.
func (o *Orchestrator) hibernate(ctx context.Context, cause error) error {
	o.logger.Warn("hard block detected", zap.Error(cause))
	o.emit(progress.Event{
		Stage:    progress.StageHibernate,
		Cooldown: o.hib.Cooldown(),
		Note:     cause.Error(),
	})
	o.governor.Reset()
	if err := o.hib.Wait(ctx); err != nil {
		return fmt.Errorf("hibernation interrupted: %w", err)
	}
	o.emit(progress.Event{Stage: progress.StageResume})
	return nil
}

// remaining rescans durable output and returns the sorted set of
// identifiers without a persisted record.
func (o *Orchestrator) remaining() ([]harvest.Identifier, error) {
	processed, err := o.tracker.ScanProcessed()
	if err != nil {
		return nil, fmt.Errorf("scan processed: %w", err)
	}
	pending := make(map[harvest.Identifier]struct{}, len(o.cfg.Universe))
	for id := range o.cfg.Universe {
		if _, ok := processed[id]; !ok {
			pending[id] = struct{}{}
		}
	}
	return harvest.Sorted(pending), nil
}

func (o *Orchestrator) emit(evt progress.Event) {
	if o.emitter == nil {
		return
	}
	evt.RunID = o.cfg.RunID
	evt.TS = time.Now().UTC()
	o.emitter.Emit(evt)
}

func (o *Orchestrator) emitStatus(stage progress.Stage, remaining, chunkSize int, st governor.Status) {
	o.emit(progress.Event{
		Stage:          stage,
		Remaining:      remaining,
		ChunkSize:      chunkSize,
		State:          string(st.State),
		Concurrency:    st.Concurrency,
		Delay:          st.Delay,
		RateLimitedPct: st.RateLimitedPct,
	})
}
