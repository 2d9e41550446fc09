// Package worker runs the bounded-concurrency pipeline for one chunk of
// identifiers: pace, fetch, extract, validate, persist.
package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mlefevre/steamharvest/internal/harvest"
	"github.com/mlefevre/steamharvest/internal/progress"
)

// Pool drives a chunk of identifiers through the pipeline stages. The
// concurrency limit and per-request delay come from the pacer and are
// sampled once per chunk and once per request respectively.
type Pool struct {
	fetcher   harvest.Fetcher
	extractor harvest.Extractor
	validator harvest.Validator
	sink      harvest.RecordSink
	pacer     harvest.Pacer
	emitter   progress.Emitter
	runID     [16]byte
	logger    *zap.Logger
}

// New assembles a Pool from its pipeline stages. logger and emitter may
// be nil; every other dependency is required.
func New(
	fetcher harvest.Fetcher,
	extractor harvest.Extractor,
	validator harvest.Validator,
	sink harvest.RecordSink,
	pacer harvest.Pacer,
	emitter progress.Emitter,
	runID [16]byte,
	logger *zap.Logger,
) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		fetcher:   fetcher,
		extractor: extractor,
		validator: validator,
		sink:      sink,
		pacer:     pacer,
		emitter:   emitter,
		runID:     runID,
		logger:    logger,
	}
}

// RunChunk processes the given identifiers with at most the pacer's
// current concurrency in flight. Rate limits and transient failures are
// absorbed per identifier; a hard block cancels the in-flight chunk and
// is returned wrapped around harvest.ErrHardBlocked. Every outcome is
// reported to the pacer before the chunk returns.
func (p *Pool) RunChunk(ctx context.Context, ids []harvest.Identifier) error {
	if len(ids) == 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.pacer.Concurrency())
	for _, id := range ids {
		if gctx.Err() != nil {
			break
		}
		id := id
		g.Go(func() error {
			if err := harvest.Pause(gctx, p.pacer.Delay()); err != nil {
				return err
			}
			return p.processOne(gctx, id)
		})
	}
	return g.Wait()
}

func (p *Pool) processOne(ctx context.Context, id harvest.Identifier) error {
	bundle, err := p.fetcher.Fetch(ctx, id)
	if ctx.Err() != nil && err != nil {
		// A cancelled sibling drags the rest of the chunk down with it;
		// those failures say nothing about the remote and stay out of
		// the outcome window.
		return ctx.Err()
	}
	outcome := harvest.Classify(err)
	p.pacer.Record(outcome)
	p.emitFetch(id, outcome, err)

	switch outcome {
	case harvest.OutcomeHardBlocked:
		return fmt.Errorf("app %d: %w", id, err)
	case harvest.OutcomeRateLimited:
		p.logger.Warn("rate limited", zap.Int64("app_id", int64(id)))
		return nil
	case harvest.OutcomeTransientFailure:
		p.logger.Warn("fetch failed", zap.Int64("app_id", int64(id)), zap.Error(err))
		return nil
	}

	rec, err := p.extractor.Extract(id, bundle)
	if err != nil {
		p.logger.Warn("extraction failed", zap.Int64("app_id", int64(id)), zap.Error(err))
		return nil
	}
	if rec == nil {
		p.logger.Debug("no store data", zap.Int64("app_id", int64(id)))
		return nil
	}
	rec.ValidationError = p.validator.Validate(rec)
	if err := p.sink.Enqueue(rec); err != nil {
		return fmt.Errorf("persist app %d: %w", id, err)
	}
	return nil
}

func (p *Pool) emitFetch(id harvest.Identifier, outcome harvest.Outcome, err error) {
	if p.emitter == nil {
		return
	}
	evt := progress.Event{
		RunID:   p.runID,
		TS:      time.Now().UTC(),
		Stage:   progress.StageFetchDone,
		AppID:   id,
		Outcome: outcome,
	}
	if err != nil {
		evt.Note = err.Error()
	}
	p.emitter.Emit(evt)
}
