package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mlefevre/steamharvest/internal/progress"
)

// PrometheusSink exports harvest progress metrics via Prometheus. It owns all
// collectors for fetch outcomes, pacing state, and hibernation cycles.
type PrometheusSink struct {
	fetchOutcomes *prometheus.CounterVec
	chunksDone    prometheus.Counter
	hibernations  prometheus.Counter

	remaining      prometheus.Gauge
	concurrency    prometheus.Gauge
	delaySeconds   prometheus.Gauge
	rateLimitedPct prometheus.Gauge
	pacingState    *prometheus.GaugeVec
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		fetchOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvest_fetch_outcomes_total",
			Help: "Fetch completions partitioned by outcome class.",
		}, []string{"outcome"}),
		chunksDone: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvest_chunks_completed_total",
			Help: "Total chunks that ran to completion.",
		}),
		hibernations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvest_hibernations_total",
			Help: "Total hibernation cycles triggered by hard blocks.",
		}),
		remaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "harvest_remaining_apps",
			Help: "Apps still awaiting a persisted record.",
		}),
		concurrency: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "harvest_concurrency",
			Help: "Current worker limit chosen by the pacer.",
		}),
		delaySeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "harvest_delay_seconds",
			Help: "Current base inter-request delay chosen by the pacer.",
		}),
		rateLimitedPct: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "harvest_rate_limited_pct",
			Help: "Rate-limited share of the recent outcome window.",
		}),
		pacingState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "harvest_pacing_state",
			Help: "Current pacing state; the active state reports 1.",
		}, []string{"state"}),
	}
	for _, collector := range []prometheus.Collector{
		s.fetchOutcomes,
		s.chunksDone,
		s.hibernations,
		s.remaining,
		s.concurrency,
		s.delaySeconds,
		s.rateLimitedPct,
		s.pacingState,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageFetchDone:
		s.fetchOutcomes.WithLabelValues(string(evt.Outcome)).Inc()
	case progress.StageChunkStart:
		s.observePacing(evt)
	case progress.StageChunkDone:
		s.chunksDone.Inc()
		s.observePacing(evt)
	case progress.StageHibernate:
		s.hibernations.Inc()
	case progress.StageHarvestStart, progress.StageHarvestDone:
		s.remaining.Set(float64(evt.Remaining))
	}
}

func (s *PrometheusSink) observePacing(evt progress.Event) {
	s.remaining.Set(float64(evt.Remaining))
	s.concurrency.Set(float64(evt.Concurrency))
	s.delaySeconds.Set(evt.Delay.Seconds())
	s.rateLimitedPct.Set(evt.RateLimitedPct)
	if evt.State != "" {
		s.pacingState.Reset()
		s.pacingState.WithLabelValues(evt.State).Set(1)
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
