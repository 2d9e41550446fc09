package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/mlefevre/steamharvest/internal/harvest"
	"github.com/mlefevre/steamharvest/internal/progress"
)

func newTestSink(t *testing.T) *PrometheusSink {
	t.Helper()
	sink, err := NewPrometheusSink(prometheus.NewRegistry())
	require.NoError(t, err)
	return sink
}

func testEvent(stage progress.Stage) progress.Event {
	return progress.Event{
		RunID: progress.UUIDToBytes(uuid.New()),
		TS:    time.Now().UTC(),
		Stage: stage,
	}
}

// TestPrometheusSinkFetchOutcomes verifies outcome counters partition by class.
func TestPrometheusSinkFetchOutcomes(t *testing.T) {
	t.Parallel()

	sink := newTestSink(t)
	batch := []progress.Event{}
	for _, outcome := range []harvest.Outcome{
		harvest.OutcomeSuccess,
		harvest.OutcomeSuccess,
		harvest.OutcomeRateLimited,
		harvest.OutcomeTransientFailure,
	} {
		evt := testEvent(progress.StageFetchDone)
		evt.AppID = 10
		evt.Outcome = outcome
		batch = append(batch, evt)
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 2.0, testutil.ToFloat64(sink.fetchOutcomes.WithLabelValues(string(harvest.OutcomeSuccess))))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.fetchOutcomes.WithLabelValues(string(harvest.OutcomeRateLimited))))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.fetchOutcomes.WithLabelValues(string(harvest.OutcomeTransientFailure))))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.fetchOutcomes.WithLabelValues(string(harvest.OutcomeHardBlocked))))
}

// TestPrometheusSinkPacingGauges verifies chunk events update the pacing gauges.
func TestPrometheusSinkPacingGauges(t *testing.T) {
	t.Parallel()

	sink := newTestSink(t)
	evt := testEvent(progress.StageChunkStart)
	evt.Remaining = 900
	evt.ChunkSize = 100
	evt.State = "THROTTLED"
	evt.Concurrency = 5
	evt.Delay = 4 * time.Second
	evt.RateLimitedPct = 12.5
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{evt}))

	require.Equal(t, 900.0, testutil.ToFloat64(sink.remaining))
	require.Equal(t, 5.0, testutil.ToFloat64(sink.concurrency))
	require.Equal(t, 4.0, testutil.ToFloat64(sink.delaySeconds))
	require.Equal(t, 12.5, testutil.ToFloat64(sink.rateLimitedPct))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.pacingState.WithLabelValues("THROTTLED")))

	// A state change clears the previous label.
	evt.State = "OPTIMIZING"
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{evt}))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.pacingState.WithLabelValues("OPTIMIZING")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.pacingState.WithLabelValues("THROTTLED")))
}

// TestPrometheusSinkLifecycleCounters verifies chunk and hibernation counters.
func TestPrometheusSinkLifecycleCounters(t *testing.T) {
	t.Parallel()

	sink := newTestSink(t)
	hib := testEvent(progress.StageHibernate)
	hib.Cooldown = 30 * time.Minute
	batch := []progress.Event{
		testEvent(progress.StageChunkDone),
		testEvent(progress.StageChunkDone),
		hib,
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 2.0, testutil.ToFloat64(sink.chunksDone))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.hibernations))
}

// TestPrometheusSinkDoubleRegister ensures a shared registry rejects a second sink.
func TestPrometheusSinkDoubleRegister(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
