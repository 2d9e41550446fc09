// Package progress defines the event structures emitted during a harvest run.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mlefevre/steamharvest/internal/harvest"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageHarvestStart Stage = "HARVEST_START"
	StageChunkStart   Stage = "CHUNK_START"
	StageChunkDone    Stage = "CHUNK_DONE"
	StageFetchDone    Stage = "FETCH_DONE"
	StageHibernate    Stage = "HIBERNATE"
	StageResume       Stage = "RESUME"
	StageHarvestDone  Stage = "HARVEST_DONE"
)

// Event captures a single milestone of harvest progress.
type Event struct {
	// RunID uniquely identifies a harvest run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle milestone occurred.
	Stage Stage
	// AppID scopes fetch events to a single app.
	AppID harvest.Identifier
	// Outcome classifies a completed fetch attempt.
	Outcome harvest.Outcome
	// Remaining is the number of unprocessed apps at chunk boundaries.
	Remaining int
	// ChunkSize is the number of apps in the current chunk.
	ChunkSize int
	// State is the pacing state label in effect for the chunk.
	State string
	// Concurrency is the worker limit in effect for the chunk.
	Concurrency int
	// Delay is the base inter-request delay in effect for the chunk.
	Delay time.Duration
	// RateLimitedPct is the rate-limited share of the recent outcome window.
	RateLimitedPct float64
	// Cooldown carries the sleep duration for hibernate events.
	Cooldown time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageHarvestStart, StageChunkStart, StageChunkDone, StageHarvestDone, StageResume:
	case StageFetchDone:
		if e.Outcome == "" {
			return errors.New("fetch done requires an outcome")
		}
	case StageHibernate:
		if e.Cooldown <= 0 {
			return errors.New("hibernate requires a cooldown")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID for display.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
