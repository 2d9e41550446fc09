package harvest

import (
	"context"
	"time"
)

// Fetcher retrieves the three resources for one identifier. The returned
// error, if any, is classified by Classify; a wrapped ErrHardBlocked
// aborts the current chunk.
type Fetcher interface {
	Fetch(ctx context.Context, id Identifier) (Bundle, error)
}

// Extractor turns raw payloads into a structured record. A nil record
// with a nil error means the payloads carried no usable data; the
// identifier stays remaining.
type Extractor interface {
	Extract(id Identifier, bundle Bundle) (*Record, error)
}

// Validator checks a record against the output schema. A nil issue means
// the record is valid.
type Validator interface {
	Validate(rec *Record) *ValidationIssue
}

// RecordSink accepts finished records for durable persistence. Enqueue
// may trigger a batch flush; FlushAll persists everything pending
// regardless of batch size.
type RecordSink interface {
	Enqueue(rec *Record) error
	FlushAll() error
}

// WorkTracker recovers the set of identifiers already persisted, by
// scanning durable output. Called before every chunk so that resume
// state never depends on process memory.
type WorkTracker interface {
	ScanProcessed() (map[Identifier]struct{}, error)
}

// Pacer is the worker-facing slice of the rate governor: per-request
// delay, the chunk's concurrency budget, and outcome feedback. Record
// must be safe for concurrent use.
type Pacer interface {
	Record(outcome Outcome)
	Delay() time.Duration
	Concurrency() int
}
