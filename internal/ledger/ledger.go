// Package ledger persists structured records to append-only JSONL files
// and recovers the set of already-processed identifiers by scanning
// them. The files are the only resume state: a killed process restarts
// from exactly what reached disk.
package ledger

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/mlefevre/steamharvest/internal/harvest"
)

// Config locates the two record stores and sets the flush threshold.
type Config struct {
	ValidPath      string
	InvalidPath    string
	BatchThreshold int
}

// Ledger buffers records in two tag-separated batches and appends them
// to durable JSONL files. Append and flush run under one mutex so a
// flush never observes a half-appended batch. A given identifier can in
// principle land in both files when runs overlap; ScanProcessed unions
// the two sets, so the duplicate is tolerated rather than prevented.
type Ledger struct {
	mu      sync.Mutex
	cfg     Config
	valid   []*harvest.Record
	invalid []*harvest.Record
	logger  *zap.Logger
}

// New creates the ledger, ensuring the output directories exist.
func New(cfg Config, logger *zap.Logger) (*Ledger, error) {
	if cfg.BatchThreshold <= 0 {
		cfg.BatchThreshold = 50
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, p := range []string{cfg.ValidPath, cfg.InvalidPath} {
		if dir := filepath.Dir(p); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("create ledger dir %s: %w", dir, err)
			}
		}
	}
	return &Ledger{cfg: cfg, logger: logger}, nil
}

// Enqueue appends the record to the batch matching its validity tag and
// flushes that batch once it reaches the threshold.
func (l *Ledger) Enqueue(rec *harvest.Record) error {
	if rec == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if rec.Valid() {
		l.valid = append(l.valid, rec)
		if len(l.valid) >= l.cfg.BatchThreshold {
			return l.flushLocked(&l.valid, l.cfg.ValidPath)
		}
		return nil
	}
	l.invalid = append(l.invalid, rec)
	if len(l.invalid) >= l.cfg.BatchThreshold {
		return l.flushLocked(&l.invalid, l.cfg.InvalidPath)
	}
	return nil
}

// FlushAll writes both batches to disk regardless of size. Called at
// hibernation and shutdown. Flushing empty batches is a no-op.
func (l *Ledger) FlushAll() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.flushLocked(&l.valid, l.cfg.ValidPath); err != nil {
		return err
	}
	return l.flushLocked(&l.invalid, l.cfg.InvalidPath)
}

// Pending reports the number of buffered, not yet durable records.
func (l *Ledger) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.valid) + len(l.invalid)
}

func (l *Ledger) flushLocked(batch *[]*harvest.Record, path string) error {
	if len(*batch) == 0 {
		return nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("open ledger %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	for _, rec := range *batch {
		line, err := json.Marshal(rec)
		if err != nil {
			f.Close()
			return fmt.Errorf("marshal record %d: %w", rec.AppID, err)
		}
		w.Write(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write ledger %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close ledger %s: %w", path, err)
	}
	l.logger.Debug("ledger batch flushed",
		zap.String("path", path),
		zap.Int("records", len(*batch)),
	)
	// Cleared only after the write succeeded; a failed flush keeps the
	// batch for the next attempt.
	*batch = (*batch)[:0]
	return nil
}

// ScanProcessed reads both ledger files and returns the union of
// identifiers present. Missing files yield an empty set; malformed
// lines and lines without an app_id are skipped.
func (l *Ledger) ScanProcessed() (map[harvest.Identifier]struct{}, error) {
	processed := make(map[harvest.Identifier]struct{})
	for _, path := range []string{l.cfg.ValidPath, l.cfg.InvalidPath} {
		if err := scanFile(path, processed); err != nil {
			return nil, err
		}
	}
	return processed, nil
}

// Counts reports the number of unique identifiers in each ledger file.
func (l *Ledger) Counts() (int, int, error) {
	valid := make(map[harvest.Identifier]struct{})
	if err := scanFile(l.cfg.ValidPath, valid); err != nil {
		return 0, 0, err
	}
	invalid := make(map[harvest.Identifier]struct{})
	if err := scanFile(l.cfg.InvalidPath, invalid); err != nil {
		return 0, 0, err
	}
	return len(valid), len(invalid), nil
}

func scanFile(path string, into map[harvest.Identifier]struct{}) error {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open ledger %s: %w", path, err)
	}
	defer f.Close()

	type idLine struct {
		AppID harvest.Identifier `json:"app_id"`
	}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var line idLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			continue
		}
		if line.AppID > 0 {
			into[line.AppID] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan ledger %s: %w", path, err)
	}
	return nil
}
