// Package catalog discovers the universe of identifiers to harvest from
// the externally produced catalog file, and maintains an id cache so
// re-discovery is a policy choice instead of a fixed behavior.
package catalog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/mlefevre/steamharvest/internal/harvest"
)

// appIDPattern extracts the app id from a store URL of the form
// .../app/12345/....
var appIDPattern = regexp.MustCompile(`/app/(\d+)/`)

// Config locates the catalog and the id cache.
type Config struct {
	SourcePath string
	CachePath  string
	// Refresh forces re-discovery from the source even when a cache
	// file exists.
	Refresh bool
}

// catalogEntry is the slice of the discovery output this package needs;
// the field name matches the external producer's records.
type catalogEntry struct {
	URL string `json:"URL"`
}

// LoadUniverse returns the full identifier universe. When a cache file
// exists and Refresh is false it is reused; otherwise the catalog is
// parsed and the cache rewritten. An empty universe is a fatal
// configuration error for the caller.
func LoadUniverse(cfg Config, logger *zap.Logger) (map[harvest.Identifier]struct{}, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if !cfg.Refresh && cfg.CachePath != "" {
		cached, err := loadIDs(cfg.CachePath)
		if err != nil {
			return nil, err
		}
		if len(cached) > 0 {
			logger.Info("identifier cache loaded",
				zap.String("path", cfg.CachePath),
				zap.Int("ids", len(cached)),
			)
			return cached, nil
		}
	}

	universe, err := Discover(cfg.SourcePath)
	if err != nil {
		return nil, err
	}
	logger.Info("catalog discovery complete",
		zap.String("path", cfg.SourcePath),
		zap.Int("ids", len(universe)),
	)

	if cfg.CachePath != "" {
		if err := saveIDs(cfg.CachePath, universe); err != nil {
			return nil, err
		}
	}
	return universe, nil
}

// Discover parses the catalog file and extracts every unique app id
// from the entries' URLs.
func Discover(sourcePath string) (map[harvest.Identifier]struct{}, error) {
	raw, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", sourcePath, err)
	}
	var entries []catalogEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode catalog %s: %w", sourcePath, err)
	}

	universe := make(map[harvest.Identifier]struct{})
	for _, entry := range entries {
		m := appIDPattern.FindStringSubmatch(entry.URL)
		if m == nil {
			continue
		}
		id, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		universe[harvest.Identifier(id)] = struct{}{}
	}
	if len(universe) == 0 {
		return nil, fmt.Errorf("catalog %s yielded no identifiers", sourcePath)
	}
	return universe, nil
}

func saveIDs(path string, ids map[harvest.Identifier]struct{}) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create cache dir %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create id cache %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	for _, id := range harvest.Sorted(ids) {
		fmt.Fprintf(w, "%d\n", id)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write id cache %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close id cache %s: %w", path, err)
	}
	return nil
}

// loadIDs reads the cache file, one id per line, skipping anything that
// does not parse. A missing cache is an empty set, not an error.
func loadIDs(path string) (map[harvest.Identifier]struct{}, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[harvest.Identifier]struct{}{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open id cache %s: %w", path, err)
	}
	defer f.Close()

	ids := make(map[harvest.Identifier]struct{})
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		id, err := strconv.ParseInt(strings.TrimSpace(scanner.Text()), 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		ids[harvest.Identifier(id)] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan id cache %s: %w", path, err)
	}
	return ids, nil
}
