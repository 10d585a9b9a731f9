package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

// DiskStore keeps one JSON file per run in a directory and an in-memory
// index of the most recent runs.
type DiskStore struct {
	dir      string
	logger   *slog.Logger
	maxCount int

	mu   sync.Mutex
	runs []Run // most recent first
}

// NewDiskStore creates the directory if needed and loads existing runs.
// Unreadable run files are logged and skipped.
func NewDiskStore(dir string, maxCount int, logger *slog.Logger) (*DiskStore, error) {
	if maxCount <= 0 {
		maxCount = DefaultMaxRuns
	}
	s := &DiskStore{
		dir:      dir,
		logger:   logger,
		maxCount: maxCount,
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Save writes run to disk and updates the index. Files beyond maxCount are
// removed.
func (s *DiskStore) Save(_ context.Context, run Run) error {
	if err := validate(run); err != nil {
		return err
	}

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(run)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write run file: %w", err)
	}

	s.runs = slices.DeleteFunc(s.runs, func(r Run) bool { return r.ID == run.ID })
	s.runs = slices.Insert(s.runs, 0, run)
	slices.SortStableFunc(s.runs, byStartDesc)
	for len(s.runs) > s.maxCount {
		oldest := s.runs[len(s.runs)-1]
		if err := os.Remove(s.path(oldest)); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove old run file", "run_id", oldest.ID, "error", err)
		}
		s.runs = s.runs[:len(s.runs)-1]
	}

	s.logger.Debug("saved run to disk", "path", path)
	return nil
}

// Runs returns indexed runs, most recent first.
func (s *DiskStore) Runs(_ context.Context, limit int) ([]Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(limitRuns(s.runs, limit)), nil
}

// Get returns the run with the given id.
func (s *DiskStore) Get(_ context.Context, id string) (Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.runs {
		if r.ID == id {
			return r, nil
		}
	}
	return Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Reload re-reads the directory.
func (s *DiskStore) Reload() error {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to read history directory: %w", err)
	}

	var runs []Run
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}
		path := filepath.Join(s.dir, file.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("failed to read run file", "file", path, "error", err)
			continue
		}
		var run Run
		if err := json.Unmarshal(data, &run); err != nil {
			s.logger.Warn("failed to parse run file", "file", path, "error", err)
			continue
		}
		if validate(run) != nil {
			s.logger.Warn("skipping incomplete run file", "file", path)
			continue
		}
		runs = append(runs, run)
	}

	slices.SortStableFunc(runs, byStartDesc)
	runs = limitRuns(runs, s.maxCount)

	s.mu.Lock()
	s.runs = runs
	s.mu.Unlock()

	s.logger.Info("loaded run history from disk", "count", len(runs))
	return nil
}

// path names files by start time so a directory listing sorts by age.
func (s *DiskStore) path(run Run) string {
	return filepath.Join(s.dir, run.StartedAt.UTC().Format("2006-01-02T15-04-05.000")+"_"+run.ID+".json")
}
