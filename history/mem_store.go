package history

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// MemoryStore keeps run history in memory only.
type MemoryStore struct {
	maxCount int

	mu   sync.Mutex
	runs []Run // most recent first
}

// NewMemoryStore creates a store holding at most maxCount runs. A
// non-positive value selects DefaultMaxRuns.
func NewMemoryStore(maxCount int) *MemoryStore {
	if maxCount <= 0 {
		maxCount = DefaultMaxRuns
	}
	return &MemoryStore{maxCount: maxCount}
}

// Save records run, evicting the oldest run when full. Saving an id that is
// already stored replaces it.
func (s *MemoryStore) Save(_ context.Context, run Run) error {
	if err := validate(run); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs = slices.DeleteFunc(s.runs, func(r Run) bool { return r.ID == run.ID })
	s.runs = slices.Insert(s.runs, 0, run)
	slices.SortStableFunc(s.runs, byStartDesc)
	if len(s.runs) > s.maxCount {
		s.runs = s.runs[:s.maxCount]
	}
	return nil
}

// Runs returns stored runs, most recent first.
func (s *MemoryStore) Runs(_ context.Context, limit int) ([]Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(limitRuns(s.runs, limit)), nil
}

// Get returns the run with the given id.
func (s *MemoryStore) Get(_ context.Context, id string) (Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.runs {
		if r.ID == id {
			return r, nil
		}
	}
	return Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func byStartDesc(a, b Run) int {
	return b.StartedAt.Compare(a.StartedAt)
}
