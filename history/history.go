// Package history records completed pipeline runs.
//
// Three stores are provided: MemoryStore for tests and one-shot CLI runs,
// DiskStore which keeps one JSON file per run, and SQLiteStore for
// long-running servers.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/nomis52/gopipeline/logging"
)

// DefaultMaxRuns bounds the runs kept by MemoryStore and DiskStore.
const DefaultMaxRuns = 100

// ErrNotFound is returned by Get for unknown run ids.
var ErrNotFound = errors.New("run not found")

// StepRecord is the outcome of one executed step.
type StepRecord struct {
	Module    string             `json:"module"`
	Type      string             `json:"type"`
	StartedAt time.Time          `json:"started_at"`
	EndedAt   *time.Time         `json:"ended_at,omitempty"`
	Error     string             `json:"error,omitempty"`
	Status    string             `json:"status,omitempty"`
	Logs      []logging.LogEntry `json:"logs,omitempty"`
}

// Run is one invocation of a named pipeline.
type Run struct {
	ID            string       `json:"id"`
	Pipeline      string       `json:"pipeline"`
	CorrelationID string       `json:"correlation_id,omitempty"`
	Trigger       string       `json:"trigger,omitempty"`
	StartedAt     time.Time    `json:"started_at"`
	EndedAt       *time.Time   `json:"ended_at,omitempty"`
	Error         string       `json:"error,omitempty"`
	Steps         []StepRecord `json:"steps,omitempty"`
}

// NewRun starts a Run record with a fresh id.
func NewRun(pipeline, trigger string, startedAt time.Time) Run {
	return Run{
		ID:        uuid.NewString(),
		Pipeline:  pipeline,
		Trigger:   trigger,
		StartedAt: startedAt,
	}
}

// Succeeded reports whether the run finished without error.
func (r Run) Succeeded() bool {
	return r.EndedAt != nil && r.Error == ""
}

// Duration is zero until the run has ended.
func (r Run) Duration() time.Duration {
	if r.EndedAt == nil {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// Store persists runs. Runs are returned most recent first.
type Store interface {
	Save(ctx context.Context, run Run) error
	// Runs returns up to limit runs; a non-positive limit returns all.
	Runs(ctx context.Context, limit int) ([]Run, error)
	Get(ctx context.Context, id string) (Run, error)
}

func validate(run Run) error {
	if run.ID == "" {
		return errors.New("cannot save run without id")
	}
	if run.StartedAt.IsZero() {
		return errors.New("cannot save run without start time")
	}
	return nil
}

func limitRuns(runs []Run, limit int) []Run {
	if limit > 0 && len(runs) > limit {
		return runs[:limit]
	}
	return runs
}
