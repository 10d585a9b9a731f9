package runner

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nomis52/gopipeline/history"
)

// RunState represents whether a pipeline is running.
type RunState int

const (
	// RunStateIdle indicates no run is in progress.
	RunStateIdle RunState = iota
	// RunStateRunning indicates a run is in progress.
	RunStateRunning
)

// String returns the string representation of the run state.
func (s RunState) String() string {
	switch s {
	case RunStateIdle:
		return "idle"
	case RunStateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler.
func (s RunState) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *RunState) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	switch str {
	case "idle":
		*s = RunStateIdle
	case "running":
		*s = RunStateRunning
	default:
		return fmt.Errorf("unknown run state %q", str)
	}
	return nil
}

// RunStatus describes the current or last run of one pipeline.
type RunStatus struct {
	Pipeline string   `json:"pipeline"`
	State    RunState `json:"state"`
	// RunID is empty if the pipeline has not run since startup.
	RunID         string     `json:"run_id,omitempty"`
	CorrelationID string     `json:"correlation_id,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	// EndedAt is nil while running.
	EndedAt *time.Time `json:"ended_at,omitempty"`
	// Error contains the error message if the run failed.
	Error string `json:"error,omitempty"`
	// Steps holds live step results while running and final ones afterwards.
	Steps []history.StepRecord `json:"steps,omitempty"`
}
