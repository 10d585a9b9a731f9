// Package handlers provides HTTP handlers for the gopipeline server.
//
// Each handler is in its own file and implements http.Handler.
// Handlers use interfaces to access server dependencies, avoiding
// circular imports.
package handlers

import (
	"context"
	"time"

	"github.com/nomis52/gopipeline/config"
	"github.com/nomis52/gopipeline/history"
	"github.com/nomis52/gopipeline/runner"
)

// ConfigProvider provides access to the current configuration.
type ConfigProvider interface {
	Config() *config.Config
}

// PipelineRunner can start pipeline runs.
type PipelineRunner interface {
	Start(ctx context.Context, name string) error
}

// StatusProvider provides access to pipeline run status.
type StatusProvider interface {
	Status(name string) runner.RunStatus
	Statuses() []runner.RunStatus
}

// HistoryProvider provides access to finished runs.
type HistoryProvider interface {
	History(ctx context.Context, limit int) ([]history.Run, error)
}

// RunGetter looks up a single finished run.
type RunGetter interface {
	Get(ctx context.Context, id string) (history.Run, error)
}

// NextRunProvider reports the next scheduled run, or nil if nothing is
// scheduled.
type NextRunProvider interface {
	NextRun() *time.Time
}
