// Package statusreporter tracks a short, human-readable status per pipeline
// component while a run is in progress.
//
// The runner creates a *StatusReporter per run, feeds it lifecycle events
// and stores it in the run's context, so the status shows both
// "running"/"succeeded" markers and whatever detail components report
// themselves:
//
//	func (u *Upload) Process(ctx context.Context, s *state.Bag, next pipeline.Next[*state.Bag]) error {
//	    if r, ok := statusreporter.FromContext(ctx); ok {
//	        r.SetStatus(u, "uploading 3 files")
//	    }
//	    ...
//	}
//
// All methods are safe for concurrent use.
package statusreporter

import (
	"log/slog"
	"reflect"

	"github.com/nomis52/gopipeline/pipeline"
)

// StatusReporter records status messages keyed by component.
type StatusReporter struct {
	collection *StatusCollection
	logger     *slog.Logger
}

// New creates a StatusReporter. Every status change is logged at Info level.
func New(logger *slog.Logger) *StatusReporter {
	return &StatusReporter{
		collection: NewStatusCollection(),
		logger:     logger,
	}
}

// SetStatus records status for component, identified by its type.
func (r *StatusReporter) SetStatus(component any, status string) {
	r.Line(pipeline.IDOf(reflect.TypeOf(component))).Set(status)
}

// Line returns a StatusLine for id that writes into this reporter.
func (r *StatusReporter) Line(id pipeline.ComponentID) *StatusLine {
	return NewStatusLine(id, r.logger, r.collection)
}

// Status returns the current status of id, or "" if none was set.
func (r *StatusReporter) Status(id pipeline.ComponentID) string {
	return r.collection.Get(id)
}

// CurrentStatuses returns every status keyed by the full component id.
func (r *StatusReporter) CurrentStatuses() map[string]string {
	all := r.collection.All()
	out := make(map[string]string, len(all))
	for id, status := range all {
		out[id.String()] = status
	}
	return out
}

// Reset forgets every status.
func (r *StatusReporter) Reset() {
	r.collection.Clear()
}
