package observe

import (
	"context"
	"fmt"

	"github.com/nomis52/gopipeline/pipeline"
	"github.com/nomis52/gopipeline/statusreporter"
)

// Status values written by the Status observer.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
)

// Status returns an observer that keeps reporter's entry for each step up to
// date: "running", "succeeded" or "failed: <error>". A status the component
// set itself while running is kept on success.
func Status[T any](reporter *statusreporter.StatusReporter) pipeline.Observer[T] {
	return pipeline.ObserverFunc[T](func(_ context.Context, ev *pipeline.Event[T]) error {
		line := reporter.Line(ev.ID)
		switch ev.Kind {
		case pipeline.BeforeInvoked:
			line.Set(StatusRunning)
		case pipeline.AfterSucceeded:
			if reporter.Status(ev.ID) == StatusRunning {
				line.Set(StatusSucceeded)
			}
		case pipeline.AfterFailed:
			line.Set(fmt.Sprintf("failed: %v", ev.Err))
		}
		return nil
	})
}
