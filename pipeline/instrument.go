package pipeline

import (
	"context"
	"errors"
	"runtime/debug"
)

// instrument runs process between the lifecycle events of ev, which must be
// in the BeforeInvoked phase.
//
// Success: BeforeInvoked, AfterSucceeded, AfterInvoked.
// Failure: BeforeInvoked, AfterFailed, AfterInvoked, then the step error.
// Panic: as failure with a *PanicError on the event, then the panic resumes.
//
// An observer error in BeforeInvoked prevents the step from running. The
// observers that had already seen BeforeInvoked then get AfterFailed and
// AfterInvoked carrying that error, so per-step state they opened is closed.
// Later observer errors are joined with the step error so it stays reachable.
func (d *dispatcher[T]) instrument(ctx context.Context, ev *Event[T], process func() error) (err error) {
	if len(d.observers) == 0 {
		return process()
	}

	if n, obsErr := dispatchTo(ctx, ev, d.observers); obsErr != nil {
		started := d.observers[:n]
		ev.Err = obsErr
		ev.Kind = AfterFailed
		_, _ = dispatchTo(ctx, ev, started)
		ev.Kind = AfterInvoked
		_, _ = dispatchTo(ctx, ev, started)
		return obsErr
	}

	completed := false
	defer func() {
		if completed {
			return
		}
		r := recover()
		if r == nil {
			// runtime.Goexit; nothing to report.
			return
		}
		ev.Err = &PanicError{Value: r, Stack: debug.Stack()}
		ev.Kind = AfterFailed
		_ = d.dispatch(ctx, ev)
		ev.Kind = AfterInvoked
		_ = d.dispatch(ctx, ev)
		panic(r)
	}()

	err = process()
	completed = true

	if err != nil {
		ev.Err = err
		ev.Kind = AfterFailed
		if obsErr := d.dispatch(ctx, ev); obsErr != nil {
			err = errors.Join(err, obsErr)
		}
	} else {
		ev.Kind = AfterSucceeded
		if obsErr := d.dispatch(ctx, ev); obsErr != nil {
			err = obsErr
		}
	}

	ev.Kind = AfterInvoked
	if obsErr := d.dispatch(ctx, ev); obsErr != nil {
		if err == nil {
			err = obsErr
		} else {
			err = errors.Join(err, obsErr)
		}
	}
	return err
}
