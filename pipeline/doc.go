// Package pipeline composes ordered processing steps that share a mutable
// state value and decide, one by one, whether the rest of the chain runs.
//
// It is the in-process analogue of an HTTP middleware stack without any
// transport attached: a Builder accumulates steps, Build folds them into a
// single continuation, and Pipeline.Invoke runs that continuation.
//
// # Steps
//
// A step is one of:
//
//   - a Component, activated per traversal by the builder's Activator
//     (UseComponent) or supplied as a ready instance (UseInstance)
//   - an inline HandlerFunc (UseFunc)
//   - a raw Installer (Use), which is not instrumented
//
// Every step receives the continuation for the steps after it:
//
//	b := pipeline.NewBuilder[*Order]()
//	b.UseFunc(func(ctx context.Context, o *Order, next pipeline.Next[*Order]) error {
//	    if o.Total == 0 {
//	        return nil // short-circuit: nothing after this step runs
//	    }
//	    return next(ctx, o)
//	})
//	pipeline.UseComponent[*Charge](b)
//	err := b.BuildAndInvoke(ctx, order)
//
// Steps run in the order they were added. Build folds from the last step to
// the first, so the first step added becomes the outermost wrapper.
//
// # Activation
//
// Component steps ask the Activator for an instance every time they are
// reached. DefaultActivator allocates a fresh zero value, which makes
// default pipelines safe to invoke concurrently. A registry-backed activator
// (see package injector) can hand out configured instances instead. The
// activator must be chosen before the first step is added; SetActivator
// returns a *ConfigurationError otherwise.
//
// If activation fails the invocation ends with an *ActivationError naming
// the declared type, and no events are dispatched for that step.
//
// # Events
//
// Observers registered with AddObserver are notified around every
// instrumented step:
//
//	success: BeforeInvoked -> AfterSucceeded -> AfterInvoked
//	failure: BeforeInvoked -> AfterFailed -> AfterInvoked -> error returned
//
// A single *Event is reused across the phases of one step, so observers can
// correlate phases by pointer. Observers may be limited to specific kinds.
//
// Observer errors are never dropped. An error during BeforeInvoked stops the
// step from running. Errors in later phases are returned, joined with the
// step's own error when there is one.
//
// # Cancellation
//
// The context passed to Invoke reaches every step and every observer
// unchanged. The core never inspects it; honouring cancellation is up to
// step authors.
package pipeline
