package statusreporter

import "context"

type contextKey struct{}

// NewContext returns a copy of ctx carrying r. The runner uses it to hand
// each run's reporter to the components of that run.
func NewContext(ctx context.Context, r *StatusReporter) context.Context {
	return context.WithValue(ctx, contextKey{}, r)
}

// FromContext returns the reporter stored by NewContext, if any.
func FromContext(ctx context.Context) (*StatusReporter, bool) {
	r, ok := ctx.Value(contextKey{}).(*StatusReporter)
	return r, ok && r != nil
}
