package statusreporter

import (
	"fmt"
)

// RecordError runs f and, if it fails, records the error as the component's
// status before returning it.
//
//	func (u *Upload) Process(ctx context.Context, s *state.Bag, next pipeline.Next[*state.Bag]) error {
//	    return statusreporter.RecordError(u, u.Status, func() error {
//	        ...
//	    })
//	}
func RecordError(component any, sr *StatusReporter, f func() error) error {
	if err := f(); err != nil {
		sr.SetStatus(component, fmt.Sprintf("failed: %v", err))
		return err
	}
	return nil
}
