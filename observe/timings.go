package observe

import (
	"sync"
	"time"
)

// timings tracks per-event start times. Events are keyed by pointer, which
// is stable across the phases of one step.
type timings[K comparable] struct {
	mu     sync.Mutex
	starts map[K]time.Time
	now    func() time.Time
}

func newTimings[K comparable]() *timings[K] {
	return &timings[K]{starts: make(map[K]time.Time), now: time.Now}
}

func (t *timings[K]) start(k K) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.starts[k] = t.now()
}

// elapsed returns the time since start(k) without forgetting k.
func (t *timings[K]) elapsed(k K) (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	started, ok := t.starts[k]
	if !ok {
		return 0, false
	}
	return t.now().Sub(started), true
}

func (t *timings[K]) forget(k K) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.starts, k)
}

func (t *timings[K]) pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.starts)
}
