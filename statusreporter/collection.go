package statusreporter

import (
	"maps"
	"sync"

	"github.com/nomis52/gopipeline/pipeline"
)

// StatusCollection stores the latest status message per component.
type StatusCollection struct {
	statuses map[pipeline.ComponentID]string
	mu       sync.RWMutex
}

// NewStatusCollection creates an empty collection.
func NewStatusCollection() *StatusCollection {
	return &StatusCollection{
		statuses: make(map[pipeline.ComponentID]string),
	}
}

// Set records status for id.
func (sc *StatusCollection) Set(id pipeline.ComponentID, status string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.statuses[id] = status
}

// Get returns the status for id, or "" if none was recorded.
func (sc *StatusCollection) Get(id pipeline.ComponentID) string {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.statuses[id]
}

// All returns a copy of every status.
func (sc *StatusCollection) All() map[pipeline.ComponentID]string {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return maps.Clone(sc.statuses)
}

// Clear removes every status. The runner calls it at the start of a run.
func (sc *StatusCollection) Clear() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	clear(sc.statuses)
}
