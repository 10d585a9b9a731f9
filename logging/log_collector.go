package logging

import (
	"maps"
	"slices"
	"sync"
	"time"
)

// DefaultMaxEntries bounds the records kept per component.
const DefaultMaxEntries = 500

// LogEntry is one captured record.
type LogEntry struct {
	Time       time.Time      `json:"time"`
	Level      string         `json:"level"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// LogCollector stores captured records per component key. It is safe for
// concurrent use. Once a component holds MaxEntries records the oldest are
// dropped.
type LogCollector struct {
	mu         sync.RWMutex
	logs       map[string][]LogEntry
	maxEntries int
}

// NewLogCollector creates a collector that keeps up to maxEntries records per
// component. A non-positive value selects DefaultMaxEntries.
func NewLogCollector(maxEntries int) *LogCollector {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &LogCollector{
		logs:       make(map[string][]LogEntry),
		maxEntries: maxEntries,
	}
}

// AddLog records entry for key.
func (c *LogCollector) AddLog(key string, entry LogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	logs := append(c.logs[key], entry)
	if over := len(logs) - c.maxEntries; over > 0 {
		logs = slices.Delete(logs, 0, over)
	}
	c.logs[key] = logs
}

// GetLogs returns a copy of the records for key.
func (c *LogCollector) GetLogs(key string) []LogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.logs[key])
}

// GetAllLogs returns a copy of every record grouped by key.
func (c *LogCollector) GetAllLogs() map[string][]LogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string][]LogEntry, len(c.logs))
	for key, logs := range c.logs {
		result[key] = slices.Clone(logs)
	}
	return result
}

// Keys returns the component keys that have records, sorted.
func (c *LogCollector) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Sorted(maps.Keys(c.logs))
}

// Drain returns and removes every record.
func (c *LogCollector) Drain() map[string][]LogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	logs := c.logs
	c.logs = make(map[string][]LogEntry)
	return logs
}

// Clear removes every record.
func (c *LogCollector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logs = make(map[string][]LogEntry)
}
