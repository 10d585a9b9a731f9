// Package state provides Bag, a general-purpose pipeline state value.
//
// Pipelines accept any state type; Bag is a convenience for pipelines that
// do not need a dedicated struct. Each Bag carries a correlation id so that
// log lines and run records from one invocation can be tied together.
package state

import (
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// Bag is a concurrency-safe key/value store with a correlation id.
type Bag struct {
	correlationID string

	mu     sync.RWMutex
	values map[string]any
}

// New creates an empty Bag with a random correlation id.
func New() *Bag {
	return NewWithID(uuid.NewString())
}

// NewWithID creates an empty Bag with the given correlation id.
func NewWithID(correlationID string) *Bag {
	return &Bag{
		correlationID: correlationID,
		values:        make(map[string]any),
	}
}

// CorrelationID returns the id assigned when the Bag was created.
func (b *Bag) CorrelationID() string {
	return b.correlationID
}

// Set stores v under key, replacing any previous value.
func (b *Bag) Set(key string, v any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[key] = v
}

// Get returns the value stored under key.
func (b *Bag) Get(key string) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.values[key]
	return v, ok
}

// Delete removes key.
func (b *Bag) Delete(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.values, key)
}

// Keys returns the stored keys in sorted order.
func (b *Bag) Keys() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Sorted(maps.Keys(b.values))
}

// Snapshot returns a copy of the stored values.
func (b *Bag) Snapshot() map[string]any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return maps.Clone(b.values)
}

// Value returns the value under key if it is present and of type V.
// Missing keys, nil values and mismatched types all yield the zero V and false.
func Value[V any](b *Bag, key string) (V, bool) {
	var zero V
	v, ok := b.Get(key)
	if !ok || v == nil {
		return zero, false
	}
	typed, ok := v.(V)
	if !ok {
		return zero, false
	}
	return typed, true
}

// Append appends s to the string stored under key, treating a missing
// key as the empty string. It returns the new value.
func Append(b *Bag, key, s string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	current, _ := b.values[key].(string)
	current += s
	b.values[key] = current
	return current
}
