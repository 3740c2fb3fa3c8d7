// Package registry tracks which instances are live in this process.
package registry

import (
	"slices"
	"sync"
)

// Registry maps instance identifiers to live entries. All methods are safe for
// concurrent use; Add is the check-and-insert used to keep one entry per id.
type Registry[T any] struct {
	mu      sync.RWMutex
	entries map[string]T
}

// New creates an empty registry.
func New[T any]() *Registry[T] {
	return &Registry[T]{entries: make(map[string]T)}
}

// Has reports whether id is live.
func (r *Registry[T]) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[id]
	return ok
}

// Get returns the entry for id.
func (r *Registry[T]) Get(id string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

// Set stores an entry, replacing any existing one.
func (r *Registry[T]) Set(id string, e T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = e
}

// Add stores an entry only if id is absent. It reports whether it was stored.
func (r *Registry[T]) Add(id string, e T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; ok {
		return false
	}
	r.entries[id] = e
	return true
}

// Delete removes id and returns the removed entry.
func (r *Registry[T]) Delete(id string) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	delete(r.entries, id)
	return e, ok
}

// DeleteIf removes id only when match accepts the current entry, so a stale
// owner cannot remove a newer entry registered under the same id.
func (r *Registry[T]) DeleteIf(id string, match func(T) bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || !match(e) {
		return false
	}
	delete(r.entries, id)
	return true
}

// List returns the live identifiers in sorted order.
func (r *Registry[T]) List() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

// Len returns the number of live entries.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
