// Package keystore provides a generic thread-safe keyed store.
//
// It is used for the Wasm component cache: one compiled component per
// absolute override-file path, read-mostly after warm-up. Readers never
// block writers and vice versa beyond the critical section; a write lock
// is only taken to insert, never held across compilation.
package keystore

import "sync"

// Store is a generic single-writer/multi-reader keyed store.
type Store[T any] struct {
	items map[string]T
	mu    sync.RWMutex
}

// New creates an empty Store.
func New[T any]() *Store[T] {
	return &Store[T]{}
}

// Get retrieves the item for key, if present.
func (s *Store[T]) Get(key string) (_ T, ok bool) {
	s.mu.RLock()
	v, ok := s.items[key]
	s.mu.RUnlock()
	return v, ok
}

// Put inserts or overwrites the item for key. Safe to call concurrently
// for the same key from multiple goroutines that raced past a Get miss;
// the last write wins, which is an accepted outcome for this store.
func (s *Store[T]) Put(key string, item T) {
	s.mu.Lock()
	if s.items == nil {
		s.items = make(map[string]T)
	}
	s.items[key] = item
	s.mu.Unlock()
}

// Len returns the number of stored items.
func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Keys returns a snapshot of all stored keys.
func (s *Store[T]) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.items))
	for k := range s.items {
		keys = append(keys, k)
	}
	return keys
}
