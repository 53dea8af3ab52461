// Package attributes keeps the attributes and problem indicators a
// reconciler publishes, for the CLI and other in-process observers.
package attributes

import (
	"maps"
	"slices"
	"sync"
)

// Store is a concurrency-safe lb.AttributeSink. A key that was published with
// a nil value is present but not valid, which is distinct from a key that was
// never published.
type Store struct {
	mu       sync.RWMutex
	values   map[string]any
	problems map[string]string
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		values:   make(map[string]any),
		problems: make(map[string]string),
	}
}

func (s *Store) Publish(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

func (s *Store) SetProblem(key, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.problems[key] = message
}

func (s *Store) ClearProblem(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.problems, key)
}

// Get returns the value for key and whether it was ever published.
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// String returns the value for key if it is a non-nil string.
func (s *Store) String(key string) string {
	v, _ := s.Get(key)
	str, _ := v.(string)
	return str
}

// Strings returns the value for key if it is a non-nil string slice.
func (s *Store) Strings(key string) []string {
	v, _ := s.Get(key)
	ss, _ := v.([]string)
	return slices.Clone(ss)
}

// Problem returns the problem message for key, if one is set.
func (s *Store) Problem(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.problems[key]
	return msg, ok
}

// Problems returns a copy of all problem indicators.
func (s *Store) Problems() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.problems)
}

// Snapshot returns a copy of every published attribute.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.values)
}

// Keys returns the published attribute names in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.values))
}
