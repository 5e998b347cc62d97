// Package configuration holds per-mode driver configuration options.
//
// A session owns one Store per working mode. Stores never share state:
// Snapshot and Get hand out copies of slices and maps so a caller cannot
// alias the store's contents.
package configuration

import (
	"maps"
	"slices"
	"sync"
)

// Well-known option names.
const (
	OptionImplicitWait  = "implicitWait"
	OptionPageLoad      = "pageLoadTimeout"
	OptionScriptTimeout = "scriptTimeout"
	OptionAutoAccept    = "autoAcceptAlerts"
)

// Store maps option names to values.
type Store struct {
	mu      sync.RWMutex
	options map[string]interface{}
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{options: make(map[string]interface{})}
}

// Get returns the value for name.
func (s *Store) Get(name string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.options[name]
	return cloneValue(v), ok
}

// GetOr returns the value for name, or def when unset.
func (s *Store) GetOr(name string, def interface{}) interface{} {
	if v, ok := s.Get(name); ok {
		return v
	}
	return def
}

// Set stores value under name.
func (s *Store) Set(name string, value interface{}) {
	s.mu.Lock()
	s.options[name] = cloneValue(value)
	s.mu.Unlock()
}

// SetAll stores every entry of values.
func (s *Store) SetAll(values map[string]interface{}) {
	s.mu.Lock()
	for k, v := range values {
		s.options[k] = cloneValue(v)
	}
	s.mu.Unlock()
}

// Delete removes name.
func (s *Store) Delete(name string) {
	s.mu.Lock()
	delete(s.options, name)
	s.mu.Unlock()
}

// Len returns the number of options set.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.options)
}

// Keys returns the option names in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.options))
}

// Snapshot returns a copy of all options.
func (s *Store) Snapshot() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]interface{}, len(s.options))
	for k, v := range s.options {
		out[k] = cloneValue(v)
	}
	return out
}

// cloneValue copies the container types produced by JSON decoding.
func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, inner := range t {
			out[k] = cloneValue(inner)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, inner := range t {
			out[i] = cloneValue(inner)
		}
		return out
	case []string:
		return slices.Clone(t)
	default:
		return v
	}
}
