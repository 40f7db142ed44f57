// Package stubs holds canned command results that answer a command without
// reaching the host. One Store lives in the server process; the debug client
// keeps its own.
package stubs

import (
	"sort"
	"sync"
)

// Entry is one stubbed command and the result returned for it.
type Entry struct {
	Command string      `json:"command" yaml:"command"`
	Result  interface{} `json:"result" yaml:"result"`
}

// Store maps command names to canned results. Every method takes the same
// lock, so add, remove and resolve never interleave.
type Store struct {
	mu      sync.Mutex
	entries map[string]interface{}
	enabled bool
}

// NewStore returns an empty, enabled store.
func NewStore() *Store {
	return &Store{entries: make(map[string]interface{}), enabled: true}
}

// Add inserts or overwrites the stub for name. Names are not checked against
// the command registry, so commands the host does not implement yet can be
// prototyped.
func (s *Store) Add(name string, result interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[name] = result
}

// Remove deletes the stub for name and reports whether one existed.
func (s *Store) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[name]
	delete(s.entries, name)
	return ok
}

// List returns all stubs sorted by command name.
func (s *Store) List() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.entries))
	for name, result := range s.entries {
		out = append(out, Entry{Command: name, Result: result})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Command < out[j].Command })
	return out
}

// Clear removes every stub. The enabled flag is left as is.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]interface{})
}

// Len returns the number of stubs.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// SetEnabled turns stub resolution on or off.
func (s *Store) SetEnabled(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = on
}

// Enabled reports whether stubs are resolved.
func (s *Store) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Toggle flips the enabled flag and returns the new value.
func (s *Store) Toggle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = !s.enabled
	return s.enabled
}

// Resolve returns the canned result for name when the store is enabled and a
// stub exists. A stub whose result is JSON null still resolves.
func (s *Store) Resolve(name string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled {
		return nil, false
	}
	result, ok := s.entries[name]
	return result, ok
}
