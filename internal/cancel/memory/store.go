// Package memory provides an in-process cancellation signal store for tests
// and single-binary runs.
package memory

import (
	"context"
	"sync"
	"time"
)

// Store keeps signals in a map.
type Store struct {
	mu      sync.RWMutex
	signals map[string]time.Time
}

// New creates an empty Store.
func New() *Store {
	return &Store{signals: make(map[string]time.Time)}
}

// Create records a signal.
func (s *Store) Create(_ context.Context, token string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals[token] = at
	return nil
}

// Lookup returns the signal's creation time.
func (s *Store) Lookup(_ context.Context, token string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	at, ok := s.signals[token]
	return at, ok, nil
}

// Delete removes a signal.
func (s *Store) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.signals, token)
	return nil
}

// Sweep removes signals created before cutoff.
func (s *Store) Sweep(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for token, at := range s.signals {
		if at.Before(cutoff) {
			delete(s.signals, token)
			removed++
		}
	}
	return removed, nil
}
