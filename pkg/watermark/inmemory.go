package watermark

import (
	"context"
	"sync"
)

// InMemoryStore keeps the watermark in process memory. It is used in tests and
// when no durable backend is configured.
type InMemoryStore struct {
	mu    sync.RWMutex
	nanos int64
}

// NewInMemoryStore creates a store seeded with the given value.
func NewInMemoryStore(initial int64) *InMemoryStore {
	return &InMemoryStore{nanos: initial}
}

// Load returns the current value.
func (s *InMemoryStore) Load(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nanos, nil
}

// Save replaces the current value.
func (s *InMemoryStore) Save(_ context.Context, nanos int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nanos = nanos
	return nil
}
