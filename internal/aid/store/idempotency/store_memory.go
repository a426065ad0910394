package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the single-node fallback when Redis is not configured.
type MemoryStore struct {
	mu   sync.Mutex
	keys map[string]time.Time
}

func NewMemory() *MemoryStore {
	return &MemoryStore{keys: make(map[string]time.Time)}
}

func (s *MemoryStore) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if expiry, ok := s.keys[key]; ok && now.Before(expiry) {
		return false, nil
	}
	s.keys[key] = now.Add(ttl)
	return true, nil
}
