package nonce

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store with an in-process map. Used in tests
// and dev mode; nonces are short-lived enough that losing them on
// restart only forces a re-challenge.
type MemoryStore struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]time.Time // challenge key -> expiry
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a memory-backed nonce store. ttl of zero
// means DefaultTTL; now may be nil for the wall clock.
func NewMemoryStore(ttl time.Duration, now func() time.Time) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{ttl: ttl, now: now, entries: make(map[string]time.Time)}
}

func (s *MemoryStore) Generate(_ context.Context, agentID string) (string, error) {
	value, err := newValue()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.sweepLocked()
	s.entries[challengeKey(agentID, value)] = s.now().Add(s.ttl)
	s.mu.Unlock()
	return value, nil
}

func (s *MemoryStore) Validate(_ context.Context, agentID, value string) (bool, error) {
	key := challengeKey(agentID, value)

	s.mu.Lock()
	expiry, ok := s.entries[key]
	// Consumed or expired nonces become unobservable immediately.
	delete(s.entries, key)
	s.mu.Unlock()

	valid := ok && s.now().Before(expiry)
	recordValidation(valid)
	return valid, nil
}

// sweepLocked drops expired entries so the map does not grow without
// bound under agents that never validate. Caller holds s.mu.
func (s *MemoryStore) sweepLocked() {
	now := s.now()
	for key, expiry := range s.entries {
		if !now.Before(expiry) {
			delete(s.entries, key)
		}
	}
}

func (s *MemoryStore) Close() error { return nil }
