// Package memory implements store.Store with an in-process map.
//
// It backs component tests and `loomd serve --dev`, where running a
// real PostgreSQL instance is not worth the ceremony. Semantics match
// the postgres implementation: single-key atomicity, key-ordered
// prefix scans, all-or-nothing PutMany.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/loomworks/loom/internal/store"
)

// MemoryStore implements store.Store in memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*store.Record

	// failNext, when set, makes every operation fail with the given
	// error until cleared. Tests use it to simulate storage outages.
	failNext error
}

var _ store.Store = (*MemoryStore)(nil)

// New creates an empty in-memory store.
func New() *MemoryStore {
	return &MemoryStore{records: make(map[string]*store.Record)}
}

// FailWith makes subsequent operations return err; pass nil to restore
// normal operation.
func (s *MemoryStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

func (s *MemoryStore) Get(_ context.Context, key string) (*store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failNext != nil {
		return nil, s.failNext
	}
	rec, ok := s.records[key]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) Put(_ context.Context, rec *store.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext != nil {
		return s.failNext
	}
	cp := *rec
	s.records[rec.Key] = &cp
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext != nil {
		return s.failNext
	}
	delete(s.records, key)
	return nil
}

func (s *MemoryStore) ListByPrefix(_ context.Context, prefix string) ([]*store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failNext != nil {
		return nil, s.failNext
	}
	var recs []*store.Record
	for key, rec := range s.records {
		if strings.HasPrefix(key, prefix) {
			cp := *rec
			recs = append(recs, &cp)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Key < recs[j].Key })
	return recs, nil
}

func (s *MemoryStore) PutMany(_ context.Context, recs []*store.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext != nil {
		return s.failNext
	}
	for _, rec := range recs {
		cp := *rec
		s.records[rec.Key] = &cp
	}
	return nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
