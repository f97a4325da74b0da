package store

import (
	"sort"
	"sync"

	"github.com/betbot/copytrader/internal/domain"
)

// MemoryStore keeps everything in process memory. Used when no durable
// path is configured; dedup then resets on restart, which the engine logs
// as a degraded mode at startup.
type MemoryStore struct {
	mu    sync.RWMutex
	execs map[string]domain.ExecutionRecord
	snaps map[string]domain.Snapshot
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		execs: make(map[string]domain.ExecutionRecord),
		snaps: make(map[string]domain.Snapshot),
	}
}

// HasExecution mirrors the badger semantics: a Failed record does not block
// another attempt.
func (s *MemoryStore) HasExecution(key domain.ExecutionKey) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.execs[key.String()]
	if !ok {
		return false, nil
	}
	return rec.Outcome == domain.OutcomeSuccess, nil
}

// GetExecution returns the stored record for key, nil when none exists.
func (s *MemoryStore) GetExecution(key domain.ExecutionKey) (*domain.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.execs[key.String()]
	if !ok {
		return nil, nil
	}
	out := rec
	return &out, nil
}

func (s *MemoryStore) SaveExecution(rec domain.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.execs[rec.Key.String()] = rec
	return nil
}

func (s *MemoryStore) ListExecutions(limit int) ([]domain.ExecutionRecord, error) {
	s.mu.RLock()
	records := make([]domain.ExecutionRecord, 0, len(s.execs))
	for _, rec := range s.execs {
		records = append(records, rec)
	}
	s.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].ExecutedAt.After(records[j].ExecutedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (s *MemoryStore) SaveSnapshot(snap domain.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[snap.Source] = snap
	return nil
}

func (s *MemoryStore) LoadSnapshot(source string) (*domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snaps[source]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
