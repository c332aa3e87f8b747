package memory

import (
	"context"
	"sync"

	"stocklab/internal/domain"
	"stocklab/internal/storage"
)

// ResultStore is an in-memory implementation of storage.ResultStore.
type ResultStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Statistics // keyed by run_id
}

// NewResultStore creates a new in-memory result store.
func NewResultStore() *ResultStore {
	return &ResultStore{data: make(map[string]*domain.Statistics)}
}

// Insert adds a run's statistics. Returns ErrDuplicateKey if recorded.
func (s *ResultStore) Insert(_ context.Context, stats *domain.Statistics) error {
	if stats == nil || stats.RunID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[stats.RunID]; exists {
		return storage.ErrDuplicateKey
	}

	cp := *stats
	s.data[stats.RunID] = &cp
	return nil
}

// GetByRunID retrieves a run's statistics. Returns ErrNotFound if unknown.
func (s *ResultStore) GetByRunID(_ context.Context, runID string) (*domain.Statistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats, exists := s.data[runID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	cp := *stats
	return &cp, nil
}

var _ storage.ResultStore = (*ResultStore)(nil)
