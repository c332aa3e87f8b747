package memory

import (
	"context"
	"sync"
	"time"

	"stocklab/internal/domain"
	"stocklab/internal/storage"
)

type statementKey struct {
	code string
	asOf int64
}

// StatementStore is an in-memory implementation of storage.StatementStore.
type StatementStore struct {
	mu   sync.RWMutex
	data map[statementKey]*domain.Statement
}

// NewStatementStore creates a new in-memory statement store.
func NewStatementStore() *StatementStore {
	return &StatementStore{data: make(map[statementKey]*domain.Statement)}
}

// Insert adds a statement. Returns ErrDuplicateKey on (code, as_of).
func (s *StatementStore) Insert(_ context.Context, st *domain.Statement) error {
	if st == nil || st.Code == "" || st.AsOf.IsZero() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := statementKey{code: st.Code, asOf: domain.Midnight(st.AsOf).Unix()}
	if _, exists := s.data[k]; exists {
		return storage.ErrDuplicateKey
	}

	cp := *st
	cp.AsOf = domain.Midnight(st.AsOf)
	s.data[k] = &cp
	return nil
}

// LatestAsOf retrieves the most recent statement published at or before the
// date. Returns ErrNotFound if none.
func (s *StatementStore) LatestAsOf(_ context.Context, code string, date time.Time) (*domain.Statement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	day := domain.Midnight(date)

	var best *domain.Statement
	for _, st := range s.data {
		if st.Code != code || st.AsOf.After(day) {
			continue
		}
		if best == nil || st.AsOf.After(best.AsOf) {
			best = st
		}
	}
	if best == nil {
		return nil, storage.ErrNotFound
	}

	cp := *best
	return &cp, nil
}

var _ storage.StatementStore = (*StatementStore)(nil)
