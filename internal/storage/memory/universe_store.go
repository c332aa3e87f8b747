package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"stocklab/internal/domain"
	"stocklab/internal/storage"
)

// UniverseStore is an in-memory implementation of storage.UniverseStore.
type UniverseStore struct {
	mu   sync.RWMutex
	rows []storage.Membership
}

// NewUniverseStore creates a new in-memory universe store.
func NewUniverseStore() *UniverseStore {
	return &UniverseStore{}
}

// Insert adds a membership row.
func (s *UniverseStore) Insert(_ context.Context, m *storage.Membership) error {
	if m == nil || m.Code == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *m
	cp.ValidFrom = domain.Midnight(m.ValidFrom)
	if !m.ValidTo.IsZero() {
		cp.ValidTo = domain.Midnight(m.ValidTo)
	}
	s.rows = append(s.rows, cp)
	return nil
}

// Members returns codes matching the filter and valid on the date, sorted
// ASC. An explicit ticker whitelist intersects the membership result.
func (s *UniverseStore) Members(_ context.Context, filter domain.UniverseFilter, date time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	day := domain.Midnight(date)

	var whitelist map[string]struct{}
	if len(filter.Tickers) > 0 {
		whitelist = make(map[string]struct{}, len(filter.Tickers))
		for _, t := range filter.Tickers {
			whitelist[t] = struct{}{}
		}
	}

	set := make(map[string]struct{})
	for _, m := range s.rows {
		if filter.Theme != "" && m.Theme != filter.Theme {
			continue
		}
		if filter.Universe != "" && m.Universe != filter.Universe {
			continue
		}
		if m.ValidFrom.After(day) {
			continue
		}
		if !m.ValidTo.IsZero() && m.ValidTo.Before(day) {
			continue
		}
		if whitelist != nil {
			if _, ok := whitelist[m.Code]; !ok {
				continue
			}
		}
		set[m.Code] = struct{}{}
	}

	result := make([]string, 0, len(set))
	for c := range set {
		result = append(result, c)
	}
	sort.Strings(result)
	return result, nil
}

var _ storage.UniverseStore = (*UniverseStore)(nil)
