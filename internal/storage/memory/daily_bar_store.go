// Package memory provides in-memory store implementations used by tests
// and by fully self-contained simulation runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"stocklab/internal/domain"
	"stocklab/internal/storage"
)

type barKey struct {
	code string
	day  int64
}

// DailyBarStore is an in-memory implementation of storage.DailyBarStore.
type DailyBarStore struct {
	mu   sync.RWMutex
	data map[barKey]*domain.DailyBar
}

// NewDailyBarStore creates a new in-memory daily bar store.
func NewDailyBarStore() *DailyBarStore {
	return &DailyBarStore{data: make(map[barKey]*domain.DailyBar)}
}

// InsertBulk adds bars. Fails the whole batch on a duplicate (code, date).
func (s *DailyBarStore) InsertBulk(_ context.Context, bars []*domain.DailyBar) error {
	if len(bars) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make(map[barKey]struct{}, len(bars))
	for _, b := range bars {
		if b == nil || b.Code == "" || b.Date.IsZero() {
			return storage.ErrInvalidInput
		}
		k := barKey{code: b.Code, day: domain.Midnight(b.Date).Unix()}
		if _, exists := s.data[k]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batch[k]; exists {
			return storage.ErrDuplicateKey
		}
		batch[k] = struct{}{}
	}

	for _, b := range bars {
		cp := *b
		cp.Date = domain.Midnight(b.Date)
		s.data[barKey{code: b.Code, day: cp.Date.Unix()}] = &cp
	}
	return nil
}

// GetSeries retrieves one stock's bars within [from, to], ordered by date ASC.
func (s *DailyBarStore) GetSeries(_ context.Context, code string, from, to time.Time) ([]*domain.DailyBar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fromDay := domain.Midnight(from)
	toDay := domain.Midnight(to)

	var result []*domain.DailyBar
	for _, b := range s.data {
		if b.Code != code || b.Date.Before(fromDay) || b.Date.After(toDay) {
			continue
		}
		cp := *b
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Date.Before(result[j].Date)
	})
	return result, nil
}

// GetByDate retrieves all bars for one date, ordered by code ASC.
func (s *DailyBarStore) GetByDate(_ context.Context, date time.Time) ([]*domain.DailyBar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	day := domain.Midnight(date)

	var result []*domain.DailyBar
	for _, b := range s.data {
		if !b.Date.Equal(day) {
			continue
		}
		cp := *b
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Code < result[j].Code
	})
	return result, nil
}

// TradingDates returns distinct dates with any bar in [from, to], ordered ASC.
func (s *DailyBarStore) TradingDates(_ context.Context, from, to time.Time) ([]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fromDay := domain.Midnight(from)
	toDay := domain.Midnight(to)

	seen := make(map[int64]time.Time)
	for _, b := range s.data {
		if b.Date.Before(fromDay) || b.Date.After(toDay) {
			continue
		}
		seen[b.Date.Unix()] = b.Date
	}

	result := make([]time.Time, 0, len(seen))
	for _, d := range seen {
		result = append(result, d)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Before(result[j]) })
	return result, nil
}

var _ storage.DailyBarStore = (*DailyBarStore)(nil)
