package memory

import (
	"context"
	"sort"
	"sync"

	"stocklab/internal/domain"
	"stocklab/internal/storage"
)

type snapshotKey struct {
	runID string
	day   int64
}

// SnapshotStore is an in-memory implementation of storage.SnapshotStore.
type SnapshotStore struct {
	mu   sync.RWMutex
	data map[snapshotKey]*domain.Snapshot
}

// NewSnapshotStore creates a new in-memory snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{data: make(map[snapshotKey]*domain.Snapshot)}
}

// InsertBulk adds snapshots. Fails the whole batch on a duplicate (run_id, date).
func (s *SnapshotStore) InsertBulk(_ context.Context, snapshots []*domain.Snapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make(map[snapshotKey]struct{}, len(snapshots))
	for _, snap := range snapshots {
		if snap == nil || snap.RunID == "" || snap.Date.IsZero() {
			return storage.ErrInvalidInput
		}
		k := snapshotKey{runID: snap.RunID, day: domain.Midnight(snap.Date).Unix()}
		if _, exists := s.data[k]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batch[k]; exists {
			return storage.ErrDuplicateKey
		}
		batch[k] = struct{}{}
	}

	for _, snap := range snapshots {
		cp := *snap
		s.data[snapshotKey{runID: snap.RunID, day: domain.Midnight(snap.Date).Unix()}] = &cp
	}
	return nil
}

// GetByRunID retrieves a run's snapshots ordered by date ASC.
func (s *SnapshotStore) GetByRunID(_ context.Context, runID string) ([]*domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Snapshot
	for _, snap := range s.data {
		if snap.RunID == runID {
			cp := *snap
			result = append(result, &cp)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Date.Before(result[j].Date)
	})
	return result, nil
}

var _ storage.SnapshotStore = (*SnapshotStore)(nil)
