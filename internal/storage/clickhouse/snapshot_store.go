package clickhouse

import (
	"context"
	"fmt"
	"time"

	"stocklab/internal/domain"
	"stocklab/internal/storage"
)

// SnapshotStore implements storage.SnapshotStore using ClickHouse.
type SnapshotStore struct {
	conn *Conn
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(conn *Conn) *SnapshotStore {
	return &SnapshotStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// InsertBulk adds snapshots. Fails the whole batch on a duplicate
// (run_id, date).
func (s *SnapshotStore) InsertBulk(ctx context.Context, snapshots []*domain.Snapshot) (err error) {
	start := time.Now()
	defer func() { observe("snapshot_insert_bulk", start, err) }()

	if len(snapshots) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	type key struct {
		runID string
		day   int64
	}
	seen := make(map[key]struct{}, len(snapshots))
	for _, sn := range snapshots {
		if sn == nil || sn.RunID == "" || sn.Date.IsZero() {
			return storage.ErrInvalidInput
		}
		k := key{sn.RunID, domain.Midnight(sn.Date).Unix()}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	// Check for duplicates against existing DB rows
	for _, sn := range snapshots {
		exists, err := s.exists(ctx, sn.RunID, domain.Midnight(sn.Date))
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO snapshots (
			run_id, date, cash, position_value, total_value,
			daily_return, cum_return, position_count
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, sn := range snapshots {
		err = batch.Append(
			sn.RunID, domain.Midnight(sn.Date), sn.Cash, sn.PositionValue,
			sn.TotalValue, sn.DailyReturn, sn.CumReturn,
			uint32(sn.PositionCount),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err = batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByRunID retrieves a run's snapshots ordered by date ASC.
func (s *SnapshotStore) GetByRunID(ctx context.Context, runID string) (snapshots []*domain.Snapshot, err error) {
	start := time.Now()
	defer func() { observe("snapshot_get_by_run", start, err) }()

	query := `
		SELECT run_id, date, cash, position_value, total_value,
		       daily_return, cum_return, position_count
		FROM snapshots
		WHERE run_id = ?
		ORDER BY date ASC
	`

	rows, err := s.conn.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	snapshots = make([]*domain.Snapshot, 0)
	for rows.Next() {
		sn := &domain.Snapshot{}
		var positionCount uint32
		err = rows.Scan(
			&sn.RunID, &sn.Date, &sn.Cash, &sn.PositionValue,
			&sn.TotalValue, &sn.DailyReturn, &sn.CumReturn, &positionCount,
		)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		sn.Date = domain.Midnight(sn.Date)
		sn.PositionCount = int(positionCount)
		snapshots = append(snapshots, sn)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}

	return snapshots, nil
}

// exists checks if a snapshot with the given key exists.
func (s *SnapshotStore) exists(ctx context.Context, runID string, date time.Time) (bool, error) {
	query := `
		SELECT count(*) FROM snapshots
		WHERE run_id = ? AND date = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, runID, date).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
