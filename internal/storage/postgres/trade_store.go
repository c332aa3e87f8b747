package postgres

import (
	"context"
	"fmt"
	"time"

	"stocklab/internal/domain"
	"stocklab/internal/storage"
)

// TradeStore is a Postgres implementation of storage.TradeStore.
type TradeStore struct {
	pool *Pool
}

// NewTradeStore creates a new trade store.
func NewTradeStore(pool *Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// InsertBulk adds trades in a single transaction. Fails the whole batch on a
// duplicate trade_id.
func (s *TradeStore) InsertBulk(ctx context.Context, trades []*domain.Trade) (err error) {
	start := time.Now()
	defer func() { observe("trade_insert_bulk", start, err) }()

	if len(trades) == 0 {
		return nil
	}
	for _, t := range trades {
		if t == nil || t.TradeID == "" || t.RunID == "" {
			return storage.ErrInvalidInput
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO trades (
			trade_id, run_id, date, code, side, quantity, price,
			reason, hold_days
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	for _, t := range trades {
		_, err = tx.Exec(ctx, query,
			t.TradeID, t.RunID, domain.Midnight(t.Date), t.Code, t.Side,
			t.Quantity, t.Price, t.Reason, t.HoldDays,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert trade %s: %w", t.TradeID, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// GetByRunID retrieves a run's trades ordered by (date, code, side).
func (s *TradeStore) GetByRunID(ctx context.Context, runID string) (trades []*domain.Trade, err error) {
	start := time.Now()
	defer func() { observe("trade_get_by_run", start, err) }()

	query := `
		SELECT trade_id, run_id, date, code, side, quantity, price,
		       reason, hold_days
		FROM trades
		WHERE run_id = $1
		ORDER BY date ASC, code ASC, side ASC`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	trades = make([]*domain.Trade, 0)
	for rows.Next() {
		t := &domain.Trade{}
		err = rows.Scan(
			&t.TradeID, &t.RunID, &t.Date, &t.Code, &t.Side,
			&t.Quantity, &t.Price, &t.Reason, &t.HoldDays,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trades: %w", err)
	}

	return trades, nil
}

var _ storage.TradeStore = (*TradeStore)(nil)
