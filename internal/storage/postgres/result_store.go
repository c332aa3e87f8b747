package postgres

import (
	"context"
	"fmt"
	"time"

	"stocklab/internal/domain"
	"stocklab/internal/storage"
)

// ResultStore is a Postgres implementation of storage.ResultStore.
type ResultStore struct {
	pool *Pool
}

// NewResultStore creates a new result store.
func NewResultStore(pool *Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

// Insert adds a run's statistics. Returns ErrDuplicateKey if the run was
// already recorded.
func (s *ResultStore) Insert(ctx context.Context, stats *domain.Statistics) (err error) {
	start := time.Now()
	defer func() { observe("result_insert", start, err) }()

	if stats == nil || stats.RunID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO results (
			run_id, total_return_pct, cagr_pct, max_drawdown_pct,
			annual_vol_pct, sharpe, win_rate, profit_factor,
			total_trades, completed_trades, gross_profit, gross_loss,
			final_value
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err = s.pool.Exec(ctx, query,
		stats.RunID, stats.TotalReturnPct, stats.CAGRPct, stats.MaxDrawdownPct,
		stats.AnnualVolPct, stats.Sharpe, stats.WinRate, stats.ProfitFactor,
		stats.TotalTrades, stats.CompletedTrades, stats.GrossProfit,
		stats.GrossLoss, stats.FinalValue,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert result: %w", err)
	}

	return nil
}

// GetByRunID retrieves a run's statistics. Returns ErrNotFound if the run is
// unknown.
func (s *ResultStore) GetByRunID(ctx context.Context, runID string) (stats *domain.Statistics, err error) {
	start := time.Now()
	defer func() { observe("result_get_by_run", start, err) }()

	query := `
		SELECT run_id, total_return_pct, cagr_pct, max_drawdown_pct,
		       annual_vol_pct, sharpe, win_rate, profit_factor,
		       total_trades, completed_trades, gross_profit, gross_loss,
		       final_value
		FROM results
		WHERE run_id = $1`

	stats = &domain.Statistics{}
	err = s.pool.QueryRow(ctx, query, runID).Scan(
		&stats.RunID, &stats.TotalReturnPct, &stats.CAGRPct,
		&stats.MaxDrawdownPct, &stats.AnnualVolPct, &stats.Sharpe,
		&stats.WinRate, &stats.ProfitFactor, &stats.TotalTrades,
		&stats.CompletedTrades, &stats.GrossProfit, &stats.GrossLoss,
		&stats.FinalValue,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("query result: %w", err)
	}

	return stats, nil
}

var _ storage.ResultStore = (*ResultStore)(nil)
