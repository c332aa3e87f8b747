package storage

import (
	"context"
	"time"

	"stocklab/internal/domain"
)

// DailyBarStore provides access to the daily OHLCV + market-cap series.
type DailyBarStore interface {
	// InsertBulk adds bars. Fails the whole batch on a duplicate
	// (code, date).
	InsertBulk(ctx context.Context, bars []*domain.DailyBar) error

	// GetSeries retrieves one stock's bars within [from, to] inclusive,
	// ordered by date ASC.
	GetSeries(ctx context.Context, code string, from, to time.Time) ([]*domain.DailyBar, error)

	// GetByDate retrieves all bars for one date, ordered by code ASC.
	GetByDate(ctx context.Context, date time.Time) ([]*domain.DailyBar, error)

	// TradingDates returns the distinct dates with any bar in [from, to],
	// ordered ASC. The run calendar is built from this.
	TradingDates(ctx context.Context, from, to time.Time) ([]time.Time, error)
}

// StatementStore provides access to periodic fundamental statements.
type StatementStore interface {
	// Insert adds a statement. Returns ErrDuplicateKey on (code, as_of).
	Insert(ctx context.Context, s *domain.Statement) error

	// LatestAsOf retrieves the most recent statement for a company
	// published at or before the date. Returns ErrNotFound if none.
	LatestAsOf(ctx context.Context, code string, date time.Time) (*domain.Statement, error)
}

// Membership records a stock's theme/universe affiliation over a validity
// window. A zero ValidTo means open-ended.
type Membership struct {
	Code      string
	Theme     string
	Universe  string
	ValidFrom time.Time
	ValidTo   time.Time
}

// UniverseStore resolves the tradable stock set as of a date.
type UniverseStore interface {
	// Insert adds a membership row.
	Insert(ctx context.Context, m *Membership) error

	// Members returns the codes matching the filter and valid on the
	// date, sorted ASC. An explicit ticker whitelist intersects the
	// membership result.
	Members(ctx context.Context, filter domain.UniverseFilter, date time.Time) ([]string, error)
}

// TradeStore persists the final trade list of a run.
type TradeStore interface {
	// InsertBulk adds trades. Fails the whole batch on a duplicate
	// trade_id.
	InsertBulk(ctx context.Context, trades []*domain.Trade) error

	// GetByRunID retrieves a run's trades ordered by (date, code, side).
	GetByRunID(ctx context.Context, runID string) ([]*domain.Trade, error)
}

// SnapshotStore persists the daily portfolio snapshot sequence of a run.
type SnapshotStore interface {
	// InsertBulk adds snapshots. Fails the whole batch on a duplicate
	// (run_id, date).
	InsertBulk(ctx context.Context, snapshots []*domain.Snapshot) error

	// GetByRunID retrieves a run's snapshots ordered by date ASC.
	GetByRunID(ctx context.Context, runID string) ([]*domain.Snapshot, error)
}

// ResultStore persists the summary statistics record of a run.
type ResultStore interface {
	// Insert adds a run's statistics. Returns ErrDuplicateKey if the run
	// was already recorded.
	Insert(ctx context.Context, stats *domain.Statistics) error

	// GetByRunID retrieves a run's statistics. Returns ErrNotFound if the
	// run is unknown.
	GetByRunID(ctx context.Context, runID string) (*domain.Statistics, error)
}
