package clickhouse

import (
	"context"
	"fmt"
	"time"

	"stocklab/internal/domain"
	"stocklab/internal/storage"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// DailyBarStore implements storage.DailyBarStore using ClickHouse.
type DailyBarStore struct {
	conn *Conn
}

// NewDailyBarStore creates a new DailyBarStore.
func NewDailyBarStore(conn *Conn) *DailyBarStore {
	return &DailyBarStore{conn: conn}
}

// Compile-time interface check.
var _ storage.DailyBarStore = (*DailyBarStore)(nil)

// InsertBulk adds bars. Fails the whole batch on a duplicate (code, date).
func (s *DailyBarStore) InsertBulk(ctx context.Context, bars []*domain.DailyBar) (err error) {
	start := time.Now()
	defer func() { observe("daily_bar_insert_bulk", start, err) }()

	if len(bars) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	type key struct {
		code string
		day  int64
	}
	seen := make(map[key]struct{}, len(bars))
	for _, b := range bars {
		if b == nil || b.Code == "" || b.Date.IsZero() {
			return storage.ErrInvalidInput
		}
		k := key{b.Code, domain.Midnight(b.Date).Unix()}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	// Check for duplicates against existing DB rows
	for _, b := range bars {
		exists, err := s.exists(ctx, b.Code, domain.Midnight(b.Date))
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO daily_bars (
			code, date, open, high, low, close, volume, market_cap
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, b := range bars {
		err = batch.Append(
			b.Code, domain.Midnight(b.Date), b.Open, b.High, b.Low,
			b.Close, b.Volume, b.MarketCap,
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

// GetSeries retrieves one stock's bars within [from, to] inclusive, ordered
// by date ASC.
func (s *DailyBarStore) GetSeries(ctx context.Context, code string, from, to time.Time) (bars []*domain.DailyBar, err error) {
	start := time.Now()
	defer func() { observe("daily_bar_get_series", start, err) }()

	query := `
		SELECT code, date, open, high, low, close, volume, market_cap
		FROM daily_bars
		WHERE code = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`

	rows, err := s.conn.Query(ctx, query, code, domain.Midnight(from), domain.Midnight(to))
	if err != nil {
		return nil, fmt.Errorf("query series: %w", err)
	}
	defer rows.Close()

	return scanDailyBars(rows)
}

// GetByDate retrieves all bars for one date, ordered by code ASC.
func (s *DailyBarStore) GetByDate(ctx context.Context, date time.Time) (bars []*domain.DailyBar, err error) {
	start := time.Now()
	defer func() { observe("daily_bar_get_by_date", start, err) }()

	query := `
		SELECT code, date, open, high, low, close, volume, market_cap
		FROM daily_bars
		WHERE date = ?
		ORDER BY code ASC
	`

	rows, err := s.conn.Query(ctx, query, domain.Midnight(date))
	if err != nil {
		return nil, fmt.Errorf("query by date: %w", err)
	}
	defer rows.Close()

	return scanDailyBars(rows)
}

// TradingDates returns the distinct dates with any bar in [from, to],
// ordered ASC.
func (s *DailyBarStore) TradingDates(ctx context.Context, from, to time.Time) (dates []time.Time, err error) {
	start := time.Now()
	defer func() { observe("daily_bar_trading_dates", start, err) }()

	query := `
		SELECT DISTINCT date
		FROM daily_bars
		WHERE date >= ? AND date <= ?
		ORDER BY date ASC
	`

	rows, err := s.conn.Query(ctx, query, domain.Midnight(from), domain.Midnight(to))
	if err != nil {
		return nil, fmt.Errorf("query trading dates: %w", err)
	}
	defer rows.Close()

	dates = make([]time.Time, 0)
	for rows.Next() {
		var d time.Time
		if err = rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan trading date: %w", err)
		}
		dates = append(dates, domain.Midnight(d))
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trading dates: %w", err)
	}

	return dates, nil
}

// exists checks if a bar with the given key exists.
func (s *DailyBarStore) exists(ctx context.Context, code string, date time.Time) (bool, error) {
	query := `
		SELECT count(*) FROM daily_bars
		WHERE code = ? AND date = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, code, date).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func scanDailyBars(rows driver.Rows) ([]*domain.DailyBar, error) {
	bars := make([]*domain.DailyBar, 0)
	for rows.Next() {
		b := &domain.DailyBar{}
		err := rows.Scan(
			&b.Code, &b.Date, &b.Open, &b.High, &b.Low,
			&b.Close, &b.Volume, &b.MarketCap,
		)
		if err != nil {
			return nil, fmt.Errorf("scan daily bar: %w", err)
		}
		b.Date = domain.Midnight(b.Date)
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily bars: %w", err)
	}
	return bars, nil
}
