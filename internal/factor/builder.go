package factor

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"stocklab/internal/domain"
	"stocklab/internal/factorcache"
	"stocklab/internal/observability"
	"stocklab/internal/storage"
)

// Builder produces per-day factor panels from the external data stores,
// memoized through an injected cache.
type Builder struct {
	bars       storage.DailyBarStore
	statements storage.StatementStore
	universe   storage.UniverseStore
	cache      factorcache.Cache
	calendar   *domain.Calendar
	workers    int
}

// Options configures a Builder.
type Options struct {
	Bars       storage.DailyBarStore
	Statements storage.StatementStore
	Universe   storage.UniverseStore

	// Cache is optional; nil degrades to direct computation.
	Cache factorcache.Cache

	// Calendar bounds lookback windows in trading days.
	Calendar *domain.Calendar

	// Workers bounds the per-stock fan-out. Zero means GOMAXPROCS.
	Workers int
}

// NewBuilder creates a Builder.
func NewBuilder(opts Options) *Builder {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Builder{
		bars:       opts.Bars,
		statements: opts.Statements,
		universe:   opts.Universe,
		cache:      opts.Cache,
		calendar:   opts.Calendar,
		workers:    workers,
	}
}

// BuildPanel returns the factor panel for one trading day. Eligibility: a
// stock is included only if it belongs to the requested filter AND has a
// close price on that date. Factor values whose lookback exceeds the
// available history come back Undefined, not as an error.
//
// Computing factor values for different stocks is independent, so rows are
// computed on a worker pool; the panel is assembled in sorted stock order
// regardless of completion order.
func (b *Builder) BuildPanel(ctx context.Context, date time.Time, filter domain.UniverseFilter, factors []string) (*domain.FactorPanel, error) {
	key := factorcache.KeyFor(date, filter, factors)
	if b.cache != nil {
		if panel, ok := b.cache.Get(key); ok {
			return panel, nil
		}
	}

	start := time.Now()
	panel, err := b.buildDirect(ctx, date, filter, factors)
	if err != nil {
		return nil, err
	}
	observability.RecordPanelBuild(time.Since(start).Seconds())

	if b.cache != nil {
		b.cache.Put(key, panel)
	}
	return panel, nil
}

// buildDirect computes a panel without consulting the cache.
func (b *Builder) buildDirect(ctx context.Context, date time.Time, filter domain.UniverseFilter, factors []string) (*domain.FactorPanel, error) {
	specs := make([]spec, len(factors))
	needFunda := false
	maxWindow := 1
	for i, name := range factors {
		sp, err := parseSpec(name)
		if err != nil {
			return nil, err
		}
		specs[i] = sp
		if sp.funda {
			needFunda = true
		}
		if sp.window > maxWindow {
			maxWindow = sp.window
		}
	}

	members, err := b.universe.Members(ctx, filter, date)
	if err != nil {
		return nil, fmt.Errorf("resolve universe: %w", err)
	}

	dayBars, err := b.bars.GetByDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("load bars for %s: %w", date.Format("2006-01-02"), err)
	}
	hasClose := make(map[string]bool, len(dayBars))
	for _, bar := range dayBars {
		if bar.Close > 0 {
			hasClose[bar.Code] = true
		}
	}

	var eligible []string
	for _, code := range members {
		if hasClose[code] {
			eligible = append(eligible, code)
		}
	}

	panel := domain.NewFactorPanel(domain.Midnight(date), eligible)
	columns := make(map[string][]domain.Value, len(specs))
	for _, sp := range specs {
		columns[sp.name] = make([]domain.Value, panel.Len())
	}

	from := b.lookbackStart(date, maxWindow)

	var (
		wg       sync.WaitGroup
		sem      = make(chan struct{}, b.workers)
		mu       sync.Mutex
		firstErr error
	)
	for row, code := range panel.Codes() {
		wg.Add(1)
		go func(row int, code string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			values, err := b.computeRow(ctx, code, date, from, specs, needFunda)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			for name, v := range values {
				columns[name][row] = v
			}
		}(row, code)
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}

	for name, col := range columns {
		panel.SetColumn(name, col)
	}
	return panel, nil
}

// computeRow evaluates every requested factor for one stock.
func (b *Builder) computeRow(ctx context.Context, code string, date, from time.Time, specs []spec, needFunda bool) (map[string]domain.Value, error) {
	series, err := b.bars.GetSeries(ctx, code, from, date)
	if err != nil {
		return nil, fmt.Errorf("load series for %s: %w", code, err)
	}

	var stmt *domain.Statement
	if needFunda {
		stmt, err = b.statements.LatestAsOf(ctx, code, date)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("load statement for %s: %w", code, err)
		}
		// ErrNotFound leaves stmt nil: fundamentals factors come back
		// not-applicable for this stock.
	}

	values := make(map[string]domain.Value, len(specs))
	for _, sp := range specs {
		values[sp.name] = compute(sp, series, stmt)
	}
	return values, nil
}

// lookbackStart walks the calendar back window-1 trading days from the
// panel date. When the window reaches past the calendar head, the start is
// extended by calendar days (roughly two per trading day) so stocks with
// pre-run history still get full factor windows; a stock whose stored
// history is genuinely shorter surfaces as Undefined downstream.
func (b *Builder) lookbackStart(date time.Time, window int) time.Time {
	if b.calendar == nil {
		return date.AddDate(0, 0, -2*window)
	}
	idx, err := b.calendar.Index(date)
	if err != nil {
		return date.AddDate(0, 0, -2*window)
	}
	start := idx - (window - 1)
	if start >= 0 {
		return b.calendar.At(start)
	}
	return b.calendar.At(0).AddDate(0, 0, 2*start)
}
