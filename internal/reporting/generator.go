package reporting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stocklab/internal/storage"
)

// Generator produces reports from stored run records.
type Generator struct {
	tradeStore    storage.TradeStore
	snapshotStore storage.SnapshotStore
	resultStore   storage.ResultStore
	now           func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(
	tradeStore storage.TradeStore,
	snapshotStore storage.SnapshotStore,
	resultStore storage.ResultStore,
) *Generator {
	return &Generator{
		tradeStore:    tradeStore,
		snapshotStore: snapshotStore,
		resultStore:   resultStore,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate assembles the report for one run ID.
func (g *Generator) Generate(ctx context.Context, runID string) (*Report, error) {
	snapshots, err := g.snapshotStore.GetByRunID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load snapshots: %w", err)
	}
	if len(snapshots) == 0 {
		return nil, fmt.Errorf("run %s: %w", runID, storage.ErrNotFound)
	}

	trades, err := g.tradeStore.GetByRunID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load trades: %w", err)
	}

	stats, err := g.resultStore.GetByRunID(ctx, runID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load statistics: %w", err)
	}

	report := &Report{
		GeneratedAt: g.now(),
		RunID:       runID,
		StartDate:   snapshots[0].Date,
		EndDate:     snapshots[len(snapshots)-1].Date,
		TradingDays: len(snapshots),
		Statistics:  stats,
		Trades:      trades,
	}
	for _, s := range snapshots {
		report.EquityCurve = append(report.EquityCurve, EquityPoint{
			Date:          s.Date,
			Cash:          s.Cash,
			PositionValue: s.PositionValue,
			TotalValue:    s.TotalValue,
			DailyReturn:   s.DailyReturn,
			CumReturn:     s.CumReturn,
			PositionCount: s.PositionCount,
		})
	}
	return report, nil
}
