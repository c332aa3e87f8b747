package reporting

import (
	"context"
	"strings"
	"testing"
	"time"

	"stocklab/internal/domain"
	"stocklab/internal/storage/memory"
)

func seedStores(t *testing.T) (*memory.TradeStore, *memory.SnapshotStore, *memory.ResultStore) {
	t.Helper()
	ctx := context.Background()

	trades := memory.NewTradeStore()
	snapshots := memory.NewSnapshotStore()
	results := memory.NewResultStore()

	d0 := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	d1 := d0.AddDate(0, 0, 1)

	if err := trades.InsertBulk(ctx, []*domain.Trade{
		{TradeID: "t1", RunID: "run1", Date: d0, Code: "005930",
			Side: domain.SideBuy, Quantity: 100, Price: 1000, Reason: domain.ReasonBuySignal},
		{TradeID: "t2", RunID: "run1", Date: d1, Code: "005930",
			Side: domain.SideSell, Quantity: 100, Price: 1200,
			Reason: domain.ReasonTargetGain, HoldDays: 1},
	}); err != nil {
		t.Fatalf("seed trades: %v", err)
	}
	if err := snapshots.InsertBulk(ctx, []*domain.Snapshot{
		{RunID: "run1", Date: d0, Cash: 900_000, PositionValue: 100_000,
			TotalValue: 1_000_000, PositionCount: 1},
		{RunID: "run1", Date: d1, Cash: 1_020_000, PositionValue: 0,
			TotalValue: 1_020_000, DailyReturn: 0.02, CumReturn: 0.02},
	}); err != nil {
		t.Fatalf("seed snapshots: %v", err)
	}
	if err := results.Insert(ctx, &domain.Statistics{
		RunID: "run1", TotalReturnPct: 2, TotalTrades: 2, CompletedTrades: 1,
		WinRate: 100, FinalValue: 1_020_000,
	}); err != nil {
		t.Fatalf("seed statistics: %v", err)
	}
	return trades, snapshots, results
}

func TestGenerate(t *testing.T) {
	trades, snapshots, results := seedStores(t)

	fixed := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	gen := NewGenerator(trades, snapshots, results).
		WithClock(func() time.Time { return fixed })

	report, err := gen.Generate(context.Background(), "run1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if !report.GeneratedAt.Equal(fixed) {
		t.Errorf("GeneratedAt = %v, want injected clock value", report.GeneratedAt)
	}
	if report.TradingDays != 2 {
		t.Errorf("TradingDays = %d, want 2", report.TradingDays)
	}
	if len(report.Trades) != 2 {
		t.Errorf("Trades = %d, want 2", len(report.Trades))
	}
	if report.Statistics == nil || report.Statistics.TotalReturnPct != 2 {
		t.Errorf("Statistics not loaded: %+v", report.Statistics)
	}
}

func TestGenerate_UnknownRun(t *testing.T) {
	trades, snapshots, results := seedStores(t)
	gen := NewGenerator(trades, snapshots, results)

	if _, err := gen.Generate(context.Background(), "missing"); err == nil {
		t.Error("Generate succeeded for unknown run ID")
	}
}

func TestRenderMarkdown(t *testing.T) {
	trades, snapshots, results := seedStores(t)
	gen := NewGenerator(trades, snapshots, results)

	report, err := gen.Generate(context.Background(), "run1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	md := RenderMarkdown(report)
	for _, want := range []string{
		"# Backtest Report",
		"run1",
		"| Total Return | 2.00% |",
		"| 2024-06-04 | 005930 | SELL | 100 | 1200.00 | target_gain | 1 |",
		"## Equity Curve",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
}

func TestRenderCSV(t *testing.T) {
	trades, snapshots, results := seedStores(t)
	gen := NewGenerator(trades, snapshots, results)

	report, err := gen.Generate(context.Background(), "run1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	csv := RenderTradesCSV(report.Trades)
	lines := strings.Split(strings.TrimSpace(csv), "\n")
	if len(lines) != 3 {
		t.Fatalf("trades CSV has %d lines, want header + 2 rows", len(lines))
	}
	if !strings.HasPrefix(lines[0], "trade_id,run_id,date") {
		t.Errorf("unexpected header: %s", lines[0])
	}
	if !strings.Contains(lines[2], "target_gain") {
		t.Errorf("sell row missing reason: %s", lines[2])
	}

	equity := RenderEquityCSV(report.EquityCurve)
	if got := len(strings.Split(strings.TrimSpace(equity), "\n")); got != 3 {
		t.Errorf("equity CSV has %d lines, want 3", got)
	}
}
