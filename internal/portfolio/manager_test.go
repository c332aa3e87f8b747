package portfolio

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stocklab/internal/domain"
	"stocklab/internal/factor"
	"stocklab/internal/storage"
	"stocklab/internal/storage/memory"
)

type env struct {
	bars       *memory.DailyBarStore
	statements *memory.StatementStore
	universe   *memory.UniverseStore
	calendar   *domain.Calendar
	dates      []time.Time
}

func newEnv(t *testing.T, numDays int) *env {
	t.Helper()
	base := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	dates := make([]time.Time, numDays)
	for i := range dates {
		dates[i] = base.AddDate(0, 0, i)
	}
	cal, err := domain.NewCalendar(dates)
	require.NoError(t, err)
	return &env{
		bars:       memory.NewDailyBarStore(),
		statements: memory.NewStatementStore(),
		universe:   memory.NewUniverseStore(),
		calendar:   cal,
		dates:      dates,
	}
}

// addStock seeds a universe member with one bar per day. lows may be nil
// (low = close) or one entry per day.
func (e *env) addStock(t *testing.T, code string, closes []float64, lows []float64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.universe.Insert(ctx, &storage.Membership{
		Code: code, Universe: "KOSPI", ValidFrom: e.dates[0],
	}))
	bars := make([]*domain.DailyBar, 0, len(e.dates))
	for i, d := range e.dates {
		c := closes[i]
		low := c
		if lows != nil {
			low = lows[i]
		}
		bars = append(bars, &domain.DailyBar{
			Code: code, Date: d,
			Open: c, High: c, Low: low, Close: c,
			Volume: 1000, MarketCap: 1_000_000,
		})
	}
	require.NoError(t, e.bars.InsertBulk(ctx, bars))
}

func (e *env) manager(t *testing.T, cfg domain.RunConfig) *Manager {
	t.Helper()
	cfg.StartDate = e.dates[0]
	cfg.EndDate = e.dates[len(e.dates)-1]
	builder := factor.NewBuilder(factor.Options{
		Bars:       e.bars,
		Statements: e.statements,
		Universe:   e.universe,
		Calendar:   e.calendar,
		Workers:    1,
	})
	m, err := NewManager(Options{
		Config:   cfg,
		Calendar: e.calendar,
		Bars:     e.bars,
		Builder:  builder,
	})
	require.NoError(t, err)
	return m
}

func alwaysBuyConfig() domain.RunConfig {
	return domain.RunConfig{
		InitialCapital: 1_000_000,
		Filter:         domain.UniverseFilter{Universe: "KOSPI"},
		BuyConditions: []domain.Condition{
			{ID: "any", Factor: "close", Op: domain.OpGT, Threshold: 0},
		},
		BuyExpression: "any",
	}
}

func flat(n int, v float64) []float64 {
	xs := make([]float64, n)
	for i := range xs {
		xs[i] = v
	}
	return xs
}

func TestBuyExecutesOnSignalDay(t *testing.T) {
	e := newEnv(t, 3)
	e.addStock(t, "005930", flat(3, 1000), nil)
	// PER = market_cap / net_income = 1,000,000 / 125,000 = 8.
	require.NoError(t, e.statements.Insert(context.Background(), &domain.Statement{
		Code: "005930", AsOf: e.dates[0].AddDate(0, -1, 0),
		NetIncome: 125_000, Equity: 500_000,
	}))

	cfg := alwaysBuyConfig()
	cfg.BuyConditions = []domain.Condition{
		{ID: "cheap", Factor: "per", Op: domain.OpLT, Threshold: 10},
	}
	cfg.BuyExpression = "cheap"
	cfg.PerStockRatio = 0.1

	m := e.manager(t, cfg)
	res, err := m.Run(context.Background())
	require.NoError(t, err)

	require.NotEmpty(t, res.Trades)
	buy := res.Trades[0]
	assert.Equal(t, domain.SideBuy, buy.Side)
	assert.True(t, buy.Date.Equal(e.dates[0]), "buy must execute on the signal day")
	// quantity = floor(budget / price) = floor(100,000 / 1000)
	assert.Equal(t, int64(100), buy.Quantity)
	assert.Equal(t, domain.ReasonBuySignal, buy.Reason)
}

func TestStopLossRespectsMinHoldAndSellsAtTheoreticalPrice(t *testing.T) {
	e := newEnv(t, 4)
	// Close flat at 1000; lows dip to 880 (-12%) on days 1 and 3.
	e.addStock(t, "005930", flat(4, 1000), []float64{1000, 880, 1000, 880})

	cfg := alwaysBuyConfig()
	cfg.PerStockRatio = 0.5
	cfg.MaxPositions = 1
	cfg.SellRule = domain.SellRuleConfig{
		StopLossPct:   10,
		TargetGainPct: 20,
		MinHoldDays:   2,
		MaxHoldDays:   5,
	}

	res, err := e.manager(t, cfg).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Trades, 2)

	buy, sell := res.Trades[0], res.Trades[1]
	require.Equal(t, domain.SideBuy, buy.Side)
	assert.True(t, buy.Date.Equal(e.dates[0]))
	assert.InDelta(t, 1000, buy.Price, 1e-9)

	// Day 1's -12% low is inside the min-hold window; the sell lands on
	// day 3 at the exact theoretical stop price.
	require.Equal(t, domain.SideSell, sell.Side)
	assert.True(t, sell.Date.Equal(e.dates[3]))
	assert.Equal(t, domain.ReasonStopLoss, sell.Reason)
	assert.InDelta(t, 900, sell.Price, 1e-9)
	assert.Equal(t, 3, sell.HoldDays)

	// Recorded return is exactly -stop_loss%.
	ret := (sell.Price/buy.Price - 1) * 100
	assert.InDelta(t, -10, ret, 1e-9)
}

func TestPositionAndDailyBuyLimits(t *testing.T) {
	e := newEnv(t, 2)
	for _, code := range []string{"a1", "b2", "c3", "d4", "e5"} {
		e.addStock(t, code, flat(2, 100), nil)
	}

	cfg := alwaysBuyConfig()
	cfg.MaxPositions = 3
	cfg.MaxDailyStock = 2
	cfg.PerStockRatio = 0.1

	res, err := e.manager(t, cfg).Run(context.Background())
	require.NoError(t, err)

	var day0, day1 []string
	for _, tr := range res.Trades {
		require.Equal(t, domain.SideBuy, tr.Side)
		if tr.Date.Equal(e.dates[0]) {
			day0 = append(day0, tr.Code)
		} else {
			day1 = append(day1, tr.Code)
		}
	}
	// Ties on the (absent) priority factor break by code ascending.
	assert.Equal(t, []string{"a1", "b2"}, day0)
	assert.Equal(t, []string{"c3"}, day1)
}

func TestBuySkippedNotPartiallyFilled(t *testing.T) {
	e := newEnv(t, 1)
	e.addStock(t, "005930", flat(1, 1000), nil)

	cfg := alwaysBuyConfig()
	cfg.InitialCapital = 1000
	cfg.PerStockRatio = 1
	// budget = cash = 1000 buys exactly one share, but the commission
	// overdraws; the order is skipped whole.

	res, err := e.manager(t, cfg).Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, res.Trades)
	require.Len(t, res.Snapshots, 1)
	assert.Equal(t, 1000.0, res.Snapshots[0].Cash)
}

func TestCashNeverNegative(t *testing.T) {
	e := newEnv(t, 6)
	for _, code := range []string{"a1", "b2", "c3", "d4"} {
		e.addStock(t, code, flat(6, 333), nil)
	}

	cfg := alwaysBuyConfig()
	cfg.InitialCapital = 10_000
	cfg.PerStockRatio = 0.4
	cfg.MaxPositions = 4

	res, err := e.manager(t, cfg).Run(context.Background())
	require.NoError(t, err)
	for _, s := range res.Snapshots {
		if s.Cash < 0 {
			t.Fatalf("cash went negative on %s: %v", s.Date.Format("2006-01-02"), s.Cash)
		}
	}
}

func TestSnapshotPerDayAndAccounting(t *testing.T) {
	e := newEnv(t, 3)
	e.addStock(t, "005930", []float64{1000, 1100, 1210}, nil)

	cfg := alwaysBuyConfig()
	cfg.PerStockRatio = 0.1

	res, err := e.manager(t, cfg).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Snapshots, 3)

	for i, s := range res.Snapshots {
		assert.True(t, s.Date.Equal(e.dates[i]))
		assert.InDelta(t, s.Cash+s.PositionValue, s.TotalValue, 1e-9)
	}

	// 100 shares ride 1000 -> 1210 while cash holds the rest.
	last := res.Snapshots[2]
	assert.Equal(t, 1, last.PositionCount)
	assert.InDelta(t, 100*1210, last.PositionValue, 1e-9)
	assert.Greater(t, last.CumReturn, 0.0)
}

func TestNoSameDayRoundTrip(t *testing.T) {
	e := newEnv(t, 5)
	// Max-hold 2 forces a sell on day 2; the stock still passes the buy
	// conditions that day but must not be re-bought until day 3.
	e.addStock(t, "005930", flat(5, 1000), nil)

	cfg := alwaysBuyConfig()
	cfg.PerStockRatio = 0.5
	cfg.MaxPositions = 1
	cfg.SellRule = domain.SellRuleConfig{MaxHoldDays: 2}

	res, err := e.manager(t, cfg).Run(context.Background())
	require.NoError(t, err)

	byDay := make(map[string][]domain.Side)
	for _, tr := range res.Trades {
		key := tr.Date.Format("2006-01-02")
		byDay[key] = append(byDay[key], tr.Side)
	}
	for day, sides := range byDay {
		if len(sides) > 1 {
			t.Errorf("day %s has multiple executions for one stock: %v", day, sides)
		}
	}
}

func TestWeeklyRebalanceTradesOnlyOnWeekStart(t *testing.T) {
	// 2024-06-03 is a Monday; ten consecutive days span two ISO weeks.
	e := newEnv(t, 10)
	e.addStock(t, "005930", flat(10, 1000), nil)

	cfg := alwaysBuyConfig()
	cfg.Rebalance = domain.RebalanceWeekly
	cfg.PerStockRatio = 0.1
	cfg.MaxPositions = 1

	res, err := e.manager(t, cfg).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	assert.True(t, res.Trades[0].Date.Equal(e.dates[0]))
	// Snapshots still cover every trading day.
	assert.Len(t, res.Snapshots, 10)
}

func TestRunIsDeterministic(t *testing.T) {
	build := func() *Result {
		e := newEnv(t, 8)
		for _, code := range []string{"a1", "b2", "c3", "d4", "e5", "f6"} {
			e.addStock(t, code, flat(8, 500), []float64{500, 430, 500, 500, 430, 500, 500, 500})
		}
		cfg := alwaysBuyConfig()
		cfg.SellRule = domain.SellRuleConfig{StopLossPct: 10, MaxHoldDays: 4}
		res, err := e.manager(t, cfg).Run(context.Background())
		require.NoError(t, err)
		return res
	}

	a, b := build(), build()
	require.Equal(t, a.RunID, b.RunID)
	require.Equal(t, len(a.Trades), len(b.Trades))
	for i := range a.Trades {
		assert.Equal(t, *a.Trades[i], *b.Trades[i], "trade %d differs", i)
	}
	require.Equal(t, len(a.Snapshots), len(b.Snapshots))
	for i := range a.Snapshots {
		if math.Abs(a.Snapshots[i].TotalValue-b.Snapshots[i].TotalValue) > 1e-9 {
			t.Errorf("snapshot %d total value differs", i)
		}
	}
}

func TestCancellationBetweenDays(t *testing.T) {
	e := newEnv(t, 5)
	e.addStock(t, "005930", flat(5, 1000), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := e.manager(t, alwaysBuyConfig()).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.Trades)
	assert.Empty(t, res.Snapshots)
}

func TestAdditionalBuyMergesHeldPosition(t *testing.T) {
	e := newEnv(t, 2)
	// The price drop leaves the position under its per-stock weight, so
	// the day-1 signal tops it up instead of being skipped.
	e.addStock(t, "005930", []float64{1000, 800}, nil)

	cfg := alwaysBuyConfig()
	cfg.PerStockRatio = 0.5
	cfg.MaxPositions = 1 // a full book still allows topping up

	m := e.manager(t, cfg)
	res, err := m.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Trades, 2)
	first, second := res.Trades[0], res.Trades[1]
	require.Equal(t, domain.SideBuy, first.Side)
	require.Equal(t, domain.SideBuy, second.Side)
	assert.Equal(t, int64(500), first.Quantity) // floor(500,000 / 1000)
	assert.True(t, second.Date.Equal(e.dates[1]))

	// Day 1: total = cash 499,925 + 500*800; budget tops up to half of
	// that minus the position's market value.
	total := 499_925.0 + 500*800
	topUp := cfg.PerStockRatio*total - 500*800
	wantQty := int64(math.Floor(topUp / 800))
	assert.Equal(t, wantQty, second.Quantity)

	pos, ok := m.positions["005930"]
	require.True(t, ok)
	assert.Equal(t, int64(500)+wantQty, pos.Quantity)
	wantAvg := (500*1000.0 + float64(wantQty)*800) / float64(500+wantQty)
	assert.InDelta(t, wantAvg, pos.AvgBuyPrice, 1e-9)
	// The entry date survives the merge; hold-day rules keep counting
	// from the original buy.
	assert.True(t, pos.BuyDate.Equal(e.dates[0]))

	require.Len(t, res.Snapshots, 2)
	assert.Equal(t, 1, res.Snapshots[1].PositionCount)
}

func TestHeldAtFullWeightNotToppedUp(t *testing.T) {
	e := newEnv(t, 3)
	e.addStock(t, "005930", flat(3, 1000), nil)

	cfg := alwaysBuyConfig()
	cfg.PerStockRatio = 0.5

	res, err := e.manager(t, cfg).Run(context.Background())
	require.NoError(t, err)

	// The signal fires every day but the position already carries its
	// full weight; only the first buy executes.
	require.Len(t, res.Trades, 1)
	assert.True(t, res.Trades[0].Date.Equal(e.dates[0]))
}

func TestSellRecordsRulePriceSlippageOnlyOnCash(t *testing.T) {
	e := newEnv(t, 2)
	// Low dips to 880 on day 1; stop loss 10% off the slippage-inclusive
	// entry of 1010 puts the theoretical sell at 909.
	e.addStock(t, "005930", flat(2, 1000), []float64{1000, 880})

	cfg := alwaysBuyConfig()
	cfg.PerStockRatio = 0.1
	cfg.SlippageRate = 0.01
	cfg.SellRule = domain.SellRuleConfig{StopLossPct: 10}

	res, err := e.manager(t, cfg).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Trades, 2)

	buy, sell := res.Trades[0], res.Trades[1]
	require.Equal(t, domain.SideBuy, buy.Side)
	require.Equal(t, domain.SideSell, sell.Side)

	// Buys execute at basis plus slippage; the recorded sell price is the
	// rule's theoretical price, untouched by slippage, so the trade list
	// shows exactly the -10% return against the entry.
	assert.InDelta(t, 1010.0, buy.Price, 1e-9)
	assert.InDelta(t, buy.Price*0.9, sell.Price, 1e-9)

	// Slippage and fees only reduce the cash credit.
	proceeds := sell.Price * (1 - cfg.SlippageRate) * float64(sell.Quantity)
	wantDelta := proceeds * (1 - (domain.DefaultCommissionRate + domain.DefaultSellTaxRate))
	require.Len(t, res.Snapshots, 2)
	gotDelta := res.Snapshots[1].Cash - res.Snapshots[0].Cash
	assert.InDelta(t, wantDelta, gotDelta, 1e-6)
}
