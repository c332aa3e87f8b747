package factor

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stocklab/internal/domain"
	"stocklab/internal/storage"
	"stocklab/internal/storage/memory"
)

type fixture struct {
	bars       *memory.DailyBarStore
	statements *memory.StatementStore
	universe   *memory.UniverseStore
	calendar   *domain.Calendar
	dates      []time.Time
}

// newFixture seeds 30 consecutive trading days for the given stocks with a
// constant daily drift so windowed factors have known values.
func newFixture(t *testing.T, codes ...string) *fixture {
	t.Helper()
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	dates := make([]time.Time, 30)
	for i := range dates {
		dates[i] = base.AddDate(0, 0, i)
	}
	cal, err := domain.NewCalendar(dates)
	require.NoError(t, err)

	f := &fixture{
		bars:       memory.NewDailyBarStore(),
		statements: memory.NewStatementStore(),
		universe:   memory.NewUniverseStore(),
		calendar:   cal,
		dates:      dates,
	}

	var bars []*domain.DailyBar
	for _, code := range codes {
		for i, d := range dates {
			price := 100 + float64(i) // +1 per day
			bars = append(bars, &domain.DailyBar{
				Code: code, Date: d,
				Open: price, High: price + 1, Low: price - 1, Close: price,
				Volume: 1000, MarketCap: 1_000_000,
			})
		}
		require.NoError(t, f.universe.Insert(ctx, &storage.Membership{
			Code: code, Universe: "KOSPI", ValidFrom: dates[0],
		}))
	}
	require.NoError(t, f.bars.InsertBulk(ctx, bars))
	return f
}

func (f *fixture) builder(workers int) *Builder {
	return NewBuilder(Options{
		Bars:       f.bars,
		Statements: f.statements,
		Universe:   f.universe,
		Calendar:   f.calendar,
		Workers:    workers,
	})
}

func TestValidate_UnknownFactor(t *testing.T) {
	require.NoError(t, Validate([]string{"per", "momentum_240", "ma_20", "volatility_60"}))

	err := Validate([]string{"per", "alpha_signal"})
	require.ErrorIs(t, err, ErrUnknownFactor)

	err = Validate([]string{"momentum_zero"})
	require.ErrorIs(t, err, ErrUnknownFactor)
}

func TestBuildPanel_PriceFactors(t *testing.T) {
	f := newFixture(t, "005930", "000660")
	b := f.builder(4)
	ctx := context.Background()

	last := f.dates[len(f.dates)-1] // close = 129
	panel, err := b.BuildPanel(ctx, last, domain.UniverseFilter{Universe: "KOSPI"},
		[]string{"close", "momentum_20", "ma_10"})
	require.NoError(t, err)
	require.Equal(t, 2, panel.Len())

	v, ok := panel.Value("close", "005930").Float()
	require.True(t, ok)
	assert.InDelta(t, 129, v, 1e-9)

	// momentum_20: close 20 trading days back is 109.
	v, ok = panel.Value("momentum_20", "005930").Float()
	require.True(t, ok)
	assert.InDelta(t, (129.0/109.0-1)*100, v, 1e-9)

	// ma_10: mean of closes 120..129.
	v, ok = panel.Value("ma_10", "000660").Float()
	require.True(t, ok)
	assert.InDelta(t, 124.5, v, 1e-9)
}

func TestBuildPanel_InsufficientHistoryIsUndefined(t *testing.T) {
	f := newFixture(t, "005930")
	b := f.builder(1)
	ctx := context.Background()

	// Only 30 bars exist: a 240-day momentum cannot be computed, and the
	// builder must mark it undefined rather than fail the panel.
	panel, err := b.BuildPanel(ctx, f.dates[len(f.dates)-1],
		domain.UniverseFilter{Universe: "KOSPI"}, []string{"momentum_240", "close"})
	require.NoError(t, err)

	assert.False(t, panel.Value("momentum_240", "005930").IsDefined())
	assert.True(t, panel.Value("close", "005930").IsDefined())
}

func TestBuildPanel_EligibilityRequiresCloseAndMembership(t *testing.T) {
	f := newFixture(t, "005930")
	ctx := context.Background()

	// A member with no bar on the date is excluded from the panel.
	require.NoError(t, f.universe.Insert(ctx, &storage.Membership{
		Code: "999999", Universe: "KOSPI", ValidFrom: f.dates[0],
	}))
	// A stock with bars but outside the filter is excluded too.
	require.NoError(t, f.bars.InsertBulk(ctx, []*domain.DailyBar{
		{Code: "777777", Date: f.dates[29], Close: 50},
	}))

	panel, err := f.builder(2).BuildPanel(ctx, f.dates[29],
		domain.UniverseFilter{Universe: "KOSPI"}, []string{"close"})
	require.NoError(t, err)

	assert.Equal(t, []string{"005930"}, panel.Codes())
}

func TestBuildPanel_FundamentalFactors(t *testing.T) {
	f := newFixture(t, "005930", "000660")
	ctx := context.Background()

	// 005930 has a visible statement; 000660 has none.
	require.NoError(t, f.statements.Insert(ctx, &domain.Statement{
		Code: "005930", AsOf: f.dates[0],
		NetIncome: 100_000, Equity: 500_000, Debt: 250_000,
		Revenue: 1_000_000, OperatingIncome: 150_000,
	}))

	panel, err := f.builder(2).BuildPanel(ctx, f.dates[29],
		domain.UniverseFilter{Universe: "KOSPI"}, []string{"per", "roe", "debt_ratio", "op_margin"})
	require.NoError(t, err)

	v, ok := panel.Value("per", "005930").Float()
	require.True(t, ok)
	assert.InDelta(t, 10.0, v, 1e-9) // 1,000,000 / 100,000

	v, ok = panel.Value("roe", "005930").Float()
	require.True(t, ok)
	assert.InDelta(t, 20.0, v, 1e-9)

	v, ok = panel.Value("debt_ratio", "005930").Float()
	require.True(t, ok)
	assert.InDelta(t, 50.0, v, 1e-9)

	v, ok = panel.Value("op_margin", "005930").Float()
	require.True(t, ok)
	assert.InDelta(t, 15.0, v, 1e-9)

	// No statement: fundamentals are not applicable, never zero.
	assert.Equal(t, domain.StateNotApplicable, panel.Value("per", "000660").State())
}

func TestBuildPanel_DeterministicAcrossWorkerCounts(t *testing.T) {
	f := newFixture(t, "a1", "b2", "c3", "d4", "e5", "f6", "g7", "h8")
	ctx := context.Background()
	factors := []string{"close", "momentum_5", "ma_3", "volatility_10"}

	p1, err := f.builder(1).BuildPanel(ctx, f.dates[29], domain.UniverseFilter{Universe: "KOSPI"}, factors)
	require.NoError(t, err)
	p8, err := f.builder(8).BuildPanel(ctx, f.dates[29], domain.UniverseFilter{Universe: "KOSPI"}, factors)
	require.NoError(t, err)

	require.Equal(t, p1.Codes(), p8.Codes())
	for _, name := range factors {
		for _, code := range p1.Codes() {
			v1, ok1 := p1.Value(name, code).Float()
			v8, ok8 := p8.Value(name, code).Float()
			require.Equal(t, ok1, ok8, "factor %s stock %s", name, code)
			if ok1 && math.Abs(v1-v8) > 1e-12 {
				t.Errorf("factor %s stock %s: %v vs %v", name, code, v1, v8)
			}
		}
	}
}

func TestBuildPanel_UnknownFactorFails(t *testing.T) {
	f := newFixture(t, "005930")
	_, err := f.builder(1).BuildPanel(context.Background(), f.dates[29],
		domain.UniverseFilter{Universe: "KOSPI"}, []string{"close", "nope"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownFactor))
}
