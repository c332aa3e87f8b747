package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stocklab/internal/domain"
	"stocklab/internal/storage"
)

func d(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestDailyBarStore_InsertAndGetSeries(t *testing.T) {
	store := NewDailyBarStore()
	ctx := context.Background()

	bars := []*domain.DailyBar{
		{Code: "005930", Date: d("2024-01-04"), Close: 110},
		{Code: "005930", Date: d("2024-01-02"), Close: 100},
		{Code: "005930", Date: d("2024-01-03"), Close: 105},
		{Code: "000660", Date: d("2024-01-02"), Close: 50},
	}
	require.NoError(t, store.InsertBulk(ctx, bars))

	series, err := store.GetSeries(ctx, "005930", d("2024-01-02"), d("2024-01-03"))
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, 100.0, series[0].Close)
	assert.Equal(t, 105.0, series[1].Close)
}

func TestDailyBarStore_DuplicateFailsBatch(t *testing.T) {
	store := NewDailyBarStore()
	ctx := context.Background()

	require.NoError(t, store.InsertBulk(ctx, []*domain.DailyBar{
		{Code: "005930", Date: d("2024-01-02"), Close: 100},
	}))

	err := store.InsertBulk(ctx, []*domain.DailyBar{
		{Code: "005930", Date: d("2024-01-03"), Close: 105},
		{Code: "005930", Date: d("2024-01-02"), Close: 999},
	})
	require.ErrorIs(t, err, storage.ErrDuplicateKey)

	// Atomic: nothing from the failed batch is visible.
	series, err := store.GetSeries(ctx, "005930", d("2024-01-02"), d("2024-01-05"))
	require.NoError(t, err)
	assert.Len(t, series, 1)
}

func TestDailyBarStore_GetByDateSortedByCode(t *testing.T) {
	store := NewDailyBarStore()
	ctx := context.Background()

	require.NoError(t, store.InsertBulk(ctx, []*domain.DailyBar{
		{Code: "035720", Date: d("2024-01-02"), Close: 3},
		{Code: "000660", Date: d("2024-01-02"), Close: 1},
		{Code: "005930", Date: d("2024-01-02"), Close: 2},
	}))

	bars, err := store.GetByDate(ctx, d("2024-01-02"))
	require.NoError(t, err)
	require.Len(t, bars, 3)
	assert.Equal(t, "000660", bars[0].Code)
	assert.Equal(t, "005930", bars[1].Code)
	assert.Equal(t, "035720", bars[2].Code)
}

func TestDailyBarStore_TradingDates(t *testing.T) {
	store := NewDailyBarStore()
	ctx := context.Background()

	require.NoError(t, store.InsertBulk(ctx, []*domain.DailyBar{
		{Code: "A", Date: d("2024-01-03"), Close: 1},
		{Code: "B", Date: d("2024-01-03"), Close: 1},
		{Code: "A", Date: d("2024-01-02"), Close: 1},
	}))

	dates, err := store.TradingDates(ctx, d("2024-01-01"), d("2024-01-31"))
	require.NoError(t, err)
	require.Len(t, dates, 2)
	assert.True(t, dates[0].Equal(d("2024-01-02")))
	assert.True(t, dates[1].Equal(d("2024-01-03")))
}
