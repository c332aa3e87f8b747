package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stocklab/internal/domain"
	"stocklab/internal/storage"
	"stocklab/internal/storage/postgres"
)

func TestTradeStore_InsertBulkAndGetByRunID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewTradeStore(pool)

	// Inserted out of (date, code, side) order on purpose.
	trades := []*domain.Trade{
		{TradeID: "t3", RunID: "run1", Date: date(2024, time.June, 5), Code: "005930",
			Side: domain.SideSell, Quantity: 10, Price: 1210, Reason: domain.ReasonTargetGain, HoldDays: 2},
		{TradeID: "t1", RunID: "run1", Date: date(2024, time.June, 3), Code: "005930",
			Side: domain.SideBuy, Quantity: 10, Price: 1000, Reason: domain.ReasonBuySignal},
		{TradeID: "t2", RunID: "run1", Date: date(2024, time.June, 3), Code: "000660",
			Side: domain.SideBuy, Quantity: 5, Price: 2000, Reason: domain.ReasonBuySignal},
		{TradeID: "x1", RunID: "run2", Date: date(2024, time.June, 3), Code: "005930",
			Side: domain.SideBuy, Quantity: 1, Price: 999, Reason: domain.ReasonBuySignal},
	}
	require.NoError(t, store.InsertBulk(ctx, trades))

	got, err := store.GetByRunID(ctx, "run1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "t2", got[0].TradeID)
	assert.Equal(t, "t1", got[1].TradeID)
	assert.Equal(t, "t3", got[2].TradeID)

	assert.Equal(t, int64(5), got[0].Quantity)
	assert.Equal(t, 2000.0, got[0].Price)
	assert.Equal(t, 2, got[2].HoldDays)
	assert.True(t, got[2].Date.Equal(date(2024, time.June, 5)))

	got, err = store.GetByRunID(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestTradeStore_DuplicateTradeIDFailsBatch(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewTradeStore(pool)

	first := &domain.Trade{TradeID: "t1", RunID: "run1", Date: date(2024, time.June, 3),
		Code: "005930", Side: domain.SideBuy, Quantity: 10, Price: 1000, Reason: domain.ReasonBuySignal}
	require.NoError(t, store.InsertBulk(ctx, []*domain.Trade{first}))

	batch := []*domain.Trade{
		{TradeID: "t2", RunID: "run1", Date: date(2024, time.June, 4),
			Code: "005930", Side: domain.SideBuy, Quantity: 10, Price: 1010, Reason: domain.ReasonBuySignal},
		first, // duplicate
	}
	err := store.InsertBulk(ctx, batch)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	// The transaction rolled back: t2 must not be visible.
	got, err := store.GetByRunID(ctx, "run1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "t1", got[0].TradeID)
}

func TestResultStore_RoundTrip(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewResultStore(pool)

	stats := &domain.Statistics{
		RunID: "run1", TotalReturnPct: 21, CAGRPct: 10.5, MaxDrawdownPct: -25,
		AnnualVolPct: 18.2, Sharpe: 0.9, WinRate: 50, ProfitFactor: 2,
		TotalTrades: 5, CompletedTrades: 2, GrossProfit: 400, GrossLoss: 200,
		FinalValue: 121_000,
	}
	require.NoError(t, store.Insert(ctx, stats))

	got, err := store.GetByRunID(ctx, "run1")
	require.NoError(t, err)
	assert.Equal(t, stats, got)

	assert.ErrorIs(t, store.Insert(ctx, stats), storage.ErrDuplicateKey)

	_, err = store.GetByRunID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
