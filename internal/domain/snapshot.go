package domain

import "time"

// Snapshot is the end-of-day portfolio state. One snapshot exists per
// trading day, appended in date order; the sequence is the sole input to
// the statistics engine.
type Snapshot struct {
	RunID         string
	Date          time.Time
	Cash          float64
	PositionValue float64
	TotalValue    float64
	DailyReturn   float64 // fraction, not percent
	CumReturn     float64 // fraction relative to initial capital
	PositionCount int
}

// Statistics summarizes a completed run.
type Statistics struct {
	RunID string

	TotalReturnPct  float64
	CAGRPct         float64 // annualized over actual calendar days
	MaxDrawdownPct  float64
	AnnualVolPct    float64 // stdev of daily returns x sqrt(252)
	Sharpe          float64
	WinRate         float64 // over completed sell trades
	ProfitFactor    float64 // gross profit / gross loss
	TotalTrades     int
	CompletedTrades int // sell trades
	GrossProfit     float64
	GrossLoss       float64
	FinalValue      float64
}

// ProgressUpdate is an incremental status report emitted while a run is in
// flight. Updates are emitted at a bounded cadence, not every day.
type ProgressUpdate struct {
	RunID         string
	Date          time.Time
	PercentDone   float64
	TotalValue    float64
	CumReturnPct  float64
	TradeCount    int
	PositionCount int
}
