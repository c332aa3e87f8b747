// Package reporting renders a finished run's records as Markdown and CSV.
package reporting

import (
	"time"

	"stocklab/internal/domain"
)

// Report is the renderable view of one completed run.
type Report struct {
	// Metadata
	GeneratedAt time.Time
	RunID       string

	// Run span
	StartDate   time.Time
	EndDate     time.Time
	TradingDays int

	Statistics *domain.Statistics

	// EquityCurve rows, sorted by date ascending.
	EquityCurve []EquityPoint

	// Trades sorted by (date, code, side).
	Trades []*domain.Trade
}

// EquityPoint is one row of the equity curve table.
type EquityPoint struct {
	Date          time.Time
	Cash          float64
	PositionValue float64
	TotalValue    float64
	DailyReturn   float64
	CumReturn     float64
	PositionCount int
}
