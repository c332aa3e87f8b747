// Package verification checks the determinism contract: re-running a
// configuration must reproduce the stored trades and statistics exactly.
package verification

import (
	"math"

	"stocklab/internal/domain"
)

// FloatTolerance is the tolerance for float64 comparisons.
const FloatTolerance = 1e-9

// FieldDivergence represents a mismatch between stored and replayed values.
type FieldDivergence struct {
	Field    string      // field name
	Expected interface{} // stored value
	Actual   interface{} // replayed value
}

// TradeResult contains the result of verifying a single trade.
type TradeResult struct {
	TradeID     string
	Match       bool
	Divergences []FieldDivergence
}

// Report contains results for verifying one run.
type Report struct {
	RunID           string
	Match           bool
	TotalTrades     int
	MatchedTrades   int
	DivergentTrades int
	TradeResults    []TradeResult
	StatDivergences []FieldDivergence
}

// CompareTrades compares two trade records and returns divergences.
// Uses FloatTolerance for float64 comparisons.
func CompareTrades(stored, replayed *domain.Trade) []FieldDivergence {
	var divergences []FieldDivergence

	if stored.TradeID != replayed.TradeID {
		divergences = append(divergences, FieldDivergence{
			Field:    "TradeID",
			Expected: stored.TradeID,
			Actual:   replayed.TradeID,
		})
	}

	if !stored.Date.Equal(replayed.Date) {
		divergences = append(divergences, FieldDivergence{
			Field:    "Date",
			Expected: stored.Date,
			Actual:   replayed.Date,
		})
	}

	if stored.Code != replayed.Code {
		divergences = append(divergences, FieldDivergence{
			Field:    "Code",
			Expected: stored.Code,
			Actual:   replayed.Code,
		})
	}

	if stored.Side != replayed.Side {
		divergences = append(divergences, FieldDivergence{
			Field:    "Side",
			Expected: stored.Side,
			Actual:   replayed.Side,
		})
	}

	if stored.Quantity != replayed.Quantity {
		divergences = append(divergences, FieldDivergence{
			Field:    "Quantity",
			Expected: stored.Quantity,
			Actual:   replayed.Quantity,
		})
	}

	if !floatEquals(stored.Price, replayed.Price) {
		divergences = append(divergences, FieldDivergence{
			Field:    "Price",
			Expected: stored.Price,
			Actual:   replayed.Price,
		})
	}

	if stored.Reason != replayed.Reason {
		divergences = append(divergences, FieldDivergence{
			Field:    "Reason",
			Expected: stored.Reason,
			Actual:   replayed.Reason,
		})
	}

	if stored.HoldDays != replayed.HoldDays {
		divergences = append(divergences, FieldDivergence{
			Field:    "HoldDays",
			Expected: stored.HoldDays,
			Actual:   replayed.HoldDays,
		})
	}

	return divergences
}

// CompareStatistics compares two statistics records field by field.
func CompareStatistics(stored, replayed *domain.Statistics) []FieldDivergence {
	var divergences []FieldDivergence

	floats := []struct {
		field            string
		stored, replayed float64
	}{
		{"TotalReturnPct", stored.TotalReturnPct, replayed.TotalReturnPct},
		{"CAGRPct", stored.CAGRPct, replayed.CAGRPct},
		{"MaxDrawdownPct", stored.MaxDrawdownPct, replayed.MaxDrawdownPct},
		{"AnnualVolPct", stored.AnnualVolPct, replayed.AnnualVolPct},
		{"Sharpe", stored.Sharpe, replayed.Sharpe},
		{"WinRate", stored.WinRate, replayed.WinRate},
		{"ProfitFactor", stored.ProfitFactor, replayed.ProfitFactor},
		{"GrossProfit", stored.GrossProfit, replayed.GrossProfit},
		{"GrossLoss", stored.GrossLoss, replayed.GrossLoss},
		{"FinalValue", stored.FinalValue, replayed.FinalValue},
	}
	for _, f := range floats {
		if !floatEquals(f.stored, f.replayed) {
			divergences = append(divergences, FieldDivergence{
				Field:    f.field,
				Expected: f.stored,
				Actual:   f.replayed,
			})
		}
	}

	if stored.TotalTrades != replayed.TotalTrades {
		divergences = append(divergences, FieldDivergence{
			Field:    "TotalTrades",
			Expected: stored.TotalTrades,
			Actual:   replayed.TotalTrades,
		})
	}

	if stored.CompletedTrades != replayed.CompletedTrades {
		divergences = append(divergences, FieldDivergence{
			Field:    "CompletedTrades",
			Expected: stored.CompletedTrades,
			Actual:   replayed.CompletedTrades,
		})
	}

	return divergences
}

// floatEquals compares two float64 values with tolerance.
func floatEquals(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	return math.Abs(a-b) <= FloatTolerance
}
