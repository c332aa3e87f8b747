// Package stats reduces a finished run's snapshot sequence and trade list
// to summary statistics.
package stats

import (
	"math"

	"stocklab/internal/domain"
)

const tradingDaysPerYear = 252

// Options tunes the computation.
type Options struct {
	// RiskFreeRate is the annual risk-free rate for the Sharpe ratio.
	RiskFreeRate float64
}

// Compute derives statistics from the ordered snapshot sequence and trade
// list. Snapshots must be in date order with index 0 the first trading
// day. Degenerate inputs (no snapshots, no sells, zero volatility) yield
// zero-valued fields, never NaN or Inf.
func Compute(initialCapital float64, snapshots []*domain.Snapshot, trades []*domain.Trade, opts Options) *domain.Statistics {
	st := &domain.Statistics{}
	if len(snapshots) == 0 || initialCapital <= 0 {
		return st
	}
	st.RunID = snapshots[0].RunID

	final := snapshots[len(snapshots)-1].TotalValue
	st.FinalValue = final
	st.TotalReturnPct = (final/initialCapital - 1) * 100
	st.CAGRPct = cagr(initialCapital, snapshots) * 100
	st.MaxDrawdownPct = maxDrawdown(snapshots) * 100

	daily := dailyReturns(snapshots)
	vol := stddev(daily)
	st.AnnualVolPct = vol * math.Sqrt(tradingDaysPerYear) * 100
	st.Sharpe = sharpe(daily, vol, opts.RiskFreeRate)

	st.TotalTrades = len(trades)
	fillTradeStats(st, trades)
	return st
}

// cagr annualizes over actual elapsed calendar days, not trading days.
func cagr(initialCapital float64, snapshots []*domain.Snapshot) float64 {
	first := snapshots[0].Date
	last := snapshots[len(snapshots)-1].Date
	days := last.Sub(first).Hours() / 24
	if days < 1 {
		days = 1
	}
	final := snapshots[len(snapshots)-1].TotalValue
	if final <= 0 {
		return -1
	}
	return math.Pow(final/initialCapital, 365.0/days) - 1
}

func maxDrawdown(snapshots []*domain.Snapshot) float64 {
	peak := snapshots[0].TotalValue
	worst := 0.0
	for _, s := range snapshots {
		if s.TotalValue > peak {
			peak = s.TotalValue
		}
		if peak > 0 {
			dd := s.TotalValue/peak - 1
			if dd < worst {
				worst = dd
			}
		}
	}
	return worst
}

func dailyReturns(snapshots []*domain.Snapshot) []float64 {
	returns := make([]float64, len(snapshots))
	for i, s := range snapshots {
		returns[i] = s.DailyReturn
	}
	return returns
}

// sharpe is mean daily excess return over daily volatility, annualized.
// Zero volatility yields zero, not Inf.
func sharpe(daily []float64, dailyVol, riskFreeRate float64) float64 {
	if len(daily) == 0 || dailyVol == 0 {
		return 0
	}
	mean := 0.0
	for _, r := range daily {
		mean += r
	}
	mean /= float64(len(daily))
	dailyRF := riskFreeRate / tradingDaysPerYear
	return (mean - dailyRF) / dailyVol * math.Sqrt(tradingDaysPerYear)
}

// fillTradeStats computes win rate and profit factor over completed sell
// trades only. A sell is paired with the most recent preceding buy for the
// same code; positions are always liquidated whole, so the pairing is
// unambiguous.
func fillTradeStats(st *domain.Statistics, trades []*domain.Trade) {
	// lastBuy tracks the most recent open buy per code, in trade order.
	lastBuy := make(map[string]*domain.Trade)
	wins := 0
	for _, t := range trades {
		switch t.Side {
		case domain.SideBuy:
			lastBuy[t.Code] = t
		case domain.SideSell:
			buy, ok := lastBuy[t.Code]
			if !ok {
				continue
			}
			delete(lastBuy, t.Code)
			st.CompletedTrades++
			pnl := (t.Price - buy.Price) * float64(t.Quantity)
			if pnl > 0 {
				wins++
				st.GrossProfit += pnl
			} else {
				st.GrossLoss += -pnl
			}
		}
	}
	if st.CompletedTrades > 0 {
		st.WinRate = float64(wins) / float64(st.CompletedTrades) * 100
	}
	// Without losing trades the ratio is undefined; report zero rather
	// than letting Inf reach persistence.
	if st.GrossLoss > 0 {
		st.ProfitFactor = st.GrossProfit / st.GrossLoss
	}
}

// stddev is the sample standard deviation.
func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	sumSq := 0.0
	for _, x := range xs {
		d := x - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs)-1))
}
