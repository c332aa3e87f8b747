package domain

import "time"

// Side distinguishes buy and sell executions.
type Side string

// Trade sides.
const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Trade reason codes.
const (
	ReasonBuySignal   = "buy_signal"
	ReasonMaxHold     = "max_hold"
	ReasonStopLoss    = "stop_loss"
	ReasonTargetGain  = "target_gain"
	ReasonConditional = "conditional"
)

// Trade is an immutable execution record. Exactly one trade exists per
// executed order; no signal may emit more than one trade for the same
// (date, code, side).
type Trade struct {
	TradeID  string
	RunID    string
	Date     time.Time
	Code     string
	Side     Side
	Quantity int64
	Price    float64
	Reason   string
	HoldDays int // populated on sells
}

// Position is an open holding. It is owned exclusively by the portfolio
// manager: created on a buy, merged on additional buys via weighted-average
// price, and removed whole on a sell. Partial liquidation does not exist.
type Position struct {
	Code        string
	Quantity    int64
	AvgBuyPrice float64
	BuyDate     time.Time
	EntryReason string
}

// MarketValue returns quantity times the given price.
func (p Position) MarketValue(price float64) float64 {
	return float64(p.Quantity) * price
}

// Merge folds an additional buy into the position with a weighted-average
// price. BuyDate keeps the original entry date.
func (p Position) Merge(quantity int64, price float64) Position {
	total := p.Quantity + quantity
	if total <= 0 {
		return p
	}
	avg := (p.AvgBuyPrice*float64(p.Quantity) + price*float64(quantity)) / float64(total)
	p.Quantity = total
	p.AvgBuyPrice = avg
	return p
}
