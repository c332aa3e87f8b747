package domain

import "time"

// DailyBar is one day of adjusted OHLCV plus market cap for a stock.
// A stock with no bar on a date has no price that day and is excluded from
// the day's universe.
type DailyBar struct {
	Code      string
	Date      time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	MarketCap float64
}

// Statement is one periodic fundamental statement for a company. AsOf is the
// publication date; a statement is visible to the simulation only on trading
// days at or after AsOf.
type Statement struct {
	Code            string
	AsOf            time.Time
	Revenue         float64
	OperatingIncome float64
	NetIncome       float64
	Equity          float64
	Debt            float64
	SharesOut       float64
}
