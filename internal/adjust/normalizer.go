// Package adjust retroactively corrects historical price discontinuities
// caused by corporate actions, so prices are comparable across the whole
// backtest window.
package adjust

import (
	"sort"
	"time"

	"stocklab/internal/domain"
)

// DefaultThreshold flags any day-over-day move above 50% as a suspected
// corporate action.
const DefaultThreshold = 0.5

// Event is one detected price discontinuity.
type Event struct {
	Code  string
	Date  time.Time
	Ratio float64 // close[D] / close[D-1]
}

// Normalizer detects and corrects corporate-action discontinuities.
type Normalizer struct {
	threshold float64
}

// New creates a Normalizer. A non-positive threshold falls back to the
// default.
func New(threshold float64) *Normalizer {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Normalizer{threshold: threshold}
}

// Detect scans one stock's series, sorted by date ascending, and returns
// discontinuity events in descending date order. Descending order is the
// required application order when a stock has clustered events: correcting
// the latest event first keeps earlier corrections from being re-scaled by
// an already-absorbed one.
func (n *Normalizer) Detect(series []*domain.DailyBar) []Event {
	var events []Event
	for i := 1; i < len(series); i++ {
		prev, cur := series[i-1], series[i]
		if prev.Close <= 0 || cur.Close <= 0 {
			continue
		}
		change := cur.Close/prev.Close - 1
		if change > n.threshold || change < -n.threshold {
			events = append(events, Event{
				Code:  cur.Code,
				Date:  cur.Date,
				Ratio: cur.Close / prev.Close,
			})
		}
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].Date.After(events[j].Date)
	})
	return events
}

// AdjustSeries corrects one stock's series in place and returns the events
// applied. The series must be sorted by date ascending. For each event at
// date D every OHLC field strictly before D is scaled by the event ratio,
// closing the discontinuity while leaving the event-day price unchanged.
// Running the normalizer on already-adjusted data detects nothing and
// changes nothing.
func (n *Normalizer) AdjustSeries(series []*domain.DailyBar) []Event {
	events := n.Detect(series)
	for _, ev := range events {
		scaleBefore(series, ev.Date, ev.Ratio)
	}
	return events
}

// Adjust groups bars by stock code and corrects each series independently.
// Input bars may arrive in any order; output is sorted by (code, date) for
// deterministic downstream iteration.
func (n *Normalizer) Adjust(bars []*domain.DailyBar) []Event {
	sort.Slice(bars, func(i, j int) bool {
		if bars[i].Code != bars[j].Code {
			return bars[i].Code < bars[j].Code
		}
		return bars[i].Date.Before(bars[j].Date)
	})

	var events []Event
	start := 0
	for i := 1; i <= len(bars); i++ {
		if i == len(bars) || bars[i].Code != bars[start].Code {
			events = append(events, n.AdjustSeries(bars[start:i])...)
			start = i
		}
	}
	return events
}

// scaleBefore multiplies OHLC on all dates strictly before cutoff. Volume
// and market cap are left alone: the cap already reflects the action and
// volume is not price-denominated.
func scaleBefore(series []*domain.DailyBar, cutoff time.Time, ratio float64) {
	for _, bar := range series {
		if !bar.Date.Before(cutoff) {
			continue
		}
		bar.Open *= ratio
		bar.High *= ratio
		bar.Low *= ratio
		bar.Close *= ratio
	}
}
