package domain

import (
	"errors"
	"time"
)

// Calendar errors.
var (
	ErrEmptyCalendar    = errors.New("trading calendar is empty")
	ErrDateNotInRange   = errors.New("date not contained in trading calendar")
	ErrUnsortedCalendar = errors.New("trading calendar dates must be strictly ascending")
)

// Calendar is the ordered sequence of trading days for a run. It is
// immutable after construction and drives every iteration boundary.
type Calendar struct {
	days  []time.Time
	index map[int64]int // unix day -> position
}

// NewCalendar builds a calendar from strictly ascending dates. Dates are
// normalized to UTC midnight.
func NewCalendar(dates []time.Time) (*Calendar, error) {
	if len(dates) == 0 {
		return nil, ErrEmptyCalendar
	}

	days := make([]time.Time, len(dates))
	index := make(map[int64]int, len(dates))
	for i, d := range dates {
		day := Midnight(d)
		if i > 0 && !days[i-1].Before(day) {
			return nil, ErrUnsortedCalendar
		}
		days[i] = day
		index[day.Unix()] = i
	}

	return &Calendar{days: days, index: index}, nil
}

// Midnight truncates a timestamp to its UTC date.
func Midnight(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Len returns the number of trading days.
func (c *Calendar) Len() int {
	return len(c.days)
}

// At returns the trading day at position i.
func (c *Calendar) At(i int) time.Time {
	return c.days[i]
}

// Days returns a copy of all trading days in order.
func (c *Calendar) Days() []time.Time {
	out := make([]time.Time, len(c.days))
	copy(out, c.days)
	return out
}

// Index returns the position of a trading day.
func (c *Calendar) Index(date time.Time) (int, error) {
	i, ok := c.index[Midnight(date).Unix()]
	if !ok {
		return 0, ErrDateNotInRange
	}
	return i, nil
}

// HoldDays returns the number of trading days between a buy date and today.
// A position bought today has zero hold days.
func (c *Calendar) HoldDays(buyDate, today time.Time) (int, error) {
	bi, err := c.Index(buyDate)
	if err != nil {
		return 0, err
	}
	ti, err := c.Index(today)
	if err != nil {
		return 0, err
	}
	return ti - bi, nil
}

// IsRebalanceDay reports whether the day at position i opens a new rebalance
// window for the given frequency. Weekly windows open on the first trading
// day of an ISO week, monthly windows on the first trading day of a month.
func (c *Calendar) IsRebalanceDay(i int, freq RebalanceFrequency) bool {
	switch freq {
	case RebalanceWeekly:
		if i == 0 {
			return true
		}
		py, pw := c.days[i-1].ISOWeek()
		cy, cw := c.days[i].ISOWeek()
		return py != cy || pw != cw
	case RebalanceMonthly:
		if i == 0 {
			return true
		}
		return c.days[i-1].Month() != c.days[i].Month() ||
			c.days[i-1].Year() != c.days[i].Year()
	default: // RebalanceDaily
		return true
	}
}
