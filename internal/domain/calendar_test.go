package domain

import (
	"testing"
	"time"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func days(ss ...string) []time.Time {
	out := make([]time.Time, len(ss))
	for i, s := range ss {
		out[i] = day(s)
	}
	return out
}

func TestNewCalendar_RejectsEmptyAndUnsorted(t *testing.T) {
	if _, err := NewCalendar(nil); err != ErrEmptyCalendar {
		t.Errorf("expected ErrEmptyCalendar, got %v", err)
	}
	if _, err := NewCalendar(days("2024-01-03", "2024-01-02")); err != ErrUnsortedCalendar {
		t.Errorf("expected ErrUnsortedCalendar, got %v", err)
	}
	if _, err := NewCalendar(days("2024-01-02", "2024-01-02")); err != ErrUnsortedCalendar {
		t.Errorf("expected ErrUnsortedCalendar for duplicate date, got %v", err)
	}
}

func TestCalendar_HoldDays(t *testing.T) {
	cal, err := NewCalendar(days("2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05", "2024-01-08"))
	if err != nil {
		t.Fatalf("NewCalendar failed: %v", err)
	}

	// Weekend gap counts as one trading day step.
	hold, err := cal.HoldDays(day("2024-01-02"), day("2024-01-08"))
	if err != nil {
		t.Fatalf("HoldDays failed: %v", err)
	}
	if hold != 4 {
		t.Errorf("expected 4 hold days, got %d", hold)
	}

	// Bought today means zero hold days.
	hold, err = cal.HoldDays(day("2024-01-04"), day("2024-01-04"))
	if err != nil {
		t.Fatalf("HoldDays failed: %v", err)
	}
	if hold != 0 {
		t.Errorf("expected 0 hold days, got %d", hold)
	}

	if _, err := cal.HoldDays(day("2024-01-06"), day("2024-01-08")); err != ErrDateNotInRange {
		t.Errorf("expected ErrDateNotInRange for non-trading day, got %v", err)
	}
}

func TestCalendar_RebalanceBoundaries(t *testing.T) {
	// Tue 2024-01-30 .. Fri 2024-02-02, then Mon 2024-02-05.
	cal, err := NewCalendar(days(
		"2024-01-30", "2024-01-31", "2024-02-01", "2024-02-02", "2024-02-05",
	))
	if err != nil {
		t.Fatalf("NewCalendar failed: %v", err)
	}

	for i := 0; i < cal.Len(); i++ {
		if !cal.IsRebalanceDay(i, RebalanceDaily) {
			t.Errorf("daily: day %d should rebalance", i)
		}
	}

	// Weekly: first calendar entry, then Monday 02-05.
	wantWeekly := []bool{true, false, false, false, true}
	for i, want := range wantWeekly {
		if got := cal.IsRebalanceDay(i, RebalanceWeekly); got != want {
			t.Errorf("weekly: day %d got %v, want %v", i, got, want)
		}
	}

	// Monthly: first entry, then first trading day of February.
	wantMonthly := []bool{true, false, true, false, false}
	for i, want := range wantMonthly {
		if got := cal.IsRebalanceDay(i, RebalanceMonthly); got != want {
			t.Errorf("monthly: day %d got %v, want %v", i, got, want)
		}
	}
}
