// Package factor builds the daily cross-sectional factor panel: one row per
// eligible stock, one numeric column per requested factor.
package factor

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"stocklab/internal/domain"
)

// ErrUnknownFactor marks a factor name no builder recognizes. It is a
// configuration error, surfaced before the run starts.
var ErrUnknownFactor = errors.New("unknown factor")

// kind enumerates factor families.
type kind int

const (
	kindClose kind = iota
	kindVolume
	kindMarketCap
	kindPER
	kindPBR
	kindROE
	kindOpMargin
	kindDebtRatio
	kindMomentum
	kindMovingAvg
	kindVolatility
)

// spec describes one parsed factor request.
type spec struct {
	name   string
	kind   kind
	window int  // minimum bars of history required
	funda  bool // needs a fundamental statement
}

// parseSpec resolves a factor name. Windowed families carry their window as
// a suffix: momentum_240, ma_20, volatility_60.
func parseSpec(name string) (spec, error) {
	switch name {
	case "close":
		return spec{name: name, kind: kindClose, window: 1}, nil
	case "volume":
		return spec{name: name, kind: kindVolume, window: 1}, nil
	case "market_cap":
		return spec{name: name, kind: kindMarketCap, window: 1}, nil
	case "per":
		return spec{name: name, kind: kindPER, window: 1, funda: true}, nil
	case "pbr":
		return spec{name: name, kind: kindPBR, window: 1, funda: true}, nil
	case "roe":
		return spec{name: name, kind: kindROE, window: 1, funda: true}, nil
	case "op_margin":
		return spec{name: name, kind: kindOpMargin, window: 1, funda: true}, nil
	case "debt_ratio":
		return spec{name: name, kind: kindDebtRatio, window: 1, funda: true}, nil
	}

	for prefix, k := range map[string]kind{
		"momentum_":   kindMomentum,
		"ma_":         kindMovingAvg,
		"volatility_": kindVolatility,
	} {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(name, prefix))
		if err != nil || n < 1 {
			return spec{}, fmt.Errorf("%w: %q has an invalid window", ErrUnknownFactor, name)
		}
		window := n
		if k == kindMomentum || k == kindVolatility {
			// A return over N days needs N+1 closes.
			window = n + 1
		}
		return spec{name: name, kind: k, window: window}, nil
	}

	return spec{}, fmt.Errorf("%w: %q", ErrUnknownFactor, name)
}

// Validate checks that every requested factor name is recognized.
func Validate(names []string) error {
	for _, name := range names {
		if _, err := parseSpec(name); err != nil {
			return err
		}
	}
	return nil
}

// compute evaluates one factor for one stock. series is the stock's bar
// history sorted by date ascending and ending on the panel date; stmt is
// the latest visible statement, or nil. Insufficient history or missing
// fundamentals yield Undefined, never zero.
func compute(sp spec, series []*domain.DailyBar, stmt *domain.Statement) domain.Value {
	if len(series) < sp.window || len(series) == 0 {
		return domain.Undefined()
	}
	last := series[len(series)-1]

	switch sp.kind {
	case kindClose:
		return domain.Defined(last.Close)
	case kindVolume:
		return domain.Defined(last.Volume)
	case kindMarketCap:
		if last.MarketCap <= 0 {
			return domain.Undefined()
		}
		return domain.Defined(last.MarketCap)

	case kindPER:
		if stmt == nil {
			return domain.NotApplicable()
		}
		if last.MarketCap <= 0 || stmt.NetIncome <= 0 {
			return domain.Undefined()
		}
		return domain.Defined(last.MarketCap / stmt.NetIncome)
	case kindPBR:
		if stmt == nil {
			return domain.NotApplicable()
		}
		if last.MarketCap <= 0 || stmt.Equity <= 0 {
			return domain.Undefined()
		}
		return domain.Defined(last.MarketCap / stmt.Equity)
	case kindROE:
		if stmt == nil {
			return domain.NotApplicable()
		}
		if stmt.Equity <= 0 {
			return domain.Undefined()
		}
		return domain.Defined(stmt.NetIncome / stmt.Equity * 100)
	case kindOpMargin:
		if stmt == nil {
			return domain.NotApplicable()
		}
		if stmt.Revenue <= 0 {
			return domain.Undefined()
		}
		return domain.Defined(stmt.OperatingIncome / stmt.Revenue * 100)
	case kindDebtRatio:
		if stmt == nil {
			return domain.NotApplicable()
		}
		if stmt.Equity <= 0 {
			return domain.Undefined()
		}
		return domain.Defined(stmt.Debt / stmt.Equity * 100)

	case kindMomentum:
		base := series[len(series)-sp.window].Close
		if base <= 0 {
			return domain.Undefined()
		}
		return domain.Defined((last.Close/base - 1) * 100)
	case kindMovingAvg:
		sum := 0.0
		for _, b := range series[len(series)-sp.window:] {
			sum += b.Close
		}
		return domain.Defined(sum / float64(sp.window))
	case kindVolatility:
		tail := series[len(series)-sp.window:]
		returns := make([]float64, 0, len(tail)-1)
		for i := 1; i < len(tail); i++ {
			if tail[i-1].Close <= 0 {
				return domain.Undefined()
			}
			returns = append(returns, tail[i].Close/tail[i-1].Close-1)
		}
		return domain.Defined(stddev(returns) * 100)
	}

	return domain.Undefined()
}

// stddev is the sample standard deviation (n-1 denominator).
func stddev(xs []float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= float64(n)

	sumSq := 0.0
	for _, x := range xs {
		diff := x - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(n-1))
}
