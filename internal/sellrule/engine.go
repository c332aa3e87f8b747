// Package sellrule decides, per position per day, whether to exit and at
// what price. Rules are evaluated in a fixed order and at most one fires.
package sellrule

import (
	"fmt"

	"stocklab/internal/domain"
	"stocklab/internal/expr"
)

// Decision is a sell order for one position.
type Decision struct {
	Price  float64
	Reason string
}

// Engine evaluates the configured sell rules. Rule order is fixed:
//
//  1. max-hold: hold_days >= max_hold_days sells unconditionally at the
//     configured price basis.
//  2. min-hold gate: hold_days < min_hold_days protects the position from
//     every remaining rule.
//  3. stop-loss: the day's low touching avg*(1-stop/100) sells at that
//     theoretical price, so the recorded return is exactly -stop%.
//  4. target-gain: the day's high touching avg*(1+target/100) sells at
//     that theoretical price.
//  5. conditional: the configured expression over the day's factor panel.
//
// The engine is stateless between calls and safe for concurrent use.
type Engine struct {
	cfg  domain.SellRuleConfig
	cond *expr.Compiled
}

// New compiles the conditional-sell expression (if any) and returns an
// engine. Configuration errors are fatal and reported before any run step.
func New(cfg domain.SellRuleConfig, compiler *expr.Compiler) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{cfg: cfg}
	if cfg.ConditionalSell != "" {
		if compiler == nil {
			compiler = expr.NewCompiler()
		}
		compiled, err := compiler.Compile(cfg.ConditionalSell, cfg.ConditionalSellConditions)
		if err != nil {
			return nil, fmt.Errorf("sell rule: conditional expression: %w", err)
		}
		e.cond = compiled
	}
	return e, nil
}

// NeedsPanel reports whether Evaluate requires a factor panel for the day.
func (e *Engine) NeedsPanel() bool {
	return e.cond != nil
}

// Evaluate runs the rule chain for one position on one day. bar is the
// position's bar for the day, prevClose the previous trading day's close
// (zero if unknown), panel the day's factor panel (may be nil when
// NeedsPanel is false). holdDays counts trading days since the buy.
//
// A zero or negative average buy price makes profit percentages
// meaningless, so the position is skipped rather than producing NaN.
func (e *Engine) Evaluate(pos domain.Position, holdDays int, bar *domain.DailyBar, prevClose float64, panel *domain.FactorPanel) (Decision, bool) {
	if bar == nil || pos.AvgBuyPrice <= 0 {
		return Decision{}, false
	}

	if e.cfg.MaxHoldDays > 0 && holdDays >= e.cfg.MaxHoldDays {
		if price, ok := e.exitPrice(bar, prevClose); ok {
			return Decision{Price: price, Reason: domain.ReasonMaxHold}, true
		}
		return Decision{}, false
	}

	if holdDays < e.cfg.MinHoldDays {
		return Decision{}, false
	}

	if e.cfg.StopLossPct > 0 {
		lowProfitPct := (bar.Low/pos.AvgBuyPrice - 1) * 100
		if lowProfitPct <= -e.cfg.StopLossPct {
			price := pos.AvgBuyPrice * (1 - e.cfg.StopLossPct/100)
			return Decision{Price: price, Reason: domain.ReasonStopLoss}, true
		}
	}

	if e.cfg.TargetGainPct > 0 {
		highProfitPct := (bar.High/pos.AvgBuyPrice - 1) * 100
		if highProfitPct >= e.cfg.TargetGainPct {
			price := pos.AvgBuyPrice * (1 + e.cfg.TargetGainPct/100)
			return Decision{Price: price, Reason: domain.ReasonTargetGain}, true
		}
	}

	if e.cond != nil && panel != nil {
		row, ok := panel.Row(pos.Code)
		if ok {
			mask := e.cond.Mask(panel)
			if mask[row] {
				if price, priced := e.exitPrice(bar, prevClose); priced {
					return Decision{Price: price, Reason: domain.ReasonConditional}, true
				}
			}
		}
	}

	return Decision{}, false
}

// exitPrice resolves the configured sell price basis plus offset. Returns
// false when the basis price is unavailable or non-positive.
func (e *Engine) exitPrice(bar *domain.DailyBar, prevClose float64) (float64, bool) {
	var base float64
	switch e.cfg.SellPriceBasis {
	case domain.BasisOpen:
		base = bar.Open
	case domain.BasisPrevClose:
		base = prevClose
	default:
		base = bar.Close
	}
	if base <= 0 {
		return 0, false
	}
	price := base * (1 + e.cfg.SellPriceOffsetPct/100)
	if price <= 0 {
		return 0, false
	}
	return price, true
}
