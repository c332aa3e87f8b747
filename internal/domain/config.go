package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// RebalanceFrequency controls how often sell/buy evaluation runs.
type RebalanceFrequency string

// Rebalance frequencies.
const (
	RebalanceDaily   RebalanceFrequency = "DAILY"
	RebalanceWeekly  RebalanceFrequency = "WEEKLY"
	RebalanceMonthly RebalanceFrequency = "MONTHLY"
)

// PriceBasis selects the reference price for an execution.
type PriceBasis string

// Price bases.
const (
	BasisClose     PriceBasis = "close"
	BasisOpen      PriceBasis = "open"
	BasisPrevClose PriceBasis = "prev_close"
)

// UniverseFilter narrows the tradable stock set. Empty fields do not
// filter. Tickers, if set, is an explicit whitelist.
type UniverseFilter struct {
	Theme    string   `yaml:"theme"`
	Universe string   `yaml:"universe"`
	Tickers  []string `yaml:"tickers"`
}

// CanonicalKey renders the filter as a stable string for cache keying.
func (f UniverseFilter) CanonicalKey() string {
	tickers := make([]string, len(f.Tickers))
	copy(tickers, f.Tickers)
	sort.Strings(tickers)
	return fmt.Sprintf("theme=%s|universe=%s|tickers=%s",
		f.Theme, f.Universe, strings.Join(tickers, ","))
}

// SellRuleConfig parameterizes the sell-rule state machine. Immutable for
// the run. Zero TargetGainPct or StopLossPct disables that rule.
type SellRuleConfig struct {
	TargetGainPct      float64    `yaml:"target_gain_pct"`
	StopLossPct        float64    `yaml:"stop_loss_pct"`
	MinHoldDays        int        `yaml:"min_hold_days"`
	MaxHoldDays        int        `yaml:"max_hold_days"`
	SellPriceBasis     PriceBasis `yaml:"sell_price_basis"`
	SellPriceOffsetPct float64    `yaml:"sell_price_offset_pct"`

	// ConditionalSell, when non-empty, is an expression over
	// ConditionalSellConditions evaluated against the day's panel after
	// the price rules.
	ConditionalSell           string      `yaml:"conditional_sell"`
	ConditionalSellConditions []Condition `yaml:"conditional_sell_conditions"`
}

// Validate checks rule consistency. Violations are configuration errors:
// fatal, detected before the run starts.
func (c SellRuleConfig) Validate() error {
	if c.StopLossPct < 0 {
		return fmt.Errorf("sell rule: stop_loss_pct must be >= 0, got %v", c.StopLossPct)
	}
	if c.TargetGainPct < 0 {
		return fmt.Errorf("sell rule: target_gain_pct must be >= 0, got %v", c.TargetGainPct)
	}
	if c.MinHoldDays < 0 {
		return fmt.Errorf("sell rule: min_hold_days must be >= 0, got %d", c.MinHoldDays)
	}
	if c.MaxHoldDays > 0 && c.MinHoldDays > c.MaxHoldDays {
		return fmt.Errorf("sell rule: min_hold_days %d exceeds max_hold_days %d",
			c.MinHoldDays, c.MaxHoldDays)
	}
	if c.SellPriceBasis != "" {
		if err := validateBasis(c.SellPriceBasis); err != nil {
			return fmt.Errorf("sell rule: %w", err)
		}
	}
	return nil
}

// RunConfig is the external input contract for one simulation run.
type RunConfig struct {
	StartDate      time.Time `yaml:"-"`
	EndDate        time.Time `yaml:"-"`
	InitialCapital float64   `yaml:"initial_capital"`

	Filter UniverseFilter `yaml:"filter"`

	// Buy side
	BuyConditions  []Condition `yaml:"buy_conditions"`
	BuyExpression  string      `yaml:"buy_expression"`
	PriorityFactor string      `yaml:"priority_factor"`
	PriorityDesc   bool        `yaml:"priority_desc"`

	SellRule SellRuleConfig `yaml:"sell_rule"`

	Rebalance     RebalanceFrequency `yaml:"rebalance"`
	MaxPositions  int                `yaml:"max_positions"`
	PerStockRatio float64            `yaml:"per_stock_ratio"`
	MaxDailyStock int                `yaml:"max_daily_stock"`

	CommissionRate float64 `yaml:"commission_rate"`
	SlippageRate   float64 `yaml:"slippage_rate"`
	SellTaxRate    float64 `yaml:"sell_tax_rate"`

	BuyPriceBasis     PriceBasis `yaml:"buy_price_basis"`
	BuyPriceOffsetPct float64    `yaml:"buy_price_offset_pct"`

	RiskFreeRate float64 `yaml:"risk_free_rate"` // annual, for Sharpe
}

// Default values for all fields except dates and capital.
const (
	DefaultMaxPositions   = 10
	DefaultPerStockRatio  = 0.1
	DefaultMaxDailyStock  = 5
	DefaultCommissionRate = 0.00015
	DefaultSellTaxRate    = 0.0023
)

// ApplyDefaults fills unset optional fields with documented defaults.
func (c *RunConfig) ApplyDefaults() {
	if c.Rebalance == "" {
		c.Rebalance = RebalanceDaily
	}
	if c.MaxPositions == 0 {
		c.MaxPositions = DefaultMaxPositions
	}
	if c.PerStockRatio == 0 {
		c.PerStockRatio = DefaultPerStockRatio
	}
	if c.MaxDailyStock == 0 {
		c.MaxDailyStock = DefaultMaxDailyStock
	}
	if c.CommissionRate == 0 {
		c.CommissionRate = DefaultCommissionRate
	}
	if c.SellTaxRate == 0 {
		c.SellTaxRate = DefaultSellTaxRate
	}
	if c.BuyPriceBasis == "" {
		c.BuyPriceBasis = BasisClose
	}
	if c.SellRule.SellPriceBasis == "" {
		c.SellRule.SellPriceBasis = BasisClose
	}
}

// Validate checks the full configuration. Expression syntax is validated
// separately by the condition evaluator at compile time.
func (c *RunConfig) Validate() error {
	if c.StartDate.IsZero() || c.EndDate.IsZero() {
		return fmt.Errorf("config: start_date and end_date are required")
	}
	if c.EndDate.Before(c.StartDate) {
		return fmt.Errorf("config: end_date %s precedes start_date %s",
			c.EndDate.Format("2006-01-02"), c.StartDate.Format("2006-01-02"))
	}
	if c.InitialCapital <= 0 {
		return fmt.Errorf("config: initial_capital must be positive, got %v", c.InitialCapital)
	}
	switch c.Rebalance {
	case RebalanceDaily, RebalanceWeekly, RebalanceMonthly:
	default:
		return fmt.Errorf("config: unknown rebalance frequency %q", c.Rebalance)
	}
	if c.MaxPositions < 1 {
		return fmt.Errorf("config: max_positions must be >= 1, got %d", c.MaxPositions)
	}
	if c.PerStockRatio <= 0 || c.PerStockRatio > 1 {
		return fmt.Errorf("config: per_stock_ratio must be in (0, 1], got %v", c.PerStockRatio)
	}
	if c.MaxDailyStock < 1 {
		return fmt.Errorf("config: max_daily_stock must be >= 1, got %d", c.MaxDailyStock)
	}
	if c.CommissionRate < 0 || c.SlippageRate < 0 || c.SellTaxRate < 0 {
		return fmt.Errorf("config: commission, slippage and tax rates must be >= 0")
	}
	if err := validateBasis(c.BuyPriceBasis); err != nil {
		return fmt.Errorf("config: buy price basis: %w", err)
	}
	if len(c.BuyConditions) == 0 {
		return fmt.Errorf("config: at least one buy condition is required")
	}
	if c.BuyExpression == "" {
		return fmt.Errorf("config: buy_expression is required")
	}
	seen := make(map[string]struct{}, len(c.BuyConditions))
	for _, cond := range c.BuyConditions {
		if cond.ID == "" {
			return fmt.Errorf("config: buy condition with factor %q has empty id", cond.Factor)
		}
		if _, dup := seen[cond.ID]; dup {
			return fmt.Errorf("config: duplicate buy condition id %q", cond.ID)
		}
		seen[cond.ID] = struct{}{}
		if _, err := ParseOperator(string(cond.Op)); err != nil {
			return fmt.Errorf("config: buy condition %q: %w", cond.ID, err)
		}
	}
	return c.SellRule.Validate()
}

// FactorNames returns every factor referenced by the configuration, sorted
// and de-duplicated. The panel builder computes exactly this set per day.
func (c *RunConfig) FactorNames() []string {
	set := make(map[string]struct{})
	for _, cond := range c.BuyConditions {
		set[cond.Factor] = struct{}{}
	}
	for _, cond := range c.SellRule.ConditionalSellConditions {
		set[cond.Factor] = struct{}{}
	}
	if c.PriorityFactor != "" {
		set[c.PriorityFactor] = struct{}{}
	}
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// CanonicalString renders the configuration as a stable single-line string.
// Field order is fixed and slices are canonicalized, so two equal configs
// always render identically. Used to derive the run ID.
func (c *RunConfig) CanonicalString() string {
	var b strings.Builder
	fmt.Fprintf(&b, "start=%s|end=%s|capital=%g",
		c.StartDate.Format("2006-01-02"), c.EndDate.Format("2006-01-02"), c.InitialCapital)
	fmt.Fprintf(&b, "|filter=%s", c.Filter.CanonicalKey())
	for _, cond := range c.BuyConditions {
		fmt.Fprintf(&b, "|buy=%s:%s:%s:%g", cond.ID, cond.Factor, cond.Op, cond.Threshold)
	}
	fmt.Fprintf(&b, "|expr=%s|prio=%s:%t", c.BuyExpression, c.PriorityFactor, c.PriorityDesc)
	fmt.Fprintf(&b, "|sell=%g:%g:%d:%d:%s:%g:%s",
		c.SellRule.TargetGainPct, c.SellRule.StopLossPct,
		c.SellRule.MinHoldDays, c.SellRule.MaxHoldDays,
		c.SellRule.SellPriceBasis, c.SellRule.SellPriceOffsetPct,
		c.SellRule.ConditionalSell)
	for _, cond := range c.SellRule.ConditionalSellConditions {
		fmt.Fprintf(&b, "|sellcond=%s:%s:%s:%g", cond.ID, cond.Factor, cond.Op, cond.Threshold)
	}
	fmt.Fprintf(&b, "|rebalance=%s|maxpos=%d|ratio=%g|maxdaily=%d",
		c.Rebalance, c.MaxPositions, c.PerStockRatio, c.MaxDailyStock)
	fmt.Fprintf(&b, "|fees=%g:%g:%g", c.CommissionRate, c.SlippageRate, c.SellTaxRate)
	fmt.Fprintf(&b, "|buyprice=%s:%g|rf=%g", c.BuyPriceBasis, c.BuyPriceOffsetPct, c.RiskFreeRate)
	return b.String()
}

func validateBasis(b PriceBasis) error {
	switch b {
	case BasisClose, BasisOpen, BasisPrevClose:
		return nil
	}
	return fmt.Errorf("unknown price basis %q", b)
}
