package domain

import (
	"strings"
	"testing"
)

func validRunConfig() RunConfig {
	cfg := RunConfig{
		StartDate:      day("2024-01-02"),
		EndDate:        day("2024-06-28"),
		InitialCapital: 10_000_000,
		BuyConditions: []Condition{
			{ID: "A", Factor: "per", Op: OpLT, Threshold: 10},
		},
		BuyExpression: "A",
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestRunConfig_Defaults(t *testing.T) {
	cfg := validRunConfig()

	if cfg.Rebalance != RebalanceDaily {
		t.Errorf("default rebalance: got %s", cfg.Rebalance)
	}
	if cfg.MaxPositions != DefaultMaxPositions {
		t.Errorf("default max_positions: got %d", cfg.MaxPositions)
	}
	if cfg.PerStockRatio != DefaultPerStockRatio {
		t.Errorf("default per_stock_ratio: got %v", cfg.PerStockRatio)
	}
	if cfg.CommissionRate != DefaultCommissionRate {
		t.Errorf("default commission_rate: got %v", cfg.CommissionRate)
	}
	if cfg.BuyPriceBasis != BasisClose {
		t.Errorf("default buy price basis: got %s", cfg.BuyPriceBasis)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestRunConfig_ValidateDiagnostics(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*RunConfig)
		wantMsg string
	}{
		{
			name:    "min hold above max hold",
			mutate:  func(c *RunConfig) { c.SellRule.MinHoldDays = 10; c.SellRule.MaxHoldDays = 5 },
			wantMsg: "min_hold_days 10 exceeds max_hold_days 5",
		},
		{
			name:    "bad rebalance",
			mutate:  func(c *RunConfig) { c.Rebalance = "HOURLY" },
			wantMsg: "rebalance",
		},
		{
			name:    "duplicate condition id",
			mutate:  func(c *RunConfig) { c.BuyConditions = append(c.BuyConditions, c.BuyConditions[0]) },
			wantMsg: `duplicate buy condition id "A"`,
		},
		{
			name:    "bad operator",
			mutate:  func(c *RunConfig) { c.BuyConditions[0].Op = "!=" },
			wantMsg: "unknown operator",
		},
		{
			name:    "inverted dates",
			mutate:  func(c *RunConfig) { c.EndDate = day("2023-01-01") },
			wantMsg: "precedes start_date",
		},
		{
			name:    "bad buy basis",
			mutate:  func(c *RunConfig) { c.BuyPriceBasis = "vwap" },
			wantMsg: `unknown price basis "vwap"`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validRunConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Errorf("error %q does not mention %q", err, tc.wantMsg)
			}
		})
	}
}

func TestRunConfig_FactorNames(t *testing.T) {
	cfg := validRunConfig()
	cfg.PriorityFactor = "market_cap"
	cfg.SellRule.ConditionalSellConditions = []Condition{
		{ID: "S", Factor: "momentum_20", Op: OpLT, Threshold: 0},
	}

	got := cfg.FactorNames()
	want := []string{"market_cap", "momentum_20", "per"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
