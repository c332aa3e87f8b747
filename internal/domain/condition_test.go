package domain

import "testing"

func TestCondition_UndefinedValueIsAlwaysFalse(t *testing.T) {
	ops := []Operator{OpLT, OpLE, OpGT, OpGE, OpEQ}
	for _, op := range ops {
		cond := Condition{ID: "a", Factor: "per", Op: op, Threshold: 10}
		if cond.Holds(Undefined()) {
			t.Errorf("operator %s: undefined value must not satisfy condition", op)
		}
		if cond.Holds(NotApplicable()) {
			t.Errorf("operator %s: not-applicable value must not satisfy condition", op)
		}
	}
}

func TestCondition_Holds(t *testing.T) {
	cases := []struct {
		op   Operator
		v    float64
		thr  float64
		want bool
	}{
		{OpLT, 8, 10, true},
		{OpLT, 10, 10, false},
		{OpLE, 10, 10, true},
		{OpGT, 11, 10, true},
		{OpGT, 10, 10, false},
		{OpGE, 10, 10, true},
		{OpEQ, 10, 10, true},
		{OpEQ, 10.0001, 10, false},
	}
	for _, tc := range cases {
		cond := Condition{ID: "a", Factor: "per", Op: tc.op, Threshold: tc.thr}
		if got := cond.Holds(Defined(tc.v)); got != tc.want {
			t.Errorf("%v %s %v: got %v, want %v", tc.v, tc.op, tc.thr, got, tc.want)
		}
	}
}

func TestPosition_MergeWeightedAverage(t *testing.T) {
	p := Position{Code: "A", Quantity: 10, AvgBuyPrice: 100, BuyDate: day("2024-01-02")}
	merged := p.Merge(10, 200)

	if merged.Quantity != 20 {
		t.Errorf("expected quantity 20, got %d", merged.Quantity)
	}
	if merged.AvgBuyPrice != 150 {
		t.Errorf("expected avg price 150, got %v", merged.AvgBuyPrice)
	}
	if !merged.BuyDate.Equal(p.BuyDate) {
		t.Error("merge must keep the original buy date")
	}
}
