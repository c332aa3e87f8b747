package domain

// ValueState describes whether a factor value carries a number.
type ValueState uint8

// Value states.
const (
	// StateDefined means the value holds a usable number.
	StateDefined ValueState = iota
	// StateUndefined means the value could not be computed (missing data,
	// insufficient lookback history).
	StateUndefined
	// StateNotApplicable means the factor does not apply to the stock at all
	// (e.g. a fundamentals ratio for a stock with no statements).
	StateNotApplicable
)

// Value is a tri-state factor value. A missing value is never coerced to
// zero: any comparison against an Undefined or NotApplicable value is false.
type Value struct {
	num   float64
	state ValueState
}

// Defined wraps a concrete number.
func Defined(f float64) Value {
	return Value{num: f, state: StateDefined}
}

// Undefined returns a value marking missing data.
func Undefined() Value {
	return Value{state: StateUndefined}
}

// NotApplicable returns a value marking a factor that does not apply.
func NotApplicable() Value {
	return Value{state: StateNotApplicable}
}

// Float returns the number and true when the value is defined.
func (v Value) Float() (float64, bool) {
	if v.state != StateDefined {
		return 0, false
	}
	return v.num, true
}

// IsDefined reports whether the value holds a number.
func (v Value) IsDefined() bool {
	return v.state == StateDefined
}

// State returns the value state.
func (v Value) State() ValueState {
	return v.state
}
