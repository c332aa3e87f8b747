package domain

import "fmt"

// Operator is a comparison operator in an atomic condition.
type Operator string

// Supported operators.
const (
	OpLT Operator = "<"
	OpLE Operator = "<="
	OpGT Operator = ">"
	OpGE Operator = ">="
	OpEQ Operator = "="
)

// ParseOperator validates an operator literal.
func ParseOperator(s string) (Operator, error) {
	switch Operator(s) {
	case OpLT, OpLE, OpGT, OpGE, OpEQ:
		return Operator(s), nil
	}
	return "", fmt.Errorf("unknown operator %q", s)
}

// Condition is a named atomic predicate over a single factor column.
// An Undefined factor value makes the condition false regardless of operator.
type Condition struct {
	ID        string   `yaml:"id"`
	Factor    string   `yaml:"factor"`
	Op        Operator `yaml:"op"`
	Threshold float64  `yaml:"threshold"`
}

// Holds reports whether the condition holds for one factor value.
func (c Condition) Holds(v Value) bool {
	f, ok := v.Float()
	if !ok {
		return false
	}
	switch c.Op {
	case OpLT:
		return f < c.Threshold
	case OpLE:
		return f <= c.Threshold
	case OpGT:
		return f > c.Threshold
	case OpGE:
		return f >= c.Threshold
	case OpEQ:
		return f == c.Threshold
	}
	return false
}
