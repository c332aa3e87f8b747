package expr

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"stocklab/internal/domain"
)

// Compiled is a predicate over a factor panel. It evaluates columnwise:
// each atomic condition produces one boolean mask from its factor column,
// and the expression tree combines masks. No per-row interpretation.
type Compiled struct {
	text  string
	root  *node
	conds map[string]domain.Condition
}

// Compiler compiles and memoizes predicates. The same strategy expression
// is re-evaluated every trading day, so compilation happens once per
// (expression, condition set).
type Compiler struct {
	mu    sync.Mutex
	cache map[string]*Compiled
}

// NewCompiler creates a Compiler with an empty memo.
func NewCompiler() *Compiler {
	return &Compiler{cache: make(map[string]*Compiled)}
}

// Compile validates and compiles an expression against its condition set.
// A malformed expression or a reference to an unknown condition id is a
// configuration error surfaced here, before any run starts.
func (c *Compiler) Compile(text string, conds []domain.Condition) (*Compiled, error) {
	key := memoKey(text, conds)

	c.mu.Lock()
	if cached, ok := c.cache[key]; ok {
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	compiled, err := compile(text, conds)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[key] = compiled
	c.mu.Unlock()
	return compiled, nil
}

// compile does the actual work without memoization.
func compile(text string, conds []domain.Condition) (*Compiled, error) {
	root, err := parse(text)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]domain.Condition, len(conds))
	for _, cond := range conds {
		byID[cond.ID] = cond
	}

	referenced := make(map[string]struct{})
	root.conditionIDs(referenced)
	if len(referenced) == 0 {
		return nil, fmt.Errorf("%w: expression references no conditions", ErrSyntax)
	}
	for id := range referenced {
		if _, ok := byID[id]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownCondition, id)
		}
	}

	return &Compiled{text: text, root: root, conds: byID}, nil
}

// Text returns the source expression.
func (e *Compiled) Text() string {
	return e.text
}

// Mask evaluates the predicate over the panel and returns one boolean per
// panel row, in stock-index order. A condition whose factor column is
// missing, or whose value is undefined for a stock, contributes false for
// that stock regardless of operator.
func (e *Compiled) Mask(panel *domain.FactorPanel) []bool {
	n := panel.Len()

	// One mask per referenced condition, each built in a single column pass.
	condMasks := make(map[string][]bool, len(e.conds))
	ids := make(map[string]struct{})
	e.root.conditionIDs(ids)
	for id := range ids {
		cond := e.conds[id]
		mask := make([]bool, n)
		if col, ok := panel.Column(cond.Factor); ok {
			for i, v := range col {
				mask[i] = cond.Holds(v)
			}
		}
		condMasks[id] = mask
	}

	return evalMask(e.root, condMasks, n)
}

// evalMask combines condition masks bottom-up.
func evalMask(n *node, condMasks map[string][]bool, rows int) []bool {
	switch n.op {
	case "id":
		return condMasks[n.id]
	case "not":
		child := evalMask(n.left, condMasks, rows)
		out := make([]bool, rows)
		for i, b := range child {
			out[i] = !b
		}
		return out
	case "and":
		left := evalMask(n.left, condMasks, rows)
		right := evalMask(n.right, condMasks, rows)
		out := make([]bool, rows)
		for i := range out {
			out[i] = left[i] && right[i]
		}
		return out
	default: // "or"
		left := evalMask(n.left, condMasks, rows)
		right := evalMask(n.right, condMasks, rows)
		out := make([]bool, rows)
		for i := range out {
			out[i] = left[i] || right[i]
		}
		return out
	}
}

// memoKey renders a stable key over expression text and condition set.
// Condition order does not matter.
func memoKey(text string, conds []domain.Condition) string {
	parts := make([]string, len(conds))
	for i, c := range conds {
		parts[i] = fmt.Sprintf("%s:%s:%s:%g", c.ID, c.Factor, c.Op, c.Threshold)
	}
	sort.Strings(parts)
	return text + "|" + strings.Join(parts, ";")
}
