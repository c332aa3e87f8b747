package expr

import (
	"sort"

	"stocklab/internal/domain"
)

// Rank orders the stocks selected by a mask using a priority factor. Stocks
// with an undefined priority value rank after all defined ones; ties on the
// priority factor break by stock code ascending, so the result is fully
// deterministic. An empty priority factor falls back to plain code order.
func Rank(panel *domain.FactorPanel, mask []bool, priorityFactor string, desc bool) []string {
	codes := panel.Codes()

	var selected []string
	for i, ok := range mask {
		if ok && i < len(codes) {
			selected = append(selected, codes[i])
		}
	}
	if priorityFactor == "" {
		return selected
	}

	col, hasCol := panel.Column(priorityFactor)
	value := func(code string) (float64, bool) {
		if !hasCol {
			return 0, false
		}
		i, ok := panel.Row(code)
		if !ok {
			return 0, false
		}
		return col[i].Float()
	}

	sort.SliceStable(selected, func(i, j int) bool {
		vi, oki := value(selected[i])
		vj, okj := value(selected[j])
		switch {
		case oki && !okj:
			return true
		case !oki && okj:
			return false
		case oki && okj && vi != vj:
			if desc {
				return vi > vj
			}
			return vi < vj
		}
		return selected[i] < selected[j]
	})
	return selected
}
