package domain

import (
	"sort"
	"time"
)

// FactorPanel is the cross-sectional factor table for one trading day:
// one row per eligible stock, one column per requested factor. Columns are
// stored columnwise so predicates can be evaluated as boolean masks without
// per-row iteration. The stock index is sorted ascending for determinism.
type FactorPanel struct {
	Date    time.Time
	codes   []string
	rowIdx  map[string]int
	columns map[string][]Value
}

// NewFactorPanel creates an empty panel for the given stocks. Codes are
// copied and sorted; duplicate codes are collapsed.
func NewFactorPanel(date time.Time, codes []string) *FactorPanel {
	uniq := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		uniq[c] = struct{}{}
	}
	sorted := make([]string, 0, len(uniq))
	for c := range uniq {
		sorted = append(sorted, c)
	}
	sort.Strings(sorted)

	rowIdx := make(map[string]int, len(sorted))
	for i, c := range sorted {
		rowIdx[c] = i
	}

	return &FactorPanel{
		Date:    date,
		codes:   sorted,
		rowIdx:  rowIdx,
		columns: make(map[string][]Value),
	}
}

// Len returns the number of stock rows.
func (p *FactorPanel) Len() int {
	return len(p.codes)
}

// Codes returns the sorted stock index. Callers must not mutate it.
func (p *FactorPanel) Codes() []string {
	return p.codes
}

// SetColumn stores a factor column. The column length must match the stock
// index; short columns are padded with Undefined.
func (p *FactorPanel) SetColumn(factor string, col []Value) {
	fixed := make([]Value, len(p.codes))
	for i := range fixed {
		if i < len(col) {
			fixed[i] = col[i]
		} else {
			fixed[i] = Undefined()
		}
	}
	p.columns[factor] = fixed
}

// Column returns a factor column and whether it exists.
func (p *FactorPanel) Column(factor string) ([]Value, bool) {
	col, ok := p.columns[factor]
	return col, ok
}

// Value returns a single cell. Missing factor or stock yields Undefined.
func (p *FactorPanel) Value(factor, code string) Value {
	col, ok := p.columns[factor]
	if !ok {
		return Undefined()
	}
	i, ok := p.rowIdx[code]
	if !ok {
		return Undefined()
	}
	return col[i]
}

// Row returns the position of a stock in the index.
func (p *FactorPanel) Row(code string) (int, bool) {
	i, ok := p.rowIdx[code]
	return i, ok
}

// Factors returns the sorted list of stored factor names.
func (p *FactorPanel) Factors() []string {
	names := make([]string, 0, len(p.columns))
	for name := range p.columns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
