package pricing

import (
	"maps"
	"strings"
)

// NameTable is the legacy display-name price list kept for catalog entries
// that have no identifier. Unknown names price at Default.
type NameTable struct {
	prices  map[string]int64
	Default int64
}

// NewNameTable builds a table. Names match case-insensitively after trimming.
func NewNameTable(prices map[string]int64, def int64) *NameTable {
	t := &NameTable{prices: make(map[string]int64, len(prices)), Default: def}
	for name, p := range prices {
		t.prices[normalizeName(name)] = p
	}
	return t
}

// ByName returns the listed price for name, or Default and false.
func (t *NameTable) ByName(name string) (int64, bool) {
	if p, ok := t.prices[normalizeName(name)]; ok {
		return p, true
	}
	return t.Default, false
}

// Names returns a copy of the table.
func (t *NameTable) Names() map[string]int64 {
	return maps.Clone(t.prices)
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
