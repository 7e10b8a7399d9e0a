// Package pricing resolves menu prices in minor currency units (cents) and
// turns cart lines into order totals.
//
// Every order flow owns one Engine. The engine pins the first price it resolves
// for a menu item and keeps returning it for the rest of the flow, so the cart,
// the order summary and the persisted order never disagree about a line.
// Nothing in this package returns an error: missing data degrades to a zero
// price and a SourceDefault signal the caller can check before billing.
package pricing

import "github.com/kiwari-pos/catering/internal/enum"

// MenuItem is a catalog entry with one published price per location.
type MenuItem struct {
	ID     string
	Name   string
	Prices map[enum.Location]int64
}

// PriceAt returns the price published for loc.
func (m *MenuItem) PriceAt(loc enum.Location) (int64, bool) {
	if m == nil || loc == "" {
		return 0, false
	}
	p, ok := m.Prices[loc]
	return p, ok
}

// CartLine is a menu item reference with its unit price snapshotted when the
// line was added.
type CartLine struct {
	MenuItemID string `json:"menu_item_id"`
	Name       string `json:"name,omitempty"`
	UnitPrice  int64  `json:"unit_price"`
	Quantity   int64  `json:"quantity"`
}

// LineTotal is UnitPrice × Quantity.
func (l CartLine) LineTotal() int64 {
	return l.UnitPrice * l.Quantity
}

// ComputeSubtotal sums unit price × quantity over all lines. Zero-quantity
// lines stay in the sum and contribute nothing.
func ComputeSubtotal(lines []CartLine) int64 {
	var subtotal int64
	for _, l := range lines {
		subtotal += l.LineTotal()
	}
	return subtotal
}

// ComputeTotal is subtotal + deliveryFee.
func ComputeTotal(subtotal, deliveryFee int64) int64 {
	return subtotal + deliveryFee
}
