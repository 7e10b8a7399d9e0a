package pricing

import "github.com/kiwari-pos/catering/internal/enum"

// Quote is the derived order totals for a set of lines at a location.
type Quote struct {
	Location    enum.Location `json:"location"`
	Lines       []CartLine    `json:"lines"`
	Subtotal    int64         `json:"subtotal"`
	DeliveryFee int64         `json:"delivery_fee"`
	Total       int64         `json:"total"`
}

// Quote computes subtotal, delivery fee and total for lines at loc.
func (e *Engine) Quote(lines []CartLine, loc enum.Location) Quote {
	subtotal := ComputeSubtotal(lines)
	fee := e.DeliveryFee(loc)
	return Quote{
		Location:    loc,
		Lines:       lines,
		Subtotal:    subtotal,
		DeliveryFee: fee,
		Total:       ComputeTotal(subtotal, fee),
	}
}

// Display is a Quote's amounts rendered for presentation.
type Display struct {
	Subtotal    string `json:"subtotal"`
	DeliveryFee string `json:"delivery_fee"`
	Total       string `json:"total"`
}

// Display formats q's amounts with f.
func (q Quote) Display(f Formatter) Display {
	return Display{
		Subtotal:    f.Format(q.Subtotal),
		DeliveryFee: f.Format(q.DeliveryFee),
		Total:       f.Format(q.Total),
	}
}
