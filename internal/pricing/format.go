package pricing

import "github.com/shopspring/decimal"

// DefaultSymbol prefixes every formatted amount.
const DefaultSymbol = "€"

// Formatter renders minor units as "<symbol><major>.<cents>".
type Formatter struct {
	Symbol string
}

// Format renders minor with exactly two decimals, e.g. 1250 → "€12.50".
// Negative amounts put the sign before the symbol.
func (f Formatter) Format(minor int64) string {
	d := decimal.New(minor, -2)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}
	return sign + f.Symbol + d.StringFixedBank(2)
}

// FormatDisplay formats minor units with DefaultSymbol.
func FormatDisplay(minor int64) string {
	return Formatter{Symbol: DefaultSymbol}.Format(minor)
}

// ToMinorUnits converts a major-unit amount such as "12.50" to cents,
// rounding half-even to two places.
func ToMinorUnits(d decimal.Decimal) int64 {
	return d.RoundBank(2).Shift(2).IntPart()
}
