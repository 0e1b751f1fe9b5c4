package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FormatBRL renders an amount the way Brazilian invoices do: "R$ 1.234,56".
// Amounts are rounded half away from zero to two places.
func FormatBRL(amount decimal.Decimal) string {
	neg := amount.IsNegative()
	fixed := amount.Abs().StringFixed(2)

	intPart, frac, _ := strings.Cut(fixed, ".")

	var grouped strings.Builder
	for i, digit := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			grouped.WriteByte('.')
		}
		grouped.WriteRune(digit)
	}

	out := "R$ " + grouped.String() + "," + frac
	if neg && !amount.Round(2).IsZero() {
		return "-" + out
	}
	return out
}
