// Package money holds the rounding helpers shared by the schedule
// generators. All schedule arithmetic runs on decimals and rounds to the
// reporting currency's minor unit only at entry boundaries.
package money

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

const defaultScale = 2

// Scale returns the minor-unit scale for an ISO-4217 currency code.
// Unknown or blank codes fall back to two decimals.
func Scale(code string) int32 {
	code = strings.ToUpper(strings.TrimSpace(code))
	unit, err := currency.ParseISO(code)
	if err != nil {
		return defaultScale
	}
	scale, _ := currency.Standard.Rounding(unit)
	return int32(scale)
}

// Round rounds an amount to the currency's minor unit.
func Round(amount decimal.Decimal, code string) decimal.Decimal {
	return amount.Round(Scale(code))
}

// SplitEven divides total across n periods rounded to the currency scale,
// with the final period absorbing the rounding remainder so the parts
// always sum exactly to total. n must be positive.
func SplitEven(total decimal.Decimal, n int, code string) []decimal.Decimal {
	if n <= 0 {
		return nil
	}
	scale := Scale(code)
	per := total.Div(decimal.NewFromInt(int64(n))).Round(scale)
	parts := make([]decimal.Decimal, n)
	var allocated decimal.Decimal
	for i := 0; i < n-1; i++ {
		parts[i] = per
		allocated = allocated.Add(per)
	}
	parts[n-1] = total.Sub(allocated)
	return parts
}
