// Package format renders amounts for chat replies with thousands
// separators.
package format

import (
	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

// Price renders a monetary amount with two decimals, e.g. 2,500.00.
// The float conversion is for display only.
func Price(v decimal.Decimal) string {
	return humanize.FormatFloat("#,###.##", v.Round(2).InexactFloat64())
}

// Signed is Price with an explicit + for values that round to zero or more.
func Signed(v decimal.Decimal) string {
	v = v.Round(2)
	if v.IsNegative() {
		return Price(v)
	}
	return "+" + Price(v)
}

// Percent renders a signed percentage with two decimals, e.g. +21.88%.
func Percent(v decimal.Decimal) string {
	v = v.Round(2)
	s := v.StringFixed(2)
	if !v.IsNegative() {
		s = "+" + s
	}
	return s + "%"
}

// Quantity renders a share count, e.g. 1,500.
func Quantity(n int64) string {
	return humanize.Comma(n)
}
