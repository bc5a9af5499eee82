package model

import "github.com/shopspring/decimal"

// minorUnitsToDecimal converts an integer minor-unit price (paise/cents)
// to its two-decimal-place string form. This file holds the only two
// conversions out of integer minor units — the serialization boundary
// called out in spec.md §9.
func minorUnitsToDecimal(pricePaise int64) string {
	return decimal.New(pricePaise, -2).StringFixed(2)
}

// MinorUnitsToFloat is used by the snapshot channel, which the spec
// requires to carry a float price per level rather than a fixed-point
// decimal string, and by the trade channel's price field.
func MinorUnitsToFloat(pricePaise int64) float64 {
	f, _ := decimal.New(pricePaise, -2).Float64()
	return f
}
