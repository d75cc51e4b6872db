// Package precision holds the two rounding policies used for every amount
// the engine persists or displays.
//
// Intermediate values may carry full precision; anything stored goes
// through RoundHalfUp or RoundUp first.
package precision

import "github.com/shopspring/decimal"

// DivScale is the number of decimal places kept by Div.
const DivScale int32 = 28

// MoneyDigits is the default number of decimal places for money.
const MoneyDigits int32 = 2

// Div divides a by b keeping DivScale decimal places.
func Div(a, b decimal.Decimal) decimal.Decimal {
	return a.DivRound(b, DivScale)
}

// RoundHalfUp rounds half away from zero at the given number of digits.
func RoundHalfUp(v decimal.Decimal, digits int32) decimal.Decimal {
	return Quantize(v.Round(digits), digits)
}

// RoundUp rounds toward positive infinity. Used wherever under-sizing a
// stake or an exposure would leave the hedge short.
func RoundUp(v decimal.Decimal, digits int32) decimal.Decimal {
	return Quantize(v.RoundCeil(digits), digits)
}

// Money is RoundHalfUp to MoneyDigits.
func Money(v decimal.Decimal) decimal.Decimal {
	return RoundHalfUp(v, MoneyDigits)
}

// Quantize pads v so it carries exactly digits decimal places. v must
// already be rounded to at most that many places.
func Quantize(v decimal.Decimal, digits int32) decimal.Decimal {
	return v.Add(decimal.New(0, -digits))
}
