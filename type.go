package pantry

import "github.com/shopspring/decimal"

// DecimalPrecision is the number of decimal places kept on every stored or
// user-facing quantity and cost.
var DecimalPrecision int32 = 2

// Round rounds half away from zero to DecimalPrecision places.
func Round(f float64) float64 {
	return decimal.NewFromFloat(f).Round(DecimalPrecision).InexactFloat64()
}

// Add, Sub, Mul and Div compute in decimal and round the result, so values
// edited many times do not drift.
func Add(a, b float64) float64 {
	return decimal.NewFromFloat(a).Add(decimal.NewFromFloat(b)).Round(DecimalPrecision).InexactFloat64()
}

func Sub(a, b float64) float64 {
	return decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).Round(DecimalPrecision).InexactFloat64()
}

func Mul(a, b float64) float64 {
	return decimal.NewFromFloat(a).Mul(decimal.NewFromFloat(b)).Round(DecimalPrecision).InexactFloat64()
}

// Div yields a, rounded, when b is zero.
func Div(a, b float64) float64 {
	if b == 0 {
		return Round(a)
	}
	return decimal.NewFromFloat(a).Div(decimal.NewFromFloat(b)).Round(DecimalPrecision).InexactFloat64()
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
