// Package num implements the fixed-point arithmetic used by every engine.
// Values are shopspring decimals truncated to 18 fractional digits after each
// multiplication or division, mirroring wei-denominated integer math.
package num

import (
	"github.com/shopspring/decimal"
)

// Precision is the number of fractional digits kept after each operation.
const Precision int32 = 18

var (
	Zero = decimal.Zero
	One  = decimal.NewFromInt(1)
	Two  = decimal.NewFromInt(2)
)

// Mul returns a*b truncated to Precision.
func Mul(a, b decimal.Decimal) decimal.Decimal {
	return a.Mul(b).Truncate(Precision)
}

// Div returns a/b truncated to Precision. Division by zero returns zero.
func Div(a, b decimal.Decimal) decimal.Decimal {
	if b.IsZero() {
		return Zero
	}
	return a.DivRound(b, Precision+4).Truncate(Precision)
}

// DivUp returns a/b rounded up at Precision.
func DivUp(a, b decimal.Decimal) decimal.Decimal {
	if b.IsZero() {
		return Zero
	}
	q := a.DivRound(b, Precision+4)
	t := q.Truncate(Precision)
	if q.GreaterThan(t) {
		t = t.Add(decimal.New(1, -Precision))
	}
	return t
}

// Pow returns base^n for a non-negative integer exponent, truncating at every
// step.
func Pow(base decimal.Decimal, n int) decimal.Decimal {
	out := One
	for range n {
		out = Mul(out, base)
	}
	return out
}

// Exp returns e^x rounded to Precision.
func Exp(x decimal.Decimal) decimal.Decimal {
	out, err := x.ExpTaylor(Precision)
	if err != nil {
		return Zero
	}
	return out
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	return Max(lo, Min(v, hi))
}

// Floor returns max(v, 0).
func Floor(v decimal.Decimal) decimal.Decimal {
	return Max(v, Zero)
}

// Sum adds every value.
func Sum(vs ...decimal.Decimal) decimal.Decimal {
	out := Zero
	for _, v := range vs {
		out = out.Add(v)
	}
	return out
}

// MustParse parses s or panics. Only for constants and tests.
func MustParse(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
