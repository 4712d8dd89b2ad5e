// Package odds converts bookmaker odds into implied probabilities and feeds
// them to the AMM as the oracle consumer would.
package odds

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/overtimeamm/internal/num"
)

var hundred = decimal.NewFromInt(100)

// ImpliedFromAmerican converts American odds to an implied probability.
// Positive odds p give 100/(p+100); negative odds -n give n/(n+100). Zero is
// invalid and yields zero.
func ImpliedFromAmerican(american int64) decimal.Decimal {
	switch {
	case american > 0:
		return num.Div(hundred, decimal.NewFromInt(american).Add(hundred))
	case american < 0:
		n := decimal.NewFromInt(-american)
		return num.Div(n, n.Add(hundred))
	default:
		return num.Zero
	}
}

// ImpliedFromDecimal converts European decimal odds to an implied
// probability.
func ImpliedFromDecimal(d decimal.Decimal) decimal.Decimal {
	if d.LessThanOrEqual(num.One) {
		return num.Zero
	}
	return num.Div(num.One, d)
}

// Normalize scales probabilities so they sum to one, removing the
// bookmaker's margin. It returns nil when any entry is not positive.
func Normalize(ps []decimal.Decimal) []decimal.Decimal {
	total := num.Zero
	for _, p := range ps {
		if !p.IsPositive() {
			return nil
		}
		total = total.Add(p)
	}
	out := make([]decimal.Decimal, len(ps))
	for i, p := range ps {
		out[i] = num.Div(p, total)
	}
	return out
}

// NormalizeAmerican converts and normalizes a full line of American odds.
func NormalizeAmerican(line []int64) []decimal.Decimal {
	ps := make([]decimal.Decimal, len(line))
	for i, a := range line {
		ps[i] = ImpliedFromAmerican(a)
	}
	return Normalize(ps)
}
