package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/overtimeamm/internal/num"
)

// PairType classifies the two bet types of a same-game pair.
type PairType uint8

const (
	PairMoneylineTotal PairType = iota
	PairMoneylineSpread
	PairSpreadTotal
)

func (p PairType) String() string {
	switch p {
	case PairMoneylineTotal:
		return "moneyline_total"
	case PairMoneylineSpread:
		return "moneyline_spread"
	case PairSpreadTotal:
		return "spread_total"
	default:
		return "unknown"
	}
}

// Direction tells whether the two selections pull the same way (favourite
// wins and covers, home wins and over) or against each other.
type Direction uint8

const (
	DirectionPositive Direction = iota
	DirectionNegative
)

// SGPCombinator prices two legs of the same game as one. Odds are implied
// probabilities; a larger result pays less.
type SGPCombinator interface {
	Name() string
	Combine(oddsA, oddsB decimal.Decimal, pair PairType, dir Direction, sgpFee, lineOffset decimal.Decimal) decimal.Decimal
}

// Curve is the fitted correlation of one pair type.
type Curve struct {
	Positive decimal.Decimal
	Negative decimal.Decimal
	// Decay is the exponential rate at which the correlation fades per point
	// of line offset.
	Decay decimal.Decimal
}

// Correlation returns rho0 * e^(-Decay*|lineOffset|).
func (c Curve) Correlation(dir Direction, lineOffset decimal.Decimal) decimal.Decimal {
	rho := c.Positive
	if dir == DirectionNegative {
		rho = c.Negative
	}
	if c.Decay.IsZero() || lineOffset.IsZero() {
		return rho
	}
	return num.Mul(rho, num.Exp(num.Mul(c.Decay, lineOffset.Abs()).Neg()))
}

// CorrelatedSGP interpolates between the independent product (correlation
// zero) and the smaller leg (one leg implies the other), then applies the
// sport's SGP fee.
type CorrelatedSGP struct {
	Curves map[PairType]Curve
}

// DefaultCurves are fitted against sportsbook same-game prices.
func DefaultCurves() map[PairType]Curve {
	return map[PairType]Curve{
		PairMoneylineTotal: {
			Positive: num.MustParse("0.18"),
			Negative: num.MustParse("0.06"),
			Decay:    num.MustParse("0.25"),
		},
		PairMoneylineSpread: {
			Positive: num.MustParse("1"),
			Negative: num.Zero,
			Decay:    num.Zero,
		},
		PairSpreadTotal: {
			Positive: num.MustParse("0.12"),
			Negative: num.MustParse("0.04"),
			Decay:    num.MustParse("0.2"),
		},
	}
}

// NewCorrelatedSGP builds the combinator over the default curves.
func NewCorrelatedSGP() *CorrelatedSGP {
	return &CorrelatedSGP{Curves: DefaultCurves()}
}

func (c *CorrelatedSGP) Name() string { return "correlated" }

// Combine returns the combined implied probability. It is never below the
// independent product and never above the smaller leg grossed up by the fee,
// itself capped at one.
func (c *CorrelatedSGP) Combine(a, b decimal.Decimal, pair PairType, dir Direction, sgpFee, lineOffset decimal.Decimal) decimal.Decimal {
	naive := num.Mul(a, b)
	ceiling := num.Min(a, b)
	curve, ok := c.Curves[pair]
	if !ok {
		return naive
	}
	rho := num.Clamp(curve.Correlation(dir, lineOffset), num.Zero, num.One)
	correlated := naive.Add(num.Mul(rho, ceiling.Sub(naive)))
	if sgpFee.IsPositive() && sgpFee.LessThan(num.One) {
		correlated = num.Div(correlated, sgpFee)
		ceiling = num.Div(ceiling, sgpFee)
	}
	return num.Clamp(correlated, naive, num.Min(ceiling, num.One))
}
