package pricing_test

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/overtimeamm/internal/num"
	"github.com/alanyoungcy/overtimeamm/internal/odds"
	"github.com/alanyoungcy/overtimeamm/internal/pricing"
)

func d(s string) decimal.Decimal { return num.MustParse(s) }

func TestLinearSkewMonotonicAndBounded(t *testing.T) {
	curve := pricing.LinearSkew{}
	maxSpread := d("0.2")
	inv := pricing.Inventory{Own: num.Zero, Other: d("100"), Capacity: d("900")}

	prev := curve.BuyImpact(inv, num.Zero, maxSpread)
	for _, amt := range []string{"1", "10", "100", "400", "900"} {
		got := curve.BuyImpact(inv, d(amt), maxSpread)
		assert.True(t, got.GreaterThanOrEqual(prev), "impact must not fall at %s", amt)
		assert.True(t, got.LessThanOrEqual(maxSpread))
		prev = got
	}

	// More skew against the trader means more impact for the same size.
	heavier := inv
	heavier.Other = d("300")
	assert.True(t, curve.BuyImpact(heavier, d("50"), maxSpread).GreaterThan(curve.BuyImpact(inv, d("50"), maxSpread)))
}

func TestLinearSkewDiscountsWhenAMMIsLong(t *testing.T) {
	curve := pricing.LinearSkew{}
	inv := pricing.Inventory{Own: d("500"), Other: num.Zero, Capacity: d("500")}
	got := curve.BuyImpact(inv, d("10"), d("0.2"))
	assert.True(t, got.IsNegative())
	assert.True(t, got.GreaterThanOrEqual(d("-0.2")))

	fresh := pricing.Inventory{Capacity: d("1000")}
	assert.True(t, curve.BuyImpact(fresh, num.Zero, d("0.2")).IsZero())
	assert.True(t, curve.BuyImpact(pricing.Inventory{}, d("10"), d("0.2")).IsZero())
}

func TestLinearSkewSell(t *testing.T) {
	curve := pricing.LinearSkew{}
	inv := pricing.Inventory{Own: d("200"), Other: num.Zero, Capacity: d("800")}
	small := curve.SellImpact(inv, d("10"), d("0.2"))
	large := curve.SellImpact(inv, d("500"), d("0.2"))
	assert.True(t, large.GreaterThan(small))
	assert.True(t, large.LessThanOrEqual(d("0.2")))
}

func TestMarkupBounds(t *testing.T) {
	minS, maxS := d("0.02"), d("0.2")
	assert.Equal(t, "0.02", pricing.Markup(d("0.02"), d("-0.1"), minS, maxS).String())
	assert.Equal(t, "0.2", pricing.Markup(d("0.02"), d("0.5"), minS, maxS).String())
	assert.Equal(t, "0.07", pricing.Markup(d("0.02"), d("0.05"), minS, maxS).String())
}

// sgpReference holds same-game prices quoted by sportsbooks, in American odds,
// for a pair of legs with the given implied probabilities.
var sgpReference = []struct {
	name     string
	a, b     string
	pair     pricing.PairType
	dir      pricing.Direction
	fee      string
	offset   string
	american int64
}{
	{"home ml + over", "0.55", "0.5", pricing.PairMoneylineTotal, pricing.DirectionPositive, "0.9", "0", 185},
	{"home ml + under", "0.62", "0.48", pricing.PairMoneylineTotal, pricing.DirectionNegative, "0.9", "0", 192},
	{"home ml + home -1.5", "0.70", "0.45", pricing.PairMoneylineSpread, pricing.DirectionPositive, "0.95", "1.5", 111},
	{"home cover + over", "0.5", "0.5", pricing.PairSpreadTotal, pricing.DirectionPositive, "0.9", "3.5", 236},
	{"underdog ml + over", "0.4", "0.55", pricing.PairMoneylineTotal, pricing.DirectionPositive, "0.85", "2", 252},
	{"cover + under wide line", "0.52", "0.47", pricing.PairSpreadTotal, pricing.DirectionNegative, "1", "6.5", 303},
	{"away ml + home +1.5", "0.3", "0.6", pricing.PairMoneylineSpread, pricing.DirectionNegative, "0.9", "1.5", 400},
}

func TestCorrelatedSGPMatchesReference(t *testing.T) {
	sgp := pricing.NewCorrelatedSGP()
	for _, tt := range sgpReference {
		t.Run(tt.name, func(t *testing.T) {
			got := sgp.Combine(d(tt.a), d(tt.b), tt.pair, tt.dir, d(tt.fee), d(tt.offset)).InexactFloat64()
			want := odds.ImpliedFromAmerican(tt.american).InexactFloat64()
			assert.LessOrEqual(t, math.Abs(got-want)/want, 0.04, "got %.6f want %.6f", got, want)
		})
	}
}

func TestCorrelatedSGPNeverMoreGenerousThanIndependent(t *testing.T) {
	sgp := pricing.NewCorrelatedSGP()
	for _, pair := range []pricing.PairType{pricing.PairMoneylineTotal, pricing.PairMoneylineSpread, pricing.PairSpreadTotal} {
		for _, dir := range []pricing.Direction{pricing.DirectionPositive, pricing.DirectionNegative} {
			a, b := d("0.45"), d("0.6")
			got := sgp.Combine(a, b, pair, dir, d("0.9"), d("2"))
			assert.True(t, got.GreaterThanOrEqual(num.Mul(a, b)), "%s", pair)
			assert.True(t, got.LessThanOrEqual(num.One))
		}
	}
}

func TestCorrelationDecaysWithLineOffset(t *testing.T) {
	curve := pricing.DefaultCurves()[pricing.PairMoneylineTotal]
	near := curve.Correlation(pricing.DirectionPositive, d("0"))
	far := curve.Correlation(pricing.DirectionPositive, d("4"))
	assert.True(t, far.LessThan(near))
	assert.Equal(t, "0.18", near.String())
	assert.InDelta(t, 0.18*math.Exp(-1), far.InexactFloat64(), 1e-12)

	wider := curve.Correlation(pricing.DirectionPositive, d("-8"))
	assert.InDelta(t, 0.18*math.Exp(-2), wider.InexactFloat64(), 1e-12)
}

func TestCorrelatedSGPStaysUnderFeeGrossedCeiling(t *testing.T) {
	sgp := pricing.NewCorrelatedSGP()

	got := sgp.Combine(d("0.3"), d("0.6"), pricing.PairMoneylineSpread, pricing.DirectionPositive, d("0.5"), d("0"))
	assert.Equal(t, "0.6", got.String())

	got = sgp.Combine(d("0.9"), d("0.8"), pricing.PairMoneylineSpread, pricing.DirectionPositive, d("0.5"), d("0"))
	assert.Equal(t, "1", got.String())
}
