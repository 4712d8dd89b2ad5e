// Package pricing holds the pluggable numeric curves of the AMMs: the skew
// curve that turns inventory imbalance into price impact, and the
// same-game-parlay combinator.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/overtimeamm/internal/num"
)

// Inventory is the AMM's view of one position before a trade.
type Inventory struct {
	// Own is the AMM inventory of the traded position.
	Own decimal.Decimal
	// Other is the largest AMM inventory among the remaining positions.
	Other decimal.Decimal
	// Capacity is the available amount for the trade direction.
	Capacity decimal.Decimal
}

// SkewCurve maps an inventory and trade size to a signed price impact.
// Impacts are non-decreasing in size and in current skew and stay within
// [-maxSpread, maxSpread].
type SkewCurve interface {
	Name() string
	BuyImpact(inv Inventory, amount, maxSpread decimal.Decimal) decimal.Decimal
	SellImpact(inv Inventory, amount, maxSpread decimal.Decimal) decimal.Decimal
}

// LinearSkew charges maxSpread * s / M at skew s, where s is the AMM's
// imbalance against the trader's side and M the largest imbalance the
// capacity allows. The impact of a trade is the average over the skew range
// it walks through.
type LinearSkew struct{}

func (LinearSkew) Name() string { return "linear" }

// BuyImpact: every unit bought raises the skew by one, whether it comes out
// of inventory or is freshly minted.
func (LinearSkew) BuyImpact(inv Inventory, amount, maxSpread decimal.Decimal) decimal.Decimal {
	return averagedImpact(inv.Other.Sub(inv.Own), amount, inv, maxSpread)
}

// SellImpact: every unit sold to the AMM raises its long exposure to the
// position by one.
func (LinearSkew) SellImpact(inv Inventory, amount, maxSpread decimal.Decimal) decimal.Decimal {
	return averagedImpact(inv.Own.Sub(inv.Other), amount, inv, maxSpread)
}

func averagedImpact(s0, amount decimal.Decimal, inv Inventory, maxSpread decimal.Decimal) decimal.Decimal {
	m := num.Max(inv.Own, inv.Other).Add(inv.Capacity)
	if !m.IsPositive() {
		return num.Zero
	}
	mid := s0.Add(num.Div(amount, num.Two))
	impact := num.Div(num.Mul(maxSpread, mid), m)
	return num.Clamp(impact, maxSpread.Neg(), maxSpread)
}

// Markup combines the base spread with an impact, bounded by
// [minSpread, maxSpread].
func Markup(spread, impact, minSpread, maxSpread decimal.Decimal) decimal.Decimal {
	return num.Clamp(spread.Add(impact), minSpread, maxSpread)
}
