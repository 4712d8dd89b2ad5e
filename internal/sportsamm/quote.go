package sportsamm

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/overtimeamm/internal/domain"
	"github.com/alanyoungcy/overtimeamm/internal/market"
	"github.com/alanyoungcy/overtimeamm/internal/num"
	"github.com/alanyoungcy/overtimeamm/internal/pricing"
)

func (a *AMM) spread(m *market.Market) decimal.Decimal {
	return a.deps.Risk.SpreadFor(m.SportTag(), a.params.MinSpread)
}

// AvailableToBuyFromAMM returns how many tokens of pos the AMM can sell at
// now.
func (a *AMM) AvailableToBuyFromAMM(m *market.Market, pos domain.Position, now time.Time) decimal.Decimal {
	if !validPosition(m, pos) || !a.IsMarketInAMMTrading(m, now) {
		return num.Zero
	}
	parent, ps := legs(m, pos)
	var out decimal.Decimal
	for i, p := range ps {
		v := a.availableToBuy(parent, p, now)
		if i == 0 || v.LessThan(out) {
			out = v
		}
	}
	return out
}

func (a *AMM) availableToBuy(m *market.Market, pos domain.Position, now time.Time) decimal.Decimal {
	fair := a.ObtainOdds(m, pos)
	if !a.oddsInBounds(fair) {
		return num.Zero
	}
	inv := a.inventory(m)[pos]
	pq := num.Mul(fair, num.One.Add(a.spread(m)))
	divider := num.One.Sub(num.Mul(pq, num.One.Add(a.params.MaxSpread)))
	if !divider.IsPositive() {
		return inv
	}
	budget := a.deps.Risk.CalculateCapToBeUsed(m, now).Sub(a.spent.Get(m.Address())).Add(num.Mul(inv, pq))
	return inv.Add(num.Div(num.Floor(budget), divider))
}

// AvailableToSellToAMM returns how many tokens of pos the AMM can buy back
// at now.
func (a *AMM) AvailableToSellToAMM(m *market.Market, pos domain.Position, now time.Time) decimal.Decimal {
	if !validPosition(m, pos) || !a.IsMarketInAMMTrading(m, now) {
		return num.Zero
	}
	parent, ps := legs(m, pos)
	var out decimal.Decimal
	for i, p := range ps {
		v := a.availableToSell(parent, p, now)
		if i == 0 || v.LessThan(out) {
			out = v
		}
	}
	return out
}

func (a *AMM) availableToSell(m *market.Market, pos domain.Position, now time.Time) decimal.Decimal {
	fair := a.ObtainOdds(m, pos)
	if !a.oddsInBounds(fair) {
		return num.Zero
	}
	inv := a.inventory(m)
	// Units that complete full sets with what the AMM already holds.
	var sets decimal.Decimal
	first := true
	for i, v := range inv {
		if i == int(pos) {
			continue
		}
		if first || v.LessThan(sets) {
			sets, first = v, false
		}
	}
	price := num.Mul(fair, num.One.Sub(a.params.MinSpread))
	if !price.IsPositive() {
		return sets
	}
	budget := num.Floor(a.deps.Risk.CalculateCapToBeUsed(m, now).Sub(a.spent.Get(m.Address())))
	return sets.Add(num.Div(budget, price))
}

// BuyFromAmmQuote returns the sUSD cost of amount tokens of pos, including
// the safe-box fee. Zero when the trade is not possible.
func (a *AMM) BuyFromAmmQuote(m *market.Market, pos domain.Position, amount decimal.Decimal, now time.Time) decimal.Decimal {
	q, _ := a.buyQuote(m, pos, amount, now)
	return q
}

// BuyQuoteForParlay returns what BuyForParlay charges for amount tokens of
// pos: the buy quote without the safe-box fee.
func (a *AMM) BuyQuoteForParlay(m *market.Market, pos domain.Position, amount decimal.Decimal, now time.Time) decimal.Decimal {
	_, net := a.buyQuote(m, pos, amount, now)
	return net
}

// buyQuote also returns the part of the quote that excludes the safe-box
// fee.
func (a *AMM) buyQuote(m *market.Market, pos domain.Position, amount decimal.Decimal, now time.Time) (total, net decimal.Decimal) {
	if !amount.IsPositive() || amount.GreaterThan(a.AvailableToBuyFromAMM(m, pos, now)) {
		return num.Zero, num.Zero
	}
	parent, ps := legs(m, pos)
	sb := num.One.Add(a.safeBoxImpact(m))
	total, net = num.Zero, num.Zero
	for _, p := range ps {
		unit := a.buyUnitPrice(parent, p, amount, now)
		if !unit.IsPositive() {
			return num.Zero, num.Zero
		}
		base := num.Mul(amount, unit)
		net = net.Add(base)
		total = total.Add(num.Mul(base, sb))
	}
	return total, net
}

// buyUnitPrice is fair * (1+markup) for a buy of amount.
func (a *AMM) buyUnitPrice(m *market.Market, pos domain.Position, amount decimal.Decimal, now time.Time) decimal.Decimal {
	fair := a.ObtainOdds(m, pos)
	if !a.oddsInBounds(fair) {
		return num.Zero
	}
	impact := a.buyImpact(m, pos, amount, now)
	markup := pricing.Markup(a.spread(m), impact, a.params.MinSpread, a.params.MaxSpread)
	return num.Mul(fair, num.One.Add(markup))
}

func (a *AMM) buyImpact(m *market.Market, pos domain.Position, amount decimal.Decimal, now time.Time) decimal.Decimal {
	in := skewInput(a.inventory(m), pos, a.availableToBuy(m, pos, now))
	return a.deps.Skew.Get().BuyImpact(in, amount, a.params.MaxSpread)
}

// BuyPriceImpact returns the skew impact of buying amount, averaged over
// double-chance legs.
func (a *AMM) BuyPriceImpact(m *market.Market, pos domain.Position, amount decimal.Decimal, now time.Time) decimal.Decimal {
	if !validPosition(m, pos) || !a.IsMarketInAMMTrading(m, now) {
		return num.Zero
	}
	parent, ps := legs(m, pos)
	out := num.Zero
	for _, p := range ps {
		out = out.Add(a.buyImpact(parent, p, amount, now))
	}
	return num.Div(out, decimal.NewFromInt(int64(len(ps))))
}

// SellToAmmQuote returns the sUSD paid for amount tokens of pos.
func (a *AMM) SellToAmmQuote(m *market.Market, pos domain.Position, amount decimal.Decimal, now time.Time) decimal.Decimal {
	if !amount.IsPositive() || amount.GreaterThan(a.AvailableToSellToAMM(m, pos, now)) {
		return num.Zero
	}
	parent, ps := legs(m, pos)
	sb := num.One.Sub(a.safeBoxImpact(m))
	total := num.Zero
	for _, p := range ps {
		fair := a.ObtainOdds(parent, p)
		markup := pricing.Markup(a.spread(parent), a.sellImpact(parent, p, amount, now), a.params.MinSpread, a.params.MaxSpread)
		q := num.Mul(num.Mul(num.Mul(amount, fair), num.One.Sub(markup)), sb)
		if !q.IsPositive() {
			return num.Zero
		}
		total = total.Add(q)
	}
	return total
}

func (a *AMM) sellImpact(m *market.Market, pos domain.Position, amount decimal.Decimal, now time.Time) decimal.Decimal {
	in := skewInput(a.inventory(m), pos, a.availableToSell(m, pos, now))
	return a.deps.Skew.Get().SellImpact(in, amount, a.params.MaxSpread)
}

// SellPriceImpact returns the skew impact of selling amount.
func (a *AMM) SellPriceImpact(m *market.Market, pos domain.Position, amount decimal.Decimal, now time.Time) decimal.Decimal {
	if !validPosition(m, pos) || !a.IsMarketInAMMTrading(m, now) {
		return num.Zero
	}
	parent, ps := legs(m, pos)
	out := num.Zero
	for _, p := range ps {
		out = out.Add(a.sellImpact(parent, p, amount, now))
	}
	return num.Div(out, decimal.NewFromInt(int64(len(ps))))
}

// QuoteForParlay is the unit price of pos including spread and the marginal
// skew impact but no safe-box fee. Zero when the leg cannot be traded.
func (a *AMM) QuoteForParlay(m *market.Market, pos domain.Position, now time.Time) decimal.Decimal {
	if !validPosition(m, pos) || !a.IsMarketInAMMTrading(m, now) {
		return num.Zero
	}
	parent, ps := legs(m, pos)
	out := num.Zero
	for _, p := range ps {
		unit := a.buyUnitPrice(parent, p, num.Zero, now)
		if !unit.IsPositive() {
			return num.Zero
		}
		out = out.Add(unit)
	}
	if out.GreaterThanOrEqual(num.One) {
		return num.Zero
	}
	return out
}
