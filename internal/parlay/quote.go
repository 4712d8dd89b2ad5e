package parlay

import (
	"bytes"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/overtimeamm/internal/domain"
	"github.com/alanyoungcy/overtimeamm/internal/market"
	"github.com/alanyoungcy/overtimeamm/internal/num"
)

// Quote is the price of a parlay.
type Quote struct {
	// TotalQuote is the combined implied probability.
	TotalQuote     decimal.Decimal   `json:"total_quote"`
	SUSDAfterFees  decimal.Decimal   `json:"susd_after_fees"`
	TotalBuyAmount decimal.Decimal   `json:"total_buy_amount"`
	LegQuotes      []decimal.Decimal `json:"leg_quotes"`

	markets []*market.Market
	groups  []pricedGroup
}

// CombinationKey identifies a set of legs regardless of their order.
func CombinationKey(markets []common.Address, positions []domain.Position) common.Hash {
	type leg struct {
		m common.Address
		p domain.Position
	}
	legs := make([]leg, len(markets))
	for i := range markets {
		legs[i] = leg{markets[i], positions[i]}
	}
	sort.Slice(legs, func(i, j int) bool {
		if c := bytes.Compare(legs[i].m[:], legs[j].m[:]); c != 0 {
			return c < 0
		}
		return legs[i].p < legs[j].p
	})
	buf := make([]byte, 0, len(legs)*(common.AddressLength+1))
	for _, l := range legs {
		buf = append(buf, l.m[:]...)
		buf = append(buf, byte(l.p))
	}
	return crypto.Keccak256Hash(buf)
}

// BuyQuoteFromParlay prices a parlay of sUSDPaid over the given legs.
func (a *AMM) BuyQuoteFromParlay(markets []common.Address, positions []domain.Position, sUSDPaid decimal.Decimal, now time.Time) (Quote, error) {
	if len(markets) != len(positions) {
		return Quote{}, domain.ErrWrongShape
	}
	ms := make([]*market.Market, len(markets))
	var tags []uint64
	for i, addr := range markets {
		m, err := a.deps.Markets.Get(addr)
		if err != nil {
			return Quote{}, err
		}
		ms[i] = m
		tags = append(tags, root(m).SportTag())
	}
	limit := min(a.params.ParlaySize, a.deps.Risk.MaxLegs(tags))
	if len(ms) < 2 || len(ms) > limit {
		return Quote{}, domain.ErrWrongNumberOfLegs
	}
	groups, err := a.verify(ms, positions)
	if err != nil {
		return Quote{}, err
	}

	q := Quote{LegQuotes: make([]decimal.Decimal, len(ms)), markets: ms}
	for i, m := range ms {
		v := a.deps.Sports.QuoteForParlay(m, positions[i], now)
		if !v.IsPositive() {
			return Quote{}, domain.ErrLegNotTradable
		}
		q.LegQuotes[i] = v
	}

	total := num.One
	combinator := a.deps.SGP.Get()
	for _, g := range groups {
		gq := q.LegQuotes[g.legs[0]]
		if g.sgp {
			gq = combinator.Combine(gq, q.LegQuotes[g.legs[1]], g.pair, g.dir, a.sgpFee(g.sport, g.pair), g.lineOffset)
		}
		q.groups = append(q.groups, pricedGroup{legs: g.legs, quote: gq})
		total = num.Mul(total, gq)
	}
	q.TotalQuote = total
	q.SUSDAfterFees = num.Mul(sUSDPaid, num.One.Sub(a.params.ParlayAmmFee).Sub(a.params.SafeBoxImpact))
	q.TotalBuyAmount = num.Div(q.SUSDAfterFees, total)

	switch {
	case sUSDPaid.LessThan(a.params.MinUSDAmount):
		return q, domain.ErrAmountBelowMinimum
	case sUSDPaid.GreaterThan(a.params.MaxSupportedAmount):
		return q, domain.ErrAmountAboveMaximum
	case total.LessThan(a.params.MaxSupportedOdds):
		return q, domain.ErrMaxOddsExceeded
	}
	// Every leg is filled with the full payout, so each game must have room
	// for it under its cap.
	for i, m := range ms {
		if q.TotalBuyAmount.GreaterThan(a.deps.Sports.AvailableToBuyFromAMM(m, positions[i], now)) {
			return q, domain.ErrLowLiquidity
		}
	}
	return q, nil
}
