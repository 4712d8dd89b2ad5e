package speedmarket

import (
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/overtimeamm/internal/chain"
	"github.com/alanyoungcy/overtimeamm/internal/domain"
)

type pricePoint struct {
	at    time.Time
	price decimal.Decimal
}

// PriceFeed records asset prices published by oracles.
type PriceFeed struct {
	owner   common.Address
	oracles map[common.Address]bool
	series  map[string][]pricePoint
}

func NewPriceFeed(owner common.Address) *PriceFeed {
	return &PriceFeed{
		owner:   owner,
		oracles: make(map[common.Address]bool),
		series:  make(map[string][]pricePoint),
	}
}

// SetOracle grants or revokes publishing rights.
func (f *PriceFeed) SetOracle(tx *chain.Tx, caller, oracle common.Address, allowed bool) error {
	if caller != f.owner {
		return domain.ErrOnlyOwner
	}
	chain.Put(tx, f.oracles, oracle, allowed)
	return nil
}

// Publish records price for asset at t. Points may arrive out of order.
func (f *PriceFeed) Publish(tx *chain.Tx, caller common.Address, asset string, at time.Time, price decimal.Decimal) error {
	if caller != f.owner && !f.oracles[caller] {
		return domain.ErrInvalidCaller
	}
	if !price.IsPositive() {
		return domain.Revert(domain.ErrValidation, "Invalid price")
	}
	if at.After(tx.Now()) {
		return domain.Revert(domain.ErrTiming, "Price from the future")
	}
	prev := f.series[asset]
	i := sort.Search(len(prev), func(i int) bool { return prev[i].at.After(at) })
	next := make([]pricePoint, 0, len(prev)+1)
	next = append(next, prev[:i]...)
	if i > 0 && prev[i-1].at.Equal(at) {
		next[i-1] = pricePoint{at, price}
	} else {
		next = append(next, pricePoint{at, price})
	}
	next = append(next, prev[i:]...)
	chain.Put(tx, f.series, asset, next)
	tx.Emit(domain.EventPricePublished, map[string]any{
		"asset": asset,
		"at":    at,
		"price": domain.Dec(price),
	})
	return nil
}

// PriceAt returns the last price of asset published at or before t.
func (f *PriceFeed) PriceAt(asset string, t time.Time) (decimal.Decimal, bool) {
	s := f.series[asset]
	i := sort.Search(len(s), func(i int) bool { return s[i].at.After(t) })
	if i == 0 {
		return decimal.Zero, false
	}
	return s[i-1].price, true
}

// Assets lists every asset with at least one price.
func (f *PriceFeed) Assets() []string {
	out := make([]string, 0, len(f.series))
	for a := range f.series {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}
