package odds

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/overtimeamm/internal/chain"
	"github.com/alanyoungcy/overtimeamm/internal/domain"
	"github.com/alanyoungcy/overtimeamm/internal/market"
)

type quoteLine struct {
	american   []int64
	normalized []decimal.Decimal
	updatedAt  time.Time
}

// Feed stores the latest odds per market and is the only source of prices
// the AMM quotes from.
type Feed struct {
	markets     *market.Manager
	oracles     map[common.Address]bool
	owner       common.Address
	minInterval time.Duration
	lines       map[common.Address]quoteLine
}

// NewFeed creates a Feed. Updates for one market closer together than
// minInterval are rejected.
func NewFeed(owner common.Address, markets *market.Manager, minInterval time.Duration) *Feed {
	return &Feed{
		markets:     markets,
		oracles:     make(map[common.Address]bool),
		owner:       owner,
		minInterval: minInterval,
		lines:       make(map[common.Address]quoteLine),
	}
}

// SetOracle grants or revokes odds publishing rights.
func (f *Feed) SetOracle(tx *chain.Tx, caller, oracle common.Address, allowed bool) error {
	if caller != f.owner {
		return domain.ErrOnlyOwner
	}
	chain.Put(tx, f.oracles, oracle, allowed)
	return nil
}

// SetOdds publishes American odds for every position of a market. While the
// market is open the normalized odds also become its cancellation prices.
func (f *Feed) SetOdds(tx *chain.Tx, caller, addr common.Address, american []int64) error {
	if caller != f.owner && !f.oracles[caller] {
		return domain.ErrInvalidCaller
	}
	m, err := f.markets.Get(addr)
	if err != nil {
		return err
	}
	if m.IsDoubleChance() {
		return domain.Revert(domain.ErrValidation, "Double chance odds are derived")
	}
	if len(american) != m.NumPositions() {
		return domain.ErrInvalidOdds
	}
	if m.Resolved() {
		return domain.ErrMarketResolved
	}
	prev, seen := f.lines[addr]
	if seen && f.minInterval > 0 && tx.Now().Sub(prev.updatedAt) < f.minInterval {
		return domain.ErrRateTooFrequent
	}

	line := quoteLine{
		american:   append([]int64(nil), american...),
		normalized: NormalizeAmerican(american),
		updatedAt:  tx.Now(),
	}
	chain.Put(tx, f.lines, addr, line)
	if line.normalized != nil {
		if err := m.SetCancelPrices(tx, line.normalized); err != nil {
			return err
		}
	}
	tx.Emit(domain.EventOddsUpdated, map[string]any{
		"market":   domain.Addr(addr),
		"american": american,
		"valid":    line.normalized != nil,
	})
	return nil
}

// NormalizedOdds returns the implied probabilities of market, or nil when no
// valid odds are published. Double-chance markets are not stored here.
func (f *Feed) NormalizedOdds(addr common.Address) []decimal.Decimal {
	return f.lines[addr].normalized
}

// AmericanOdds returns the raw published line.
func (f *Feed) AmericanOdds(addr common.Address) []int64 {
	return f.lines[addr].american
}

// UpdatedAt returns when odds for addr were last published.
func (f *Feed) UpdatedAt(addr common.Address) time.Time {
	return f.lines[addr].updatedAt
}
