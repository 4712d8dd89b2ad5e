// Package sportsamm implements the single-market AMM. It sells and buys back
// position tokens of sports markets at feed odds plus a skew-dependent
// markup, minting against the liquidity pool of the market's round.
package sportsamm

import (
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/overtimeamm/internal/chain"
	"github.com/alanyoungcy/overtimeamm/internal/domain"
	"github.com/alanyoungcy/overtimeamm/internal/ledger"
	"github.com/alanyoungcy/overtimeamm/internal/liquidity"
	"github.com/alanyoungcy/overtimeamm/internal/market"
	"github.com/alanyoungcy/overtimeamm/internal/num"
	"github.com/alanyoungcy/overtimeamm/internal/odds"
	"github.com/alanyoungcy/overtimeamm/internal/pricing"
	"github.com/alanyoungcy/overtimeamm/internal/ramp"
	"github.com/alanyoungcy/overtimeamm/internal/registry"
	"github.com/alanyoungcy/overtimeamm/internal/risk"
	"github.com/alanyoungcy/overtimeamm/internal/token"
	"github.com/alanyoungcy/overtimeamm/internal/voucher"
)

// Params configure an AMM.
type Params struct {
	MinSpread                 decimal.Decimal
	MaxSpread                 decimal.Decimal
	SafeBoxImpact             decimal.Decimal
	SafeBox                   common.Address
	ReferrerShare             decimal.Decimal
	MinSupportedOdds          decimal.Decimal
	MaxSupportedOdds          decimal.Decimal
	MinimalTimeLeftToMaturity time.Duration
}

// LiquidityPool funds the AMM's trades.
type LiquidityPool interface {
	CommitTrade(tx *chain.Tx, caller, member common.Address, maturity time.Time, amount decimal.Decimal) (*liquidity.RoundPool, error)
	RoundPoolFor(maturity time.Time) (*liquidity.RoundPool, bool)
}

// Deps are the collaborators of an AMM.
type Deps struct {
	Markets  *market.Manager
	Feed     *odds.Feed
	Risk     *risk.Manager
	Pool     LiquidityPool
	Tokens   *token.Set
	Skew     *registry.Handle[pricing.SkewCurve]
	Ramp     *ramp.Ramp
	Vouchers *voucher.Vouchers
}

// AMM is the single-market AMM.
type AMM struct {
	params  Params
	owner   common.Address
	address common.Address
	deps    Deps
	susd    *token.Token
	logger  *slog.Logger

	// spent is the net exposure per market; double-chance trades count on
	// their parent.
	spent            *ledger.Counters[common.Address]
	safeBoxPerMarket map[common.Address]decimal.Decimal
	referrers        map[common.Address]common.Address
	parlayAMM        common.Address
}

// New creates an AMM at address.
func New(p Params, owner, address common.Address, deps Deps, logger *slog.Logger) *AMM {
	return &AMM{
		params:           p,
		owner:            owner,
		address:          address,
		deps:             deps,
		susd:             deps.Tokens.Primary(),
		logger:           logger.With(slog.String("component", "sportsamm")),
		spent:            ledger.New[common.Address]("spent_on_game"),
		safeBoxPerMarket: make(map[common.Address]decimal.Decimal),
		referrers:        make(map[common.Address]common.Address),
	}
}

func (a *AMM) Address() common.Address { return a.address }
func (a *AMM) Params() Params          { return a.params }

// SetParams replaces the trading parameters.
func (a *AMM) SetParams(tx *chain.Tx, caller common.Address, p Params) error {
	if caller != a.owner {
		return domain.ErrOnlyOwner
	}
	if p.MinSpread.GreaterThan(p.MaxSpread) || p.MinSupportedOdds.GreaterThan(p.MaxSupportedOdds) {
		return domain.Revert(domain.ErrValidation, "Invalid parameters")
	}
	chain.Assign(tx, &a.params, p)
	return nil
}

// SetParlayAMM authorizes the parlay AMM to fill ticket legs through
// BuyForParlay.
func (a *AMM) SetParlayAMM(tx *chain.Tx, caller, addr common.Address) error {
	if caller != a.owner {
		return domain.ErrOnlyOwner
	}
	chain.Assign(tx, &a.parlayAMM, addr)
	return nil
}

// SetSafeBoxImpactForMarket overrides the safe-box fee of one market. A zero
// value removes the override.
func (a *AMM) SetSafeBoxImpactForMarket(tx *chain.Tx, caller, addr common.Address, v decimal.Decimal) error {
	if caller != a.owner {
		return domain.ErrOnlyOwner
	}
	if v.IsZero() {
		chain.Delete(tx, a.safeBoxPerMarket, addr)
		return nil
	}
	chain.Put(tx, a.safeBoxPerMarket, addr, v)
	return nil
}

func (a *AMM) safeBoxImpact(m *market.Market) decimal.Decimal {
	if m.IsDoubleChance() {
		m = m.Parent()
	}
	if v, ok := a.safeBoxPerMarket[m.Address()]; ok {
		return v
	}
	return a.params.SafeBoxImpact
}

// SpentOnGame returns the net exposure recorded for a market.
func (a *AMM) SpentOnGame(addr common.Address) decimal.Decimal {
	if m, err := a.deps.Markets.Get(addr); err == nil && m.IsDoubleChance() {
		addr = m.Parent().Address()
	}
	return a.spent.Get(addr)
}

// ReferrerOf returns the referrer recorded for trader.
func (a *AMM) ReferrerOf(trader common.Address) (common.Address, bool) {
	r, ok := a.referrers[trader]
	return r, ok
}

// ObtainOdds returns the normalized feed odds of a position. Double-chance
// position 0 is the sum of its covered parent positions; position 1 is not
// tradable and reports zero.
func (a *AMM) ObtainOdds(m *market.Market, pos domain.Position) decimal.Decimal {
	if m.IsDoubleChance() {
		if pos != domain.PositionHome {
			return num.Zero
		}
		out := num.Zero
		for _, p := range m.Covered() {
			out = out.Add(a.ObtainOdds(m.Parent(), p))
		}
		return out
	}
	line := a.deps.Feed.NormalizedOdds(m.Address())
	if int(pos) >= len(line) {
		return num.Zero
	}
	return line[pos]
}

func (a *AMM) oddsInBounds(v decimal.Decimal) bool {
	return v.IsPositive() &&
		v.GreaterThanOrEqual(a.params.MinSupportedOdds) &&
		v.LessThanOrEqual(a.params.MaxSupportedOdds)
}

// IsMarketInAMMTrading reports whether m accepts trades at now.
func (a *AMM) IsMarketInAMMTrading(m *market.Market, now time.Time) bool {
	if m.Resolved() || m.Cancelled() || a.deps.Markets.IsPaused(m.Address()) {
		return false
	}
	return now.Add(a.params.MinimalTimeLeftToMaturity).Before(m.Maturity())
}

// legs expands a trade into the parent positions it is filled with.
func legs(m *market.Market, pos domain.Position) (*market.Market, []domain.Position) {
	if m.IsDoubleChance() {
		c := m.Covered()
		return m.Parent(), []domain.Position{c[0], c[1]}
	}
	return m, []domain.Position{pos}
}

func validPosition(m *market.Market, pos domain.Position) bool {
	if m.IsDoubleChance() {
		return pos == domain.PositionHome
	}
	return int(pos) < m.NumPositions()
}

// inventory returns the AMM holdings of every position of m.
func (a *AMM) inventory(m *market.Market) []decimal.Decimal {
	out := make([]decimal.Decimal, m.NumPositions())
	for i := range out {
		out[i] = num.Zero
	}
	rp, ok := a.deps.Pool.RoundPoolFor(m.Maturity())
	if !ok {
		return out
	}
	return m.Balances(rp.Address())
}

func skewInput(inv []decimal.Decimal, pos domain.Position, capacity decimal.Decimal) pricing.Inventory {
	other := num.Zero
	for i, v := range inv {
		if i != int(pos) {
			other = num.Max(other, v)
		}
	}
	return pricing.Inventory{Own: inv[pos], Other: other, Capacity: capacity}
}
