// Package parlay implements the parlay AMM: it prices combinations of
// single-market legs, fills every leg through the single-market AMM into a
// ticket funded by the parlay liquidity pool, and settles tickets by
// exercising their leg tokens.
package parlay

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
	"github.com/alanyoungcy/overtimeamm/internal/pricing"
	"github.com/alanyoungcy/overtimeamm/internal/ramp"
	"github.com/alanyoungcy/overtimeamm/internal/registry"
	"github.com/alanyoungcy/overtimeamm/internal/risk"
	"github.com/alanyoungcy/overtimeamm/internal/token"
	"github.com/alanyoungcy/overtimeamm/internal/voucher"
)

// Params configure the parlay AMM.
type Params struct {
	ParlayAmmFee                       decimal.Decimal
	SafeBoxImpact                      decimal.Decimal
	SafeBox                            common.Address
	ReferrerFee                        decimal.Decimal
	ParlaySize                         int
	MinUSDAmount                       decimal.Decimal
	MaxSupportedAmount                 decimal.Decimal
	MaxSupportedOdds                   decimal.Decimal
	MaxAllowedRiskPerCombination       decimal.Decimal
	MaxAllowedRiskPerMarketAndPosition decimal.Decimal
	ExpiryDuration                     time.Duration
}

// SportsAMM prices single legs and fills them into tickets. The
// single-market AMM implements it.
type SportsAMM interface {
	QuoteForParlay(m *market.Market, pos domain.Position, now time.Time) decimal.Decimal
	AvailableToBuyFromAMM(m *market.Market, pos domain.Position, now time.Time) decimal.Decimal
	BuyQuoteForParlay(m *market.Market, pos domain.Position, amount decimal.Decimal, now time.Time) decimal.Decimal
	BuyForParlay(tx *chain.Tx, caller, addr common.Address, pos domain.Position, amount, maxCost decimal.Decimal, recipient common.Address) (decimal.Decimal, error)
}

// LiquidityPool funds the LP side of every ticket.
type LiquidityPool interface {
	CommitTrade(tx *chain.Tx, caller, member common.Address, maturity time.Time, amount decimal.Decimal) (*liquidity.RoundPool, error)
}

// Deps are the collaborators of the parlay AMM.
type Deps struct {
	Markets  *market.Manager
	Sports   SportsAMM
	Risk     *risk.Manager
	Pool     LiquidityPool
	Tokens   *token.Set
	SGP      *registry.Handle[pricing.SGPCombinator]
	Ramp     *ramp.Ramp
	Vouchers *voucher.Vouchers
}

type sgpKey struct {
	sport uint64
	pair  pricing.PairType
}

type legKey struct {
	market   common.Address
	position domain.Position
}

// AMM is the parlay AMM.
type AMM struct {
	params  Params
	owner   common.Address
	address common.Address
	deps    Deps
	susd    *token.Token
	logger  *slog.Logger

	sgpFeePerSport map[uint64]decimal.Decimal
	sgpFeePerPair  map[sgpKey]decimal.Decimal

	riskPerCombination *ledger.Counters[common.Hash]
	riskPerLeg         *ledger.Counters[legKey]

	tickets map[common.Address]*Ticket
	order   []common.Address
	byOwner map[common.Address][]common.Address
}

// New creates a parlay AMM at address.
func New(p Params, owner, address common.Address, deps Deps, logger *slog.Logger) *AMM {
	return &AMM{
		params:             p,
		owner:              owner,
		address:            address,
		deps:               deps,
		susd:               deps.Tokens.Primary(),
		logger:             logger.With(slog.String("component", "parlay")),
		sgpFeePerSport:     make(map[uint64]decimal.Decimal),
		sgpFeePerPair:      make(map[sgpKey]decimal.Decimal),
		riskPerCombination: ledger.New[common.Hash]("risk_per_combination"),
		riskPerLeg:         ledger.New[legKey]("risk_per_market_and_position"),
		tickets:            make(map[common.Address]*Ticket),
		byOwner:            make(map[common.Address][]common.Address),
	}
}

func (a *AMM) Address() common.Address { return a.address }
func (a *AMM) Params() Params          { return a.params }

// SetParams replaces the parlay parameters.
func (a *AMM) SetParams(tx *chain.Tx, caller common.Address, p Params) error {
	if caller != a.owner {
		return domain.ErrOnlyOwner
	}
	if p.ParlaySize < 2 {
		return domain.ErrWrongNumberOfLegs
	}
	chain.Assign(tx, &a.params, p)
	return nil
}

// SetSGPFeePerSport enables same-game parlays for sport. Zero disables them.
func (a *AMM) SetSGPFeePerSport(tx *chain.Tx, caller common.Address, sport uint64, fee decimal.Decimal) error {
	if caller != a.owner {
		return domain.ErrOnlyOwner
	}
	if fee.IsNegative() || fee.GreaterThan(decimal.NewFromInt(1)) {
		return domain.Revert(domain.ErrValidation, "Invalid SGP fee")
	}
	chain.Put(tx, a.sgpFeePerSport, sport, fee)
	return nil
}

// SetSGPFeePerPair overrides the fee of one pair type within a sport. Zero
// removes the override.
func (a *AMM) SetSGPFeePerPair(tx *chain.Tx, caller common.Address, sport uint64, pair pricing.PairType, fee decimal.Decimal) error {
	if caller != a.owner {
		return domain.ErrOnlyOwner
	}
	k := sgpKey{sport, pair}
	if fee.IsZero() {
		chain.Delete(tx, a.sgpFeePerPair, k)
		return nil
	}
	chain.Put(tx, a.sgpFeePerPair, k, fee)
	return nil
}

func (a *AMM) sgpFee(sport uint64, pair pricing.PairType) decimal.Decimal {
	if v, ok := a.sgpFeePerPair[sgpKey{sport, pair}]; ok {
		return v
	}
	return a.sgpFeePerSport[sport]
}

// RiskPerCombination returns the LP exposure booked on a combination key.
func (a *AMM) RiskPerCombination(key common.Hash) decimal.Decimal {
	return a.riskPerCombination.Get(key)
}

// RiskPerMarketAndPosition returns the payout exposure on one leg.
func (a *AMM) RiskPerMarketAndPosition(m common.Address, pos domain.Position) decimal.Decimal {
	return a.riskPerLeg.Get(legKey{m, pos})
}

// ResetRiskPerCombination clears the exposure of one combination.
func (a *AMM) ResetRiskPerCombination(tx *chain.Tx, caller common.Address, key common.Hash) error {
	if caller != a.owner {
		return domain.ErrOnlyOwner
	}
	a.riskPerCombination.Reset(tx, key)
	tx.Emit(domain.EventCombinationRiskReset, map[string]any{
		"key": key.Hex(),
	})
	return nil
}

// Ticket returns the ticket deployed at addr.
func (a *AMM) Ticket(addr common.Address) (*Ticket, error) {
	t, ok := a.tickets[addr]
	if !ok {
		return nil, ErrTicketNotFound
	}
	return t, nil
}

// TicketsOf lists the tickets bought by owner, oldest first.
func (a *AMM) TicketsOf(owner common.Address) []*Ticket {
	addrs := a.byOwner[owner]
	out := make([]*Ticket, 0, len(addrs))
	for _, addr := range addrs {
		out = append(out, a.tickets[addr])
	}
	return out
}

// ActiveTickets lists tickets that are neither exercised nor expired.
func (a *AMM) ActiveTickets() []*Ticket {
	var out []*Ticket
	for _, addr := range a.order {
		if t := a.tickets[addr]; !t.phase.Terminal() {
			out = append(out, t)
		}
	}
	return out
}

// ErrTicketNotFound is returned for unknown ticket addresses.
var ErrTicketNotFound = domain.Revert(domain.ErrNotFound, "Parlay not found")
