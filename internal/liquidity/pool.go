// Package liquidity implements the round-based liquidity pool that funds the
// AMMs. Capital deposited in round N becomes tradable in round N+1; a default
// liquidity provider backstops any shortfall.
package liquidity

import (
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/overtimeamm/internal/chain"
	"github.com/alanyoungcy/overtimeamm/internal/domain"
	"github.com/alanyoungcy/overtimeamm/internal/num"
	"github.com/alanyoungcy/overtimeamm/internal/registry"
	"github.com/alanyoungcy/overtimeamm/internal/token"
)

// Params configure a Pool.
type Params struct {
	Name                     string
	RoundLength              time.Duration
	MinDepositAmount         decimal.Decimal
	MaxAllowedDeposit        decimal.Decimal
	MaxAllowedUsers          int
	UtilizationRate          decimal.Decimal
	OnlyWhitelisted          bool
	DefaultLiquidityProvider common.Address
}

type userRound struct {
	round uint64
	user  common.Address
}

// Pool is a round-based liquidity pool.
type Pool struct {
	params     Params
	owner      common.Address
	address    common.Address
	amm        common.Address
	collateral *token.Token
	factory    *registry.Handle[Factory]
	settler    Settler
	logger     *slog.Logger

	started         bool
	round           uint64
	firstRoundStart time.Time

	roundPools    map[uint64]*RoundPool
	allocation    map[uint64]decimal.Decimal
	balances      map[userRound]decimal.Decimal
	usersPerRound map[uint64][]common.Address
	inRound       map[userRound]bool
	inPool        map[common.Address]bool
	usersInPool   int
	whitelist     map[common.Address]bool

	withdrawalRequested map[common.Address]bool
	withdrawalShare     map[common.Address]decimal.Decimal

	totalDeposited decimal.Decimal
	pnlPerRound    map[uint64]decimal.Decimal
	cumulativePnL  map[uint64]decimal.Decimal

	closingPrepared bool
	usersProcessed  int
	closingPnL      decimal.Decimal
	closingBalance  decimal.Decimal
}

// New creates a Pool at address. The AMM address is the only caller allowed
// to commit trading capital.
func New(p Params, owner, address common.Address, collateral *token.Token, factory *registry.Handle[Factory], logger *slog.Logger) *Pool {
	return &Pool{
		params:              p,
		owner:               owner,
		address:             address,
		collateral:          collateral,
		factory:             factory,
		logger:              logger.With(slog.String("component", "liquidity"), slog.String("pool", p.Name)),
		roundPools:          make(map[uint64]*RoundPool),
		allocation:          make(map[uint64]decimal.Decimal),
		balances:            make(map[userRound]decimal.Decimal),
		usersPerRound:       make(map[uint64][]common.Address),
		inRound:             make(map[userRound]bool),
		inPool:              make(map[common.Address]bool),
		whitelist:           make(map[common.Address]bool),
		withdrawalRequested: make(map[common.Address]bool),
		withdrawalShare:     make(map[common.Address]decimal.Decimal),
		pnlPerRound:         make(map[uint64]decimal.Decimal),
		cumulativePnL:       map[uint64]decimal.Decimal{0: num.One},
	}
}

// Bind registers the AMM and the settler of its round members. Called once
// during wiring.
func (p *Pool) Bind(amm common.Address, settler Settler) {
	p.amm = amm
	p.settler = settler
}

func (p *Pool) Name() string            { return p.params.Name }
func (p *Pool) Address() common.Address { return p.address }
func (p *Pool) Params() Params          { return p.params }
func (p *Pool) Started() bool           { return p.started }
func (p *Pool) Round() uint64           { return p.round }

// SetWhitelisted grants or revokes deposit rights.
func (p *Pool) SetWhitelisted(tx *chain.Tx, caller common.Address, users []common.Address, allowed bool) error {
	if caller != p.owner {
		return domain.ErrOnlyOwner
	}
	for _, u := range users {
		chain.Put(tx, p.whitelist, u, allowed)
	}
	return nil
}

// Start opens round one. Deposits made before start form its allocation.
func (p *Pool) Start(tx *chain.Tx, caller common.Address) error {
	if caller != p.owner {
		return domain.ErrOnlyOwner
	}
	if p.started {
		return domain.ErrPoolStarted
	}
	chain.Assign(tx, &p.started, true)
	chain.Assign(tx, &p.round, 1)
	chain.Assign(tx, &p.firstRoundStart, tx.Now())
	p.roundPool(tx, 1)
	tx.Emit(domain.EventPoolStarted, map[string]any{
		"pool":       p.params.Name,
		"allocation": domain.Dec(p.allocation[1]),
		"start":      tx.Now(),
	})
	p.logger.InfoContext(tx.Context(), "liquidity: pool started",
		slog.String("allocation", p.allocation[1].String()),
	)
	return nil
}

// RoundStart returns the start of round r. Zero before the pool starts.
func (p *Pool) RoundStart(r uint64) time.Time {
	if !p.started || r == 0 {
		return time.Time{}
	}
	return p.firstRoundStart.Add(time.Duration(r-1) * p.params.RoundLength)
}

// RoundEnd returns the end of round r.
func (p *Pool) RoundEnd(r uint64) time.Time {
	if !p.started || r == 0 {
		return time.Time{}
	}
	return p.RoundStart(r).Add(p.params.RoundLength)
}

// GetMarketRound returns the round a market maturing at t belongs to.
func (p *Pool) GetMarketRound(t time.Time) uint64 {
	if !p.started || !t.After(p.firstRoundStart) {
		return 1
	}
	return uint64(t.Sub(p.firstRoundStart)/p.params.RoundLength) + 1
}

func (p *Pool) roundPool(tx *chain.Tx, r uint64) *RoundPool {
	if rp, ok := p.roundPools[r]; ok {
		return rp
	}
	rp := p.factory.Get().NewRoundPool(tx, p.address, r, p.RoundStart(r))
	chain.Put(tx, p.roundPools, r, rp)
	return rp
}

// RoundPool returns the accounting unit of round r if it exists.
func (p *Pool) RoundPool(r uint64) (*RoundPool, bool) {
	rp, ok := p.roundPools[r]
	return rp, ok
}

// RoundPoolFor returns the round pool a market maturing at maturity trades
// from, if it has been created.
func (p *Pool) RoundPoolFor(maturity time.Time) (*RoundPool, bool) {
	return p.RoundPool(max(p.GetMarketRound(maturity), p.round))
}

// Deposit queues amount for the next round. Before start the next round is
// round one.
func (p *Pool) Deposit(tx *chain.Tx, user common.Address, amount decimal.Decimal) error {
	if p.closingPrepared {
		return domain.ErrRoundClosing
	}
	if p.params.OnlyWhitelisted && !p.whitelist[user] {
		return domain.ErrOnlyWhitelisted
	}
	if amount.LessThan(p.params.MinDepositAmount) || !amount.IsPositive() {
		return domain.ErrBelowMinDeposit
	}
	if p.withdrawalRequested[user] {
		return domain.ErrWithdrawRequested
	}
	if p.totalDeposited.Add(amount).GreaterThan(p.params.MaxAllowedDeposit) {
		return domain.ErrDepositCap
	}
	if !p.inPool[user] {
		if p.usersInPool >= p.params.MaxAllowedUsers {
			return domain.ErrMaxUsers
		}
		chain.Put(tx, p.inPool, user, true)
		chain.Assign(tx, &p.usersInPool, p.usersInPool+1)
	}

	next := p.round + 1
	rp := p.roundPool(tx, next)
	key := userRound{next, user}
	chain.Put(tx, p.balances, key, p.balances[key].Add(amount))
	chain.Put(tx, p.allocation, next, p.allocation[next].Add(amount))
	chain.Assign(tx, &p.totalDeposited, p.totalDeposited.Add(amount))
	p.addUser(tx, next, user)

	if err := p.collateral.Transfer(tx, user, rp.address, amount); err != nil {
		return err
	}
	tx.Emit(domain.EventDeposited, map[string]any{
		"pool":   p.params.Name,
		"user":   domain.Addr(user),
		"amount": domain.Dec(amount),
		"round":  next,
	})
	return nil
}

func (p *Pool) addUser(tx *chain.Tx, r uint64, user common.Address) {
	key := userRound{r, user}
	if p.inRound[key] {
		return
	}
	chain.Put(tx, p.inRound, key, true)
	users := append(append([]common.Address(nil), p.usersPerRound[r]...), user)
	chain.Put(tx, p.usersPerRound, r, users)
}

// WithdrawalRequest schedules the user's full balance for withdrawal at the
// end of the current round.
func (p *Pool) WithdrawalRequest(tx *chain.Tx, user common.Address) error {
	return p.requestWithdrawal(tx, user, num.Zero)
}

// PartialWithdrawalRequest schedules a fraction in [0.1, 0.9] of the user's
// balance for withdrawal at the end of the current round.
func (p *Pool) PartialWithdrawalRequest(tx *chain.Tx, user common.Address, fraction decimal.Decimal) error {
	if fraction.LessThan(num.MustParse("0.1")) || fraction.GreaterThan(num.MustParse("0.9")) {
		return domain.ErrInvalidFraction
	}
	return p.requestWithdrawal(tx, user, fraction)
}

func (p *Pool) requestWithdrawal(tx *chain.Tx, user common.Address, fraction decimal.Decimal) error {
	if !p.started {
		return domain.ErrPoolNotStarted
	}
	if p.closingPrepared {
		return domain.ErrRoundClosing
	}
	if p.withdrawalRequested[user] {
		return domain.ErrWithdrawRequested
	}
	if !p.balances[userRound{p.round, user}].IsPositive() {
		return domain.ErrNothingToWithdraw
	}
	if p.balances[userRound{p.round + 1, user}].IsPositive() {
		return domain.Revert(domain.ErrState, "Can't withdraw as you already deposited for next round")
	}
	chain.Put(tx, p.withdrawalRequested, user, true)
	chain.Put(tx, p.withdrawalShare, user, fraction)
	tx.Emit(domain.EventWithdrawalRequested, map[string]any{
		"pool":     p.params.Name,
		"user":     domain.Addr(user),
		"round":    p.round,
		"fraction": domain.Dec(fraction),
	})
	return nil
}

// CommitTrade reserves amount of trading capital for member, a market or
// ticket maturing at maturity, and returns its round pool. Capital of the
// current round is used up to allocation * utilizationRate; the rest, and
// everything for future rounds, comes from the default liquidity provider.
func (p *Pool) CommitTrade(tx *chain.Tx, caller, member common.Address, maturity time.Time, amount decimal.Decimal) (*RoundPool, error) {
	if caller != p.amm {
		return nil, domain.ErrInvalidCaller
	}
	if !p.started {
		return nil, domain.ErrPoolNotStarted
	}
	if p.closingPrepared {
		return nil, domain.ErrRoundClosing
	}
	r := max(p.GetMarketRound(maturity), p.round)
	rp := p.roundPool(tx, r)
	rp.addMember(tx, member)
	if !amount.IsPositive() {
		return rp, nil
	}

	fromUsers := num.Zero
	if r == p.round {
		headroom := num.Floor(p.Tradable(r).Sub(rp.committed))
		fromUsers = num.Min(amount, num.Min(headroom, p.collateral.BalanceOf(rp.address)))
	}
	shortfall := amount.Sub(fromUsers)
	chain.Assign(tx, &rp.committed, rp.committed.Add(fromUsers))

	if shortfall.IsPositive() {
		dlp := p.params.DefaultLiquidityProvider
		if p.collateral.BalanceOf(dlp).LessThan(shortfall) {
			return nil, domain.ErrNotEnoughLiquidity
		}
		chain.Assign(tx, &rp.dlp, rp.dlp.Add(shortfall))
		if err := p.collateral.Transfer(tx, dlp, rp.address, shortfall); err != nil {
			return nil, err
		}
		p.logger.DebugContext(tx.Context(), "liquidity: default provider covered shortfall",
			slog.Uint64("round", r),
			slog.String("amount", shortfall.String()),
		)
	}
	return rp, nil
}

// Tradable returns the capital of round r exposed to trading risk.
func (p *Pool) Tradable(r uint64) decimal.Decimal {
	return num.Mul(p.allocation[r], p.params.UtilizationRate)
}

// Allocation returns the user capital of round r.
func (p *Pool) Allocation(r uint64) decimal.Decimal { return p.allocation[r] }

// BalanceOf returns the user's capital in round r.
func (p *Pool) BalanceOf(user common.Address, r uint64) decimal.Decimal {
	return p.balances[userRound{r, user}]
}

// PnL returns the profit and loss ratio of a closed round.
func (p *Pool) PnL(r uint64) (decimal.Decimal, bool) {
	v, ok := p.pnlPerRound[r]
	return v, ok
}

// CumulativePnL returns the compounded ratio up to and including round r.
func (p *Pool) CumulativePnL(r uint64) decimal.Decimal {
	return p.cumulativePnL[r]
}

// UsersInPool returns the number of depositors with capital in the pool.
func (p *Pool) UsersInPool() int { return p.usersInPool }

// Info snapshots the pool.
func (p *Pool) Info() domain.PoolInfo {
	info := domain.PoolInfo{
		Name:            p.params.Name,
		Started:         p.started,
		Round:           p.round,
		RoundStart:      p.RoundStart(p.round),
		RoundEnd:        p.RoundEnd(p.round),
		Allocation:      p.allocation[p.round],
		NextAllocation:  p.allocation[p.round+1],
		Tradable:        p.Tradable(p.round),
		Users:           p.usersInPool,
		ClosingPrepared: p.closingPrepared,
	}
	if rp, ok := p.roundPools[p.round]; ok {
		info.Committed = rp.committed
		info.DLPContribution = rp.dlp
	}
	return info
}
