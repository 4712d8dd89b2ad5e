// Package ramp swaps supported collaterals into sUSD at oracle-set rates so
// the AMMs can accept payment in any of them.
package ramp

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/overtimeamm/internal/chain"
	"github.com/alanyoungcy/overtimeamm/internal/domain"
	"github.com/alanyoungcy/overtimeamm/internal/num"
	"github.com/alanyoungcy/overtimeamm/internal/token"
)

// Buffer is added on top of every QuoteIn so the swapped sUSD always covers
// the quote.
var Buffer = num.MustParse("0.002")

type rate struct {
	value     decimal.Decimal
	updatedAt time.Time
}

// Ramp holds an sUSD reserve and sells it for other collaterals.
type Ramp struct {
	owner       common.Address
	address     common.Address
	susd        *token.Token
	tokens      *token.Set
	oracles     map[common.Address]bool
	rates       map[common.Address]rate
	fee         decimal.Decimal
	minInterval time.Duration
}

// New creates a Ramp at address. fee is charged on the collateral side.
func New(owner, address common.Address, tokens *token.Set, fee decimal.Decimal, minInterval time.Duration) *Ramp {
	return &Ramp{
		owner:       owner,
		address:     address,
		susd:        tokens.Primary(),
		tokens:      tokens,
		oracles:     make(map[common.Address]bool),
		rates:       make(map[common.Address]rate),
		fee:         fee,
		minInterval: minInterval,
	}
}

func (r *Ramp) Address() common.Address { return r.address }

// SetOracle grants or revokes the right to publish rates.
func (r *Ramp) SetOracle(tx *chain.Tx, caller, oracle common.Address, allowed bool) error {
	if caller != r.owner {
		return domain.ErrOnlyOwner
	}
	chain.Put(tx, r.oracles, oracle, allowed)
	return nil
}

// SetRate publishes the price of one sUSD in collateral units.
func (r *Ramp) SetRate(tx *chain.Tx, caller, collateral common.Address, value decimal.Decimal) error {
	if caller != r.owner && !r.oracles[caller] {
		return domain.ErrInvalidCaller
	}
	if _, ok := r.tokens.Get(collateral); !ok || collateral == r.susd.Address() {
		return domain.ErrUnsupportedAsset
	}
	if !value.IsPositive() {
		return domain.Revert(domain.ErrValidation, "Invalid rate")
	}
	if prev, ok := r.rates[collateral]; ok && tx.Now().Sub(prev.updatedAt) < r.minInterval {
		return domain.ErrRateTooFrequent
	}
	chain.Put(tx, r.rates, collateral, rate{value: value, updatedAt: tx.Now()})
	return nil
}

// Rate returns the current rate of collateral.
func (r *Ramp) Rate(collateral common.Address) (decimal.Decimal, bool) {
	v, ok := r.rates[collateral]
	return v.value, ok
}

// QuoteIn returns the collateral needed to obtain sUSDOut, rounded up and
// including the buffer. It is never below sUSDOut at a rate of one.
func (r *Ramp) QuoteIn(collateral common.Address, sUSDOut decimal.Decimal) (decimal.Decimal, error) {
	if collateral == r.susd.Address() {
		return sUSDOut, nil
	}
	v, ok := r.rates[collateral]
	if !ok {
		return num.Zero, domain.ErrUnsupportedAsset
	}
	gross := sUSDOut.Mul(v.value).Mul(num.One.Add(r.fee)).Mul(num.One.Add(Buffer))
	return gross.RoundCeil(num.Precision), nil
}

// QuoteOut returns the sUSD obtained for collIn.
func (r *Ramp) QuoteOut(collateral common.Address, collIn decimal.Decimal) (decimal.Decimal, error) {
	if collateral == r.susd.Address() {
		return collIn, nil
	}
	v, ok := r.rates[collateral]
	if !ok {
		return num.Zero, domain.ErrUnsupportedAsset
	}
	return num.Div(collIn, num.Mul(v.value, num.One.Add(r.fee))), nil
}

// Swap sells collIn of collateral for at least minSUSDOut.
func (r *Ramp) Swap(tx *chain.Tx, account, collateral common.Address, collIn, minSUSDOut decimal.Decimal) (decimal.Decimal, error) {
	out, err := r.QuoteOut(collateral, collIn)
	if err != nil {
		return num.Zero, err
	}
	if out.LessThan(minSUSDOut) {
		return num.Zero, domain.ErrSlippageTooHigh
	}
	if err := r.settle(tx, account, collateral, collIn, out); err != nil {
		return num.Zero, err
	}
	return out, nil
}

// SwapExactOut delivers exactly sUSDOut to account for at most maxIn of
// collateral and returns the collateral spent.
func (r *Ramp) SwapExactOut(tx *chain.Tx, account, collateral common.Address, sUSDOut, maxIn decimal.Decimal) (decimal.Decimal, error) {
	in, err := r.QuoteIn(collateral, sUSDOut)
	if err != nil {
		return num.Zero, err
	}
	if in.GreaterThan(maxIn) {
		return num.Zero, domain.ErrSlippageTooHigh
	}
	if err := r.settle(tx, account, collateral, in, sUSDOut); err != nil {
		return num.Zero, err
	}
	return in, nil
}

func (r *Ramp) settle(tx *chain.Tx, account, collateral common.Address, in, out decimal.Decimal) error {
	if collateral == r.susd.Address() {
		return nil
	}
	coll, _ := r.tokens.Get(collateral)
	if r.susd.BalanceOf(r.address).LessThan(out) {
		return domain.Revert(domain.ErrInsufficient, "Not enough sUSD in ramp")
	}
	if err := coll.Transfer(tx, account, r.address, in); err != nil {
		return err
	}
	return r.susd.Transfer(tx, r.address, account, out)
}
