// Package market implements the position-token markets the AMMs trade
// against, and the registry the oracle consumer populates.
package market

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/overtimeamm/internal/chain"
	"github.com/alanyoungcy/overtimeamm/internal/domain"
	"github.com/alanyoungcy/overtimeamm/internal/num"
	"github.com/alanyoungcy/overtimeamm/internal/token"
)

// Market is a 2- or 3-position market. Every full set of position tokens is
// backed by one unit of collateral held at the market address.
//
// A double-chance market has a parent and covers two of its positions. It
// never mints; its position 0 tokens are issued 1:1 against parent tokens of
// both covered positions held in escrow at the double-chance address.
type Market struct {
	params       domain.MarketParams
	collateral   *token.Token
	resolved     bool
	cancelled    bool
	result       domain.Position
	cancelPrices []decimal.Decimal
	balances     []map[common.Address]decimal.Decimal
	deposited    decimal.Decimal

	parent  *Market
	covered [2]domain.Position
}

func newMarket(p domain.MarketParams, collateral *token.Token) *Market {
	m := &Market{
		params:       p,
		collateral:   collateral,
		balances:     make([]map[common.Address]decimal.Decimal, p.NumPositions),
		cancelPrices: make([]decimal.Decimal, p.NumPositions),
	}
	for i := range m.balances {
		m.balances[i] = make(map[common.Address]decimal.Decimal)
	}
	// Uniform until the odds feed supplies real prices.
	even := num.Div(num.One, decimal.NewFromInt(int64(p.NumPositions)))
	for i := range m.cancelPrices {
		m.cancelPrices[i] = even
	}
	return m
}

func (m *Market) Address() common.Address { return m.params.Address }
func (m *Market) GameID() domain.GameID   { return m.params.GameID }
func (m *Market) Tags() []uint64          { return m.params.Tags }
func (m *Market) Kind() domain.MarketKind { return m.params.Kind }
func (m *Market) Line() decimal.Decimal   { return m.params.Line }
func (m *Market) HomeTeam() string        { return m.params.HomeTeam }
func (m *Market) AwayTeam() string        { return m.params.AwayTeam }
func (m *Market) NumPositions() int       { return m.params.NumPositions }
func (m *Market) Maturity() time.Time     { return m.params.Maturity }
func (m *Market) Expiry() time.Time       { return m.params.Expiry }
func (m *Market) IsDoubleChance() bool    { return m.parent != nil }
func (m *Market) Parent() *Market         { return m.parent }

// SportTag is the first tag, zero when untagged.
func (m *Market) SportTag() uint64 {
	if len(m.params.Tags) == 0 {
		return 0
	}
	return m.params.Tags[0]
}

// ChildTag is the second tag, zero when absent.
func (m *Market) ChildTag() uint64 {
	if len(m.params.Tags) < 2 {
		return 0
	}
	return m.params.Tags[1]
}

// Covered returns the two parent positions a double-chance market merges.
func (m *Market) Covered() [2]domain.Position { return m.covered }

// Resolved reports whether a result or a cancellation has been recorded.
func (m *Market) Resolved() bool {
	if m.parent != nil {
		return m.parent.resolved
	}
	return m.resolved
}

// Cancelled reports whether the market was cancelled.
func (m *Market) Cancelled() bool {
	if m.parent != nil {
		return m.parent.cancelled
	}
	return m.cancelled
}

// Result returns the winning position of a resolved, non-cancelled market.
// For a double-chance market position 0 wins iff the parent result is
// covered.
func (m *Market) Result() domain.Position {
	if m.parent != nil {
		r := m.parent.result
		if r == m.covered[0] || r == m.covered[1] {
			return domain.PositionHome
		}
		return domain.PositionAway
	}
	return m.result
}

// Matured reports whether trading time is over at now.
func (m *Market) Matured(now time.Time) bool {
	return !now.Before(m.params.Maturity)
}

// CancelPrices returns the value per token of each position on
// cancellation.
func (m *Market) CancelPrices() []decimal.Decimal {
	if m.parent != nil {
		pa := m.parent.cancelPrices[m.covered[0]]
		pb := m.parent.cancelPrices[m.covered[1]]
		sum := pa.Add(pb)
		return []decimal.Decimal{sum, num.One.Sub(sum)}
	}
	out := make([]decimal.Decimal, len(m.cancelPrices))
	copy(out, m.cancelPrices)
	return out
}

// SetCancelPrices records the normalized odds used to refund holders if the
// game is cancelled. Prices must sum to one.
func (m *Market) SetCancelPrices(tx *chain.Tx, prices []decimal.Decimal) error {
	if m.parent != nil {
		return domain.ErrMarketNotTradable
	}
	if m.resolved {
		return domain.ErrMarketResolved
	}
	if len(prices) != m.params.NumPositions {
		return domain.ErrInvalidOdds
	}
	next := make([]decimal.Decimal, len(prices))
	copy(next, prices)
	chain.Assign(tx, &m.cancelPrices, next)
	return nil
}

// CalculatePayoutOnCancellation values a holder's balances on cancellation as
// the price-weighted sum. A full set always pays one unit, whichever side
// was bought.
func (m *Market) CalculatePayoutOnCancellation(balances ...decimal.Decimal) decimal.Decimal {
	prices := m.CancelPrices()
	out := num.Zero
	for i, b := range balances {
		if i >= len(prices) {
			break
		}
		out = out.Add(num.Mul(b, prices[i]))
	}
	return out
}

// BalanceOf returns the holder's tokens of position p.
func (m *Market) BalanceOf(p domain.Position, holder common.Address) decimal.Decimal {
	if int(p) >= len(m.balances) {
		return num.Zero
	}
	return m.balances[p][holder]
}

// Balances returns the holder's tokens of every position.
func (m *Market) Balances(holder common.Address) []decimal.Decimal {
	out := make([]decimal.Decimal, len(m.balances))
	for i := range m.balances {
		out[i] = m.balances[i][holder]
	}
	return out
}

// Deposited is the collateral held against outstanding full sets.
func (m *Market) Deposited() decimal.Decimal { return m.deposited }

func (m *Market) credit(tx *chain.Tx, p domain.Position, holder common.Address, amt decimal.Decimal) {
	chain.Put(tx, m.balances[p], holder, m.balances[p][holder].Add(amt))
}

func (m *Market) debit(tx *chain.Tx, p domain.Position, holder common.Address, amt decimal.Decimal) error {
	bal := m.balances[p][holder]
	if bal.LessThan(amt) {
		return domain.ErrInsufficientBal
	}
	chain.Put(tx, m.balances[p], holder, bal.Sub(amt))
	return nil
}

// Mint takes amt collateral from holder and credits amt of every position.
func (m *Market) Mint(tx *chain.Tx, holder common.Address, amt decimal.Decimal) error {
	if m.parent != nil {
		return domain.ErrMarketNotTradable
	}
	if m.resolved {
		return domain.ErrMarketResolved
	}
	if !amt.IsPositive() {
		return nil
	}
	for i := range m.balances {
		m.credit(tx, domain.Position(i), holder, amt)
	}
	chain.Assign(tx, &m.deposited, m.deposited.Add(amt))
	return m.collateral.Transfer(tx, holder, m.params.Address, amt)
}

// Burn returns amt collateral to holder for amt full sets.
func (m *Market) Burn(tx *chain.Tx, holder common.Address, amt decimal.Decimal) error {
	if m.parent != nil {
		return domain.ErrMarketNotTradable
	}
	if !amt.IsPositive() {
		return nil
	}
	for i := range m.balances {
		if err := m.debit(tx, domain.Position(i), holder, amt); err != nil {
			return err
		}
	}
	chain.Assign(tx, &m.deposited, m.deposited.Sub(amt))
	return m.collateral.Transfer(tx, m.params.Address, holder, amt)
}

// FullSets returns how many complete sets holder owns.
func (m *Market) FullSets(holder common.Address) decimal.Decimal {
	out := m.balances[0][holder]
	for i := 1; i < len(m.balances); i++ {
		out = num.Min(out, m.balances[i][holder])
	}
	return out
}

// TransferPosition moves position tokens between holders.
func (m *Market) TransferPosition(tx *chain.Tx, p domain.Position, from, to common.Address, amt decimal.Decimal) error {
	if int(p) >= len(m.balances) {
		return domain.ErrInvalidPosition
	}
	if err := m.debit(tx, p, from, amt); err != nil {
		return err
	}
	m.credit(tx, p, to, amt)
	return nil
}

// Issue locks amt parent tokens of both covered positions from "from" in
// escrow and credits amt double-chance tokens to "to".
func (m *Market) Issue(tx *chain.Tx, from, to common.Address, amt decimal.Decimal) error {
	if m.parent == nil {
		return domain.ErrMarketNotTradable
	}
	for _, p := range m.covered {
		if err := m.parent.TransferPosition(tx, p, from, m.params.Address, amt); err != nil {
			return err
		}
	}
	m.credit(tx, domain.PositionHome, to, amt)
	return nil
}

// Redeem burns amt double-chance tokens of "from" and releases the escrowed
// parent tokens to "to".
func (m *Market) Redeem(tx *chain.Tx, from, to common.Address, amt decimal.Decimal) error {
	if m.parent == nil {
		return domain.ErrMarketNotTradable
	}
	if err := m.debit(tx, domain.PositionHome, from, amt); err != nil {
		return err
	}
	for _, p := range m.covered {
		if err := m.parent.TransferPosition(tx, p, m.params.Address, to, amt); err != nil {
			return err
		}
	}
	return nil
}

func (m *Market) resolve(tx *chain.Tx, result domain.Position) error {
	if m.parent != nil {
		return domain.ErrMarketNotTradable
	}
	if m.resolved {
		return domain.ErrMarketResolved
	}
	if int(result) >= m.params.NumPositions {
		return domain.ErrInvalidPosition
	}
	chain.Assign(tx, &m.resolved, true)
	chain.Assign(tx, &m.result, result)
	return nil
}

func (m *Market) cancel(tx *chain.Tx) error {
	if m.parent != nil {
		return domain.ErrMarketNotTradable
	}
	if m.resolved {
		return domain.ErrMarketResolved
	}
	chain.Assign(tx, &m.resolved, true)
	chain.Assign(tx, &m.cancelled, true)
	return nil
}

// PayoutOf values holder's position tokens at settlement. Zero before
// resolution.
func (m *Market) PayoutOf(holder common.Address) decimal.Decimal {
	if !m.Resolved() {
		return num.Zero
	}
	bals := m.Balances(holder)
	if m.Cancelled() {
		return m.CalculatePayoutOnCancellation(bals...)
	}
	return bals[m.Result()]
}

// ExercisePositions burns every position token holder owns and pays out
// their settlement value.
func (m *Market) ExercisePositions(tx *chain.Tx, holder common.Address) (decimal.Decimal, error) {
	if !m.Resolved() {
		return num.Zero, domain.ErrMarketNotResolved
	}
	payout := m.PayoutOf(holder)
	bals := m.Balances(holder)
	for i, b := range bals {
		if b.IsPositive() {
			chain.Put(tx, m.balances[i], holder, num.Zero)
		}
	}
	if m.parent != nil {
		// Release the escrowed parent tokens backing these tokens.
		amounts := make([]decimal.Decimal, m.parent.params.NumPositions)
		for i := range amounts {
			amounts[i] = num.Zero
		}
		for _, p := range m.covered {
			amounts[p] = bals[domain.PositionHome]
		}
		return m.parent.settle(tx, m.params.Address, amounts, holder)
	}
	if payout.IsPositive() {
		chain.Assign(tx, &m.deposited, m.deposited.Sub(payout))
		if err := m.collateral.Transfer(tx, m.params.Address, holder, payout); err != nil {
			return num.Zero, err
		}
	}
	return payout, nil
}

// settle burns the given per-position amounts from holder and pays their
// settlement value to payee.
func (m *Market) settle(tx *chain.Tx, holder common.Address, amounts []decimal.Decimal, payee common.Address) (decimal.Decimal, error) {
	for i, a := range amounts {
		if err := m.debit(tx, domain.Position(i), holder, a); err != nil {
			return num.Zero, err
		}
	}
	var payout decimal.Decimal
	if m.cancelled {
		payout = m.CalculatePayoutOnCancellation(amounts...)
	} else {
		payout = amounts[m.result]
	}
	if !payout.IsPositive() {
		return num.Zero, nil
	}
	chain.Assign(tx, &m.deposited, m.deposited.Sub(payout))
	return payout, m.collateral.Transfer(tx, m.params.Address, payee, payout)
}

// Info snapshots the market.
func (m *Market) Info(paused bool) domain.MarketInfo {
	info := domain.MarketInfo{
		Address:      m.params.Address,
		GameID:       m.params.GameID.Hex(),
		Tags:         m.params.Tags,
		Kind:         m.params.Kind.String(),
		Line:         m.params.Line,
		HomeTeam:     m.params.HomeTeam,
		AwayTeam:     m.params.AwayTeam,
		NumPositions: m.params.NumPositions,
		Maturity:     m.params.Maturity,
		Expiry:       m.params.Expiry,
		Resolved:     m.Resolved(),
		Cancelled:    m.Cancelled(),
		Result:       m.Result(),
		Paused:       paused,
	}
	if m.parent != nil {
		p := m.parent.Address()
		info.Parent = &p
	}
	return info
}
