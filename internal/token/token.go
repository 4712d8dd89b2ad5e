// Package token implements the collateral tokens the engines settle in.
package token

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/overtimeamm/internal/chain"
	"github.com/alanyoungcy/overtimeamm/internal/domain"
)

// TransferHook observes a completed balance move. It runs inside the same
// transaction and may call back into any engine.
type TransferHook func(tx *chain.Tx, from, to common.Address, amount decimal.Decimal) error

// Token is an ERC20-like balance ledger.
type Token struct {
	symbol   string
	address  common.Address
	balances map[common.Address]decimal.Decimal
	supply   decimal.Decimal
	hook     TransferHook
}

// New creates an empty token.
func New(symbol string, address common.Address) *Token {
	return &Token{
		symbol:   symbol,
		address:  address,
		balances: make(map[common.Address]decimal.Decimal),
	}
}

func (t *Token) Symbol() string          { return t.symbol }
func (t *Token) Address() common.Address { return t.address }

// TotalSupply returns the minted supply.
func (t *Token) TotalSupply() decimal.Decimal { return t.supply }

// SetHook installs the transfer observer. Pass nil to remove it.
func (t *Token) SetHook(h TransferHook) { t.hook = h }

// BalanceOf returns the balance of account.
func (t *Token) BalanceOf(account common.Address) decimal.Decimal {
	return t.balances[account]
}

// Mint credits amount to account out of thin air. Used by faucets and tests.
func (t *Token) Mint(tx *chain.Tx, to common.Address, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return domain.ErrZeroAmount
	}
	chain.Put(tx, t.balances, to, t.balances[to].Add(amount))
	chain.Assign(tx, &t.supply, t.supply.Add(amount))
	return nil
}

// Transfer moves amount from one account to another, then calls the hook.
func (t *Token) Transfer(tx *chain.Tx, from, to common.Address, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return domain.ErrZeroAmount
	}
	if amount.IsZero() || from == to {
		return nil
	}
	bal := t.balances[from]
	if bal.LessThan(amount) {
		return domain.ErrInsufficientBal
	}
	chain.Put(tx, t.balances, from, bal.Sub(amount))
	chain.Put(tx, t.balances, to, t.balances[to].Add(amount))
	if t.hook != nil {
		return t.hook(tx, from, to, amount)
	}
	return nil
}

// Set is a registry of collateral tokens keyed by address.
type Set struct {
	primary *Token
	byAddr  map[common.Address]*Token
}

// NewSet creates a Set whose settlement token is primary.
func NewSet(primary *Token, others ...*Token) *Set {
	s := &Set{primary: primary, byAddr: map[common.Address]*Token{primary.Address(): primary}}
	for _, o := range others {
		s.byAddr[o.Address()] = o
	}
	return s
}

// Primary returns the settlement token.
func (s *Set) Primary() *Token { return s.primary }

// Get returns the token at addr.
func (s *Set) Get(addr common.Address) (*Token, bool) {
	t, ok := s.byAddr[addr]
	return t, ok
}

// BySymbol finds a token by symbol.
func (s *Set) BySymbol(sym string) (*Token, bool) {
	for _, t := range s.byAddr {
		if t.symbol == sym {
			return t, true
		}
	}
	return nil, false
}
