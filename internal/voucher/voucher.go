// Package voucher implements prepaid sUSD vouchers that can be spent on the
// AMMs by their holder.
package voucher

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/overtimeamm/internal/chain"
	"github.com/alanyoungcy/overtimeamm/internal/domain"
	"github.com/alanyoungcy/overtimeamm/internal/num"
	"github.com/alanyoungcy/overtimeamm/internal/token"
)

// ErrUnknownVoucher is returned for ids that were never minted.
var ErrUnknownVoucher = domain.Revert(domain.ErrNotFound, "Voucher does not exist")

type voucher struct {
	owner  common.Address
	amount decimal.Decimal
}

// Vouchers is the voucher collection. The sUSD backing every voucher is held
// at the collection address.
type Vouchers struct {
	owner    common.Address
	address  common.Address
	susd     *token.Token
	spenders map[common.Address]bool
	vouchers map[uint64]voucher
	nextID   uint64
}

// New creates an empty collection.
func New(owner, address common.Address, susd *token.Token) *Vouchers {
	return &Vouchers{
		owner:    owner,
		address:  address,
		susd:     susd,
		spenders: make(map[common.Address]bool),
		vouchers: make(map[uint64]voucher),
	}
}

func (v *Vouchers) Address() common.Address { return v.address }

// SetSpender allows an AMM to redeem vouchers on behalf of their holders.
func (v *Vouchers) SetSpender(tx *chain.Tx, caller, spender common.Address, allowed bool) error {
	if caller != v.owner {
		return domain.ErrOnlyOwner
	}
	chain.Put(tx, v.spenders, spender, allowed)
	return nil
}

// Mint funds a voucher of amount from minter and gives it to recipient.
func (v *Vouchers) Mint(tx *chain.Tx, minter, recipient common.Address, amount decimal.Decimal) (uint64, error) {
	if !amount.IsPositive() {
		return 0, domain.ErrZeroAmount
	}
	id := v.nextID + 1
	chain.Assign(tx, &v.nextID, id)
	chain.Put(tx, v.vouchers, id, voucher{owner: recipient, amount: amount})
	if err := v.susd.Transfer(tx, minter, v.address, amount); err != nil {
		return 0, err
	}
	tx.Emit(domain.EventVoucherMinted, map[string]any{
		"id":        id,
		"recipient": domain.Addr(recipient),
		"amount":    domain.Dec(amount),
	})
	return id, nil
}

// Transfer hands voucher id to another holder.
func (v *Vouchers) Transfer(tx *chain.Tx, caller common.Address, id uint64, to common.Address) error {
	vc, ok := v.vouchers[id]
	if !ok {
		return ErrUnknownVoucher
	}
	if vc.owner != caller {
		return domain.ErrNotVoucherOwner
	}
	vc.owner = to
	chain.Put(tx, v.vouchers, id, vc)
	return nil
}

// Spend debits exactly amount from voucher id, which holder must own, and
// pays it to beneficiary. Only approved spenders may call it.
func (v *Vouchers) Spend(tx *chain.Tx, spender, holder common.Address, id uint64, amount decimal.Decimal, beneficiary common.Address) error {
	if !v.spenders[spender] {
		return domain.ErrInvalidCaller
	}
	vc, ok := v.vouchers[id]
	if !ok {
		return ErrUnknownVoucher
	}
	if vc.owner != holder {
		return domain.ErrNotVoucherOwner
	}
	if amount.GreaterThan(vc.amount) {
		return domain.ErrVoucherUnderfunded
	}
	vc.amount = vc.amount.Sub(amount)
	chain.Put(tx, v.vouchers, id, vc)
	if err := v.susd.Transfer(tx, v.address, beneficiary, amount); err != nil {
		return err
	}
	tx.Emit(domain.EventVoucherSpent, map[string]any{
		"id":          id,
		"holder":      domain.Addr(holder),
		"amount":      domain.Dec(amount),
		"beneficiary": domain.Addr(beneficiary),
	})
	return nil
}

// AmountInVoucher returns the remaining balance of voucher id.
func (v *Vouchers) AmountInVoucher(id uint64) decimal.Decimal {
	vc, ok := v.vouchers[id]
	if !ok {
		return num.Zero
	}
	return vc.amount
}

// OwnerOf returns the holder of voucher id.
func (v *Vouchers) OwnerOf(id uint64) (common.Address, bool) {
	vc, ok := v.vouchers[id]
	return vc.owner, ok
}
