package sportsamm

import (
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/overtimeamm/internal/chain"
	"github.com/alanyoungcy/overtimeamm/internal/domain"
	"github.com/alanyoungcy/overtimeamm/internal/market"
	"github.com/alanyoungcy/overtimeamm/internal/num"
)

// Trade describes an executed buy or sell.
type Trade struct {
	Market     common.Address  `json:"market"`
	Position   domain.Position `json:"position"`
	Amount     decimal.Decimal `json:"amount"`
	SUSD       decimal.Decimal `json:"susd"`
	Collateral common.Address  `json:"collateral"`
	Paid       decimal.Decimal `json:"paid"`
	RoundPool  common.Address  `json:"round_pool"`
}

// payer abstracts where the sUSD of a buy comes from.
type payer struct {
	collateral common.Address
	// check validates the quote in the payer's units and returns the amount
	// that will be charged.
	check func(quote decimal.Decimal) (decimal.Decimal, error)
	// collect moves quote sUSD to the AMM address.
	collect func(tx *chain.Tx, quote, paid decimal.Decimal) error
	// recipient receives the tokens. Zero means the buyer.
	recipient common.Address
	// noSafeBox charges the quote without the safe-box fee.
	noSafeBox bool
}

func maxWithSlippage(expected, slippage decimal.Decimal) decimal.Decimal {
	return num.Mul(expected, num.One.Add(slippage))
}

func minWithSlippage(expected, slippage decimal.Decimal) decimal.Decimal {
	return num.Mul(expected, num.One.Sub(slippage))
}

func (a *AMM) directPayer(buyer common.Address, expected, slippage decimal.Decimal) payer {
	return payer{
		collateral: a.susd.Address(),
		check: func(quote decimal.Decimal) (decimal.Decimal, error) {
			if quote.GreaterThan(maxWithSlippage(expected, slippage)) {
				return num.Zero, domain.ErrSlippageTooHigh
			}
			return quote, nil
		},
		collect: func(tx *chain.Tx, quote, _ decimal.Decimal) error {
			return a.susd.Transfer(tx, buyer, a.address, quote)
		},
	}
}

// BuyFromAMM buys amount tokens of pos paying at most
// expectedPayment * (1+slippage) sUSD.
func (a *AMM) BuyFromAMM(tx *chain.Tx, buyer, addr common.Address, pos domain.Position, amount, expectedPayment, slippage decimal.Decimal) (Trade, error) {
	return a.buy(tx, buyer, addr, pos, amount, a.directPayer(buyer, expectedPayment, slippage))
}

// BuyFromAMMWithReferrer records referrer for buyer on first use and buys.
// The referrer receives a share of the safe-box fee.
func (a *AMM) BuyFromAMMWithReferrer(tx *chain.Tx, buyer, addr common.Address, pos domain.Position, amount, expectedPayment, slippage decimal.Decimal, referrer common.Address) (Trade, error) {
	a.setReferrer(tx, buyer, referrer)
	return a.BuyFromAMM(tx, buyer, addr, pos, amount, expectedPayment, slippage)
}

func (a *AMM) setReferrer(tx *chain.Tx, trader, referrer common.Address) {
	if referrer == (common.Address{}) || referrer == trader {
		return
	}
	if _, ok := a.referrers[trader]; ok {
		return
	}
	chain.Put(tx, a.referrers, trader, referrer)
}

// BuyFromAMMWithDifferentCollateral pays in another collateral swapped
// through the ramp. Slippage is checked in collateral units.
func (a *AMM) BuyFromAMMWithDifferentCollateral(tx *chain.Tx, buyer, addr common.Address, pos domain.Position, amount, expectedPayment, slippage decimal.Decimal, collateral, referrer common.Address) (Trade, error) {
	if a.deps.Ramp == nil {
		return Trade{}, domain.ErrUnsupportedAsset
	}
	a.setReferrer(tx, buyer, referrer)
	return a.buy(tx, buyer, addr, pos, amount, payer{
		collateral: collateral,
		check: func(quote decimal.Decimal) (decimal.Decimal, error) {
			in, err := a.deps.Ramp.QuoteIn(collateral, quote)
			if err != nil {
				return num.Zero, err
			}
			if in.GreaterThan(maxWithSlippage(expectedPayment, slippage)) {
				return num.Zero, domain.ErrSlippageTooHigh
			}
			return in, nil
		},
		collect: func(tx *chain.Tx, quote, paid decimal.Decimal) error {
			if _, err := a.deps.Ramp.SwapExactOut(tx, buyer, collateral, quote, paid); err != nil {
				return err
			}
			return a.susd.Transfer(tx, buyer, a.address, quote)
		},
	})
}

// BuyFromAmmQuoteWithDifferentCollateral returns the collateral and sUSD
// cost of a buy.
func (a *AMM) BuyFromAmmQuoteWithDifferentCollateral(m *market.Market, pos domain.Position, amount decimal.Decimal, collateral common.Address, now time.Time) (decimal.Decimal, decimal.Decimal, error) {
	quote := a.BuyFromAmmQuote(m, pos, amount, now)
	if a.deps.Ramp == nil {
		return num.Zero, quote, domain.ErrUnsupportedAsset
	}
	in, err := a.deps.Ramp.QuoteIn(collateral, quote)
	return in, quote, err
}

// BuyFromAMMWithVoucher pays the quote out of voucher id, which buyer must
// own.
func (a *AMM) BuyFromAMMWithVoucher(tx *chain.Tx, buyer, addr common.Address, pos domain.Position, amount, expectedPayment, slippage decimal.Decimal, id uint64) (Trade, error) {
	if a.deps.Vouchers == nil {
		return Trade{}, domain.ErrUnsupportedAsset
	}
	py := a.directPayer(buyer, expectedPayment, slippage)
	py.collect = func(tx *chain.Tx, quote, _ decimal.Decimal) error {
		return a.deps.Vouchers.Spend(tx, a.address, buyer, id, quote, a.address)
	}
	return a.buy(tx, buyer, addr, pos, amount, py)
}

func (a *AMM) buy(tx *chain.Tx, buyer, addr common.Address, pos domain.Position, amount decimal.Decimal, py payer) (Trade, error) {
	m, err := a.deps.Markets.Get(addr)
	if err != nil {
		return Trade{}, err
	}
	if !validPosition(m, pos) {
		return Trade{}, domain.ErrInvalidPosition
	}
	now := tx.Now()
	if !a.IsMarketInAMMTrading(m, now) {
		return Trade{}, domain.ErrMarketNotTradable
	}
	if !amount.IsPositive() || amount.GreaterThan(a.AvailableToBuyFromAMM(m, pos, now)) {
		return Trade{}, domain.ErrLowLiquidity
	}
	quote, net := a.buyQuote(m, pos, amount, now)
	if py.noSafeBox {
		quote = net
	}
	if !quote.IsPositive() {
		return Trade{}, domain.ErrLowLiquidity
	}
	paid, err := py.check(quote)
	if err != nil {
		return Trade{}, err
	}

	parent, ps := legs(m, pos)
	inv := a.inventory(parent)
	toMint := num.Zero
	for _, p := range ps {
		toMint = num.Max(toMint, amount.Sub(inv[p]))
	}

	// Exposure is booked before any token moves.
	a.spent.Add(tx, parent.Address(), toMint)
	spent := a.spent.Sub(tx, parent.Address(), net)
	if !a.deps.Risk.IsTotalSpendingLessThanTotalRisk(spent, parent, now) {
		return Trade{}, domain.ErrRiskPerMarket
	}

	if err := py.collect(tx, quote, paid); err != nil {
		return Trade{}, err
	}
	rp, err := a.deps.Pool.CommitTrade(tx, a.address, parent.Address(), parent.Maturity(), toMint)
	if err != nil {
		return Trade{}, err
	}
	if err := parent.Mint(tx, rp.Address(), toMint); err != nil {
		return Trade{}, err
	}
	if err := a.susd.Transfer(tx, a.address, rp.Address(), net); err != nil {
		return Trade{}, err
	}
	if err := a.payFees(tx, buyer, m, quote.Sub(net)); err != nil {
		return Trade{}, err
	}

	recipient := buyer
	if py.recipient != (common.Address{}) {
		recipient = py.recipient
	}
	holder := recipient
	if m.IsDoubleChance() {
		holder = a.address
	}
	for _, p := range ps {
		if err := parent.TransferPosition(tx, p, rp.Address(), holder, amount); err != nil {
			return Trade{}, err
		}
	}
	if m.IsDoubleChance() {
		if err := m.Issue(tx, a.address, recipient, amount); err != nil {
			return Trade{}, err
		}
	}

	tr := Trade{
		Market:     m.Address(),
		Position:   pos,
		Amount:     amount,
		SUSD:       quote,
		Collateral: py.collateral,
		Paid:       paid,
		RoundPool:  rp.Address(),
	}
	tx.Emit(domain.EventBoughtFromAmm, map[string]any{
		"buyer":      domain.Addr(buyer),
		"recipient":  domain.Addr(recipient),
		"market":     domain.Addr(m.Address()),
		"position":   pos.String(),
		"amount":     domain.Dec(amount),
		"susd_paid":  domain.Dec(quote),
		"collateral": domain.Addr(py.collateral),
		"paid":       domain.Dec(paid),
		"round_pool": domain.Addr(rp.Address()),
	})
	a.logger.DebugContext(tx.Context(), "sportsamm: bought from amm",
		slog.String("market", m.Address().Hex()),
		slog.String("position", pos.String()),
		slog.String("amount", amount.String()),
		slog.String("quote", quote.String()),
	)
	return tr, nil
}

// BuyForParlay fills one ticket leg: amount tokens of pos are delivered to
// recipient and paid by the parlay AMM at no more than maxCost. The
// safe-box fee is waived; per-game caps and exposure apply as for any buy.
func (a *AMM) BuyForParlay(tx *chain.Tx, caller, addr common.Address, pos domain.Position, amount, maxCost decimal.Decimal, recipient common.Address) (decimal.Decimal, error) {
	if caller != a.parlayAMM || caller == (common.Address{}) {
		return num.Zero, domain.ErrInvalidCaller
	}
	py := a.directPayer(caller, maxCost, num.Zero)
	py.recipient = recipient
	py.noSafeBox = true
	tr, err := a.buy(tx, caller, addr, pos, amount, py)
	if err != nil {
		return num.Zero, err
	}
	return tr.SUSD, nil
}

// payFees splits the safe-box fee held at the AMM address between the
// buyer's referrer and the safe box.
func (a *AMM) payFees(tx *chain.Tx, buyer common.Address, m *market.Market, fee decimal.Decimal) error {
	if !fee.IsPositive() {
		return nil
	}
	if ref, ok := a.referrers[buyer]; ok && a.params.ReferrerShare.IsPositive() {
		share := num.Mul(fee, a.params.ReferrerShare)
		if err := a.susd.Transfer(tx, a.address, ref, share); err != nil {
			return err
		}
		fee = fee.Sub(share)
		tx.Emit(domain.EventReferrerPaid, map[string]any{
			"referrer": domain.Addr(ref),
			"trader":   domain.Addr(buyer),
			"market":   domain.Addr(m.Address()),
			"amount":   domain.Dec(share),
		})
	}
	return a.susd.Transfer(tx, a.address, a.params.SafeBox, fee)
}

// SellToAMM sells amount tokens of pos for at least
// expectedPayout * (1-slippage) sUSD.
func (a *AMM) SellToAMM(tx *chain.Tx, seller, addr common.Address, pos domain.Position, amount, expectedPayout, slippage decimal.Decimal) (Trade, error) {
	m, err := a.deps.Markets.Get(addr)
	if err != nil {
		return Trade{}, err
	}
	if !validPosition(m, pos) {
		return Trade{}, domain.ErrInvalidPosition
	}
	now := tx.Now()
	if !a.IsMarketInAMMTrading(m, now) {
		return Trade{}, domain.ErrMarketNotTradable
	}
	if !amount.IsPositive() || amount.GreaterThan(a.AvailableToSellToAMM(m, pos, now)) {
		return Trade{}, domain.ErrLowLiquidity
	}
	payout := a.SellToAmmQuote(m, pos, amount, now)
	if !payout.IsPositive() {
		return Trade{}, domain.ErrLowLiquidity
	}
	if payout.LessThan(minWithSlippage(expectedPayout, slippage)) {
		return Trade{}, domain.ErrSlippageTooHigh
	}

	parent, ps := legs(m, pos)
	inv := a.inventory(parent)
	for _, p := range ps {
		inv[p] = inv[p].Add(amount)
	}
	burn := inv[0]
	for _, v := range inv[1:] {
		burn = num.Min(burn, v)
	}

	a.spent.Add(tx, parent.Address(), payout)
	spent := a.spent.Sub(tx, parent.Address(), burn)
	if !a.deps.Risk.IsTotalSpendingLessThanTotalRisk(spent, parent, now) {
		return Trade{}, domain.ErrRiskPerMarket
	}

	rp, err := a.deps.Pool.CommitTrade(tx, a.address, parent.Address(), parent.Maturity(), payout)
	if err != nil {
		return Trade{}, err
	}
	if m.IsDoubleChance() {
		err = m.Redeem(tx, seller, rp.Address(), amount)
	} else {
		err = parent.TransferPosition(tx, pos, seller, rp.Address(), amount)
	}
	if err != nil {
		return Trade{}, err
	}
	if err := a.susd.Transfer(tx, rp.Address(), seller, payout); err != nil {
		return Trade{}, err
	}
	if err := parent.Burn(tx, rp.Address(), burn); err != nil {
		return Trade{}, err
	}

	tx.Emit(domain.EventSoldToAmm, map[string]any{
		"seller":     domain.Addr(seller),
		"market":     domain.Addr(m.Address()),
		"position":   pos.String(),
		"amount":     domain.Dec(amount),
		"susd_paid":  domain.Dec(payout),
		"round_pool": domain.Addr(rp.Address()),
	})
	return Trade{
		Market:     m.Address(),
		Position:   pos,
		Amount:     amount,
		SUSD:       payout,
		Collateral: a.susd.Address(),
		Paid:       payout,
		RoundPool:  rp.Address(),
	}, nil
}
