package parlay

import (
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/overtimeamm/internal/chain"
	"github.com/alanyoungcy/overtimeamm/internal/domain"
	"github.com/alanyoungcy/overtimeamm/internal/num"
)

// BuyRequest describes a parlay purchase.
type BuyRequest struct {
	Buyer          common.Address
	Markets        []common.Address
	Positions      []domain.Position
	SUSDPaid       decimal.Decimal
	Slippage       decimal.Decimal
	ExpectedPayout decimal.Decimal
	// Recipient owns the ticket. Defaults to Buyer.
	Recipient common.Address
	Referrer  common.Address
}

// BuyFromParlay buys a ticket paid in sUSD by the buyer.
func (a *AMM) BuyFromParlay(tx *chain.Tx, req BuyRequest) (*Ticket, error) {
	return a.buy(tx, req, a.susd.Address(), func(tx *chain.Tx) error {
		return a.susd.Transfer(tx, req.Buyer, a.address, req.SUSDPaid)
	})
}

// BuyFromParlayWithReferrer pays ReferrerFee of sUSDPaid to referrer out of
// the AMM fee.
func (a *AMM) BuyFromParlayWithReferrer(tx *chain.Tx, req BuyRequest, referrer common.Address) (*Ticket, error) {
	req.Referrer = referrer
	return a.BuyFromParlay(tx, req)
}

// BuyFromParlayWithVoucher pays sUSDPaid out of voucher id.
func (a *AMM) BuyFromParlayWithVoucher(tx *chain.Tx, req BuyRequest, id uint64) (*Ticket, error) {
	if a.deps.Vouchers == nil {
		return nil, domain.ErrUnsupportedAsset
	}
	return a.buy(tx, req, a.susd.Address(), func(tx *chain.Tx) error {
		return a.deps.Vouchers.Spend(tx, a.address, req.Buyer, id, req.SUSDPaid, a.address)
	})
}

// BuyFromParlayWithDifferentCollateral swaps at most maxCollateral of
// collateral into sUSDPaid through the ramp.
func (a *AMM) BuyFromParlayWithDifferentCollateral(tx *chain.Tx, req BuyRequest, collateral common.Address, maxCollateral decimal.Decimal) (*Ticket, error) {
	if a.deps.Ramp == nil {
		return nil, domain.ErrUnsupportedAsset
	}
	return a.buy(tx, req, collateral, func(tx *chain.Tx) error {
		if _, err := a.deps.Ramp.SwapExactOut(tx, req.Buyer, collateral, req.SUSDPaid, maxCollateral); err != nil {
			return err
		}
		return a.susd.Transfer(tx, req.Buyer, a.address, req.SUSDPaid)
	})
}

func (a *AMM) buy(tx *chain.Tx, req BuyRequest, collateral common.Address, collect func(tx *chain.Tx) error) (*Ticket, error) {
	now := tx.Now()
	q, err := a.BuyQuoteFromParlay(req.Markets, req.Positions, req.SUSDPaid, now)
	if err != nil {
		return nil, err
	}
	if !q.TotalBuyAmount.IsPositive() ||
		num.Div(req.ExpectedPayout, q.TotalBuyAmount).GreaterThan(num.One.Add(req.Slippage)) {
		return nil, domain.ErrSlippageTooHigh
	}
	owner := req.Recipient
	if owner == (common.Address{}) {
		owner = req.Buyer
	}

	amount := q.TotalBuyAmount
	lpShare := amount.Sub(q.SUSDAfterFees)
	key := CombinationKey(req.Markets, req.Positions)
	if _, ok := a.riskPerCombination.AddWithin(tx, key, lpShare, a.params.MaxAllowedRiskPerCombination); !ok {
		return nil, domain.ErrRiskPerComb
	}
	for i, m := range req.Markets {
		k := legKey{m, req.Positions[i]}
		if _, ok := a.riskPerLeg.AddWithin(tx, k, amount, a.params.MaxAllowedRiskPerMarketAndPosition); !ok {
			return nil, domain.ErrRiskPerPosition
		}
	}

	// Each leg is bought for the full amount, so the ticket holds one
	// winning set of tokens per leg.
	costs := make([]decimal.Decimal, len(q.markets))
	legCost := num.Zero
	for i, m := range q.markets {
		costs[i] = a.deps.Sports.BuyQuoteForParlay(m, req.Positions[i], amount, now)
		if !costs[i].IsPositive() {
			return nil, domain.ErrLowLiquidity
		}
		legCost = legCost.Add(costs[i])
	}
	funding := num.Max(num.Zero, legCost.Sub(q.SUSDAfterFees))

	t := &Ticket{
		address:       tx.NewAddress(a.address),
		owner:         owner,
		legs:          make([]Leg, len(q.markets)),
		groups:        q.groups,
		sUSDPaid:      req.SUSDPaid,
		sUSDAfterFees: q.SUSDAfterFees,
		totalQuote:    q.TotalQuote,
		amount:        amount,
		phase:         domain.PhaseCreated,
		createdAt:     now,
	}
	for i, m := range q.markets {
		t.legs[i] = Leg{Market: m, Position: req.Positions[i], Odds: q.LegQuotes[i], Status: domain.LegPending}
	}
	t.expiry = t.maturity().Add(a.params.ExpiryDuration)
	a.store(tx, t)

	if err := collect(tx); err != nil {
		return nil, err
	}
	rp, err := a.deps.Pool.CommitTrade(tx, a.address, t.address, t.maturity(), funding)
	if err != nil {
		return nil, err
	}
	chain.Assign(tx, &t.round, rp.Round())
	chain.Assign(tx, &t.roundPool, rp.Address())

	safeBoxShare := num.Mul(req.SUSDPaid, a.params.SafeBoxImpact)
	fee := req.SUSDPaid.Sub(q.SUSDAfterFees).Sub(safeBoxShare)
	if err := a.susd.Transfer(tx, a.address, a.params.SafeBox, safeBoxShare); err != nil {
		return nil, err
	}
	if req.Referrer != (common.Address{}) && req.Referrer != req.Buyer && a.params.ReferrerFee.IsPositive() {
		share := num.Min(fee, num.Mul(req.SUSDPaid, a.params.ReferrerFee))
		if err := a.susd.Transfer(tx, a.address, req.Referrer, share); err != nil {
			return nil, err
		}
		fee = fee.Sub(share)
		tx.Emit(domain.EventReferrerPaid, map[string]any{
			"referrer": domain.Addr(req.Referrer),
			"trader":   domain.Addr(req.Buyer),
			"ticket":   domain.Addr(t.address),
			"amount":   domain.Dec(share),
		})
	}
	if err := a.susd.Transfer(tx, a.address, rp.Address(), fee); err != nil {
		return nil, err
	}
	if err := a.susd.Transfer(tx, rp.Address(), a.address, funding); err != nil {
		return nil, err
	}

	budget := q.SUSDAfterFees.Add(funding)
	for i, l := range t.legs {
		paid, err := a.deps.Sports.BuyForParlay(tx, a.address, l.Market.Address(), l.Position, amount, costs[i], t.address)
		if err != nil {
			return nil, err
		}
		budget = budget.Sub(paid)
	}
	if err := a.susd.Transfer(tx, a.address, rp.Address(), budget); err != nil {
		return nil, err
	}

	legs := make([]map[string]any, len(t.legs))
	for i, l := range t.legs {
		legs[i] = map[string]any{
			"market":   domain.Addr(l.Market.Address()),
			"position": l.Position.String(),
			"odds":     domain.Dec(l.Odds),
		}
	}
	tx.Emit(domain.EventParlayMarketCreated, map[string]any{
		"ticket":          domain.Addr(t.address),
		"owner":           domain.Addr(owner),
		"buyer":           domain.Addr(req.Buyer),
		"legs":            legs,
		"susd_paid":       domain.Dec(req.SUSDPaid),
		"susd_after_fees": domain.Dec(q.SUSDAfterFees),
		"total_quote":     domain.Dec(q.TotalQuote),
		"amount":          domain.Dec(amount),
		"leg_cost":        domain.Dec(legCost),
		"collateral":      domain.Addr(collateral),
		"round":           rp.Round(),
		"expiry":          t.expiry,
	})
	a.logger.DebugContext(tx.Context(), "parlay: ticket created",
		slog.String("ticket", t.address.Hex()),
		slog.Int("legs", len(t.legs)),
		slog.String("amount", amount.String()),
	)
	return t, nil
}

func (a *AMM) store(tx *chain.Tx, t *Ticket) {
	chain.Put(tx, a.tickets, t.address, t)
	chain.Append(tx, &a.order, t.address)
	owned := append(append([]common.Address(nil), a.byOwner[t.owner]...), t.address)
	chain.Put(tx, a.byOwner, t.owner, owned)
}
