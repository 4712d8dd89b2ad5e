package liquidity

import (
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/overtimeamm/internal/chain"
	"github.com/alanyoungcy/overtimeamm/internal/domain"
	"github.com/alanyoungcy/overtimeamm/internal/num"
)

// CanCloseCurrentRound reports whether the current round has ended and every
// member is ready to settle.
func (p *Pool) CanCloseCurrentRound(tx *chain.Tx) bool {
	if !p.started || tx.Now().Before(p.RoundEnd(p.round)) {
		return false
	}
	rp, ok := p.roundPools[p.round]
	if !ok || p.settler == nil {
		return ok
	}
	for _, m := range rp.members {
		if !p.settler.IsReadyToSettle(tx, m) {
			return false
		}
	}
	return true
}

// PrepareRoundClosing settles every member of the current round, computes the
// round PnL and repays the default liquidity provider first.
func (p *Pool) PrepareRoundClosing(tx *chain.Tx) error {
	if p.closingPrepared {
		return domain.ErrRoundPrepared
	}
	if !p.CanCloseCurrentRound(tx) {
		return domain.ErrCannotCloseRound
	}
	rp := p.roundPool(tx, p.round)
	if p.settler != nil {
		for _, m := range rp.members {
			if err := p.settler.Settle(tx, rp, m); err != nil {
				return fmt.Errorf("liquidity: settle %s: %w", m.Hex(), err)
			}
		}
	}

	endBalance := p.collateral.BalanceOf(rp.address)
	base := p.allocation[p.round].Add(rp.dlp)
	pnl := num.One
	if base.IsPositive() {
		pnl = num.Div(endBalance, base)
	}

	if rp.dlp.IsPositive() {
		repay := num.Min(num.Mul(rp.dlp, pnl), endBalance)
		if err := p.collateral.Transfer(tx, rp.address, p.params.DefaultLiquidityProvider, repay); err != nil {
			return err
		}
	}

	chain.Assign(tx, &p.closingPrepared, true)
	chain.Assign(tx, &p.usersProcessed, 0)
	chain.Assign(tx, &p.closingPnL, pnl)
	chain.Assign(tx, &p.closingBalance, endBalance)
	tx.Emit(domain.EventRoundClosingPrepared, map[string]any{
		"pool":        p.params.Name,
		"round":       p.round,
		"end_balance": domain.Dec(endBalance),
		"pnl":         domain.Dec(pnl),
	})
	return nil
}

// ProcessRoundClosingBatch applies the round PnL to up to batchSize users,
// paying out withdrawals and rolling the rest into the next round.
func (p *Pool) ProcessRoundClosingBatch(tx *chain.Tx, batchSize int) error {
	if !p.closingPrepared {
		return domain.ErrRoundNotPrepared
	}
	users := p.usersPerRound[p.round]
	end := min(p.usersProcessed+batchSize, len(users))
	rp := p.roundPools[p.round]
	next := p.round + 1

	for _, user := range users[p.usersProcessed:end] {
		bal := p.balances[userRound{p.round, user}]
		newBal := num.Mul(bal, p.closingPnL)
		keep := newBal

		if p.withdrawalRequested[user] {
			share := p.withdrawalShare[user]
			payout := newBal
			if share.IsPositive() {
				payout = num.Mul(newBal, share)
			}
			keep = newBal.Sub(payout)
			if err := p.collateral.Transfer(tx, rp.address, user, payout); err != nil {
				return err
			}
			chain.Put(tx, p.withdrawalRequested, user, false)
			chain.Put(tx, p.withdrawalShare, user, num.Zero)
			if share.IsZero() && !p.balances[userRound{next, user}].IsPositive() {
				chain.Put(tx, p.inPool, user, false)
				chain.Assign(tx, &p.usersInPool, p.usersInPool-1)
			}
		}

		if keep.IsPositive() {
			key := userRound{next, user}
			chain.Put(tx, p.balances, key, p.balances[key].Add(keep))
			chain.Put(tx, p.allocation, next, p.allocation[next].Add(keep))
			p.addUser(tx, next, user)
		}
	}
	chain.Assign(tx, &p.usersProcessed, end)
	return nil
}

// CloseRound moves what stayed in the round pool into the next round pool and
// advances the round. It returns the snapshot of the closed round.
func (p *Pool) CloseRound(tx *chain.Tx) (domain.RoundSnapshot, error) {
	if !p.closingPrepared {
		return domain.RoundSnapshot{}, domain.ErrRoundNotPrepared
	}
	if p.usersProcessed < len(p.usersPerRound[p.round]) {
		return domain.RoundSnapshot{}, domain.ErrUsersNotProcessed
	}
	closed := p.round
	rp := p.roundPools[closed]
	next := p.roundPool(tx, closed+1)

	if rest := p.collateral.BalanceOf(rp.address); rest.IsPositive() {
		if err := p.collateral.Transfer(tx, rp.address, next.address, rest); err != nil {
			return domain.RoundSnapshot{}, err
		}
	}

	cumulative := num.Mul(p.cumulativePnL[closed-1], p.closingPnL)
	chain.Put(tx, p.pnlPerRound, closed, p.closingPnL)
	chain.Put(tx, p.cumulativePnL, closed, cumulative)
	chain.Assign(tx, &p.totalDeposited, p.allocation[closed+1])
	chain.Assign(tx, &p.closingPrepared, false)
	chain.Assign(tx, &p.usersProcessed, 0)
	chain.Assign(tx, &p.round, closed+1)

	snap := domain.RoundSnapshot{
		Pool:            p.params.Name,
		Round:           closed,
		RoundPool:       rp.address,
		StartTime:       p.RoundStart(closed),
		EndTime:         p.RoundEnd(closed),
		Allocation:      p.allocation[closed],
		DLPContribution: rp.dlp,
		EndBalance:      p.closingBalance,
		PnL:             p.closingPnL,
		CumulativePnL:   cumulative,
		Users:           len(p.usersPerRound[closed]),
		ClosedAt:        tx.Now(),
	}
	tx.Emit(domain.EventRoundClosed, map[string]any{
		"pool":           p.params.Name,
		"round":          closed,
		"pnl":            domain.Dec(snap.PnL),
		"cumulative_pnl": domain.Dec(cumulative),
		"allocation":     domain.Dec(snap.Allocation),
		"dlp":            domain.Dec(snap.DLPContribution),
		"end_balance":    domain.Dec(snap.EndBalance),
		"users":          snap.Users,
		"start":          snap.StartTime,
		"end":            snap.EndTime,
		"round_pool":     domain.Addr(rp.address),
	})
	p.logger.InfoContext(tx.Context(), "liquidity: round closed",
		slog.Uint64("round", closed),
		slog.String("pnl", snap.PnL.String()),
		slog.String("next_allocation", p.allocation[closed+1].String()),
	)
	return snap, nil
}

// CloseRoundFully runs the three closing steps in one transaction. Used by
// the keeper when the user list fits in a single batch.
func (p *Pool) CloseRoundFully(tx *chain.Tx, batchSize int) (domain.RoundSnapshot, error) {
	if err := p.PrepareRoundClosing(tx); err != nil {
		return domain.RoundSnapshot{}, err
	}
	for p.usersProcessed < len(p.usersPerRound[p.round]) {
		if err := p.ProcessRoundClosingBatch(tx, max(batchSize, 1)); err != nil {
			return domain.RoundSnapshot{}, err
		}
	}
	return p.CloseRound(tx)
}

// PendingRoundPnL exposes the PnL computed by PrepareRoundClosing.
func (p *Pool) PendingRoundPnL() (decimal.Decimal, bool) {
	return p.closingPnL, p.closingPrepared
}

// ClosingProgress reports how many users of the current round have been
// processed by ProcessRoundClosingBatch.
func (p *Pool) ClosingProgress() (processed, total int) {
	return p.usersProcessed, len(p.usersPerRound[p.round])
}
