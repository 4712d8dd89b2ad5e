package parlay

import (
	"errors"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/overtimeamm/internal/chain"
	"github.com/alanyoungcy/overtimeamm/internal/domain"
)

func (a *AMM) checkOpen(t *Ticket) error {
	switch t.phase {
	case domain.PhaseExercised:
		return domain.ErrTicketExercised
	case domain.PhaseExpired:
		return domain.ErrTicketExpired
	}
	return nil
}

// ResolveParlay refreshes the legs of a ticket and marks it exercisable once
// it can be resolved.
func (a *AMM) ResolveParlay(tx *chain.Tx, addr common.Address) error {
	t, err := a.Ticket(addr)
	if err != nil {
		return err
	}
	if err := a.checkOpen(t); err != nil {
		return err
	}
	t.UpdateLegs(tx)
	if !t.IsResolvable() {
		return domain.ErrTicketNotResolved
	}
	if t.phase == domain.PhaseExercisable {
		return nil
	}
	winner := t.IsUserTheWinner()
	chain.Assign(tx, &t.phase, domain.PhaseExercisable)
	tx.Emit(domain.EventParlayResolved, map[string]any{
		"ticket": domain.Addr(t.address),
		"owner":  domain.Addr(t.owner),
		"winner": winner,
		"payout": domain.Dec(t.Payout()),
	})
	return nil
}

// ExerciseParlay settles a resolvable ticket: the resolved legs are
// exercised, the owner receives the payout and the rest returns to the
// ticket's round pool.
func (a *AMM) ExerciseParlay(tx *chain.Tx, caller, addr common.Address) error {
	t, err := a.Ticket(addr)
	if err != nil {
		return err
	}
	if err := a.checkOpen(t); err != nil {
		return err
	}
	if t.paused {
		return domain.ErrTicketPaused
	}
	if !tx.Now().Before(t.expiry) {
		return domain.ErrClaimingEnded
	}
	if err := a.ResolveParlay(tx, addr); err != nil {
		return err
	}

	payout := t.Payout()
	chain.Assign(tx, &t.payout, payout)
	chain.Assign(tx, &t.phase, domain.PhaseExercised)
	chain.Assign(tx, &t.settledAt, tx.Now())

	if err := a.collectLegs(tx, t); err != nil {
		return err
	}
	if short := payout.Sub(a.susd.BalanceOf(t.address)); short.IsPositive() {
		if err := a.susd.Transfer(tx, t.roundPool, t.address, short); err != nil {
			return err
		}
	}
	if err := a.susd.Transfer(tx, t.address, t.owner, payout); err != nil {
		return err
	}
	if err := a.sweep(tx, t); err != nil {
		return err
	}
	tx.Emit(domain.EventParlayExercised, map[string]any{
		"ticket": domain.Addr(t.address),
		"owner":  domain.Addr(t.owner),
		"caller": domain.Addr(caller),
		"payout": domain.Dec(payout),
		"amount": domain.Dec(t.amount),
	})
	a.logger.DebugContext(tx.Context(), "parlay: ticket exercised",
		slog.String("ticket", t.address.Hex()),
		slog.String("payout", payout.String()),
	)
	return nil
}

// collectLegs exercises the tokens of every resolved leg into the ticket.
// Tokens of open legs stay with the ticket until their market resolves.
func (a *AMM) collectLegs(tx *chain.Tx, t *Ticket) error {
	for _, l := range t.legs {
		if !l.Market.Resolved() || !holds(l.Market, t.address) {
			continue
		}
		if _, err := l.Market.ExercisePositions(tx, t.address); err != nil {
			return err
		}
	}
	return nil
}

// reclaim collects what a settled ticket still holds into its round pool.
func (a *AMM) reclaim(tx *chain.Tx, t *Ticket) error {
	if err := a.collectLegs(tx, t); err != nil {
		return err
	}
	return a.sweep(tx, t)
}

// sweep returns the sUSD held at the ticket to the round pool.
func (a *AMM) sweep(tx *chain.Tx, t *Ticket) error {
	rest := a.susd.BalanceOf(t.address)
	if !rest.IsPositive() {
		return nil
	}
	return a.susd.Transfer(tx, t.address, t.roundPool, rest)
}

// ExerciseParlays exercises every ticket that can be exercised and skips
// the others. It returns the exercised addresses.
func (a *AMM) ExerciseParlays(tx *chain.Tx, caller common.Address, addrs []common.Address) ([]common.Address, error) {
	var done []common.Address
	for _, addr := range addrs {
		err := tx.Try(func() error { return a.ExerciseParlay(tx, caller, addr) })
		switch {
		case err == nil:
			done = append(done, addr)
		case errors.Is(err, domain.ErrState), errors.Is(err, domain.ErrTiming), errors.Is(err, domain.ErrNotFound):
		default:
			return done, err
		}
	}
	return done, nil
}

// ExpireMarkets closes expired tickets without a payout. Their leg tokens
// are exercised for the round pools.
func (a *AMM) ExpireMarkets(tx *chain.Tx, caller common.Address, addrs []common.Address) error {
	if caller != a.owner {
		return domain.ErrOnlyOwner
	}
	for _, addr := range addrs {
		if err := a.expire(tx, addr); err != nil {
			return err
		}
	}
	return nil
}

func (a *AMM) expire(tx *chain.Tx, addr common.Address) error {
	t, err := a.Ticket(addr)
	if err != nil {
		return err
	}
	if err := a.checkOpen(t); err != nil {
		return err
	}
	if tx.Now().Before(t.expiry) {
		return domain.ErrTicketNotExpired
	}
	chain.Assign(tx, &t.phase, domain.PhaseExpired)
	chain.Assign(tx, &t.settledAt, tx.Now())
	if err := a.reclaim(tx, t); err != nil {
		return err
	}
	tx.Emit(domain.EventParlayExpired, map[string]any{
		"ticket": domain.Addr(t.address),
		"owner":  domain.Addr(t.owner),
	})
	return nil
}

// SetPausedTickets pauses or resumes exercising of tickets.
func (a *AMM) SetPausedTickets(tx *chain.Tx, caller common.Address, addrs []common.Address, paused bool) error {
	if caller != a.owner {
		return domain.ErrOnlyOwner
	}
	for _, addr := range addrs {
		t, err := a.Ticket(addr)
		if err != nil {
			return err
		}
		chain.Assign(tx, &t.paused, paused)
		tx.Emit(domain.EventParlayPaused, map[string]any{
			"ticket": domain.Addr(addr),
			"paused": paused,
		})
	}
	return nil
}

// Exercisable lists open, unpaused tickets that can be exercised now.
func (a *AMM) Exercisable(tx *chain.Tx) []common.Address {
	var out []common.Address
	for _, t := range a.ActiveTickets() {
		if !t.paused && tx.Now().Before(t.expiry) && t.IsResolvable() {
			out = append(out, t.address)
		}
	}
	return out
}

// Expired lists open tickets past their expiry.
func (a *AMM) Expired(tx *chain.Tx) []common.Address {
	var out []common.Address
	for _, t := range a.ActiveTickets() {
		if !tx.Now().Before(t.expiry) {
			out = append(out, t.address)
		}
	}
	return out
}
