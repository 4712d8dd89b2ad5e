package parlay

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/overtimeamm/internal/chain"
	"github.com/alanyoungcy/overtimeamm/internal/domain"
	"github.com/alanyoungcy/overtimeamm/internal/market"
	"github.com/alanyoungcy/overtimeamm/internal/num"
)

// Leg is one selection on a ticket. Odds is the implied probability quoted
// at purchase.
type Leg struct {
	Market   *market.Market
	Position domain.Position
	Odds     decimal.Decimal
	Status   domain.LegStatus
}

// Ticket is a parlay market. The ticket address holds amount tokens of every
// leg, bought from the single-market AMM; exercising them funds the payout.
type Ticket struct {
	address       common.Address
	owner         common.Address
	legs          []Leg
	groups        []pricedGroup
	sUSDPaid      decimal.Decimal
	sUSDAfterFees decimal.Decimal
	totalQuote    decimal.Decimal
	amount        decimal.Decimal
	payout        decimal.Decimal
	phase         domain.TicketPhase
	paused        bool
	round         uint64
	roundPool     common.Address
	createdAt     time.Time
	expiry        time.Time
	settledAt     time.Time
}

type pricedGroup struct {
	legs  []int
	quote decimal.Decimal
}

func (t *Ticket) Address() common.Address          { return t.address }
func (t *Ticket) Owner() common.Address            { return t.owner }
func (t *Ticket) Amount() decimal.Decimal          { return t.amount }
func (t *Ticket) SUSDPaid() decimal.Decimal        { return t.sUSDPaid }
func (t *Ticket) SUSDAfterFees() decimal.Decimal   { return t.sUSDAfterFees }
func (t *Ticket) TotalQuote() decimal.Decimal      { return t.totalQuote }
func (t *Ticket) Phase() domain.TicketPhase        { return t.phase }
func (t *Ticket) Paused() bool                     { return t.paused }
func (t *Ticket) Expiry() time.Time                { return t.expiry }
func (t *Ticket) RoundPool() common.Address        { return t.roundPool }

// Legs returns a copy of the legs.
func (t *Ticket) Legs() []Leg {
	out := make([]Leg, len(t.legs))
	copy(out, t.legs)
	return out
}

// maturity is the latest leg maturity.
func (t *Ticket) maturity() time.Time {
	var out time.Time
	for _, l := range t.legs {
		if l.Market.Maturity().After(out) {
			out = l.Market.Maturity()
		}
	}
	return out
}

func legStatus(l Leg) domain.LegStatus {
	m := l.Market
	if !m.Resolved() {
		return domain.LegPending
	}
	if m.Cancelled() {
		return domain.LegCancelled
	}
	if m.Result() == l.Position {
		return domain.LegWon
	}
	return domain.LegLost
}

// UpdateLegs reads the current market states into the legs and refreshes
// the phase.
func (t *Ticket) UpdateLegs(tx *chain.Tx) {
	for i := range t.legs {
		if t.legs[i].Status != domain.LegPending {
			continue
		}
		if s := legStatus(t.legs[i]); s != domain.LegPending {
			chain.Assign(tx, &t.legs[i].Status, s)
		}
	}
	if !t.phase.Terminal() && t.phase != domain.PhaseExercisable {
		chain.Assign(tx, &t.phase, t.evaluate(t.statuses()))
	}
}

func (t *Ticket) statuses() []domain.LegStatus {
	out := make([]domain.LegStatus, len(t.legs))
	for i, l := range t.legs {
		out[i] = l.Status
		if out[i] == domain.LegPending {
			out[i] = legStatus(l)
		}
	}
	return out
}

func (t *Ticket) evaluate(st []domain.LegStatus) domain.TicketPhase {
	settled, cancelled := 0, 0
	for _, s := range st {
		switch s {
		case domain.LegLost:
			return domain.PhaseLost
		case domain.LegCancelled:
			cancelled++
			settled++
		case domain.LegWon:
			settled++
		}
	}
	switch {
	case settled == 0:
		return domain.PhaseCreated
	case settled < len(st):
		return domain.PhasePartiallyResolved
	case cancelled > 0:
		return domain.PhaseSomeCancelled
	default:
		return domain.PhaseAllResolved
	}
}

// IsResolvable reports whether a leg has lost or every leg has settled.
func (t *Ticket) IsResolvable() bool {
	switch t.evaluate(t.statuses()) {
	case domain.PhaseLost, domain.PhaseAllResolved, domain.PhaseSomeCancelled:
		return true
	}
	return false
}

// IsUserTheWinner reports whether every leg has settled and none lost.
func (t *Ticket) IsUserTheWinner() bool {
	p := t.evaluate(t.statuses())
	return p == domain.PhaseAllResolved || p == domain.PhaseSomeCancelled
}

// Payout returns what the owner receives on exercise: nothing on a loss and
// the full amount when every leg won. A cancelled leg does not count as won
// at full amount: the stake after fees is repriced over the legs that stand,
// capped at amount. The all-legs-cancelled ticket refunds the stake.
func (t *Ticket) Payout() decimal.Decimal {
	st := t.statuses()
	switch t.evaluate(st) {
	case domain.PhaseAllResolved:
		return t.amount
	case domain.PhaseSomeCancelled:
		// The other reading pays amount whenever the standing legs win. This
		// path reprices at odds 1 for the void leg instead.
		q := t.combinedQuote(st)
		if !q.IsPositive() {
			return t.sUSDAfterFees
		}
		return num.Min(t.amount, num.Div(t.sUSDAfterFees, q))
	}
	return num.Zero
}

// holds reports whether addr owns any token of m.
func holds(m *market.Market, addr common.Address) bool {
	for _, b := range m.Balances(addr) {
		if b.IsPositive() {
			return true
		}
	}
	return false
}

// holdsUnresolved reports whether the ticket still owns tokens of a leg
// whose market has not resolved.
func (t *Ticket) holdsUnresolved() bool {
	for _, l := range t.legs {
		if !l.Market.Resolved() && holds(l.Market, t.address) {
			return true
		}
	}
	return false
}

// combinedQuote prices the legs that were not cancelled. A same-game pair
// keeps its combined quote only while both of its legs stand.
func (t *Ticket) combinedQuote(st []domain.LegStatus) decimal.Decimal {
	out := num.One
	for _, g := range t.groups {
		alive := 0
		for _, i := range g.legs {
			if st[i] != domain.LegCancelled {
				alive++
			}
		}
		switch {
		case alive == len(g.legs):
			out = num.Mul(out, g.quote)
		case alive > 0:
			for _, i := range g.legs {
				if st[i] != domain.LegCancelled {
					out = num.Mul(out, t.legs[i].Odds)
				}
			}
		}
	}
	return out
}

// Info snapshots the ticket.
func (t *Ticket) Info() domain.Ticket {
	st := t.statuses()
	legs := make([]domain.TicketLeg, len(t.legs))
	for i, l := range t.legs {
		legs[i] = domain.TicketLeg{
			Market:   l.Market.Address(),
			Position: l.Position,
			Odds:     l.Odds,
			Status:   st[i],
		}
	}
	out := domain.Ticket{
		Address:       t.address,
		Owner:         t.owner,
		Legs:          legs,
		SUSDPaid:      t.sUSDPaid,
		SUSDAfterFees: t.sUSDAfterFees,
		TotalQuote:    t.totalQuote,
		Amount:        t.amount,
		Payout:        t.payout,
		Phase:         t.phase,
		Paused:        t.paused,
		Round:         t.round,
		CreatedAt:     t.createdAt,
		Expiry:        t.expiry,
	}
	if !t.settledAt.IsZero() {
		at := t.settledAt
		out.SettledAt = &at
	}
	return out
}
