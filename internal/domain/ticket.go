package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// LegStatus tracks the settlement of one parlay leg.
type LegStatus string

const (
	LegPending   LegStatus = "pending"
	LegWon       LegStatus = "won"
	LegLost      LegStatus = "lost"
	LegCancelled LegStatus = "cancelled"
)

// TicketPhase is the lifecycle state of a parlay ticket.
type TicketPhase string

const (
	PhaseCreated           TicketPhase = "created"
	PhasePartiallyResolved TicketPhase = "partially_resolved"
	PhaseAllResolved       TicketPhase = "all_resolved"
	PhaseSomeCancelled     TicketPhase = "some_cancelled"
	PhaseLost              TicketPhase = "lost"
	PhaseExercisable       TicketPhase = "exercisable"
	PhaseExercised         TicketPhase = "exercised"
	PhaseExpired           TicketPhase = "expired"
)

// Terminal reports whether no further transition is possible.
func (p TicketPhase) Terminal() bool {
	return p == PhaseExercised || p == PhaseExpired
}

// TicketLeg is one (market, position) selection on a ticket.
type TicketLeg struct {
	Market   common.Address  `json:"market"`
	Position Position        `json:"position"`
	Odds     decimal.Decimal `json:"odds"`
	Status   LegStatus       `json:"status"`
}

// Ticket is a persisted snapshot of a parlay ticket.
type Ticket struct {
	Address       common.Address  `json:"address"`
	Owner         common.Address  `json:"owner"`
	Legs          []TicketLeg     `json:"legs"`
	SUSDPaid      decimal.Decimal `json:"susd_paid"`
	SUSDAfterFees decimal.Decimal `json:"susd_after_fees"`
	TotalQuote    decimal.Decimal `json:"total_quote"`
	Amount        decimal.Decimal `json:"amount"`
	Payout        decimal.Decimal `json:"payout"`
	Phase         TicketPhase     `json:"phase"`
	Paused        bool            `json:"paused"`
	Round         uint64          `json:"round"`
	CreatedAt     time.Time       `json:"created_at"`
	Expiry        time.Time       `json:"expiry"`
	SettledAt     *time.Time      `json:"settled_at,omitempty"`
}
