package parlay

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/overtimeamm/internal/chain"
	"github.com/alanyoungcy/overtimeamm/internal/liquidity"
)

type settler struct{ amm *AMM }

// Settler settles the tickets of a closing round: resolvable tickets are
// exercised, overdue ones expired, and settled tickets hand over the leg
// tokens that resolved after them.
func (a *AMM) Settler() liquidity.Settler { return settler{a} }

func (s settler) IsReadyToSettle(tx *chain.Tx, member common.Address) bool {
	t, err := s.amm.Ticket(member)
	if err != nil {
		return true
	}
	if t.holdsUnresolved() {
		return false
	}
	if t.phase.Terminal() || !tx.Now().Before(t.expiry) {
		return true
	}
	return !t.paused && t.IsResolvable()
}

func (s settler) Settle(tx *chain.Tx, _ *liquidity.RoundPool, member common.Address) error {
	t, err := s.amm.Ticket(member)
	if err != nil {
		return nil
	}
	if t.phase.Terminal() {
		return s.amm.reclaim(tx, t)
	}
	if !tx.Now().Before(t.expiry) {
		return s.amm.expire(tx, member)
	}
	return s.amm.ExerciseParlay(tx, s.amm.address, member)
}
