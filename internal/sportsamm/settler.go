package sportsamm

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/overtimeamm/internal/chain"
	"github.com/alanyoungcy/overtimeamm/internal/liquidity"
)

type settler struct{ amm *AMM }

// Settler exercises the AMM's positions into the round pool when a round
// closes.
func (a *AMM) Settler() liquidity.Settler { return settler{a} }

func (s settler) IsReadyToSettle(_ *chain.Tx, member common.Address) bool {
	m, err := s.amm.deps.Markets.Get(member)
	if err != nil {
		return true
	}
	return m.Resolved()
}

func (s settler) Settle(tx *chain.Tx, rp *liquidity.RoundPool, member common.Address) error {
	m, err := s.amm.deps.Markets.Get(member)
	if err != nil {
		return err
	}
	_, err = m.ExercisePositions(tx, rp.Address())
	return err
}
