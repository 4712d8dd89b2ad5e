package liquidity

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/overtimeamm/internal/chain"
)

// RoundPool is the accounting unit of one round. It owns an address holding
// the round's collateral and position tokens, so round N can be settled
// without touching round N+1.
type RoundPool struct {
	round     uint64
	address   common.Address
	members   []common.Address
	memberSet map[common.Address]bool
	committed decimal.Decimal
	dlp       decimal.Decimal
}

func (rp *RoundPool) Round() uint64                    { return rp.round }
func (rp *RoundPool) Address() common.Address          { return rp.address }
func (rp *RoundPool) Committed() decimal.Decimal       { return rp.committed }
func (rp *RoundPool) DLPContribution() decimal.Decimal { return rp.dlp }

// Members returns the markets or tickets traded in this round.
func (rp *RoundPool) Members() []common.Address {
	out := make([]common.Address, len(rp.members))
	copy(out, rp.members)
	return out
}

func (rp *RoundPool) addMember(tx *chain.Tx, m common.Address) {
	if rp.memberSet[m] {
		return
	}
	chain.Put(tx, rp.memberSet, m, true)
	chain.Append(tx, &rp.members, m)
}

// Factory instantiates round pools. It sits behind a registry handle so the
// implementation can be replaced for future rounds.
type Factory interface {
	NewRoundPool(tx *chain.Tx, pool common.Address, round uint64, start time.Time) *RoundPool
}

// DefaultFactory derives each round pool address from the pool address and
// its deployment nonce.
type DefaultFactory struct{}

func (DefaultFactory) NewRoundPool(tx *chain.Tx, pool common.Address, round uint64, _ time.Time) *RoundPool {
	return &RoundPool{
		round:     round,
		address:   tx.NewAddress(pool),
		memberSet: make(map[common.Address]bool),
	}
}

// Settler settles the members of a round when it closes.
type Settler interface {
	// IsReadyToSettle reports whether member no longer carries open risk.
	IsReadyToSettle(tx *chain.Tx, member common.Address) bool
	// Settle collects whatever member owes the round pool.
	Settle(tx *chain.Tx, rp *RoundPool, member common.Address) error
}
