package speedmarket

import (
	"errors"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/overtimeamm/internal/chain"
	"github.com/alanyoungcy/overtimeamm/internal/domain"
)

// outcome walks the legs that have been measured by now. decided is false
// while no leg has lost and some leg is still in the future.
func (a *AMM) outcome(m *Market, now time.Time) (finals []decimal.Decimal, won, decided bool, err error) {
	strike := m.strike
	for i, dir := range m.directions {
		at := m.LegTime(i)
		if now.Before(at) {
			return finals, false, false, nil
		}
		final, ok := a.feed.PriceAt(m.asset, at)
		if !ok {
			return nil, false, false, domain.ErrPriceUnavailable
		}
		finals = append(finals, final)
		hit := (dir == domain.DirectionUp && final.GreaterThan(strike)) ||
			(dir == domain.DirectionDown && final.LessThan(strike))
		if !hit {
			return finals, false, true, nil
		}
		strike = final
	}
	return finals, true, true, nil
}

// CanResolve reports whether addr would resolve now.
func (a *AMM) CanResolve(addr common.Address, now time.Time) bool {
	m, ok := a.markets[addr]
	if !ok || m.resolved {
		return false
	}
	_, _, decided, err := a.outcome(m, now)
	return err == nil && decided
}

// Resolve settles a market once a leg has lost or every leg has been
// measured. The escrow goes to the user on a win and back to the AMM
// otherwise.
func (a *AMM) Resolve(tx *chain.Tx, addr common.Address) error {
	m, err := a.Market(addr)
	if err != nil {
		return err
	}
	if m.resolved {
		return domain.ErrMarketResolved
	}
	finals, won, decided, err := a.outcome(m, tx.Now())
	if err != nil {
		return err
	}
	if !decided {
		return domain.ErrNotResolvableYet
	}

	chain.Assign(tx, &m.finalPrices, finals)
	chain.Assign(tx, &m.resolved, true)
	chain.Assign(tx, &m.won, won)
	chain.Put(tx, a.currentRisk, m.asset, a.currentRisk[m.asset].Sub(m.profit()))

	to := a.address
	if won {
		to = m.user
	}
	if err := a.susd.Transfer(tx, m.address, to, a.susd.BalanceOf(m.address)); err != nil {
		return err
	}
	tx.Emit(domain.EventChainedMarketResolved, map[string]any{
		"market":         domain.Addr(m.address),
		"user":           domain.Addr(m.user),
		"user_is_winner": won,
		"legs_measured":  len(finals),
		"payout":         domain.Dec(m.payout),
	})
	a.logger.DebugContext(tx.Context(), "speedmarket: market resolved",
		slog.String("market", m.address.Hex()),
		slog.Bool("won", won),
	)
	return nil
}

// ResolveMarkets resolves every market in addrs that is ready and skips
// the rest. It returns the resolved addresses.
func (a *AMM) ResolveMarkets(tx *chain.Tx, addrs []common.Address) ([]common.Address, error) {
	var done []common.Address
	for _, addr := range addrs {
		err := tx.Try(func() error { return a.Resolve(tx, addr) })
		switch {
		case err == nil:
			done = append(done, addr)
		case errors.Is(err, domain.ErrTiming), errors.Is(err, domain.ErrState):
		default:
			return done, err
		}
	}
	return done, nil
}

// Resolvable lists unresolved markets that would resolve now.
func (a *AMM) Resolvable(now time.Time) []common.Address {
	var out []common.Address
	for _, m := range a.ActiveMarkets() {
		if a.CanResolve(m.address, now) {
			out = append(out, m.address)
		}
	}
	return out
}
