package market_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/overtimeamm/internal/chain"
	"github.com/alanyoungcy/overtimeamm/internal/domain"
	"github.com/alanyoungcy/overtimeamm/internal/market"
	"github.com/alanyoungcy/overtimeamm/internal/num"
	"github.com/alanyoungcy/overtimeamm/internal/token"
)

var (
	owner  = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	oracle = common.HexToAddress("0x0000000000000000000000000000000000000a02")
	alice  = common.HexToAddress("0x0000000000000000000000000000000000000b01")
	bob    = common.HexToAddress("0x0000000000000000000000000000000000000b02")
	start  = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

type fixture struct {
	chain *chain.Chain
	susd  *token.Token
	mgr   *market.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		chain: chain.New(chain.NewManualClock(start), slog.New(slog.DiscardHandler)),
		susd:  token.New("sUSD", common.HexToAddress("0x5005d")),
	}
	f.mgr = market.NewManager(owner, f.susd)
	f.exec(t, func(tx *chain.Tx) error {
		if err := f.mgr.SetWhitelisted(tx, owner, oracle, true); err != nil {
			return err
		}
		if err := f.susd.Mint(tx, alice, d("1000")); err != nil {
			return err
		}
		return f.susd.Mint(tx, bob, d("1000"))
	})
	return f
}

func (f *fixture) exec(t *testing.T, fn func(tx *chain.Tx) error) {
	t.Helper()
	require.NoError(t, f.chain.Execute(context.Background(), fn))
}

func (f *fixture) create(t *testing.T, positions int) *market.Market {
	t.Helper()
	var m *market.Market
	f.exec(t, func(tx *chain.Tx) error {
		var err error
		m, err = f.mgr.CreateMarket(tx, oracle, domain.MarketParams{
			GameID:       domain.GameID{1},
			Tags:         []uint64{9016},
			HomeTeam:     "Arsenal",
			AwayTeam:     "Chelsea",
			NumPositions: positions,
			Maturity:     start.Add(48 * time.Hour),
		})
		return err
	})
	return m
}

func d(s string) decimal.Decimal { return num.MustParse(s) }

func TestMintBurnTransfer(t *testing.T) {
	f := newFixture(t)
	m := f.create(t, 2)

	f.exec(t, func(tx *chain.Tx) error { return m.Mint(tx, alice, d("100")) })
	assert.Equal(t, "900", f.susd.BalanceOf(alice).String())
	assert.Equal(t, "100", f.susd.BalanceOf(m.Address()).String())
	assert.Equal(t, "100", m.FullSets(alice).String())

	f.exec(t, func(tx *chain.Tx) error {
		return m.TransferPosition(tx, domain.PositionAway, alice, bob, d("30"))
	})
	assert.Equal(t, "70", m.FullSets(alice).String())

	f.exec(t, func(tx *chain.Tx) error { return m.Burn(tx, alice, d("70")) })
	assert.Equal(t, "970", f.susd.BalanceOf(alice).String())
	assert.Equal(t, "30", m.BalanceOf(domain.PositionHome, alice).String())
	assert.Equal(t, "100", m.Deposited().Add(d("70")).String())

	err := f.chain.Execute(context.Background(), func(tx *chain.Tx) error { return m.Burn(tx, alice, d("1")) })
	assert.ErrorIs(t, err, domain.ErrInsufficient)
}

func TestExerciseAfterResolution(t *testing.T) {
	f := newFixture(t)
	m := f.create(t, 2)
	f.exec(t, func(tx *chain.Tx) error {
		if err := m.Mint(tx, alice, d("50")); err != nil {
			return err
		}
		return m.TransferPosition(tx, domain.PositionAway, alice, bob, d("50"))
	})

	err := f.chain.Execute(context.Background(), func(tx *chain.Tx) error {
		_, err := m.ExercisePositions(tx, alice)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrMarketNotResolved)

	f.exec(t, func(tx *chain.Tx) error { return f.mgr.Resolve(tx, oracle, m.Address(), domain.PositionAway) })
	f.exec(t, func(tx *chain.Tx) error {
		paid, err := m.ExercisePositions(tx, bob)
		assert.Equal(t, "50", paid.String())
		return err
	})
	f.exec(t, func(tx *chain.Tx) error {
		paid, err := m.ExercisePositions(tx, alice)
		assert.True(t, paid.IsZero())
		return err
	})
	assert.Equal(t, "1050", f.susd.BalanceOf(bob).String())
	assert.True(t, f.susd.BalanceOf(m.Address()).IsZero())

	err = f.chain.Execute(context.Background(), func(tx *chain.Tx) error {
		return f.mgr.Resolve(tx, oracle, m.Address(), domain.PositionHome)
	})
	assert.ErrorIs(t, err, domain.ErrMarketResolved)
}

func TestCancellationPayoutIsValuePreserving(t *testing.T) {
	f := newFixture(t)
	m := f.create(t, 3)
	prices := []decimal.Decimal{d("0.5"), d("0.3"), d("0.2")}
	f.exec(t, func(tx *chain.Tx) error { return m.SetCancelPrices(tx, prices) })

	full := m.CalculatePayoutOnCancellation(d("10"), d("10"), d("10"))
	assert.Equal(t, "10", full.String())
	assert.Equal(t, "5", m.CalculatePayoutOnCancellation(d("10"), num.Zero, num.Zero).String())
	assert.Equal(t, "2", m.CalculatePayoutOnCancellation(num.Zero, num.Zero, d("10")).String())

	f.exec(t, func(tx *chain.Tx) error {
		if err := m.Mint(tx, alice, d("10")); err != nil {
			return err
		}
		if err := m.TransferPosition(tx, domain.PositionHome, alice, bob, d("10")); err != nil {
			return err
		}
		return f.mgr.Cancel(tx, oracle, m.Address())
	})
	f.exec(t, func(tx *chain.Tx) error {
		a, err := m.ExercisePositions(tx, alice)
		require.NoError(t, err)
		b, err := m.ExercisePositions(tx, bob)
		require.NoError(t, err)
		assert.Equal(t, "10", a.Add(b).String())
		return nil
	})
}

func TestDoubleChance(t *testing.T) {
	f := newFixture(t)
	parent := f.create(t, 3)
	var dcs []*market.Market
	f.exec(t, func(tx *chain.Tx) error {
		var err error
		dcs, err = f.mgr.CreateDoubleChance(tx, oracle, parent.Address())
		return err
	})
	require.Len(t, dcs, 3)
	assert.Equal(t, "Arsenal or Draw", dcs[0].HomeTeam())
	assert.Equal(t, [2]domain.Position{domain.PositionAway, domain.PositionDraw}, dcs[1].Covered())
	assert.Len(t, f.mgr.DoubleChanceOf(parent.Address()), 3)

	homeOrDraw := dcs[0]
	f.exec(t, func(tx *chain.Tx) error {
		if err := parent.Mint(tx, alice, d("20")); err != nil {
			return err
		}
		return homeOrDraw.Issue(tx, alice, bob, d("20"))
	})
	assert.Equal(t, "20", homeOrDraw.BalanceOf(domain.PositionHome, bob).String())
	assert.Equal(t, "20", parent.BalanceOf(domain.PositionDraw, homeOrDraw.Address()).String())
	assert.True(t, parent.BalanceOf(domain.PositionHome, alice).IsZero())

	f.exec(t, func(tx *chain.Tx) error { return f.mgr.Resolve(tx, oracle, parent.Address(), domain.PositionDraw) })
	assert.True(t, homeOrDraw.Resolved())
	assert.Equal(t, domain.PositionHome, homeOrDraw.Result())

	f.exec(t, func(tx *chain.Tx) error {
		paid, err := homeOrDraw.ExercisePositions(tx, bob)
		assert.Equal(t, "20", paid.String())
		return err
	})
	assert.Equal(t, "1020", f.susd.BalanceOf(bob).String())
}

func TestPauseRequiresAuthorizedCaller(t *testing.T) {
	f := newFixture(t)
	parent := f.create(t, 3)
	var dcs []*market.Market
	f.exec(t, func(tx *chain.Tx) error {
		var err error
		dcs, err = f.mgr.CreateDoubleChance(tx, owner, parent.Address())
		return err
	})

	err := f.chain.Execute(context.Background(), func(tx *chain.Tx) error {
		return f.mgr.SetPaused(tx, alice, parent.Address(), true)
	})
	assert.EqualError(t, err, "Invalid caller")
	assert.False(t, f.mgr.IsPaused(parent.Address()))

	f.exec(t, func(tx *chain.Tx) error { return f.mgr.SetPaused(tx, oracle, parent.Address(), true) })
	assert.True(t, f.mgr.IsPaused(parent.Address()))
	assert.True(t, f.mgr.IsPaused(dcs[2].Address()))

	err = f.chain.Execute(context.Background(), func(tx *chain.Tx) error {
		return f.mgr.SetWhitelisted(tx, oracle, alice, true)
	})
	assert.EqualError(t, err, "Only the contract owner may perform this action")
}

func TestListing(t *testing.T) {
	f := newFixture(t)
	m := f.create(t, 2)
	assert.Len(t, f.mgr.ListActive(start), 1)
	assert.Empty(t, f.mgr.ListMatured(start))
	assert.Len(t, f.mgr.ListMatured(m.Maturity()), 1)

	info, err := f.mgr.Info(m.Address())
	require.NoError(t, err)
	assert.Equal(t, "moneyline", info.Kind)
	_, err = f.mgr.Info(bob)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
