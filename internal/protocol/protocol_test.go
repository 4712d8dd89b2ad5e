package protocol_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/overtimeamm/internal/chain"
	"github.com/alanyoungcy/overtimeamm/internal/config"
	"github.com/alanyoungcy/overtimeamm/internal/domain"
	"github.com/alanyoungcy/overtimeamm/internal/market"
	"github.com/alanyoungcy/overtimeamm/internal/num"
	"github.com/alanyoungcy/overtimeamm/internal/parlay"
	"github.com/alanyoungcy/overtimeamm/internal/protocol"
)

var (
	owner  = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	oracle = common.HexToAddress("0x0000000000000000000000000000000000000a05")
	lp     = common.HexToAddress("0x0000000000000000000000000000000000000a04")
	alice  = common.HexToAddress("0x0000000000000000000000000000000000000b01")
	start  = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

func d(s string) decimal.Decimal { return num.MustParse(s) }

type fixture struct {
	*protocol.Protocol
	clock *chain.ManualClock
	games byte
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := chain.NewManualClock(start)
	p, err := protocol.New(context.Background(), config.Defaults().Protocol, protocol.Options{
		Owner:   owner,
		Oracles: []common.Address{oracle},
		Clock:   clock,
	})
	require.NoError(t, err)
	return &fixture{Protocol: p, clock: clock}
}

func (f *fixture) exec(t *testing.T, fn func(tx *chain.Tx) error) {
	t.Helper()
	require.NoError(t, f.Execute(context.Background(), fn))
}

func (f *fixture) try(fn func(tx *chain.Tx) error) error {
	return f.Execute(context.Background(), fn)
}

func (f *fixture) mint(t *testing.T, to common.Address, amount string) {
	t.Helper()
	f.exec(t, func(tx *chain.Tx) error { return f.Mint(tx, owner, f.SUSD.Address(), to, d(amount)) })
}

// fundPools deposits LP capital into both pools and starts them.
func (f *fixture) fundPools(t *testing.T) {
	t.Helper()
	f.mint(t, lp, "20000")
	f.exec(t, func(tx *chain.Tx) error {
		for _, pool := range f.Pools() {
			if err := pool.Deposit(tx, lp, d("10000")); err != nil {
				return err
			}
			if err := pool.Start(tx, owner); err != nil {
				return err
			}
		}
		return nil
	})
}

// game creates a two-way market on a fresh game and publishes its odds.
func (f *fixture) game(t *testing.T) *market.Market {
	t.Helper()
	f.games++
	var m *market.Market
	f.exec(t, func(tx *chain.Tx) error {
		var err error
		m, err = f.Markets.CreateMarket(tx, owner, domain.MarketParams{
			GameID:       domain.GameID{f.games},
			Tags:         []uint64{9011},
			HomeTeam:     fmt.Sprintf("Home %d", f.games),
			AwayTeam:     fmt.Sprintf("Away %d", f.games),
			NumPositions: 2,
			Maturity:     start.Add(48 * time.Hour),
		})
		if err != nil {
			return err
		}
		return f.Feed.SetOdds(tx, oracle, m.Address(), []int64{-150, 130})
	})
	return m
}

func (f *fixture) parlayRequest(amount string, ms ...*market.Market) parlay.BuyRequest {
	req := parlay.BuyRequest{Buyer: alice, SUSDPaid: d(amount), Slippage: d("0.02")}
	for _, m := range ms {
		req.Markets = append(req.Markets, m.Address())
		req.Positions = append(req.Positions, domain.PositionHome)
	}
	return req
}

func TestNewDeploysDistinctEngines(t *testing.T) {
	f := newFixture(t)
	addrs := []common.Address{
		f.Vouchers.Address(),
		f.Ramp.Address(),
		f.SportsPool.Address(),
		f.ParlayPool.Address(),
		f.Sports.Address(),
		f.Parlay.Address(),
		f.Speed.Address(),
	}
	seen := map[common.Address]bool{}
	for _, a := range addrs {
		assert.NotEqual(t, common.Address{}, a)
		assert.False(t, seen[a], "duplicate address %s", a.Hex())
		seen[a] = true
	}
	assert.Equal(t, owner, f.SafeBox)
	assert.Equal(t, "sUSD", f.SUSD.Symbol())
	assert.ElementsMatch(t, []string{"roundpool", "sgp", "skew"}, f.Registry.List())

	pool, err := f.Pool(protocol.ParlayPool)
	require.NoError(t, err)
	assert.Same(t, f.ParlayPool, pool)
	_, err = f.Pool("speed")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGenesisIsDeterministic(t *testing.T) {
	a, b := newFixture(t), newFixture(t)
	assert.Equal(t, a.Sports.Address(), b.Sports.Address())
	assert.Equal(t, a.Parlay.Address(), b.Parlay.Address())
	assert.Equal(t, a.Speed.Address(), b.Speed.Address())
}

func TestNewRejectsBadCollateral(t *testing.T) {
	cfg := config.Defaults().Protocol
	cfg.Collateral = nil
	_, err := protocol.New(context.Background(), cfg, protocol.Options{Owner: owner})
	assert.Error(t, err)

	cfg = config.Defaults().Protocol
	cfg.Collateral[0].Address = "nope"
	_, err = protocol.New(context.Background(), cfg, protocol.Options{Owner: owner})
	assert.Error(t, err)
}

func TestMintIsOwnerOnly(t *testing.T) {
	f := newFixture(t)
	err := f.try(func(tx *chain.Tx) error { return f.Mint(tx, alice, f.SUSD.Address(), alice, d("1")) })
	assert.ErrorIs(t, err, domain.ErrOnlyOwner)
	err = f.try(func(tx *chain.Tx) error { return f.Mint(tx, owner, common.HexToAddress("0xbad"), alice, d("1")) })
	assert.ErrorIs(t, err, domain.ErrUnsupportedAsset)
}

func TestSixLegChainedMarketIsFundedWithFullPayout(t *testing.T) {
	f := newFixture(t)
	f.mint(t, alice, "100")
	f.mint(t, f.Speed.Address(), "5000")
	f.exec(t, func(tx *chain.Tx) error { return f.Prices.Publish(tx, oracle, "ETH", start, d("2000")) })

	dirs := make([]domain.Direction, 6)
	for i := range dirs {
		dirs[i] = domain.DirectionUp
	}
	var addr common.Address
	f.exec(t, func(tx *chain.Tx) error {
		m, err := f.Speed.CreateChainedMarket(tx, alice, "ETH", time.Minute, dirs, d("10"))
		if err != nil {
			return err
		}
		addr = m.Address()
		return nil
	})

	assert.True(t, d("470.45881").Equal(f.SUSD.BalanceOf(addr)), f.SUSD.BalanceOf(addr).String())
	assert.True(t, d("4539.54119").Equal(f.SUSD.BalanceOf(f.Speed.Address())))
	assert.True(t, d("89.8").Equal(f.SUSD.BalanceOf(alice)))
	assert.True(t, d("0.2").Equal(f.SUSD.BalanceOf(f.SafeBox)))
}

func TestSevenDirectionsAgainstMaxSix(t *testing.T) {
	f := newFixture(t)
	f.mint(t, alice, "100")
	f.mint(t, f.Speed.Address(), "5000")
	f.exec(t, func(tx *chain.Tx) error { return f.Prices.Publish(tx, oracle, "ETH", start, d("2000")) })

	dirs := make([]domain.Direction, 7)
	err := f.try(func(tx *chain.Tx) error {
		_, err := f.Speed.CreateChainedMarket(tx, alice, "ETH", time.Minute, dirs, d("10"))
		return err
	})
	require.Error(t, err)
	assert.Equal(t, "Wrong number of directions", domain.RevertReason(err))
	assert.True(t, d("100").Equal(f.SUSD.BalanceOf(alice)))
}

func TestVoucherPaysForParlay(t *testing.T) {
	f := newFixture(t)
	f.fundPools(t)
	m1, m2 := f.game(t), f.game(t)

	f.mint(t, owner, "5")
	var id uint64
	f.exec(t, func(tx *chain.Tx) error {
		var err error
		id, err = f.Vouchers.Mint(tx, owner, alice, d("5"))
		return err
	})

	buy := func(amount string) (*parlay.Ticket, error) {
		var tk *parlay.Ticket
		err := f.try(func(tx *chain.Tx) error {
			req := f.parlayRequest(amount, m1, m2)
			q, err := f.Parlay.BuyQuoteFromParlay(req.Markets, req.Positions, req.SUSDPaid, tx.Now())
			if err != nil {
				return err
			}
			req.ExpectedPayout = q.TotalBuyAmount
			tk, err = f.Parlay.BuyFromParlayWithVoucher(tx, req, id)
			return err
		})
		return tk, err
	}

	_, err := buy("10")
	require.Error(t, err)
	assert.Equal(t, "Insufficient amount in voucher", domain.RevertReason(err))
	assert.True(t, d("5").Equal(f.Vouchers.AmountInVoucher(id)))
	assert.Empty(t, f.Parlay.TicketsOf(alice))

	tk, err := buy("4")
	require.NoError(t, err)
	assert.True(t, d("1").Equal(f.Vouchers.AmountInVoucher(id)))
	assert.True(t, d("4").Equal(tk.SUSDPaid()))
	assert.Equal(t, alice, tk.Owner())
}

func TestParlayEndToEnd(t *testing.T) {
	f := newFixture(t)
	f.fundPools(t)
	f.mint(t, alice, "100")
	m1, m2 := f.game(t), f.game(t)

	var tk *parlay.Ticket
	f.exec(t, func(tx *chain.Tx) error {
		req := f.parlayRequest("10", m1, m2)
		q, err := f.Parlay.BuyQuoteFromParlay(req.Markets, req.Positions, req.SUSDPaid, tx.Now())
		if err != nil {
			return err
		}
		want := num.Mul(q.LegQuotes[0], q.LegQuotes[1])
		if !q.TotalQuote.Equal(want) {
			return errors.New("independent legs must multiply")
		}
		req.ExpectedPayout = q.TotalBuyAmount
		tk, err = f.Parlay.BuyFromParlay(tx, req)
		return err
	})
	assert.True(t, d("90").Equal(f.SUSD.BalanceOf(alice)))
	for _, m := range []*market.Market{m1, m2} {
		assert.True(t, tk.Amount().Equal(m.BalanceOf(domain.PositionHome, tk.Address())))
	}
	assert.True(t, f.SUSD.BalanceOf(tk.Address()).IsZero())

	f.clock.Set(start.Add(49 * time.Hour))
	f.exec(t, func(tx *chain.Tx) error {
		if err := f.Markets.Resolve(tx, owner, m1.Address(), domain.PositionHome); err != nil {
			return err
		}
		return f.Markets.Resolve(tx, owner, m2.Address(), domain.PositionHome)
	})
	f.exec(t, func(tx *chain.Tx) error { return f.Parlay.ExerciseParlay(tx, alice, tk.Address()) })

	assert.Equal(t, domain.PhaseExercised, tk.Phase())
	assert.True(t, d("90").Add(tk.Amount()).Equal(f.SUSD.BalanceOf(alice)))
	assert.True(t, f.SUSD.BalanceOf(tk.Address()).IsZero())
}

func TestParlayLegsCountAgainstGameExposure(t *testing.T) {
	f := newFixture(t)
	f.fundPools(t)
	f.mint(t, alice, "1000")
	m1, m2 := f.game(t), f.game(t)

	now := f.clock.Now()
	before := f.Sports.AvailableToBuyFromAMM(m1, domain.PositionHome, now)
	require.True(t, f.Sports.SpentOnGame(m1.Address()).IsZero())

	var tk *parlay.Ticket
	f.exec(t, func(tx *chain.Tx) error {
		req := f.parlayRequest("100", m1, m2)
		q, err := f.Parlay.BuyQuoteFromParlay(req.Markets, req.Positions, req.SUSDPaid, tx.Now())
		if err != nil {
			return err
		}
		req.ExpectedPayout = q.TotalBuyAmount
		tk, err = f.Parlay.BuyFromParlay(tx, req)
		return err
	})

	for _, m := range []*market.Market{m1, m2} {
		assert.True(t, f.Sports.SpentOnGame(m.Address()).IsPositive())
		assert.True(t, tk.Amount().Equal(m.BalanceOf(domain.PositionHome, tk.Address())))
	}
	assert.True(t, f.Sports.AvailableToBuyFromAMM(m1, domain.PositionHome, now).LessThan(before))
}

func TestParlayLegBeyondGameCapIsRejected(t *testing.T) {
	f := newFixture(t)
	f.fundPools(t)
	f.mint(t, alice, "1000")
	m1, m2 := f.game(t), f.game(t)
	f.exec(t, func(tx *chain.Tx) error {
		return f.Risk.SetCapPerMarket(tx, owner, []common.Address{m1.Address()}, d("10"))
	})

	req := f.parlayRequest("100", m1, m2)
	_, err := f.Parlay.BuyQuoteFromParlay(req.Markets, req.Positions, req.SUSDPaid, f.clock.Now())
	assert.ErrorIs(t, err, domain.ErrLowLiquidity)
}

func TestSingleMarketBuyThroughProtocol(t *testing.T) {
	f := newFixture(t)
	f.fundPools(t)
	f.mint(t, alice, "1000")
	m := f.game(t)

	var quote decimal.Decimal
	f.exec(t, func(tx *chain.Tx) error {
		quote = f.Sports.BuyFromAmmQuote(m, domain.PositionHome, d("10"), tx.Now())
		_, err := f.Sports.BuyFromAMM(tx, alice, m.Address(), domain.PositionHome, d("10"), quote, d("0.01"))
		return err
	})
	require.True(t, quote.IsPositive())
	assert.True(t, d("1000").Sub(quote).Equal(f.SUSD.BalanceOf(alice)))
	assert.True(t, f.Sports.SpentOnGame(m.Address()).IsPositive())
}

func TestFailedCallLeavesStateAndDispatchesNothing(t *testing.T) {
	f := newFixture(t)
	events, cancel := f.Bus.Subscribe(16)
	defer cancel()

	f.mint(t, owner, "5")
	boom := errors.New("boom")
	err := f.try(func(tx *chain.Tx) error {
		if _, err := f.Vouchers.Mint(tx, owner, alice, d("5")); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.True(t, d("5").Equal(f.SUSD.BalanceOf(owner)))
	assert.True(t, f.SUSD.BalanceOf(f.Vouchers.Address()).IsZero())
	select {
	case e := <-events:
		t.Fatalf("unexpected event %s", e.Type)
	default:
	}

	f.exec(t, func(tx *chain.Tx) error {
		_, err := f.Vouchers.Mint(tx, owner, alice, d("5"))
		return err
	})
	select {
	case e := <-events:
		assert.Equal(t, domain.EventVoucherMinted, e.Type)
		assert.Equal(t, alice.Hex(), e.Payload["recipient"])
	case <-time.After(time.Second):
		t.Fatal("voucher event not dispatched")
	}
}
