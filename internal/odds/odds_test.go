package odds_test

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
	"github.com/alanyoungcy/overtimeamm/internal/odds"
	"github.com/alanyoungcy/overtimeamm/internal/token"
)

var (
	owner  = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	oracle = common.HexToAddress("0x0000000000000000000000000000000000000a02")
	start  = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

func f64(d decimal.Decimal) float64 { return d.InexactFloat64() }

func TestImpliedFromAmerican(t *testing.T) {
	tests := []struct {
		name     string
		american int64
		want     float64
	}{
		{"favourite", -200, 0.666666},
		{"underdog", 150, 0.4},
		{"even", 100, 0.5},
		{"heavy favourite", -1000, 0.909090},
		{"invalid", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, f64(odds.ImpliedFromAmerican(tt.american)), 1e-6)
		})
	}
}

func TestImpliedFromDecimal(t *testing.T) {
	assert.InDelta(t, 0.4, f64(odds.ImpliedFromDecimal(num.MustParse("2.5"))), 1e-12)
	assert.True(t, odds.ImpliedFromDecimal(num.One).IsZero())
}

func TestNormalizedOddsSumToOne(t *testing.T) {
	lines := [][]int64{
		{-110, -110},
		{-250, 200},
		{145, 190, 230},
		{-120, 340, 260},
	}
	for _, line := range lines {
		ps := odds.NormalizeAmerican(line)
		require.Len(t, ps, len(line))
		assert.InDelta(t, 1.0, f64(num.Sum(ps...)), 1e-15)
		assert.True(t, num.Sum(ps...).LessThanOrEqual(num.One))
	}
	assert.Nil(t, odds.NormalizeAmerican([]int64{-110, 0}))
}

func TestFeedRateLimitAndAuthorization(t *testing.T) {
	clock := chain.NewManualClock(start)
	c := chain.New(clock, slog.New(slog.DiscardHandler))
	susd := token.New("sUSD", common.HexToAddress("0x5005d"))
	mgr := market.NewManager(owner, susd)
	feed := odds.NewFeed(owner, mgr, time.Minute)

	var m *market.Market
	require.NoError(t, c.Execute(context.Background(), func(tx *chain.Tx) error {
		var err error
		m, err = mgr.CreateMarket(tx, owner, domain.MarketParams{
			NumPositions: 2, Maturity: start.Add(time.Hour), Tags: []uint64{9004},
		})
		if err != nil {
			return err
		}
		return feed.SetOracle(tx, owner, oracle, true)
	}))

	exec := func(caller common.Address, line []int64) error {
		return c.Execute(context.Background(), func(tx *chain.Tx) error {
			return feed.SetOdds(tx, caller, m.Address(), line)
		})
	}

	assert.EqualError(t, exec(common.HexToAddress("0xbad"), []int64{-110, -110}), "Invalid caller")
	require.NoError(t, exec(oracle, []int64{-200, 150}))
	assert.EqualError(t, exec(oracle, []int64{-150, 120}), "Rate update too frequent")
	assert.ErrorIs(t, exec(oracle, []int64{-150}), domain.ErrValidation)

	clock.Advance(time.Minute)
	require.NoError(t, exec(oracle, []int64{-150, 130}))
	assert.Equal(t, []int64{-150, 130}, feed.AmericanOdds(m.Address()))

	prices := m.CancelPrices()
	got := feed.NormalizedOdds(m.Address())
	assert.Equal(t, got[0].String(), prices[0].String())

	clock.Advance(time.Minute)
	require.NoError(t, exec(oracle, []int64{0, 0}))
	assert.Nil(t, feed.NormalizedOdds(m.Address()))
}
