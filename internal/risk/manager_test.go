package risk_test

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
	"github.com/alanyoungcy/overtimeamm/internal/risk"
	"github.com/alanyoungcy/overtimeamm/internal/token"
)

const (
	tagEPL    uint64 = 9011
	tagNBA    uint64 = 9004
	tagSpread uint64 = 10001
)

var (
	owner    = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	stranger = common.HexToAddress("0x0000000000000000000000000000000000000b01")
	start    = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

func d(s string) decimal.Decimal { return num.MustParse(s) }

type fixture struct {
	chain *chain.Chain
	mgr   *market.Manager
	risk  *risk.Manager
}

func newFixture() *fixture {
	susd := token.New("sUSD", common.HexToAddress("0x5005d"))
	return &fixture{
		chain: chain.New(chain.NewManualClock(start), slog.New(slog.DiscardHandler)),
		mgr:   market.NewManager(owner, susd),
		risk: risk.NewManager(owner, risk.Params{
			DefaultCapPerGame:     d("5000"),
			MaxCapPerGame:         d("20000"),
			DefaultRiskMultiplier: d("3"),
			MaxRiskMultiplier:     d("5"),
			DefaultMaxLegs:        8,
			MaxSpread:             d("0.2"),
		}),
	}
}

func (f *fixture) exec(t *testing.T, fn func(tx *chain.Tx) error) error {
	t.Helper()
	return f.chain.Execute(context.Background(), fn)
}

func (f *fixture) market(t *testing.T, tags []uint64, maturity time.Time) *market.Market {
	t.Helper()
	var m *market.Market
	require.NoError(t, f.exec(t, func(tx *chain.Tx) error {
		var err error
		m, err = f.mgr.CreateMarket(tx, owner, domain.MarketParams{
			Tags: tags, NumPositions: 3, Maturity: maturity, HomeTeam: "A", AwayTeam: "B",
		})
		return err
	}))
	return m
}

func TestTagCapNeverRaisesDefault(t *testing.T) {
	f := newFixture()
	epl := f.market(t, []uint64{tagEPL}, start.Add(time.Hour))
	eplSpread := f.market(t, []uint64{tagEPL, tagSpread}, start.Add(time.Hour))
	nba := f.market(t, []uint64{tagNBA}, start.Add(time.Hour))

	assert.Equal(t, "5000", f.risk.CalculateCapToBeUsed(epl, start).String())

	require.NoError(t, f.exec(t, func(tx *chain.Tx) error {
		if err := f.risk.SetCapPerSport(tx, owner, tagEPL, d("8000")); err != nil {
			return err
		}
		if err := f.risk.SetCapPerSportAndChild(tx, owner, tagEPL, tagSpread, d("2000")); err != nil {
			return err
		}
		return f.risk.SetCapPerMarket(tx, owner, []common.Address{nba.Address()}, d("100"))
	}))

	assert.Equal(t, "5000", f.risk.CalculateCapToBeUsed(epl, start).String())
	assert.Equal(t, "2000", f.risk.CalculateCapToBeUsed(eplSpread, start).String())
	assert.Equal(t, "100", f.risk.CalculateCapToBeUsed(nba, start).String())

	require.NoError(t, f.exec(t, func(tx *chain.Tx) error {
		return f.risk.SetDefaultCapPerGame(tx, owner, d("10000"))
	}))
	assert.Equal(t, "8000", f.risk.CalculateCapToBeUsed(epl, start).String())
	assert.Equal(t, "2000", f.risk.CalculateCapToBeUsed(eplSpread, start).String())
}

func TestMarketCapOverridesDefault(t *testing.T) {
	f := newFixture()
	m := f.market(t, []uint64{tagEPL}, start.Add(time.Hour))
	require.NoError(t, f.exec(t, func(tx *chain.Tx) error {
		if err := f.risk.SetCapPerSport(tx, owner, tagEPL, d("3000")); err != nil {
			return err
		}
		return f.risk.SetCapPerMarket(tx, owner, []common.Address{m.Address()}, d("12000"))
	}))
	assert.Equal(t, "12000", f.risk.CalculateCapToBeUsed(m, start).String())
}

func TestDynamicLiquidityReducesEarlyCap(t *testing.T) {
	f := newFixture()
	m := f.market(t, []uint64{tagEPL}, start.Add(72*time.Hour))
	require.NoError(t, f.exec(t, func(tx *chain.Tx) error {
		return f.risk.SetDynamicLiquidity(tx, owner, tagEPL, 24*time.Hour, d("4"))
	}))
	assert.Equal(t, "1250", f.risk.CalculateCapToBeUsed(m, start).String())
	assert.Equal(t, "5000", f.risk.CalculateCapToBeUsed(m, start.Add(48*time.Hour)).String())
}

func TestDoubleChanceUsesParentCap(t *testing.T) {
	f := newFixture()
	parent := f.market(t, []uint64{tagEPL}, start.Add(time.Hour))
	var dcs []*market.Market
	require.NoError(t, f.exec(t, func(tx *chain.Tx) error {
		var err error
		if dcs, err = f.mgr.CreateDoubleChance(tx, owner, parent.Address()); err != nil {
			return err
		}
		return f.risk.SetCapPerMarket(tx, owner, []common.Address{parent.Address()}, d("700"))
	}))
	assert.Equal(t, "700", f.risk.CalculateCapToBeUsed(dcs[0], start).String())
}

func TestTotalSpendingAgainstRisk(t *testing.T) {
	f := newFixture()
	m := f.market(t, []uint64{tagEPL}, start.Add(time.Hour))
	assert.True(t, f.risk.IsTotalSpendingLessThanTotalRisk(d("15000"), m, start))
	assert.False(t, f.risk.IsTotalSpendingLessThanTotalRisk(d("15000.01"), m, start))

	require.NoError(t, f.exec(t, func(tx *chain.Tx) error {
		return f.risk.SetRiskMultiplierPerSport(tx, owner, tagEPL, d("1"))
	}))
	assert.False(t, f.risk.IsTotalSpendingLessThanTotalRisk(d("5001"), m, start))
}

func TestMaxLegsAndSpread(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.exec(t, func(tx *chain.Tx) error {
		if err := f.risk.SetMaxLegsPerTag(tx, owner, tagNBA, 4); err != nil {
			return err
		}
		return f.risk.SetSpreadMultiplier(tx, owner, tagNBA, d("2"))
	}))
	assert.Equal(t, 8, f.risk.MaxLegs([]uint64{tagEPL}))
	assert.Equal(t, 4, f.risk.MaxLegs([]uint64{tagEPL, tagNBA}))
	assert.Equal(t, 8, f.risk.MaxLegs(nil))

	assert.Equal(t, "0.02", f.risk.SpreadFor(tagEPL, d("0.02")).String())
	assert.Equal(t, "0.04", f.risk.SpreadFor(tagNBA, d("0.02")).String())
	assert.Equal(t, "0.2", f.risk.SpreadFor(tagNBA, d("0.15")).String())
}

func TestSettersAreOwnerOnlyAndBounded(t *testing.T) {
	f := newFixture()
	err := f.exec(t, func(tx *chain.Tx) error {
		return f.risk.SetDefaultCapPerGame(tx, stranger, d("1"))
	})
	assert.EqualError(t, err, "Only the contract owner may perform this action")

	err = f.exec(t, func(tx *chain.Tx) error {
		return f.risk.SetCapPerSport(tx, owner, tagEPL, d("20001"))
	})
	assert.ErrorIs(t, err, domain.ErrInvalidCap)

	err = f.exec(t, func(tx *chain.Tx) error {
		return f.risk.SetDefaultRiskMultiplier(tx, owner, d("6"))
	})
	assert.ErrorIs(t, err, domain.ErrInvalidMultiplier)
	assert.Equal(t, "3", f.risk.Params().DefaultRiskMultiplier.String())
}
