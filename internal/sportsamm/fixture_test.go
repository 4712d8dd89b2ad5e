package sportsamm_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/overtimeamm/internal/chain"
	"github.com/alanyoungcy/overtimeamm/internal/domain"
	"github.com/alanyoungcy/overtimeamm/internal/liquidity"
	"github.com/alanyoungcy/overtimeamm/internal/market"
	"github.com/alanyoungcy/overtimeamm/internal/num"
	"github.com/alanyoungcy/overtimeamm/internal/odds"
	"github.com/alanyoungcy/overtimeamm/internal/pricing"
	"github.com/alanyoungcy/overtimeamm/internal/ramp"
	"github.com/alanyoungcy/overtimeamm/internal/registry"
	"github.com/alanyoungcy/overtimeamm/internal/risk"
	"github.com/alanyoungcy/overtimeamm/internal/sportsamm"
	"github.com/alanyoungcy/overtimeamm/internal/token"
	"github.com/alanyoungcy/overtimeamm/internal/voucher"
)

var (
	owner    = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	safeBox  = common.HexToAddress("0x0000000000000000000000000000000000000a02")
	dlp      = common.HexToAddress("0x0000000000000000000000000000000000000a03")
	lp       = common.HexToAddress("0x0000000000000000000000000000000000000a04")
	alice    = common.HexToAddress("0x0000000000000000000000000000000000000b01")
	referrer = common.HexToAddress("0x0000000000000000000000000000000000000b02")
	ammAt    = common.HexToAddress("0x0000000000000000000000000000000000000c01")
	poolAt   = common.HexToAddress("0x0000000000000000000000000000000000000c02")
	rampAt   = common.HexToAddress("0x0000000000000000000000000000000000000c03")
	vouchAt  = common.HexToAddress("0x0000000000000000000000000000000000000c04")
	start    = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

func d(s string) decimal.Decimal { return num.MustParse(s) }

type fixture struct {
	chain    *chain.Chain
	clock    *chain.ManualClock
	susd     *token.Token
	dai      *token.Token
	markets  *market.Manager
	feed     *odds.Feed
	risk     *risk.Manager
	pool     *liquidity.Pool
	ramp     *ramp.Ramp
	vouchers *voucher.Vouchers
	amm      *sportsamm.AMM
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	f := &fixture{
		clock: chain.NewManualClock(start),
		susd:  token.New("sUSD", common.HexToAddress("0x5005d")),
		dai:   token.New("DAI", common.HexToAddress("0xda1")),
	}
	f.chain = chain.New(f.clock, logger)
	tokens := token.NewSet(f.susd, f.dai)
	f.markets = market.NewManager(owner, f.susd)
	f.feed = odds.NewFeed(owner, f.markets, 0)
	f.risk = risk.NewManager(owner, risk.Params{
		DefaultCapPerGame:     d("1000"),
		MaxCapPerGame:         d("20000"),
		DefaultRiskMultiplier: d("3"),
		MaxRiskMultiplier:     d("5"),
		DefaultMaxLegs:        8,
		MaxSpread:             d("0.05"),
	})
	reg := registry.New(owner)
	skew, err := registry.Register[pricing.SkewCurve](reg, registry.SkewCurve, "v1", pricing.LinearSkew{}, start)
	require.NoError(t, err)
	factory, err := registry.Register[liquidity.Factory](reg, registry.RoundPoolFactory, "v1", liquidity.DefaultFactory{}, start)
	require.NoError(t, err)
	f.pool = liquidity.New(liquidity.Params{
		Name:                     "sports",
		RoundLength:              7 * 24 * time.Hour,
		MinDepositAmount:         d("1"),
		MaxAllowedDeposit:        d("1000000"),
		MaxAllowedUsers:          100,
		UtilizationRate:          d("1"),
		DefaultLiquidityProvider: dlp,
	}, owner, poolAt, f.susd, factory, logger)
	f.ramp = ramp.New(owner, rampAt, tokens, d("0"), 0)
	f.vouchers = voucher.New(owner, vouchAt, f.susd)
	f.amm = sportsamm.New(sportsamm.Params{
		MinSpread:                 d("0.01"),
		MaxSpread:                 d("0.05"),
		SafeBoxImpact:             d("0.01"),
		SafeBox:                   safeBox,
		ReferrerShare:             d("0.5"),
		MinSupportedOdds:          d("0.02"),
		MaxSupportedOdds:          d("0.98"),
		MinimalTimeLeftToMaturity: time.Hour,
	}, owner, ammAt, sportsamm.Deps{
		Markets:  f.markets,
		Feed:     f.feed,
		Risk:     f.risk,
		Pool:     f.pool,
		Tokens:   tokens,
		Skew:     skew,
		Ramp:     f.ramp,
		Vouchers: f.vouchers,
	}, logger)
	f.pool.Bind(ammAt, f.amm.Settler())

	f.exec(t, func(tx *chain.Tx) error {
		for _, mint := range []struct {
			tok *token.Token
			to  common.Address
			amt string
		}{
			{f.susd, lp, "10000"},
			{f.susd, dlp, "100000"},
			{f.susd, alice, "1000"},
			{f.susd, rampAt, "1000"},
			{f.dai, alice, "1000"},
		} {
			if err := mint.tok.Mint(tx, mint.to, d(mint.amt)); err != nil {
				return err
			}
		}
		if err := f.ramp.SetRate(tx, owner, f.dai.Address(), d("1")); err != nil {
			return err
		}
		if err := f.vouchers.SetSpender(tx, owner, ammAt, true); err != nil {
			return err
		}
		if err := f.pool.Deposit(tx, lp, d("10000")); err != nil {
			return err
		}
		return f.pool.Start(tx, owner)
	})
	return f
}

func (f *fixture) exec(t *testing.T, fn func(tx *chain.Tx) error) {
	t.Helper()
	require.NoError(t, f.try(fn))
}

func (f *fixture) try(fn func(tx *chain.Tx) error) error {
	return f.chain.Execute(context.Background(), fn)
}

// soccer creates a three-way market priced at +150/+200/+250.
func (f *fixture) soccer(t *testing.T) *market.Market {
	t.Helper()
	var m *market.Market
	f.exec(t, func(tx *chain.Tx) error {
		var err error
		m, err = f.markets.CreateMarket(tx, owner, domain.MarketParams{
			GameID:       domain.GameID{7},
			Tags:         []uint64{9011},
			HomeTeam:     "Arsenal",
			AwayTeam:     "Chelsea",
			NumPositions: 3,
			Maturity:     start.Add(48 * time.Hour),
		})
		if err != nil {
			return err
		}
		return f.feed.SetOdds(tx, owner, m.Address(), []int64{150, 200, 250})
	})
	return m
}

func (f *fixture) buy(m *market.Market, pos domain.Position, amount decimal.Decimal) error {
	return f.try(func(tx *chain.Tx) error {
		quote := f.amm.BuyFromAmmQuote(m, pos, amount, tx.Now())
		_, err := f.amm.BuyFromAMM(tx, alice, m.Address(), pos, amount, quote, d("0.01"))
		return err
	})
}
