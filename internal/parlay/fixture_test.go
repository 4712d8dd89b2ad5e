package parlay_test

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
	"github.com/alanyoungcy/overtimeamm/internal/parlay"
	"github.com/alanyoungcy/overtimeamm/internal/pricing"
	"github.com/alanyoungcy/overtimeamm/internal/registry"
	"github.com/alanyoungcy/overtimeamm/internal/risk"
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
	parlayAt = common.HexToAddress("0x0000000000000000000000000000000000000c05")
	poolAt   = common.HexToAddress("0x0000000000000000000000000000000000000c06")
	vouchAt  = common.HexToAddress("0x0000000000000000000000000000000000000c04")
	bookAt   = common.HexToAddress("0x0000000000000000000000000000000000000c01")
	start    = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

const soccer = 9011

func d(s string) decimal.Decimal { return num.MustParse(s) }

// sportsBook stands in for the single-market AMM: legs are priced from a
// fixed table and filled by minting full sets at the book address.
type sportsBook struct {
	address common.Address
	susd    *token.Token
	markets *market.Manager
	quotes  map[common.Address]map[domain.Position]decimal.Decimal
	limits  map[common.Address]decimal.Decimal
}

func (b *sportsBook) QuoteForParlay(m *market.Market, pos domain.Position, _ time.Time) decimal.Decimal {
	return b.quotes[m.Address()][pos]
}

func (b *sportsBook) AvailableToBuyFromAMM(m *market.Market, _ domain.Position, _ time.Time) decimal.Decimal {
	if v, ok := b.limits[m.Address()]; ok {
		return v
	}
	return d("1000000")
}

func (b *sportsBook) BuyQuoteForParlay(m *market.Market, pos domain.Position, amount decimal.Decimal, _ time.Time) decimal.Decimal {
	return num.Mul(amount, b.quotes[m.Address()][pos])
}

func (b *sportsBook) BuyForParlay(tx *chain.Tx, caller, addr common.Address, pos domain.Position, amount, maxCost decimal.Decimal, recipient common.Address) (decimal.Decimal, error) {
	m, err := b.markets.Get(addr)
	if err != nil {
		return num.Zero, err
	}
	cost := b.BuyQuoteForParlay(m, pos, amount, tx.Now())
	if cost.GreaterThan(maxCost) {
		return num.Zero, domain.ErrSlippageTooHigh
	}
	if err := b.susd.Transfer(tx, caller, b.address, cost); err != nil {
		return num.Zero, err
	}
	if err := m.Mint(tx, b.address, amount); err != nil {
		return num.Zero, err
	}
	return cost, m.TransferPosition(tx, pos, b.address, recipient, amount)
}

type fixture struct {
	chain    *chain.Chain
	clock    *chain.ManualClock
	susd     *token.Token
	markets  *market.Manager
	risk     *risk.Manager
	pool     *liquidity.Pool
	vouchers *voucher.Vouchers
	book     *sportsBook
	amm      *parlay.AMM
	games    byte
}

func params() parlay.Params {
	return parlay.Params{
		ParlayAmmFee:                       d("0.02"),
		SafeBoxImpact:                      d("0.01"),
		SafeBox:                            safeBox,
		ReferrerFee:                        d("0.005"),
		ParlaySize:                         4,
		MinUSDAmount:                       d("1"),
		MaxSupportedAmount:                 d("1000"),
		MaxSupportedOdds:                   d("0.005"),
		MaxAllowedRiskPerCombination:       d("2000"),
		MaxAllowedRiskPerMarketAndPosition: d("5000"),
		ExpiryDuration:                     30 * 24 * time.Hour,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	f := &fixture{
		clock: chain.NewManualClock(start),
		susd:  token.New("sUSD", common.HexToAddress("0x5005d")),
	}
	f.chain = chain.New(f.clock, logger)
	tokens := token.NewSet(f.susd)
	f.markets = market.NewManager(owner, f.susd)
	f.book = &sportsBook{
		address: bookAt,
		susd:    f.susd,
		markets: f.markets,
		quotes:  map[common.Address]map[domain.Position]decimal.Decimal{},
		limits:  map[common.Address]decimal.Decimal{},
	}
	f.risk = risk.NewManager(owner, risk.Params{
		DefaultCapPerGame:     d("1000"),
		MaxCapPerGame:         d("20000"),
		DefaultRiskMultiplier: d("3"),
		MaxRiskMultiplier:     d("5"),
		DefaultMaxLegs:        8,
		MaxSpread:             d("0.05"),
	})
	reg := registry.New(owner)
	sgp, err := registry.Register[pricing.SGPCombinator](reg, registry.SGPCombinator, "v1", pricing.NewCorrelatedSGP(), start)
	require.NoError(t, err)
	factory, err := registry.Register[liquidity.Factory](reg, registry.RoundPoolFactory, "v1", liquidity.DefaultFactory{}, start)
	require.NoError(t, err)
	f.pool = liquidity.New(liquidity.Params{
		Name:                     "parlay",
		RoundLength:              7 * 24 * time.Hour,
		MinDepositAmount:         d("1"),
		MaxAllowedDeposit:        d("1000000"),
		MaxAllowedUsers:          100,
		UtilizationRate:          d("1"),
		DefaultLiquidityProvider: dlp,
	}, owner, poolAt, f.susd, factory, logger)
	f.vouchers = voucher.New(owner, vouchAt, f.susd)
	f.amm = parlay.New(params(), owner, parlayAt, parlay.Deps{
		Markets:  f.markets,
		Sports:   f.book,
		Risk:     f.risk,
		Pool:     f.pool,
		Tokens:   tokens,
		SGP:      sgp,
		Vouchers: f.vouchers,
	}, logger)
	f.pool.Bind(parlayAt, f.amm.Settler())

	f.exec(t, func(tx *chain.Tx) error {
		for _, mint := range []struct {
			to  common.Address
			amt string
		}{{lp, "10000"}, {dlp, "100000"}, {alice, "1000"}, {bookAt, "100000"}} {
			if err := f.susd.Mint(tx, mint.to, d(mint.amt)); err != nil {
				return err
			}
		}
		if err := f.vouchers.SetSpender(tx, owner, parlayAt, true); err != nil {
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

// game creates a two-way moneyline market on a fresh game whose home leg
// is quoted at home.
func (f *fixture) game(t *testing.T, homeTeam, awayTeam, home string) *market.Market {
	t.Helper()
	f.games++
	return f.market(t, domain.MarketParams{
		GameID:   domain.GameID{f.games},
		HomeTeam: homeTeam,
		AwayTeam: awayTeam,
	}, home, num.One.Sub(d(home)).String())
}

// market creates a two-way market and quotes its positions.
func (f *fixture) market(t *testing.T, p domain.MarketParams, home, away string) *market.Market {
	t.Helper()
	p.Tags = []uint64{soccer}
	p.NumPositions = 2
	p.Maturity = start.Add(48 * time.Hour)
	var m *market.Market
	f.exec(t, func(tx *chain.Tx) error {
		var err error
		m, err = f.markets.CreateMarket(tx, owner, p)
		return err
	})
	f.book.quotes[m.Address()] = map[domain.Position]decimal.Decimal{
		domain.PositionHome: d(home),
		domain.PositionAway: d(away),
	}
	return m
}

func (f *fixture) request(amount string, ms ...*market.Market) parlay.BuyRequest {
	req := parlay.BuyRequest{
		Buyer:    alice,
		SUSDPaid: d(amount),
		Slippage: d("0.02"),
	}
	for _, m := range ms {
		req.Markets = append(req.Markets, m.Address())
		req.Positions = append(req.Positions, domain.PositionHome)
	}
	return req
}

// buy quotes req and buys it at the quoted payout.
func (f *fixture) buy(req parlay.BuyRequest) (*parlay.Ticket, error) {
	var out *parlay.Ticket
	err := f.try(func(tx *chain.Tx) error {
		q, err := f.amm.BuyQuoteFromParlay(req.Markets, req.Positions, req.SUSDPaid, tx.Now())
		if err != nil {
			return err
		}
		req.ExpectedPayout = q.TotalBuyAmount
		out, err = f.amm.BuyFromParlay(tx, req)
		return err
	})
	return out, err
}

func (f *fixture) resolve(t *testing.T, m *market.Market, pos domain.Position) {
	t.Helper()
	f.exec(t, func(tx *chain.Tx) error { return f.markets.Resolve(tx, owner, m.Address(), pos) })
}

func (f *fixture) cancel(t *testing.T, m *market.Market) {
	t.Helper()
	f.exec(t, func(tx *chain.Tx) error { return f.markets.Cancel(tx, owner, m.Address()) })
}

func (f *fixture) exercise(tk *parlay.Ticket) error {
	return f.try(func(tx *chain.Tx) error { return f.amm.ExerciseParlay(tx, alice, tk.Address()) })
}

// held returns the ticket's tokens of pos in m.
func held(tk *parlay.Ticket, m *market.Market, pos domain.Position) string {
	return m.BalanceOf(pos, tk.Address()).String()
}
