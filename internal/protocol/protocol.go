// Package protocol assembles every engine on one chain. The server, the
// keeper and the scenario tests all run against a Protocol.
package protocol

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/overtimeamm/internal/chain"
	"github.com/alanyoungcy/overtimeamm/internal/config"
	"github.com/alanyoungcy/overtimeamm/internal/domain"
	"github.com/alanyoungcy/overtimeamm/internal/events"
	"github.com/alanyoungcy/overtimeamm/internal/liquidity"
	"github.com/alanyoungcy/overtimeamm/internal/market"
	"github.com/alanyoungcy/overtimeamm/internal/odds"
	"github.com/alanyoungcy/overtimeamm/internal/parlay"
	"github.com/alanyoungcy/overtimeamm/internal/pricing"
	"github.com/alanyoungcy/overtimeamm/internal/ramp"
	"github.com/alanyoungcy/overtimeamm/internal/registry"
	"github.com/alanyoungcy/overtimeamm/internal/risk"
	"github.com/alanyoungcy/overtimeamm/internal/speedmarket"
	"github.com/alanyoungcy/overtimeamm/internal/sportsamm"
	"github.com/alanyoungcy/overtimeamm/internal/token"
	"github.com/alanyoungcy/overtimeamm/internal/voucher"
)

// Pool names accepted by Pool.
const (
	SportsPool = "sports"
	ParlayPool = "parlay"
)

// Options are the runtime inputs that do not come from the protocol section
// of the config.
type Options struct {
	Owner   common.Address
	Oracles []common.Address
	// Clock defaults to the system clock.
	Clock  chain.Clock
	Logger *slog.Logger
}

// Protocol holds the deployed engines.
type Protocol struct {
	Owner   common.Address
	SafeBox common.Address

	Chain    *chain.Chain
	Bus      *events.Bus
	Tokens   *token.Set
	SUSD     *token.Token
	Registry *registry.Registry

	Markets  *market.Manager
	Feed     *odds.Feed
	Risk     *risk.Manager
	Vouchers *voucher.Vouchers
	Ramp     *ramp.Ramp

	SportsPool *liquidity.Pool
	ParlayPool *liquidity.Pool
	Sports     *sportsamm.AMM
	Parlay     *parlay.AMM

	Prices *speedmarket.PriceFeed
	Speed  *speedmarket.AMM

	logger *slog.Logger
}

// New deploys every engine in one genesis transaction. Engine addresses are
// derived from the owner's deployment nonces, so they are stable for a
// given owner and config.
func New(ctx context.Context, cfg config.ProtocolConfig, opts Options) (*Protocol, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if len(cfg.Collateral) == 0 {
		return nil, fmt.Errorf("protocol: new: no collateral configured")
	}

	toks := make([]*token.Token, 0, len(cfg.Collateral))
	for _, c := range cfg.Collateral {
		if !common.IsHexAddress(c.Address) {
			return nil, fmt.Errorf("protocol: new: collateral %s: bad address %q", c.Symbol, c.Address)
		}
		toks = append(toks, token.New(c.Symbol, common.HexToAddress(c.Address)))
	}

	p := &Protocol{
		Owner:   opts.Owner,
		SafeBox: opts.Owner,
		Chain:   chain.New(opts.Clock, logger),
		Bus:     events.NewBus(logger),
		Tokens:  token.NewSet(toks[0], toks[1:]...),
		SUSD:    toks[0],
		logger:  logger.With(slog.String("component", "protocol")),
	}
	if cfg.SafeBox != "" {
		p.SafeBox = common.HexToAddress(cfg.SafeBox)
	}
	p.Chain.SetDispatcher(p.Bus)

	p.Registry = registry.New(p.Owner)
	now := p.Chain.Now()
	skew, err := registry.Register[pricing.SkewCurve](p.Registry, registry.SkewCurve, "v1", pricing.LinearSkew{}, now)
	if err != nil {
		return nil, fmt.Errorf("protocol: new: %w", err)
	}
	sgp, err := registry.Register[pricing.SGPCombinator](p.Registry, registry.SGPCombinator, "v1", pricing.NewCorrelatedSGP(), now)
	if err != nil {
		return nil, fmt.Errorf("protocol: new: %w", err)
	}
	factory, err := registry.Register[liquidity.Factory](p.Registry, registry.RoundPoolFactory, "v1", liquidity.DefaultFactory{}, now)
	if err != nil {
		return nil, fmt.Errorf("protocol: new: %w", err)
	}

	p.Markets = market.NewManager(p.Owner, p.SUSD)
	p.Feed = odds.NewFeed(p.Owner, p.Markets, cfg.OddsMinInterval.Duration)
	p.Risk = risk.NewManager(p.Owner, riskParams(cfg.Risk))
	p.Prices = speedmarket.NewPriceFeed(p.Owner)

	err = p.Chain.Execute(ctx, func(tx *chain.Tx) error {
		deploy := func() common.Address { return tx.NewAddress(p.Owner) }

		p.Vouchers = voucher.New(p.Owner, deploy(), p.SUSD)
		p.Ramp = ramp.New(p.Owner, deploy(), p.Tokens, cfg.Ramp.Fee.Decimal, cfg.Ramp.MinInterval.Duration)

		p.SportsPool = liquidity.New(poolParams(SportsPool, cfg.SportsPool), p.Owner, deploy(), p.SUSD, factory, logger)
		p.ParlayPool = liquidity.New(poolParams(ParlayPool, cfg.ParlayPool), p.Owner, deploy(), p.SUSD, factory, logger)

		p.Sports = sportsamm.New(sportsParams(cfg.SportsAMM, p.SafeBox), p.Owner, deploy(), sportsamm.Deps{
			Markets:  p.Markets,
			Feed:     p.Feed,
			Risk:     p.Risk,
			Pool:     p.SportsPool,
			Tokens:   p.Tokens,
			Skew:     skew,
			Ramp:     p.Ramp,
			Vouchers: p.Vouchers,
		}, logger)
		p.Parlay = parlay.New(parlayParams(cfg.ParlayAMM, p.SafeBox), p.Owner, deploy(), parlay.Deps{
			Markets:  p.Markets,
			Sports:   p.Sports,
			Risk:     p.Risk,
			Pool:     p.ParlayPool,
			Tokens:   p.Tokens,
			SGP:      sgp,
			Ramp:     p.Ramp,
			Vouchers: p.Vouchers,
		}, logger)
		p.Speed = speedmarket.New(speedParams(cfg.Speed, p.SafeBox), p.Owner, deploy(), p.SUSD, p.Prices, logger)

		p.SportsPool.Bind(p.Sports.Address(), p.Sports.Settler())
		p.ParlayPool.Bind(p.Parlay.Address(), p.Parlay.Settler())
		if err := p.Sports.SetParlayAMM(tx, p.Owner, p.Parlay.Address()); err != nil {
			return err
		}

		for _, spender := range []common.Address{p.Sports.Address(), p.Parlay.Address()} {
			if err := p.Vouchers.SetSpender(tx, p.Owner, spender, true); err != nil {
				return err
			}
		}
		for _, oracle := range opts.Oracles {
			if err := p.Feed.SetOracle(tx, p.Owner, oracle, true); err != nil {
				return err
			}
			if err := p.Prices.SetOracle(tx, p.Owner, oracle, true); err != nil {
				return err
			}
			if err := p.Ramp.SetOracle(tx, p.Owner, oracle, true); err != nil {
				return err
			}
		}
		for _, sport := range sortedKeys(cfg.ParlayAMM.SGPFeePerSport) {
			tag, err := strconv.ParseUint(sport, 10, 64)
			if err != nil {
				return fmt.Errorf("sgp_fee_per_sport: bad sport tag %q", sport)
			}
			if err := p.Parlay.SetSGPFeePerSport(tx, p.Owner, tag, cfg.ParlayAMM.SGPFeePerSport[sport].Decimal); err != nil {
				return err
			}
		}
		for _, asset := range sortedKeys(cfg.Speed.MaxRisk) {
			if err := p.Speed.SetMaxRisk(tx, p.Owner, asset, cfg.Speed.MaxRisk[asset].Decimal); err != nil {
				return err
			}
		}
		// Collateral is swapped at par until an oracle publishes a rate.
		for _, t := range toks[1:] {
			if err := p.Ramp.SetRate(tx, p.Owner, t.Address(), decimal.NewFromInt(1)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("protocol: genesis: %w", err)
	}

	p.logger.Info("protocol: deployed",
		slog.String("owner", p.Owner.Hex()),
		slog.String("sports_amm", p.Sports.Address().Hex()),
		slog.String("parlay_amm", p.Parlay.Address().Hex()),
		slog.String("speed_amm", p.Speed.Address().Hex()),
		slog.String("sports_pool", p.SportsPool.Address().Hex()),
		slog.String("parlay_pool", p.ParlayPool.Address().Hex()),
	)
	return p, nil
}

// Execute runs fn as one transaction.
func (p *Protocol) Execute(ctx context.Context, fn func(tx *chain.Tx) error) error {
	return p.Chain.Execute(ctx, fn)
}

// View runs fn against current state and discards any mutation.
func (p *Protocol) View(ctx context.Context, fn func(tx *chain.Tx) error) error {
	return p.Chain.View(ctx, fn)
}

// Pool looks a liquidity pool up by name.
func (p *Protocol) Pool(name string) (*liquidity.Pool, error) {
	switch name {
	case SportsPool:
		return p.SportsPool, nil
	case ParlayPool:
		return p.ParlayPool, nil
	}
	return nil, fmt.Errorf("protocol: pool %q: %w", name, domain.ErrNotFound)
}

// Pools returns both pools, sports first.
func (p *Protocol) Pools() []*liquidity.Pool {
	return []*liquidity.Pool{p.SportsPool, p.ParlayPool}
}

// Mint credits collateral to an account. Only the owner may mint; it funds
// AMMs, default liquidity providers and test accounts on a devnet.
func (p *Protocol) Mint(tx *chain.Tx, caller, collateral, to common.Address, amount decimal.Decimal) error {
	if caller != p.Owner {
		return domain.ErrOnlyOwner
	}
	t, ok := p.Tokens.Get(collateral)
	if !ok {
		return domain.ErrUnsupportedAsset
	}
	return t.Mint(tx, to, amount)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func riskParams(c config.RiskConfig) risk.Params {
	return risk.Params{
		DefaultCapPerGame:     c.DefaultCapPerGame.Decimal,
		MaxCapPerGame:         c.MaxCapPerGame.Decimal,
		DefaultRiskMultiplier: c.DefaultRiskMultiplier.Decimal,
		MaxRiskMultiplier:     c.MaxRiskMultiplier.Decimal,
		DefaultMaxLegs:        c.DefaultMaxLegs,
		MaxSpread:             c.MaxSpread.Decimal,
	}
}

func poolParams(name string, c config.PoolConfig) liquidity.Params {
	p := liquidity.Params{
		Name:              name,
		RoundLength:       c.RoundLength.Duration,
		MinDepositAmount:  c.MinDepositAmount.Decimal,
		MaxAllowedDeposit: c.MaxAllowedDeposit.Decimal,
		MaxAllowedUsers:   c.MaxAllowedUsers,
		UtilizationRate:   c.UtilizationRate.Decimal,
		OnlyWhitelisted:   c.OnlyWhitelisted,
	}
	if c.DefaultLiquidityProvider != "" {
		p.DefaultLiquidityProvider = common.HexToAddress(c.DefaultLiquidityProvider)
	}
	return p
}

func sportsParams(c config.SportsAMMConfig, safeBox common.Address) sportsamm.Params {
	return sportsamm.Params{
		MinSpread:                 c.MinSpread.Decimal,
		MaxSpread:                 c.MaxSpread.Decimal,
		SafeBoxImpact:             c.SafeBoxImpact.Decimal,
		SafeBox:                   safeBox,
		ReferrerShare:             c.ReferrerShare.Decimal,
		MinSupportedOdds:          c.MinSupportedOdds.Decimal,
		MaxSupportedOdds:          c.MaxSupportedOdds.Decimal,
		MinimalTimeLeftToMaturity: c.MinimalTimeLeftToMaturity.Duration,
	}
}

func parlayParams(c config.ParlayAMMConfig, safeBox common.Address) parlay.Params {
	return parlay.Params{
		ParlayAmmFee:                       c.ParlayAmmFee.Decimal,
		SafeBoxImpact:                      c.SafeBoxImpact.Decimal,
		SafeBox:                            safeBox,
		ReferrerFee:                        c.ReferrerFee.Decimal,
		ParlaySize:                         c.ParlaySize,
		MinUSDAmount:                       c.MinUSDAmount.Decimal,
		MaxSupportedAmount:                 c.MaxSupportedAmount.Decimal,
		MaxSupportedOdds:                   c.MaxSupportedOdds.Decimal,
		MaxAllowedRiskPerCombination:       c.MaxAllowedRiskPerCombination.Decimal,
		MaxAllowedRiskPerMarketAndPosition: c.MaxAllowedRiskPerMarketAndPosition.Decimal,
		ExpiryDuration:                     c.ExpiryDuration.Duration,
	}
}

func speedParams(c config.SpeedConfig, safeBox common.Address) speedmarket.Params {
	return speedmarket.Params{
		MinChainedMarkets:            c.MinChainedMarkets,
		MaxChainedMarkets:            c.MaxChainedMarkets,
		PayoutMultiplier:             c.PayoutMultiplier.Decimal,
		MinBuyinAmount:               c.MinBuyinAmount.Decimal,
		MaxBuyinAmount:               c.MaxBuyinAmount.Decimal,
		MinTimeFrame:                 c.MinTimeFrame.Duration,
		MaxTimeFrame:                 c.MaxTimeFrame.Duration,
		MaxProfitPerIndividualMarket: c.MaxProfitPerIndividualMarket.Decimal,
		SafeBoxImpact:                c.SafeBoxImpact.Decimal,
		SafeBox:                      safeBox,
	}
}
