// Package speedmarket runs chained speed markets: a sequence of up/down
// predictions on one asset, each leg measured over the same time frame and
// struck at the previous leg's final price.
package speedmarket

import (
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/overtimeamm/internal/chain"
	"github.com/alanyoungcy/overtimeamm/internal/domain"
	"github.com/alanyoungcy/overtimeamm/internal/num"
	"github.com/alanyoungcy/overtimeamm/internal/token"
)

// Params configure the chained speed markets AMM.
type Params struct {
	MinChainedMarkets            int
	MaxChainedMarkets            int
	PayoutMultiplier             decimal.Decimal
	MinBuyinAmount               decimal.Decimal
	MaxBuyinAmount               decimal.Decimal
	MinTimeFrame                 time.Duration
	MaxTimeFrame                 time.Duration
	MaxProfitPerIndividualMarket decimal.Decimal
	SafeBoxImpact                decimal.Decimal
	SafeBox                      common.Address
}

// Market is one chained speed market. Its escrow, held at its address,
// equals the payout.
type Market struct {
	address     common.Address
	user        common.Address
	asset       string
	timeFrame   time.Duration
	directions  []domain.Direction
	strike      decimal.Decimal
	strikeTime  time.Time
	buyin       decimal.Decimal
	payout      decimal.Decimal
	finalPrices []decimal.Decimal
	resolved    bool
	won         bool
}

func (m *Market) Address() common.Address    { return m.address }
func (m *Market) User() common.Address       { return m.user }
func (m *Market) Asset() string              { return m.asset }
func (m *Market) Payout() decimal.Decimal    { return m.payout }
func (m *Market) Buyin() decimal.Decimal     { return m.buyin }
func (m *Market) Resolved() bool             { return m.resolved }
func (m *Market) IsUserWinner() bool         { return m.resolved && m.won }
func (m *Market) Directions() []domain.Direction {
	return append([]domain.Direction(nil), m.directions...)
}

// LegTime returns when leg i is measured.
func (m *Market) LegTime(i int) time.Time {
	return m.strikeTime.Add(time.Duration(i+1) * m.timeFrame)
}

// Maturity is the time of the last leg.
func (m *Market) Maturity() time.Time { return m.LegTime(len(m.directions) - 1) }

func (m *Market) profit() decimal.Decimal { return m.payout.Sub(m.buyin) }

// Info snapshots the market.
func (m *Market) Info() domain.ChainedMarket {
	return domain.ChainedMarket{
		Address:      m.address,
		User:         m.user,
		Asset:        m.asset,
		TimeFrame:    m.timeFrame,
		Directions:   m.Directions(),
		Strike:       m.strike,
		StrikeTime:   m.strikeTime,
		FinalPrices:  append([]decimal.Decimal(nil), m.finalPrices...),
		Buyin:        m.buyin,
		Payout:       m.payout,
		Resolved:     m.resolved,
		IsUserWinner: m.IsUserWinner(),
	}
}

// AMM creates, funds and resolves chained speed markets.
type AMM struct {
	params  Params
	owner   common.Address
	address common.Address
	susd    *token.Token
	feed    *PriceFeed
	logger  *slog.Logger

	maxRisk     map[string]decimal.Decimal
	currentRisk map[string]decimal.Decimal

	markets map[common.Address]*Market
	order   []common.Address
	byUser  map[common.Address][]common.Address
}

func New(p Params, owner, address common.Address, susd *token.Token, feed *PriceFeed, logger *slog.Logger) *AMM {
	return &AMM{
		params:      p,
		owner:       owner,
		address:     address,
		susd:        susd,
		feed:        feed,
		logger:      logger.With(slog.String("component", "speedmarket")),
		maxRisk:     make(map[string]decimal.Decimal),
		currentRisk: make(map[string]decimal.Decimal),
		markets:     make(map[common.Address]*Market),
		byUser:      make(map[common.Address][]common.Address),
	}
}

func (a *AMM) Address() common.Address { return a.address }
func (a *AMM) Params() Params          { return a.params }
func (a *AMM) Feed() *PriceFeed        { return a.feed }

// SetParams replaces the AMM parameters.
func (a *AMM) SetParams(tx *chain.Tx, caller common.Address, p Params) error {
	if caller != a.owner {
		return domain.ErrOnlyOwner
	}
	if p.MinChainedMarkets < 1 || p.MaxChainedMarkets < p.MinChainedMarkets {
		return domain.ErrWrongDirections
	}
	if p.PayoutMultiplier.LessThanOrEqual(num.One) {
		return domain.ErrInvalidMultiplier
	}
	chain.Assign(tx, &a.params, p)
	return nil
}

// SetMaxRisk bounds the total profit the AMM may owe on asset.
func (a *AMM) SetMaxRisk(tx *chain.Tx, caller common.Address, asset string, v decimal.Decimal) error {
	if caller != a.owner {
		return domain.ErrOnlyOwner
	}
	if v.IsNegative() {
		return domain.ErrInvalidCap
	}
	chain.Put(tx, a.maxRisk, asset, v)
	return nil
}

// CurrentRisk is the unreleased profit owed on asset.
func (a *AMM) CurrentRisk(asset string) decimal.Decimal { return a.currentRisk[asset] }

// PayoutFor returns buyin × multiplier^legs.
func (a *AMM) PayoutFor(buyin decimal.Decimal, legs int) decimal.Decimal {
	return num.Mul(buyin, num.Pow(a.params.PayoutMultiplier, legs))
}

// CreateChainedMarket opens a market for user struck at the current price
// of asset. The user pays buyin plus the safe box fee and the AMM tops the
// escrow up to the payout.
func (a *AMM) CreateChainedMarket(tx *chain.Tx, user common.Address, asset string, timeFrame time.Duration, directions []domain.Direction, buyin decimal.Decimal) (*Market, error) {
	p := a.params
	if len(directions) < p.MinChainedMarkets || len(directions) > p.MaxChainedMarkets {
		return nil, domain.ErrWrongDirections
	}
	for _, d := range directions {
		if d != domain.DirectionUp && d != domain.DirectionDown {
			return nil, domain.Revert(domain.ErrValidation, "Invalid direction")
		}
	}
	if buyin.LessThan(p.MinBuyinAmount) || buyin.GreaterThan(p.MaxBuyinAmount) {
		return nil, domain.ErrWrongBuyIn
	}
	if timeFrame < p.MinTimeFrame || timeFrame > p.MaxTimeFrame {
		return nil, domain.ErrWrongTimeFrame
	}
	payout := a.PayoutFor(buyin, len(directions))
	profit := payout.Sub(buyin)
	if profit.GreaterThan(p.MaxProfitPerIndividualMarket) {
		return nil, domain.ErrProfitTooHigh
	}
	risk := a.currentRisk[asset].Add(profit)
	if risk.GreaterThan(a.maxRisk[asset]) {
		return nil, domain.ErrRiskPerAsset
	}
	now := tx.Now()
	strike, ok := a.feed.PriceAt(asset, now)
	if !ok {
		return nil, domain.ErrPriceUnavailable
	}

	m := &Market{
		address:    tx.NewAddress(a.address),
		user:       user,
		asset:      asset,
		timeFrame:  timeFrame,
		directions: append([]domain.Direction(nil), directions...),
		strike:     strike,
		strikeTime: now,
		buyin:      buyin,
		payout:     payout,
	}
	chain.Put(tx, a.currentRisk, asset, risk)
	chain.Put(tx, a.markets, m.address, m)
	chain.Append(tx, &a.order, m.address)
	owned := append(append([]common.Address(nil), a.byUser[user]...), m.address)
	chain.Put(tx, a.byUser, user, owned)

	if err := a.susd.Transfer(tx, user, m.address, buyin); err != nil {
		return nil, err
	}
	if err := a.susd.Transfer(tx, user, p.SafeBox, num.Mul(buyin, p.SafeBoxImpact)); err != nil {
		return nil, err
	}
	if err := a.susd.Transfer(tx, a.address, m.address, profit); err != nil {
		return nil, err
	}

	dirs := make([]string, len(directions))
	for i, d := range directions {
		dirs[i] = d.String()
	}
	tx.Emit(domain.EventChainedMarketCreated, map[string]any{
		"market":     domain.Addr(m.address),
		"user":       domain.Addr(user),
		"asset":      asset,
		"directions": dirs,
		"time_frame": timeFrame.String(),
		"strike":     domain.Dec(strike),
		"buyin":      domain.Dec(buyin),
		"payout":     domain.Dec(payout),
	})
	a.logger.DebugContext(tx.Context(), "speedmarket: market created",
		slog.String("market", m.address.Hex()),
		slog.String("asset", asset),
		slog.Int("legs", len(directions)),
	)
	return m, nil
}

// Market returns the chained market at addr.
func (a *AMM) Market(addr common.Address) (*Market, error) {
	m, ok := a.markets[addr]
	if !ok {
		return nil, ErrMarketNotFound
	}
	return m, nil
}

// MarketsOf lists the markets of user, oldest first.
func (a *AMM) MarketsOf(user common.Address) []*Market {
	out := make([]*Market, 0, len(a.byUser[user]))
	for _, addr := range a.byUser[user] {
		out = append(out, a.markets[addr])
	}
	return out
}

// ActiveMarkets lists unresolved markets.
func (a *AMM) ActiveMarkets() []*Market {
	var out []*Market
	for _, addr := range a.order {
		if m := a.markets[addr]; !m.resolved {
			out = append(out, m)
		}
	}
	return out
}

// ErrMarketNotFound is returned for unknown chained market addresses.
var ErrMarketNotFound = domain.Revert(domain.ErrNotFound, "Speed market not found")
