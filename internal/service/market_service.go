package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/overtimeamm/internal/chain"
	"github.com/alanyoungcy/overtimeamm/internal/domain"
	"github.com/alanyoungcy/overtimeamm/internal/protocol"
)

// Quote sides.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// QuoteRequest asks for the price of a single-market trade.
type QuoteRequest struct {
	Market   common.Address
	Position domain.Position
	Amount   decimal.Decimal
	Side     string
	// Collateral is optional; when set on a buy the quote is also given in
	// that token through the ramp.
	Collateral common.Address
}

// Quote is the answer to a QuoteRequest.
type Quote struct {
	Market          common.Address  `json:"market"`
	Position        string          `json:"position"`
	Side            string          `json:"side"`
	Amount          decimal.Decimal `json:"amount"`
	SUSD            decimal.Decimal `json:"susd"`
	CollateralQuote decimal.Decimal `json:"collateral_quote,omitempty"`
	PriceImpact     decimal.Decimal `json:"price_impact"`
	Available       decimal.Decimal `json:"available"`
	Odds            decimal.Decimal `json:"odds"`
	QuotedAt        time.Time       `json:"quoted_at"`
}

// MarketService serves market snapshots and single-market quotes.
type MarketService struct {
	proto    *protocol.Protocol
	quotes   domain.QuoteCache
	quoteTTL time.Duration
	operator common.Address
	logger   *slog.Logger
}

// NewMarketService creates a MarketService. quotes may be nil.
func NewMarketService(proto *protocol.Protocol, quotes domain.QuoteCache, quoteTTL time.Duration, operator common.Address, logger *slog.Logger) *MarketService {
	return &MarketService{
		proto:    proto,
		quotes:   quotes,
		quoteTTL: quoteTTL,
		operator: operator,
		logger:   logger.With(slog.String("component", "market_service")),
	}
}

// ListActive returns the markets open for trading, soonest maturity first.
func (s *MarketService) ListActive(ctx context.Context) ([]domain.MarketInfo, error) {
	var out []domain.MarketInfo
	err := s.proto.View(ctx, func(tx *chain.Tx) error {
		for _, m := range s.proto.Markets.ListActive(tx.Now()) {
			info := m.Info(s.proto.Markets.IsPaused(m.Address()))
			info.Odds = s.odds(m.Address(), m.NumPositions())
			out = append(out, info)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("market_service: list active: %w", err)
	}
	return out, nil
}

// GetMarket returns one market with its current AMM odds.
func (s *MarketService) GetMarket(ctx context.Context, addr common.Address) (domain.MarketInfo, error) {
	var info domain.MarketInfo
	err := s.proto.View(ctx, func(tx *chain.Tx) error {
		var err error
		info, err = s.proto.Markets.Info(addr)
		if err != nil {
			return err
		}
		info.Odds = s.odds(addr, info.NumPositions)
		return nil
	})
	if err != nil {
		return domain.MarketInfo{}, fmt.Errorf("market_service: get %s: %w", addr.Hex(), err)
	}
	return info, nil
}

func (s *MarketService) odds(addr common.Address, n int) []decimal.Decimal {
	m, err := s.proto.Markets.Get(addr)
	if err != nil {
		return nil
	}
	out := make([]decimal.Decimal, n)
	for i := range out {
		out[i] = s.proto.Sports.ObtainOdds(m, domain.Position(i))
	}
	return out
}

// Quote prices a trade. Results are cached per market until the next trade
// or odds update on it.
func (s *MarketService) Quote(ctx context.Context, req QuoteRequest) (Quote, error) {
	if req.Side != SideBuy && req.Side != SideSell {
		return Quote{}, fmt.Errorf("market_service: quote: %w", domain.Revert(domain.ErrValidation, "Unknown side"))
	}
	key := quoteKey(req)
	if cached, ok := s.cachedQuote(ctx, key); ok {
		return cached, nil
	}

	var q Quote
	err := s.proto.View(ctx, func(tx *chain.Tx) error {
		m, err := s.proto.Markets.Get(req.Market)
		if err != nil {
			return err
		}
		now := tx.Now()
		amm := s.proto.Sports
		q = Quote{
			Market:   req.Market,
			Position: req.Position.String(),
			Side:     req.Side,
			Amount:   req.Amount,
			Odds:     amm.ObtainOdds(m, req.Position),
			QuotedAt: now,
		}
		if req.Side == SideSell {
			q.SUSD = amm.SellToAmmQuote(m, req.Position, req.Amount, now)
			q.PriceImpact = amm.SellPriceImpact(m, req.Position, req.Amount, now)
			q.Available = amm.AvailableToSellToAMM(m, req.Position, now)
			return nil
		}
		q.SUSD = amm.BuyFromAmmQuote(m, req.Position, req.Amount, now)
		q.PriceImpact = amm.BuyPriceImpact(m, req.Position, req.Amount, now)
		q.Available = amm.AvailableToBuyFromAMM(m, req.Position, now)
		if req.Collateral != (common.Address{}) && req.Collateral != s.proto.SUSD.Address() {
			in, _, err := amm.BuyFromAmmQuoteWithDifferentCollateral(m, req.Position, req.Amount, req.Collateral, now)
			if err != nil {
				return err
			}
			q.CollateralQuote = in
		}
		return nil
	})
	if err != nil {
		return Quote{}, fmt.Errorf("market_service: quote %s: %w", req.Market.Hex(), err)
	}
	s.storeQuote(ctx, key, q)
	return q, nil
}

func quoteKey(req QuoteRequest) string {
	return fmt.Sprintf("%s:%s:%d:%s:%s", req.Market.Hex(), req.Side, req.Position, req.Amount.String(), req.Collateral.Hex())
}

func (s *MarketService) cachedQuote(ctx context.Context, key string) (Quote, bool) {
	if s.quotes == nil {
		return Quote{}, false
	}
	b, err := s.quotes.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "market_service: quote cache get failed", slog.String("error", err.Error()))
		}
		return Quote{}, false
	}
	var q Quote
	if err := json.Unmarshal(b, &q); err != nil {
		return Quote{}, false
	}
	return q, true
}

func (s *MarketService) storeQuote(ctx context.Context, key string, q Quote) {
	if s.quotes == nil || s.quoteTTL <= 0 {
		return
	}
	b, err := json.Marshal(q)
	if err != nil {
		return
	}
	if err := s.quotes.Set(ctx, key, b, s.quoteTTL); err != nil {
		s.logger.WarnContext(ctx, "market_service: quote cache set failed", slog.String("error", err.Error()))
	}
}

// SetPaused pauses or resumes a market as the operator.
func (s *MarketService) SetPaused(ctx context.Context, addr common.Address, paused bool) error {
	err := s.proto.Execute(ctx, func(tx *chain.Tx) error {
		return s.proto.Markets.SetPaused(tx, s.operator, addr, paused)
	})
	if err != nil {
		return fmt.Errorf("market_service: set paused %s: %w", addr.Hex(), err)
	}
	s.logger.InfoContext(ctx, "market_service: pause toggled",
		slog.String("market", addr.Hex()),
		slog.Bool("paused", paused),
	)
	return nil
}
