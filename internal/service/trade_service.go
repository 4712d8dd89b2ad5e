package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/overtimeamm/internal/chain"
	"github.com/alanyoungcy/overtimeamm/internal/domain"
	"github.com/alanyoungcy/overtimeamm/internal/protocol"
	"github.com/alanyoungcy/overtimeamm/internal/sportsamm"
)

// TradeOrder is a signed request to trade against the sports AMM.
type TradeOrder struct {
	Trader   common.Address
	Market   common.Address
	Position domain.Position
	Amount   decimal.Decimal
	// Expected is the quoted payment of a buy or payout of a sell.
	Expected decimal.Decimal
	Slippage decimal.Decimal
	Referrer common.Address
	// Collateral pays a buy through the ramp when it is not sUSD.
	Collateral common.Address
	// Voucher pays a buy when set.
	Voucher *uint64
}

// TradeService executes single-market trades.
type TradeService struct {
	proto  *protocol.Protocol
	logger *slog.Logger
}

// NewTradeService creates a TradeService.
func NewTradeService(proto *protocol.Protocol, logger *slog.Logger) *TradeService {
	return &TradeService{
		proto:  proto,
		logger: logger.With(slog.String("component", "trade_service")),
	}
}

// Buy buys position tokens, paid in sUSD, another collateral or a voucher.
func (s *TradeService) Buy(ctx context.Context, o TradeOrder) (sportsamm.Trade, error) {
	amm := s.proto.Sports
	var trade sportsamm.Trade
	err := s.proto.Execute(ctx, func(tx *chain.Tx) error {
		var err error
		switch {
		case o.Voucher != nil:
			trade, err = amm.BuyFromAMMWithVoucher(tx, o.Trader, o.Market, o.Position, o.Amount, o.Expected, o.Slippage, *o.Voucher)
		case o.Collateral != (common.Address{}) && o.Collateral != s.proto.SUSD.Address():
			trade, err = amm.BuyFromAMMWithDifferentCollateral(tx, o.Trader, o.Market, o.Position, o.Amount, o.Expected, o.Slippage, o.Collateral, o.Referrer)
		case o.Referrer != (common.Address{}):
			trade, err = amm.BuyFromAMMWithReferrer(tx, o.Trader, o.Market, o.Position, o.Amount, o.Expected, o.Slippage, o.Referrer)
		default:
			trade, err = amm.BuyFromAMM(tx, o.Trader, o.Market, o.Position, o.Amount, o.Expected, o.Slippage)
		}
		return err
	})
	if err != nil {
		return sportsamm.Trade{}, fmt.Errorf("trade_service: buy %s: %w", o.Market.Hex(), err)
	}
	s.logger.InfoContext(ctx, "trade_service: bought",
		slog.String("trader", o.Trader.Hex()),
		slog.String("market", o.Market.Hex()),
		slog.String("position", o.Position.String()),
		slog.String("amount", trade.Amount.String()),
		slog.String("susd", trade.SUSD.String()),
	)
	return trade, nil
}

// Sell sells position tokens back to the AMM for sUSD.
func (s *TradeService) Sell(ctx context.Context, o TradeOrder) (sportsamm.Trade, error) {
	var trade sportsamm.Trade
	err := s.proto.Execute(ctx, func(tx *chain.Tx) error {
		var err error
		trade, err = s.proto.Sports.SellToAMM(tx, o.Trader, o.Market, o.Position, o.Amount, o.Expected, o.Slippage)
		return err
	})
	if err != nil {
		return sportsamm.Trade{}, fmt.Errorf("trade_service: sell %s: %w", o.Market.Hex(), err)
	}
	s.logger.InfoContext(ctx, "trade_service: sold",
		slog.String("trader", o.Trader.Hex()),
		slog.String("market", o.Market.Hex()),
		slog.String("amount", trade.Amount.String()),
		slog.String("susd", trade.SUSD.String()),
	)
	return trade, nil
}

// Exercise redeems the caller's positions on a resolved or cancelled
// market.
func (s *TradeService) Exercise(ctx context.Context, holder, addr common.Address) (decimal.Decimal, error) {
	var paid decimal.Decimal
	err := s.proto.Execute(ctx, func(tx *chain.Tx) error {
		m, err := s.proto.Markets.Get(addr)
		if err != nil {
			return err
		}
		paid, err = m.ExercisePositions(tx, holder)
		return err
	})
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("trade_service: exercise %s: %w", addr.Hex(), err)
	}
	return paid, nil
}
