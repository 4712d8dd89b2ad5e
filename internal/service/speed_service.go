package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/overtimeamm/internal/chain"
	"github.com/alanyoungcy/overtimeamm/internal/domain"
	"github.com/alanyoungcy/overtimeamm/internal/protocol"
)

// SpeedOrder requests a chained speed market.
type SpeedOrder struct {
	User       common.Address
	Asset      string
	TimeFrame  time.Duration
	Directions []domain.Direction
	Buyin      decimal.Decimal
}

// SpeedService opens and resolves chained speed markets.
type SpeedService struct {
	proto  *protocol.Protocol
	logger *slog.Logger
}

// NewSpeedService creates a SpeedService.
func NewSpeedService(proto *protocol.Protocol, logger *slog.Logger) *SpeedService {
	return &SpeedService{
		proto:  proto,
		logger: logger.With(slog.String("component", "speed_service")),
	}
}

// Create opens a chained market for the order.
func (s *SpeedService) Create(ctx context.Context, o SpeedOrder) (domain.ChainedMarket, error) {
	var info domain.ChainedMarket
	err := s.proto.Execute(ctx, func(tx *chain.Tx) error {
		m, err := s.proto.Speed.CreateChainedMarket(tx, o.User, o.Asset, o.TimeFrame, o.Directions, o.Buyin)
		if err != nil {
			return err
		}
		info = m.Info()
		return nil
	})
	if err != nil {
		return domain.ChainedMarket{}, fmt.Errorf("speed_service: create: %w", err)
	}
	return info, nil
}

// Get returns a chained market.
func (s *SpeedService) Get(ctx context.Context, addr common.Address) (domain.ChainedMarket, error) {
	var info domain.ChainedMarket
	err := s.proto.View(ctx, func(*chain.Tx) error {
		m, err := s.proto.Speed.Market(addr)
		if err != nil {
			return err
		}
		info = m.Info()
		return nil
	})
	if err != nil {
		return domain.ChainedMarket{}, fmt.Errorf("speed_service: get %s: %w", addr.Hex(), err)
	}
	return info, nil
}

// ResolveDue resolves every market whose outcome is known.
func (s *SpeedService) ResolveDue(ctx context.Context) ([]common.Address, error) {
	var done []common.Address
	err := s.proto.Execute(ctx, func(tx *chain.Tx) error {
		var err error
		done, err = s.proto.Speed.ResolveMarkets(tx, s.proto.Speed.Resolvable(tx.Now()))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("speed_service: resolve due: %w", err)
	}
	return done, nil
}
