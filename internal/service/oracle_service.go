package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/overtimeamm/internal/chain"
	"github.com/alanyoungcy/overtimeamm/internal/domain"
	"github.com/alanyoungcy/overtimeamm/internal/protocol"
)

// OracleService applies data-provider updates to the protocol as the
// operator account.
type OracleService struct {
	proto    *protocol.Protocol
	operator common.Address
	logger   *slog.Logger
}

// NewOracleService creates an OracleService.
func NewOracleService(proto *protocol.Protocol, operator common.Address, logger *slog.Logger) *OracleService {
	return &OracleService{
		proto:    proto,
		operator: operator,
		logger:   logger.With(slog.String("component", "oracle_service")),
	}
}

// Apply executes one update as its own transaction.
func (s *OracleService) Apply(ctx context.Context, u domain.OracleUpdate) error {
	err := s.proto.Execute(ctx, func(tx *chain.Tx) error {
		return s.apply(tx, u)
	})
	if err != nil {
		return fmt.Errorf("oracle_service: %s: %w", u.Kind, err)
	}
	return nil
}

func (s *OracleService) apply(tx *chain.Tx, u domain.OracleUpdate) error {
	p := s.proto
	switch u.Kind {
	case domain.OracleCreateMarket:
		params, err := marketParams(u)
		if err != nil {
			return err
		}
		m, err := p.Markets.CreateMarket(tx, s.operator, params)
		if err != nil {
			return err
		}
		if len(u.Odds) > 0 {
			if err := p.Feed.SetOdds(tx, s.operator, m.Address(), u.Odds); err != nil {
				return err
			}
		}
		if u.DoubleChance && params.NumPositions == 3 {
			if _, err := p.Markets.CreateDoubleChance(tx, s.operator, m.Address()); err != nil {
				return err
			}
		}
		s.logger.Info("oracle_service: market created",
			slog.String("market", m.Address().Hex()),
			slog.String("home", params.HomeTeam),
			slog.String("away", params.AwayTeam),
		)
		return nil

	case domain.OracleOdds:
		return p.Feed.SetOdds(tx, s.operator, u.Market, u.Odds)

	case domain.OracleResolve:
		return p.Markets.Resolve(tx, s.operator, u.Market, u.Result)

	case domain.OracleCancel:
		return p.Markets.Cancel(tx, s.operator, u.Market)

	case domain.OraclePrice:
		at := u.At
		if at.IsZero() {
			at = tx.Now()
		}
		return p.Prices.Publish(tx, s.operator, u.Asset, at, u.Price)

	case domain.OracleRate:
		return p.Ramp.SetRate(tx, s.operator, u.Collateral, u.Price)
	}
	return domain.Revert(domain.ErrValidation, "Unknown oracle update")
}

func marketParams(u domain.OracleUpdate) (domain.MarketParams, error) {
	kind, ok := domain.ParseMarketKind(u.MarketKind)
	if !ok {
		return domain.MarketParams{}, domain.Revert(domain.ErrValidation, "Unknown market kind")
	}
	return domain.MarketParams{
		GameID:       ParseGameID(u.GameID),
		Tags:         u.Tags,
		Kind:         kind,
		Line:         u.Line,
		HomeTeam:     u.HomeTeam,
		AwayTeam:     u.AwayTeam,
		NumPositions: u.NumPositions,
		Maturity:     u.Maturity,
	}, nil
}

// ParseGameID accepts a 32-byte hex id or hashes any other string.
func ParseGameID(s string) domain.GameID {
	if b, err := hexutil.Decode(s); err == nil && len(b) == common.HashLength {
		return domain.GameID(common.BytesToHash(b))
	}
	return domain.GameID(ethcrypto.Keccak256Hash([]byte(s)))
}
