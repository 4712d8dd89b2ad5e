package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/overtimeamm/internal/chain"
	"github.com/alanyoungcy/overtimeamm/internal/domain"
	"github.com/alanyoungcy/overtimeamm/internal/liquidity"
	"github.com/alanyoungcy/overtimeamm/internal/protocol"
)

// PoolBalance is one provider's stake in a pool.
type PoolBalance struct {
	Pool    string          `json:"pool"`
	User    common.Address  `json:"user"`
	Round   uint64          `json:"round"`
	Current decimal.Decimal `json:"current"`
	Next    decimal.Decimal `json:"next"`
}

// PoolService runs liquidity provider operations and round closing.
type PoolService struct {
	proto  *protocol.Protocol
	rounds domain.RoundStore
	logger *slog.Logger
}

// NewPoolService creates a PoolService. rounds may be nil.
func NewPoolService(proto *protocol.Protocol, rounds domain.RoundStore, logger *slog.Logger) *PoolService {
	return &PoolService{
		proto:  proto,
		rounds: rounds,
		logger: logger.With(slog.String("component", "pool_service")),
	}
}

// Info snapshots a pool.
func (s *PoolService) Info(ctx context.Context, name string) (domain.PoolInfo, error) {
	pool, err := s.proto.Pool(name)
	if err != nil {
		return domain.PoolInfo{}, err
	}
	var info domain.PoolInfo
	err = s.proto.View(ctx, func(*chain.Tx) error {
		info = pool.Info()
		return nil
	})
	return info, err
}

// Balance returns a provider's stake in the current and next round.
func (s *PoolService) Balance(ctx context.Context, name string, user common.Address) (PoolBalance, error) {
	pool, err := s.proto.Pool(name)
	if err != nil {
		return PoolBalance{}, err
	}
	var b PoolBalance
	err = s.proto.View(ctx, func(*chain.Tx) error {
		r := pool.Round()
		b = PoolBalance{
			Pool:    name,
			User:    user,
			Round:   r,
			Current: pool.BalanceOf(user, r),
			Next:    pool.BalanceOf(user, r+1),
		}
		return nil
	})
	return b, err
}

// Start opens round 1 of a pool. Only the owner may start a pool, and only
// once.
func (s *PoolService) Start(ctx context.Context, name string, caller common.Address) (domain.PoolInfo, error) {
	pool, err := s.proto.Pool(name)
	if err != nil {
		return domain.PoolInfo{}, err
	}
	var info domain.PoolInfo
	err = s.proto.Execute(ctx, func(tx *chain.Tx) error {
		if err := pool.Start(tx, caller); err != nil {
			return err
		}
		info = pool.Info()
		return nil
	})
	if err != nil {
		return domain.PoolInfo{}, fmt.Errorf("pool_service: start %s: %w", name, err)
	}
	s.logger.InfoContext(ctx, "pool_service: started", slog.String("pool", name))
	return info, nil
}

// Deposit queues amount for the next round.
func (s *PoolService) Deposit(ctx context.Context, name string, user common.Address, amount decimal.Decimal) error {
	pool, err := s.proto.Pool(name)
	if err != nil {
		return err
	}
	if err := s.proto.Execute(ctx, func(tx *chain.Tx) error {
		return pool.Deposit(tx, user, amount)
	}); err != nil {
		return fmt.Errorf("pool_service: deposit into %s: %w", name, err)
	}
	s.logger.InfoContext(ctx, "pool_service: deposited",
		slog.String("pool", name),
		slog.String("user", user.Hex()),
		slog.String("amount", amount.String()),
	)
	return nil
}

// Withdraw requests a withdrawal at the end of the round. A zero fraction
// withdraws everything.
func (s *PoolService) Withdraw(ctx context.Context, name string, user common.Address, fraction decimal.Decimal) error {
	pool, err := s.proto.Pool(name)
	if err != nil {
		return err
	}
	err = s.proto.Execute(ctx, func(tx *chain.Tx) error {
		if fraction.IsZero() {
			return pool.WithdrawalRequest(tx, user)
		}
		return pool.PartialWithdrawalRequest(tx, user, fraction)
	})
	if err != nil {
		return fmt.Errorf("pool_service: withdraw from %s: %w", name, err)
	}
	return nil
}

// Rounds lists the closed rounds of a pool, newest first.
func (s *PoolService) Rounds(ctx context.Context, name string, opts domain.ListOpts) ([]domain.RoundSnapshot, error) {
	if _, err := s.proto.Pool(name); err != nil {
		return nil, err
	}
	if s.rounds == nil {
		return nil, nil
	}
	out, err := s.rounds.List(ctx, name, opts)
	if err != nil {
		return nil, fmt.Errorf("pool_service: rounds of %s: %w", name, err)
	}
	return out, nil
}

// CloseDueRounds closes the current round of every pool that can close:
// prepare, user batches and close each run as their own transaction. It
// returns the snapshots of the closed rounds.
func (s *PoolService) CloseDueRounds(ctx context.Context, batchSize int) ([]domain.RoundSnapshot, error) {
	var out []domain.RoundSnapshot
	for _, pool := range s.proto.Pools() {
		snap, closed, err := s.closeRound(ctx, pool, max(batchSize, 1))
		if err != nil {
			return out, fmt.Errorf("pool_service: close %s round: %w", pool.Name(), err)
		}
		if closed {
			out = append(out, snap)
		}
	}
	return out, nil
}

func (s *PoolService) closeRound(ctx context.Context, pool *liquidity.Pool, batchSize int) (domain.RoundSnapshot, bool, error) {
	err := s.proto.Execute(ctx, func(tx *chain.Tx) error {
		return pool.PrepareRoundClosing(tx)
	})
	switch {
	case errors.Is(err, domain.ErrCannotCloseRound):
		return domain.RoundSnapshot{}, false, nil
	case errors.Is(err, domain.ErrRoundPrepared):
		// A previous run stopped between steps; resume it.
	case err != nil:
		return domain.RoundSnapshot{}, false, err
	}

	for {
		done := false
		err := s.proto.Execute(ctx, func(tx *chain.Tx) error {
			processed, total := pool.ClosingProgress()
			if processed >= total {
				done = true
				return nil
			}
			return pool.ProcessRoundClosingBatch(tx, batchSize)
		})
		if err != nil {
			return domain.RoundSnapshot{}, false, err
		}
		if done {
			break
		}
	}

	var snap domain.RoundSnapshot
	err = s.proto.Execute(ctx, func(tx *chain.Tx) error {
		var err error
		snap, err = pool.CloseRound(tx)
		return err
	})
	if err != nil {
		return domain.RoundSnapshot{}, false, err
	}
	if s.rounds != nil {
		if err := s.rounds.Insert(ctx, snap); err != nil {
			s.logger.WarnContext(ctx, "pool_service: round insert failed",
				slog.String("pool", snap.Pool),
				slog.Uint64("round", snap.Round),
				slog.String("error", err.Error()),
			)
		}
	}
	return snap, true, nil
}
