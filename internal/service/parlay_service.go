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
	"github.com/alanyoungcy/overtimeamm/internal/parlay"
	"github.com/alanyoungcy/overtimeamm/internal/protocol"
)

// ParlayOrder is a signed request to buy a parlay ticket.
type ParlayOrder struct {
	parlay.BuyRequest
	Collateral    common.Address
	MaxCollateral decimal.Decimal
	Voucher       *uint64
}

// ParlayService quotes, sells and settles parlay tickets.
type ParlayService struct {
	proto    *protocol.Protocol
	tickets  domain.TicketStore
	operator common.Address
	logger   *slog.Logger
}

// NewParlayService creates a ParlayService. tickets may be nil, in which
// case only live tickets can be read.
func NewParlayService(proto *protocol.Protocol, tickets domain.TicketStore, operator common.Address, logger *slog.Logger) *ParlayService {
	return &ParlayService{
		proto:    proto,
		tickets:  tickets,
		operator: operator,
		logger:   logger.With(slog.String("component", "parlay_service")),
	}
}

// Quote prices a parlay for sUSDPaid.
func (s *ParlayService) Quote(ctx context.Context, markets []common.Address, positions []domain.Position, sUSDPaid decimal.Decimal) (parlay.Quote, error) {
	var q parlay.Quote
	err := s.proto.View(ctx, func(tx *chain.Tx) error {
		var err error
		q, err = s.proto.Parlay.BuyQuoteFromParlay(markets, positions, sUSDPaid, tx.Now())
		return err
	})
	if err != nil {
		return parlay.Quote{}, fmt.Errorf("parlay_service: quote: %w", err)
	}
	return q, nil
}

// Buy buys a ticket and returns its snapshot.
func (s *ParlayService) Buy(ctx context.Context, o ParlayOrder) (domain.Ticket, error) {
	amm := s.proto.Parlay
	var info domain.Ticket
	err := s.proto.Execute(ctx, func(tx *chain.Tx) error {
		var (
			t   *parlay.Ticket
			err error
		)
		switch {
		case o.Voucher != nil:
			t, err = amm.BuyFromParlayWithVoucher(tx, o.BuyRequest, *o.Voucher)
		case o.Collateral != (common.Address{}) && o.Collateral != s.proto.SUSD.Address():
			t, err = amm.BuyFromParlayWithDifferentCollateral(tx, o.BuyRequest, o.Collateral, o.MaxCollateral)
		default:
			t, err = amm.BuyFromParlay(tx, o.BuyRequest)
		}
		if err != nil {
			return err
		}
		info = t.Info()
		return nil
	})
	if err != nil {
		return domain.Ticket{}, fmt.Errorf("parlay_service: buy: %w", err)
	}
	s.logger.InfoContext(ctx, "parlay_service: ticket bought",
		slog.String("ticket", info.Address.Hex()),
		slog.String("owner", info.Owner.Hex()),
		slog.Int("legs", len(info.Legs)),
		slog.String("amount", info.Amount.String()),
	)
	return info, nil
}

// Get returns a ticket, live or archived in the store.
func (s *ParlayService) Get(ctx context.Context, addr common.Address) (domain.Ticket, error) {
	var info domain.Ticket
	err := s.proto.View(ctx, func(tx *chain.Tx) error {
		t, err := s.proto.Parlay.Ticket(addr)
		if err != nil {
			return err
		}
		t.UpdateLegs(tx)
		info = t.Info()
		return nil
	})
	if err == nil {
		return info, nil
	}
	if !errors.Is(err, domain.ErrNotFound) || s.tickets == nil {
		return domain.Ticket{}, fmt.Errorf("parlay_service: get %s: %w", addr.Hex(), err)
	}
	info, err = s.tickets.GetByAddress(ctx, addr)
	if err != nil {
		return domain.Ticket{}, fmt.Errorf("parlay_service: get %s: %w", addr.Hex(), err)
	}
	return info, nil
}

// ListByOwner lists an owner's tickets, newest first.
func (s *ParlayService) ListByOwner(ctx context.Context, owner common.Address, opts domain.ListOpts) ([]domain.Ticket, error) {
	if s.tickets != nil {
		out, err := s.tickets.ListByOwner(ctx, owner, opts)
		if err != nil {
			return nil, fmt.Errorf("parlay_service: list by owner: %w", err)
		}
		return out, nil
	}
	var out []domain.Ticket
	err := s.proto.View(ctx, func(*chain.Tx) error {
		live := s.proto.Parlay.TicketsOf(owner)
		for i := len(live) - 1; i >= 0; i-- {
			out = append(out, live[i].Info())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("parlay_service: list by owner: %w", err)
	}
	return page(out, opts), nil
}

// Exercise pays a resolved ticket. Anyone may call it; winnings go to the
// owner.
func (s *ParlayService) Exercise(ctx context.Context, caller, addr common.Address) (domain.Ticket, error) {
	var info domain.Ticket
	err := s.proto.Execute(ctx, func(tx *chain.Tx) error {
		if err := s.proto.Parlay.ExerciseParlay(tx, caller, addr); err != nil {
			return err
		}
		t, err := s.proto.Parlay.Ticket(addr)
		if err != nil {
			return err
		}
		info = t.Info()
		return nil
	})
	if err != nil {
		return domain.Ticket{}, fmt.Errorf("parlay_service: exercise %s: %w", addr.Hex(), err)
	}
	return info, nil
}

// ExpireOverdue expires every open ticket past its expiry and returns the
// expired addresses.
func (s *ParlayService) ExpireOverdue(ctx context.Context) ([]common.Address, error) {
	var expired []common.Address
	err := s.proto.Execute(ctx, func(tx *chain.Tx) error {
		expired = s.proto.Parlay.Expired(tx)
		if len(expired) == 0 {
			return nil
		}
		return s.proto.Parlay.ExpireMarkets(tx, s.operator, expired)
	})
	if err != nil {
		return nil, fmt.Errorf("parlay_service: expire: %w", err)
	}
	return expired, nil
}

// ExerciseReady exercises every ticket that can be, as the operator.
func (s *ParlayService) ExerciseReady(ctx context.Context) ([]common.Address, error) {
	var done []common.Address
	err := s.proto.Execute(ctx, func(tx *chain.Tx) error {
		var err error
		done, err = s.proto.Parlay.ExerciseParlays(tx, s.operator, s.proto.Parlay.Exercisable(tx))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("parlay_service: exercise ready: %w", err)
	}
	return done, nil
}

func page[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset >= len(items) {
		return nil
	}
	items = items[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}
