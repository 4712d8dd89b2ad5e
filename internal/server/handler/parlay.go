package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/overtimeamm/internal/domain"
	"github.com/alanyoungcy/overtimeamm/internal/parlay"
	"github.com/alanyoungcy/overtimeamm/internal/service"
)

// ParlayService is what the parlay handler needs from the service layer.
type ParlayService interface {
	Quote(ctx context.Context, markets []common.Address, positions []domain.Position, sUSDPaid decimal.Decimal) (parlay.Quote, error)
	Buy(ctx context.Context, o service.ParlayOrder) (domain.Ticket, error)
	Get(ctx context.Context, addr common.Address) (domain.Ticket, error)
	ListByOwner(ctx context.Context, owner common.Address, opts domain.ListOpts) ([]domain.Ticket, error)
	Exercise(ctx context.Context, caller, addr common.Address) (domain.Ticket, error)
	ExpireOverdue(ctx context.Context) ([]common.Address, error)
}

// ParlayHandler serves parlay quotes, purchases and ticket settlement.
type ParlayHandler struct {
	parlays ParlayService
	logger  *slog.Logger
}

func NewParlayHandler(parlays ParlayService, logger *slog.Logger) *ParlayHandler {
	return &ParlayHandler{parlays: parlays, logger: logger}
}

type parlayQuoteRequest struct {
	Markets   []common.Address  `json:"markets"`
	Positions []domain.Position `json:"positions"`
	SUSDPaid  decimal.Decimal   `json:"susd_paid"`
}

// Quote prices a parlay.
// POST /api/parlay/quote
func (h *ParlayHandler) Quote(w http.ResponseWriter, r *http.Request) {
	var req parlayQuoteRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q, err := h.parlays.Quote(r.Context(), req.Markets, req.Positions, req.SUSDPaid)
	if err != nil {
		writeServiceError(w, r, h.logger, "parlay quote", err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

type parlayBuyRequest struct {
	parlayQuoteRequest
	Slippage       decimal.Decimal `json:"slippage"`
	ExpectedPayout decimal.Decimal `json:"expected_payout"`
	Recipient      common.Address  `json:"recipient"`
	Referrer       common.Address  `json:"referrer"`
	Collateral     common.Address  `json:"collateral"`
	MaxCollateral  decimal.Decimal `json:"max_collateral"`
	Voucher        *uint64         `json:"voucher,omitempty"`
}

// Buy buys a ticket for the signed caller.
// POST /api/parlay/buy
func (h *ParlayHandler) Buy(w http.ResponseWriter, r *http.Request) {
	buyer, ok := caller(w, r)
	if !ok {
		return
	}
	var req parlayBuyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	t, err := h.parlays.Buy(r.Context(), service.ParlayOrder{
		BuyRequest: parlay.BuyRequest{
			Buyer:          buyer,
			Markets:        req.Markets,
			Positions:      req.Positions,
			SUSDPaid:       req.SUSDPaid,
			Slippage:       req.Slippage,
			ExpectedPayout: req.ExpectedPayout,
			Recipient:      req.Recipient,
			Referrer:       req.Referrer,
		},
		Collateral:    req.Collateral,
		MaxCollateral: req.MaxCollateral,
		Voucher:       req.Voucher,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "parlay buy", err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// Get returns a ticket with its legs brought up to date.
// GET /api/parlay/{address}
func (h *ParlayHandler) Get(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	t, err := h.parlays.Get(r.Context(), addr)
	if err != nil {
		writeServiceError(w, r, h.logger, "get ticket", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// ListByOwner returns the tickets of an owner, newest first.
// GET /api/parlay?owner=0x..&limit=50&offset=0
func (h *ParlayHandler) ListByOwner(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if !common.IsHexAddress(owner) {
		writeError(w, http.StatusBadRequest, "invalid owner")
		return
	}
	tickets, err := h.parlays.ListByOwner(r.Context(), common.HexToAddress(owner), parseListOpts(r))
	if err != nil {
		writeServiceError(w, r, h.logger, "list tickets", err)
		return
	}
	if tickets == nil {
		tickets = []domain.Ticket{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tickets": tickets})
}

// Exercise pays out a settled ticket.
// POST /api/parlay/{address}/exercise
func (h *ParlayHandler) Exercise(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	addr, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	t, err := h.parlays.Exercise(r.Context(), who, addr)
	if err != nil {
		writeServiceError(w, r, h.logger, "exercise ticket", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Expire expires every ticket past its expiry.
// POST /api/admin/parlay/expire
func (h *ParlayHandler) Expire(w http.ResponseWriter, r *http.Request) {
	done, err := h.parlays.ExpireOverdue(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "expire tickets", err)
		return
	}
	if done == nil {
		done = []common.Address{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"expired": done})
}
