package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/overtimeamm/internal/domain"
	"github.com/alanyoungcy/overtimeamm/internal/service"
	"github.com/alanyoungcy/overtimeamm/internal/sportsamm"
)

// TradeService is what the trade handler needs from the service layer.
type TradeService interface {
	Buy(ctx context.Context, o service.TradeOrder) (sportsamm.Trade, error)
	Sell(ctx context.Context, o service.TradeOrder) (sportsamm.Trade, error)
	Exercise(ctx context.Context, holder, addr common.Address) (decimal.Decimal, error)
}

// TradeHandler executes single-market trades for the signed caller.
type TradeHandler struct {
	trades TradeService
	logger *slog.Logger
}

func NewTradeHandler(trades TradeService, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{trades: trades, logger: logger}
}

type tradeRequest struct {
	Market     common.Address  `json:"market"`
	Position   domain.Position `json:"position"`
	Amount     decimal.Decimal `json:"amount"`
	Expected   decimal.Decimal `json:"expected"`
	Slippage   decimal.Decimal `json:"slippage"`
	Referrer   common.Address  `json:"referrer"`
	Collateral common.Address  `json:"collateral"`
	Voucher    *uint64         `json:"voucher,omitempty"`
}

func (h *TradeHandler) order(w http.ResponseWriter, r *http.Request) (service.TradeOrder, bool) {
	trader, ok := caller(w, r)
	if !ok {
		return service.TradeOrder{}, false
	}
	var req tradeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return service.TradeOrder{}, false
	}
	if !req.Amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return service.TradeOrder{}, false
	}
	return service.TradeOrder{
		Trader:     trader,
		Market:     req.Market,
		Position:   req.Position,
		Amount:     req.Amount,
		Expected:   req.Expected,
		Slippage:   req.Slippage,
		Referrer:   req.Referrer,
		Collateral: req.Collateral,
		Voucher:    req.Voucher,
	}, true
}

// Buy buys positions from the AMM.
// POST /api/amm/buy
func (h *TradeHandler) Buy(w http.ResponseWriter, r *http.Request) {
	o, ok := h.order(w, r)
	if !ok {
		return
	}
	t, err := h.trades.Buy(r.Context(), o)
	if err != nil {
		writeServiceError(w, r, h.logger, "buy", err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// Sell sells positions back to the AMM.
// POST /api/amm/sell
func (h *TradeHandler) Sell(w http.ResponseWriter, r *http.Request) {
	o, ok := h.order(w, r)
	if !ok {
		return
	}
	t, err := h.trades.Sell(r.Context(), o)
	if err != nil {
		writeServiceError(w, r, h.logger, "sell", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Exercise redeems the caller's positions on a resolved market.
// POST /api/markets/{address}/exercise
func (h *TradeHandler) Exercise(w http.ResponseWriter, r *http.Request) {
	holder, ok := caller(w, r)
	if !ok {
		return
	}
	addr, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	paid, err := h.trades.Exercise(r.Context(), holder, addr)
	if err != nil {
		writeServiceError(w, r, h.logger, "exercise", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"market": addr, "holder": holder, "paid": paid})
}
