package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/overtimeamm/internal/domain"
	"github.com/alanyoungcy/overtimeamm/internal/service"
)

// MarketService is what the market handler needs from the service layer.
type MarketService interface {
	ListActive(ctx context.Context) ([]domain.MarketInfo, error)
	GetMarket(ctx context.Context, addr common.Address) (domain.MarketInfo, error)
	Quote(ctx context.Context, req service.QuoteRequest) (service.Quote, error)
	SetPaused(ctx context.Context, addr common.Address, paused bool) error
}

// MarketHandler serves market listing, quotes and the pause switch.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{markets: markets, logger: logger}
}

type listMarketsResponse struct {
	Markets []domain.MarketInfo `json:"markets"`
	Total   int                 `json:"total"`
	Limit   int                 `json:"limit"`
	Offset  int                 `json:"offset"`
}

// ListMarkets returns the markets open for trading.
// GET /api/markets?limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	all, err := h.markets.ListActive(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "list markets", err)
		return
	}
	page := []domain.MarketInfo{}
	if opts.Offset < len(all) {
		page = all[opts.Offset:min(opts.Offset+opts.Limit, len(all))]
	}
	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: page,
		Total:   len(all),
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// GetMarket returns one market.
// GET /api/markets/{address}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	m, err := h.markets.GetMarket(r.Context(), addr)
	if err != nil {
		writeServiceError(w, r, h.logger, "get market", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// Quote prices a buy or sell.
// GET /api/amm/quote?market=0x..&position=0&amount=10&side=buy&collateral=0x..
func (h *MarketHandler) Quote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if !common.IsHexAddress(q.Get("market")) {
		writeError(w, http.StatusBadRequest, "invalid market")
		return
	}
	pos, err := strconv.ParseUint(q.Get("position"), 10, 8)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid position")
		return
	}
	amount, err := decimal.NewFromString(q.Get("amount"))
	if err != nil || !amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}
	req := service.QuoteRequest{
		Market:   common.HexToAddress(q.Get("market")),
		Position: domain.Position(pos),
		Amount:   amount,
		Side:     q.Get("side"),
	}
	if req.Side == "" {
		req.Side = service.SideBuy
	}
	if c := q.Get("collateral"); c != "" {
		if !common.IsHexAddress(c) {
			writeError(w, http.StatusBadRequest, "invalid collateral")
			return
		}
		req.Collateral = common.HexToAddress(c)
	}

	quote, err := h.markets.Quote(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.logger, "quote", err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

type pauseRequest struct {
	Paused bool `json:"paused"`
}

// SetPaused pauses or resumes trading on a market.
// POST /api/admin/markets/{address}/pause
func (h *MarketHandler) SetPaused(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	var req pauseRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.markets.SetPaused(r.Context(), addr, req.Paused); err != nil {
		writeServiceError(w, r, h.logger, "pause market", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"market": addr, "paused": req.Paused})
}
