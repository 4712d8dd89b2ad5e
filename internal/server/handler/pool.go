package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/overtimeamm/internal/domain"
	"github.com/alanyoungcy/overtimeamm/internal/service"
)

// PoolService is what the pool handler needs from the service layer.
type PoolService interface {
	Info(ctx context.Context, name string) (domain.PoolInfo, error)
	Balance(ctx context.Context, name string, user common.Address) (service.PoolBalance, error)
	Deposit(ctx context.Context, name string, user common.Address, amount decimal.Decimal) error
	Withdraw(ctx context.Context, name string, user common.Address, fraction decimal.Decimal) error
	Rounds(ctx context.Context, name string, opts domain.ListOpts) ([]domain.RoundSnapshot, error)
	Start(ctx context.Context, name string, caller common.Address) (domain.PoolInfo, error)
}

// PoolHandler serves liquidity provider endpoints.
type PoolHandler struct {
	pools  PoolService
	logger *slog.Logger
}

func NewPoolHandler(pools PoolService, logger *slog.Logger) *PoolHandler {
	return &PoolHandler{pools: pools, logger: logger}
}

type poolResponse struct {
	domain.PoolInfo
	Balance *service.PoolBalance `json:"balance,omitempty"`
}

// Get returns a pool, and the stake of ?user= when given.
// GET /api/pools/{pool}
func (h *PoolHandler) Get(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("pool")
	info, err := h.pools.Info(r.Context(), name)
	if err != nil {
		writeServiceError(w, r, h.logger, "get pool", err)
		return
	}
	resp := poolResponse{PoolInfo: info}
	if user := r.URL.Query().Get("user"); user != "" {
		if !common.IsHexAddress(user) {
			writeError(w, http.StatusBadRequest, "invalid user")
			return
		}
		b, err := h.pools.Balance(r.Context(), name, common.HexToAddress(user))
		if err != nil {
			writeServiceError(w, r, h.logger, "pool balance", err)
			return
		}
		resp.Balance = &b
	}
	writeJSON(w, http.StatusOK, resp)
}

// Rounds lists closed rounds, newest first.
// GET /api/pools/{pool}/rounds
func (h *PoolHandler) Rounds(w http.ResponseWriter, r *http.Request) {
	rounds, err := h.pools.Rounds(r.Context(), r.PathValue("pool"), parseListOpts(r))
	if err != nil {
		writeServiceError(w, r, h.logger, "list rounds", err)
		return
	}
	if rounds == nil {
		rounds = []domain.RoundSnapshot{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"rounds": rounds})
}

type depositRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// Start opens the first round.
// POST /api/admin/pools/{pool}/start
func (h *PoolHandler) Start(w http.ResponseWriter, r *http.Request) {
	user, ok := caller(w, r)
	if !ok {
		return
	}
	info, err := h.pools.Start(r.Context(), r.PathValue("pool"), user)
	if err != nil {
		writeServiceError(w, r, h.logger, "start pool", err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// Deposit queues the caller's deposit for the next round.
// POST /api/pools/{pool}/deposit
func (h *PoolHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	user, ok := caller(w, r)
	if !ok {
		return
	}
	var req depositRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	name := r.PathValue("pool")
	if err := h.pools.Deposit(r.Context(), name, user, req.Amount); err != nil {
		writeServiceError(w, r, h.logger, "deposit", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"pool": name, "user": user, "amount": req.Amount})
}

type withdrawRequest struct {
	// Fraction in [0.1, 0.9]; omitted or zero withdraws everything.
	Fraction decimal.Decimal `json:"fraction"`
}

// Withdraw requests a withdrawal at the end of the round.
// POST /api/pools/{pool}/withdraw
func (h *PoolHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	user, ok := caller(w, r)
	if !ok {
		return
	}
	var req withdrawRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	name := r.PathValue("pool")
	if err := h.pools.Withdraw(r.Context(), name, user, req.Fraction); err != nil {
		writeServiceError(w, r, h.logger, "withdraw", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"pool": name, "user": user, "fraction": req.Fraction})
}
