package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/overtimeamm/internal/domain"
	"github.com/alanyoungcy/overtimeamm/internal/service"
)

// SpeedService is what the speed handler needs from the service layer.
type SpeedService interface {
	Create(ctx context.Context, o service.SpeedOrder) (domain.ChainedMarket, error)
	Get(ctx context.Context, addr common.Address) (domain.ChainedMarket, error)
}

// SpeedHandler serves chained speed markets.
type SpeedHandler struct {
	speed  SpeedService
	logger *slog.Logger
}

func NewSpeedHandler(speed SpeedService, logger *slog.Logger) *SpeedHandler {
	return &SpeedHandler{speed: speed, logger: logger}
}

type speedRequest struct {
	Asset      string          `json:"asset"`
	TimeFrame  string          `json:"time_frame"`
	Directions []string        `json:"directions"`
	Buyin      decimal.Decimal `json:"buyin"`
}

// Create opens a chained market for the caller.
// POST /api/speed
func (h *SpeedHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := caller(w, r)
	if !ok {
		return
	}
	var req speedRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tf, err := time.ParseDuration(req.TimeFrame)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid time_frame")
		return
	}
	dirs := make([]domain.Direction, len(req.Directions))
	for i, s := range req.Directions {
		d, ok := domain.ParseDirection(s)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid direction "+s)
			return
		}
		dirs[i] = d
	}
	m, err := h.speed.Create(r.Context(), service.SpeedOrder{
		User:       user,
		Asset:      req.Asset,
		TimeFrame:  tf,
		Directions: dirs,
		Buyin:      req.Buyin,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "create speed market", err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// Get returns a chained market.
// GET /api/speed/{address}
func (h *SpeedHandler) Get(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	m, err := h.speed.Get(r.Context(), addr)
	if err != nil {
		writeServiceError(w, r, h.logger, "get speed market", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}
