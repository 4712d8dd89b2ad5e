package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/overtimeamm/internal/domain"
	"github.com/alanyoungcy/overtimeamm/internal/metrics"
	"github.com/alanyoungcy/overtimeamm/internal/server/handler"
	"github.com/alanyoungcy/overtimeamm/internal/server/middleware"
	"github.com/alanyoungcy/overtimeamm/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port         int
	CORSOrigins  []string
	MaxClockSkew time.Duration
	RateLimit    int
	RateWindow   time.Duration
	// Admins may call /api/admin routes.
	Admins []common.Address
}

// Handlers aggregates the HTTP handlers. Nil handlers leave their routes
// unregistered.
type Handlers struct {
	Health  *handler.HealthHandler
	Markets *handler.MarketHandler
	Trades  *handler.TradeHandler
	Parlays *handler.ParlayHandler
	Pools   *handler.PoolHandler
	Speed   *handler.SpeedHandler
}

// Deps are the optional collaborators of the server.
type Deps struct {
	Hub     *ws.Hub
	Metrics *metrics.Metrics
	Limiter domain.RateLimiter
}

// Server is the HTTP and WebSocket API.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and builds the middleware chain.
func NewServer(cfg Config, handlers Handlers, deps Deps, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))
	mux := http.NewServeMux()
	route := func(pattern string, h http.HandlerFunc, wrap ...func(http.Handler) http.Handler) {
		var hh http.Handler = h
		for _, w := range wrap {
			hh = w(hh)
		}
		mux.Handle(pattern, middleware.Instrument(deps.Metrics, pattern, hh))
	}
	admin := middleware.RequireCaller(cfg.Admins...)

	if h := handlers.Health; h != nil {
		route("GET /api/health", h.HealthCheck)
	}
	if h := handlers.Markets; h != nil {
		route("GET /api/markets", h.ListMarkets)
		route("GET /api/markets/{address}", h.GetMarket)
		route("GET /api/amm/quote", h.Quote)
		route("POST /api/admin/markets/{address}/pause", h.SetPaused, admin)
	}
	if h := handlers.Trades; h != nil {
		route("POST /api/amm/buy", h.Buy)
		route("POST /api/amm/sell", h.Sell)
		route("POST /api/markets/{address}/exercise", h.Exercise)
	}
	if h := handlers.Parlays; h != nil {
		route("POST /api/parlay/quote", h.Quote)
		route("POST /api/parlay/buy", h.Buy)
		route("GET /api/parlay", h.ListByOwner)
		route("GET /api/parlay/{address}", h.Get)
		route("POST /api/parlay/{address}/exercise", h.Exercise)
		route("POST /api/admin/parlay/expire", h.Expire, admin)
	}
	if h := handlers.Pools; h != nil {
		route("GET /api/pools/{pool}", h.Get)
		route("GET /api/pools/{pool}/rounds", h.Rounds)
		route("POST /api/pools/{pool}/deposit", h.Deposit)
		route("POST /api/pools/{pool}/withdraw", h.Withdraw)
		route("POST /api/admin/pools/{pool}/start", h.Start, admin)
	}
	if h := handlers.Speed; h != nil {
		route("POST /api/speed", h.Create)
		route("GET /api/speed/{address}", h.Get)
	}
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics.Handler())
	}
	if deps.Hub != nil {
		mux.HandleFunc("GET /ws", deps.Hub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.CORS(cfg.CORSOrigins)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.RateLimit(deps.Limiter, cfg.RateLimit, cfg.RateWindow, logger)(h)
	h = middleware.Auth(cfg.MaxClockSkew, nil)(h)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// Handler exposes the full middleware chain.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start listens until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
