package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/alanyoungcy/overtimeamm/internal/blob/s3"
	"github.com/alanyoungcy/overtimeamm/internal/cache/redis"
	"github.com/alanyoungcy/overtimeamm/internal/config"
	"github.com/alanyoungcy/overtimeamm/internal/crypto"
	"github.com/alanyoungcy/overtimeamm/internal/domain"
	"github.com/alanyoungcy/overtimeamm/internal/messaging/kafka"
	"github.com/alanyoungcy/overtimeamm/internal/metrics"
	"github.com/alanyoungcy/overtimeamm/internal/notify"
	"github.com/alanyoungcy/overtimeamm/internal/protocol"
	"github.com/alanyoungcy/overtimeamm/internal/server"
	"github.com/alanyoungcy/overtimeamm/internal/server/handler"
	"github.com/alanyoungcy/overtimeamm/internal/server/ws"
	"github.com/alanyoungcy/overtimeamm/internal/service"
	"github.com/alanyoungcy/overtimeamm/internal/store/postgres"
)

// Infra bundles the optional external systems. A nil or zero field means the
// system is disabled in the config.
type Infra struct {
	Postgres *postgres.Client
	Events   domain.EventStore
	Tickets  domain.TicketStore
	Rounds   domain.RoundStore

	Redis   *redis.Client
	Locks   domain.LockManager
	Limiter domain.RateLimiter
	Quotes  domain.QuoteCache
	Stream  domain.EventSink

	S3       *s3blob.Client
	Archiver domain.Archiver

	KafkaEvents domain.EventSink
	OracleFeed  kafka.MessageReader

	Checks map[string]handler.Check
}

// Dependencies is everything a mode runs. It is constructed by Wire and torn
// down by the returned cleanup function.
type Dependencies struct {
	Infra    *Infra
	Owner    common.Address
	Protocol *protocol.Protocol
	Metrics  *metrics.Metrics

	Markets *service.MarketService
	Trades  *service.TradeService
	Parlays *service.ParlayService
	Pools   *service.PoolService
	Speed   *service.SpeedService
	Oracle  *service.OracleService

	Recorder *service.Recorder
	Keeper   *service.Keeper
	Consumer *kafka.OracleConsumer
	Hub      *ws.Hub
	Server   *server.Server
}

type closers []func()

func (c closers) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

// WireInfra connects to every enabled external system. Migrations run when
// postgres.run_migrations is set or the mode is migrate.
func WireInfra(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Infra, func(), error) {
	var cs closers
	fail := func(err error) (*Infra, func(), error) {
		cs.run()
		return nil, nil, err
	}

	infra := &Infra{Checks: map[string]handler.Check{}}

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled || cfg.Mode == "migrate" {
		pg, err := postgres.New(ctx, postgres.ConfigFrom(cfg.Postgres))
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		cs = append(cs, pg.Close)

		if cfg.Postgres.RunMigrations || cfg.Mode == "migrate" {
			if err := pg.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}

		pool := pg.Pool()
		infra.Postgres = pg
		infra.Events = postgres.NewEventStore(pool)
		infra.Tickets = postgres.NewTicketStore(pool)
		infra.Rounds = postgres.NewRoundStore(pool)
		infra.Checks["postgres"] = pg.Ping
	}
	if cfg.Mode == "migrate" {
		return infra, cs.run, nil
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		rc, err := redis.New(ctx, redis.ConfigFrom(cfg.Redis))
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		cs = append(cs, func() { _ = rc.Close() })

		infra.Redis = rc
		infra.Locks = redis.NewLockManager(rc)
		infra.Limiter = redis.NewRateLimiter(rc)
		infra.Quotes = redis.NewQuoteCache(rc)
		if cfg.Redis.Stream != "" {
			infra.Stream = redis.NewEventStream(rc).Sink(cfg.Redis.Stream, cfg.Redis.Stream)
		}
		infra.Checks["redis"] = rc.Ping
	}

	// --- S3 archive ---
	if cfg.S3.Enabled {
		sc, err := s3blob.New(ctx, s3blob.ConfigFrom(cfg.S3))
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		infra.S3 = sc
		infra.Checks["s3"] = sc.Health

		// Archiving moves rows out of postgres, so it needs both.
		if infra.Tickets != nil {
			infra.Archiver = s3blob.NewArchiver(
				s3blob.NewWriter(sc),
				s3blob.NewReader(sc),
				infra.Tickets,
				cfg.Keeper.RoundBatchSize,
				logger,
			)
		} else {
			logger.Warn("wire: s3 enabled without postgres, archiving disabled")
		}
	}

	// --- Kafka ---
	if cfg.Kafka.Enabled {
		kc := kafka.ConfigFrom(cfg.Kafka)
		if kc.EventsTopic != "" {
			producer := kafka.NewEventProducer(kafka.NewWriter(kc.Brokers, kc.EventsTopic))
			cs = append(cs, func() { _ = producer.Close() })
			infra.KafkaEvents = producer
		}
		if kc.OracleTopic != "" {
			reader := kafka.NewReader(kc.Brokers, kc.OracleTopic, kc.GroupID)
			cs = append(cs, func() { _ = reader.Close() })
			infra.OracleFeed = reader
		}
	}

	return infra, cs.run, nil
}

// Wire constructs the protocol, services and transports on top of the
// infrastructure.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	infra, cleanup, err := WireInfra(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	key, err := crypto.LoadOperatorKey(cfg.Operator)
	if err != nil {
		return fail(fmt.Errorf("wire: operator key: %w", err))
	}
	owner := crypto.NewSigner(key).Address()

	oracles := make([]common.Address, 0, len(cfg.Operator.Oracles))
	for _, o := range cfg.Operator.Oracles {
		oracles = append(oracles, common.HexToAddress(o))
	}

	proto, err := protocol.New(ctx, cfg.Protocol, protocol.Options{
		Owner:   owner,
		Oracles: oracles,
		Logger:  logger,
	})
	if err != nil {
		return fail(fmt.Errorf("wire: protocol: %w", err))
	}

	m := metrics.New()
	deps := &Dependencies{
		Infra:    infra,
		Owner:    owner,
		Protocol: proto,
		Metrics:  m,
		Markets:  service.NewMarketService(proto, infra.Quotes, cfg.Redis.QuoteTTL.Duration, owner, logger),
		Trades:   service.NewTradeService(proto, logger),
		Parlays:  service.NewParlayService(proto, infra.Tickets, owner, logger),
		Pools:    service.NewPoolService(proto, infra.Rounds, logger),
		Speed:    service.NewSpeedService(proto, logger),
		Oracle:   service.NewOracleService(proto, owner, logger),
	}

	recDeps := service.RecorderDeps{
		Events:  infra.Events,
		Tickets: infra.Tickets,
		Quotes:  infra.Quotes,
		Stream:  infra.Stream,
		Kafka:   infra.KafkaEvents,
		Metrics: m,
	}
	if n := notify.FromConfig(cfg.Notify, logger); n != nil {
		recDeps.Notify = n
	}
	if cfg.Server.Enabled && runsServer(cfg.Mode) {
		deps.Hub = ws.NewHub(m, logger)
		recDeps.Hub = deps.Hub
		deps.Server = newServer(cfg, deps, logger)
	}
	deps.Recorder = service.NewRecorder(proto, recDeps, logger)
	deps.Recorder.Attach(proto.Bus)

	if runsKeeper(cfg.Mode) {
		deps.Keeper = service.NewKeeper(service.KeeperConfig{
			Interval:       cfg.Keeper.Interval.Duration,
			LockTTL:        cfg.Keeper.LockTTL.Duration,
			RoundBatchSize: cfg.Keeper.RoundBatchSize,
			ArchiveAfter:   cfg.Keeper.ArchiveAfter.Duration,
		}, deps.Parlays, deps.Speed, deps.Pools, infra.Locks, infra.Archiver, m, logger)
	}

	if infra.OracleFeed != nil {
		deps.Consumer = kafka.NewOracleConsumer(infra.OracleFeed, deps.Oracle, logger)
		deps.Consumer.OnMessage = m.ObserveOracle
	}

	return deps, cleanup, nil
}

func newServer(cfg *config.Config, deps *Dependencies, logger *slog.Logger) *server.Server {
	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(deps.Infra.Checks, logger),
		Markets: handler.NewMarketHandler(deps.Markets, logger),
		Trades:  handler.NewTradeHandler(deps.Trades, logger),
		Parlays: handler.NewParlayHandler(deps.Parlays, logger),
		Pools:   handler.NewPoolHandler(deps.Pools, logger),
		Speed:   handler.NewSpeedHandler(deps.Speed, logger),
	}
	return server.NewServer(server.Config{
		Port:         cfg.Server.Port,
		CORSOrigins:  cfg.Server.CORSOrigins,
		MaxClockSkew: cfg.Server.MaxClockSkew.Duration,
		RateLimit:    cfg.Server.RateLimit,
		RateWindow:   cfg.Server.RateWindow.Duration,
		Admins:       []common.Address{deps.Owner},
	}, handlers, server.Deps{
		Hub:     deps.Hub,
		Metrics: deps.Metrics,
		Limiter: deps.Infra.Limiter,
	}, logger)
}

func runsServer(mode string) bool { return mode == "serve" || mode == "all" }

func runsKeeper(mode string) bool { return mode == "keeper" || mode == "all" }
