package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alanyoungcy/overtimeamm/internal/domain"
	"github.com/alanyoungcy/overtimeamm/internal/metrics"
)

const keeperLockKey = "keeper"

// KeeperConfig tunes the settlement loop.
type KeeperConfig struct {
	Interval       time.Duration
	LockTTL        time.Duration
	RoundBatchSize int
	// ArchiveAfter is how long a settled ticket stays in the store. Zero
	// disables archiving.
	ArchiveAfter time.Duration
}

// Keeper periodically settles everything that has become due. Only the
// holder of the keeper lock runs a pass, so several replicas can run the
// loop.
type Keeper struct {
	cfg      KeeperConfig
	parlays  *ParlayService
	speed    *SpeedService
	pools    *PoolService
	locks    domain.LockManager
	archiver domain.Archiver
	metrics  *metrics.Metrics
	now      func() time.Time
	logger   *slog.Logger
}

// NewKeeper creates a Keeper. locks, archiver and m may be nil.
func NewKeeper(cfg KeeperConfig, parlays *ParlayService, speed *SpeedService, pools *PoolService,
	locks domain.LockManager, archiver domain.Archiver, m *metrics.Metrics, logger *slog.Logger,
) *Keeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * cfg.Interval
	}
	return &Keeper{
		cfg:      cfg,
		parlays:  parlays,
		speed:    speed,
		pools:    pools,
		locks:    locks,
		archiver: archiver,
		metrics:  m,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "keeper")),
	}
}

// Run executes a pass every interval until ctx is cancelled.
func (k *Keeper) Run(ctx context.Context) error {
	k.logger.InfoContext(ctx, "keeper: started", slog.Duration("interval", k.cfg.Interval))
	ticker := time.NewTicker(k.cfg.Interval)
	defer ticker.Stop()

	for {
		k.RunOnce(ctx)
		select {
		case <-ctx.Done():
			k.logger.Info("keeper: stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce runs one pass if the lock can be taken.
func (k *Keeper) RunOnce(ctx context.Context) {
	if k.locks != nil {
		unlock, err := k.locks.Acquire(ctx, keeperLockKey, k.cfg.LockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			k.logger.DebugContext(ctx, "keeper: lock held elsewhere")
			return
		}
		if err != nil {
			k.logger.WarnContext(ctx, "keeper: lock failed", slog.String("error", err.Error()))
			return
		}
		defer unlock()
	}

	k.task(ctx, "exercise_parlays", func(ctx context.Context) (int, error) {
		done, err := k.parlays.ExerciseReady(ctx)
		return len(done), err
	})
	k.task(ctx, "expire_parlays", func(ctx context.Context) (int, error) {
		done, err := k.parlays.ExpireOverdue(ctx)
		return len(done), err
	})
	k.task(ctx, "resolve_speed_markets", func(ctx context.Context) (int, error) {
		done, err := k.speed.ResolveDue(ctx)
		return len(done), err
	})
	k.task(ctx, "close_rounds", func(ctx context.Context) (int, error) {
		snaps, err := k.pools.CloseDueRounds(ctx, k.cfg.RoundBatchSize)
		if err == nil && k.archiver != nil {
			err = k.archiveRounds(ctx, snaps)
		}
		return len(snaps), err
	})
	if k.archiver != nil && k.cfg.ArchiveAfter > 0 {
		k.task(ctx, "archive_tickets", func(ctx context.Context) (int, error) {
			n, err := k.archiver.ArchiveTickets(ctx, k.now().Add(-k.cfg.ArchiveAfter))
			return int(n), err
		})
	}
}

func (k *Keeper) archiveRounds(ctx context.Context, snaps []domain.RoundSnapshot) error {
	byPool := map[string][]domain.RoundSnapshot{}
	var order []string
	for _, s := range snaps {
		if _, ok := byPool[s.Pool]; !ok {
			order = append(order, s.Pool)
		}
		byPool[s.Pool] = append(byPool[s.Pool], s)
	}
	var errs []error
	for _, pool := range order {
		if err := k.archiver.ArchiveRounds(ctx, pool, byPool[pool]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// task runs fn, logging and measuring it. A failed task does not stop the
// pass.
func (k *Keeper) task(ctx context.Context, name string, fn func(context.Context) (int, error)) {
	start := time.Now()
	n, err := fn(ctx)
	if k.metrics != nil {
		k.metrics.ObserveKeeper(name, err, time.Since(start))
	}
	if err != nil {
		k.logger.ErrorContext(ctx, "keeper: task failed",
			slog.String("task", name),
			slog.String("error", err.Error()),
		)
		return
	}
	if n > 0 {
		k.logger.InfoContext(ctx, "keeper: task done",
			slog.String("task", name),
			slog.Int("count", n),
		)
	}
}
