package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// ServeMode runs the API, the event bus and the oracle consumer. Settlement
// only happens through the API.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "app: starting serve mode")
	g, ctx := errgroup.WithContext(ctx)
	a.startCore(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// KeeperMode runs the settlement loop headless.
func (a *App) KeeperMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "app: starting keeper mode")
	g, ctx := errgroup.WithContext(ctx)
	a.startCore(ctx, g, deps)
	a.startKeeper(ctx, g, deps)
	return g.Wait()
}

// AllMode runs every subsystem in one process.
func (a *App) AllMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "app: starting all mode")
	g, ctx := errgroup.WithContext(ctx)
	a.startCore(ctx, g, deps)
	a.startKeeper(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// MigrateMode applies the postgres migrations and exits.
func (a *App) MigrateMode(ctx context.Context) error {
	a.logger.InfoContext(ctx, "app: starting migrate mode")
	_, cleanup, err := WireInfra(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: migrate: %w", err)
	}
	cleanup()
	a.logger.InfoContext(ctx, "app: migrations applied")
	return nil
}

// startCore adds the event bus and, when configured, the oracle consumer.
func (a *App) startCore(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	g.Go(func() error {
		return deps.Protocol.Bus.Run(ctx)
	})
	if deps.Consumer != nil {
		g.Go(func() error {
			if err := deps.Consumer.Run(ctx); err != nil {
				return fmt.Errorf("oracle consumer: %w", err)
			}
			return nil
		})
	}
}

func (a *App) startKeeper(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Keeper == nil {
		return
	}
	g.Go(func() error {
		return deps.Keeper.Run(ctx)
	})
}

// startHTTPServer adds the API and the WebSocket hub to the group. The
// server is shut down gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Server == nil {
		a.logger.InfoContext(ctx, "app: http server disabled")
		return
	}
	if deps.Hub != nil {
		g.Go(func() error {
			return deps.Hub.Run(ctx)
		})
	}
	g.Go(func() error {
		return deps.Server.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return deps.Server.Shutdown(shutdownCtx)
	})
}
