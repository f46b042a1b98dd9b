// Package app provides the top-level application lifecycle management for the
// depthlab service. It wires together all dependencies (caches, stores, the
// feed manager, the book aggregator, the simulation desk, and notifications)
// and runs the HTTP/WebSocket API until shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mkoval/depthlab/internal/config"
	"github.com/mkoval/depthlab/internal/domain"
	"github.com/mkoval/depthlab/internal/server"
	"github.com/mkoval/depthlab/internal/server/handler"
	"github.com/mkoval/depthlab/internal/server/ws"
)

// shutdownTimeout bounds the graceful HTTP shutdown on exit.
const shutdownTimeout = 10 * time.Second

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, connects the
// configured feed, starts the API server, and blocks until the context is
// cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("venue", a.cfg.Feed.Venue),
		slog.String("symbol", a.cfg.Feed.Symbol),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	g, ctx := errgroup.WithContext(ctx)

	// WebSocket hub: bridges the signal bus to browser clients.
	hub := ws.NewHub(deps.SignalBus, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	// Initial feed.
	v, err := domain.ParseVenue(strings.ToLower(a.cfg.Feed.Venue))
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	key := domain.FeedKey{Venue: v, Symbol: a.cfg.Feed.Symbol}
	if err := deps.Feeds.Start(ctx, key); err != nil {
		return fmt.Errorf("app: start feed: %w", err)
	}

	// HTTP API.
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
	}, server.Handlers{
		Health: handler.NewHealthHandler(a.logger),
		Book:   handler.NewBookHandler(deps.Aggregator, a.logger),
		Feed:   handler.NewFeedHandler(deps.Feeds, a.logger),
		Sim:    handler.NewSimHandler(deps.Desk, deps.SimStore, a.logger),
	}, hub, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		deps.Feeds.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
