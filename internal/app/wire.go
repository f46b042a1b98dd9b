package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mkoval/depthlab/internal/book"
	"github.com/mkoval/depthlab/internal/cache/memory"
	"github.com/mkoval/depthlab/internal/cache/redis"
	"github.com/mkoval/depthlab/internal/config"
	"github.com/mkoval/depthlab/internal/domain"
	"github.com/mkoval/depthlab/internal/feed"
	"github.com/mkoval/depthlab/internal/notify"
	"github.com/mkoval/depthlab/internal/service"
	"github.com/mkoval/depthlab/internal/sim"
	"github.com/mkoval/depthlab/internal/store/postgres"
	"github.com/mkoval/depthlab/internal/venue"
	"github.com/mkoval/depthlab/internal/venue/deribit"
	"github.com/mkoval/depthlab/internal/venue/okx"
)

// Dependencies bundles everything the application needs to serve. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Aggregator *book.Aggregator
	Desk       *sim.Desk
	Manager    *feed.Manager
	Feeds      *service.FeedService

	// SignalBus is Redis-backed when Redis is enabled, in-process otherwise.
	SignalBus domain.SignalBus

	// SimStore is nil when Postgres is disabled.
	SimStore domain.SimulationStore

	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Redis (optional): snapshot cache + pub/sub fan-out ---
	var bookCache domain.BookCache
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		bookCache = redis.NewBookCache(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
	} else {
		deps.SignalBus = memory.NewSignalBus()
	}

	// --- PostgreSQL (optional): simulation audit trail ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		deps.SimStore = postgres.NewSimulationStore(pgClient.Pool())
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Core pipeline: aggregator, desk, connection manager ---
	deps.Aggregator = book.New(book.Config{
		UpdateInterval: cfg.Book.UpdateInterval.Duration,
		MaxDepth:       cfg.Book.MaxDepth,
		HistoryCap:     cfg.Book.HistoryCap,
	}, bookCache, deps.SignalBus, nil, logger)

	deps.Desk = sim.NewDesk(deps.Aggregator, deps.SimStore, nil, logger)

	adapters := []venue.Adapter{okx.New(), deribit.New()}
	deps.Manager = feed.NewManager(feed.Config{
		ReconnectDelay:       cfg.Feed.ReconnectDelay.Duration,
		MaxReconnectAttempts: cfg.Feed.MaxReconnectAttempts,
	}, adapters, deps.Aggregator, deps.Notifier, logger)

	deps.Feeds = service.NewFeedService(deps.Manager, deps.Aggregator, deps.Desk, logger)

	return deps, cleanup, nil
}
