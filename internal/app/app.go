// Package app wires the store, market data, ledger and betting service shared
// by cmd/server and cmd/resolver.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/evetabi/betengine/internal/clock"
	"github.com/evetabi/betengine/internal/config"
	"github.com/evetabi/betengine/internal/events"
	"github.com/evetabi/betengine/internal/ledger"
	"github.com/evetabi/betengine/internal/marketdata"
	"github.com/evetabi/betengine/internal/repository"
	"github.com/evetabi/betengine/internal/scheduler"
	"github.com/evetabi/betengine/internal/service"
)

// App holds the long-lived components of one process.
type App struct {
	Cfg     *config.Config
	Logger  *slog.Logger
	Clock   clock.Clock
	Store   repository.Store
	Market  *marketdata.Adapter
	Betting *service.BettingService
	Events  events.Publisher

	closers []func() error
}

// NewLogger returns a JSON logger in production and a debug text logger
// otherwise, and installs it as the slog default.
func NewLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler
	if cfg.IsProd() {
		h = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		h = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}

// Build connects the configured store (running migrations for Postgres), the
// optional Redis price cache and Kafka publisher, and the betting service.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Cfg: cfg, Logger: logger, Clock: clock.System{}}

	// ── Store ─────────────────────────────────────────────────────────────────
	switch cfg.Store.Driver {
	case "memory":
		a.Store = repository.NewMemoryStore()
		logger.Warn("using in-memory store; state is lost on exit")
	default:
		db, err := repository.Connect(ctx, cfg.DB.DSN)
		if err != nil {
			return nil, fmt.Errorf("app.Build: %w", err)
		}
		db.SetMaxOpenConns(cfg.DB.MaxOpenConns)
		db.SetMaxIdleConns(cfg.DB.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)
		a.closers = append(a.closers, db.Close)
		logger.Info("database connected")

		if err := repository.Migrate(ctx, db, logger); err != nil {
			a.Close()
			return nil, fmt.Errorf("app.Build: %w", err)
		}
		a.Store = repository.NewPostgresStore(db)
	}

	// ── Market data ───────────────────────────────────────────────────────────
	prices := marketdata.NewPriceFeed(cfg, a.Clock, logger)
	if cfg.Redis.Addr != "" {
		rdb, err := marketdata.ConnectRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			// The local cache still works; only cross-process sharing is lost.
			logger.Warn("redis unavailable, price cache is process-local", "addr", cfg.Redis.Addr, "err", err)
		} else {
			prices.SetSharedCache(marketdata.NewRedisQuoteCache(rdb, cfg.Redis.PriceTTL, logger))
			a.closers = append(a.closers, rdb.Close)
			logger.Info("redis price cache connected", "addr", cfg.Redis.Addr)
		}
	}
	a.Market = marketdata.NewAdapter(prices, marketdata.NewEventFeed(cfg, a.Clock))

	// ── Services ──────────────────────────────────────────────────────────────
	a.Events = events.New(cfg.Kafka.Brokers, logger)
	a.closers = append(a.closers, a.Events.Close)

	a.Betting = service.NewBettingService(a.Store, ledger.New(a.Clock), a.Market, a.Clock, cfg, logger)
	a.Betting.SetPublisher(a.Events)

	return a, nil
}

// NewResolver builds the settlement loops over the app's store and service.
func (a *App) NewResolver() *scheduler.Resolver {
	return scheduler.NewResolver(a.Store, a.Betting, a.Market, a.Clock, a.Cfg, a.Logger)
}

// Health reports whether the store answers.
func (a *App) Health(ctx context.Context) error {
	return a.Store.Ping(ctx)
}

// Close releases every connection opened by Build, newest first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
