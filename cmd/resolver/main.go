// Package main runs the settlement loops as a standalone process, for
// deployments where the API server runs with RESOLVER_ENABLED=false.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/evetabi/betengine/internal/app"
	"github.com/evetabi/betengine/internal/config"
	"github.com/evetabi/betengine/internal/metrics"
)

func main() {
	cfg := config.MustLoad()
	logger := app.NewLogger(cfg)
	logger.Info("starting betengine resolver", "env", cfg.Server.Env, "store", cfg.Store.Driver,
		"prediction_interval", cfg.Resolver.PredictionInterval,
		"price_interval", cfg.Resolver.PriceInterval,
		"event_interval", cfg.Resolver.EventInterval)

	if cfg.Store.Driver == "memory" {
		// A separate process cannot see the server's in-memory bets.
		logger.Error("standalone resolver requires STORE_DRIVER=postgres")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "err", err)
		os.Exit(1)
	}

	var metricsSrv *http.Server
	if cfg.Metrics.Port != "" {
		metricsSrv = metrics.StartServer(cfg.Metrics.Port, a.Health, logger)
		logger.Info("metrics listening", "port", cfg.Metrics.Port)
	}

	resolver := a.NewResolver()
	resolver.Start(ctx)

	<-ctx.Done()
	logger.Info("shutdown signal received, stopping loops…")
	resolver.Stop()

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	if err := a.Close(); err != nil {
		logger.Warn("close failed", "err", err)
	}
	logger.Info("resolver stopped cleanly")
}
