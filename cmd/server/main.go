// Package main is the entry point for the betting engine API server.  It
// wires the betting service to the HTTP API, the WebSocket hub, the metrics
// listener and, when RESOLVER_ENABLED is set, the settlement loops.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/evetabi/betengine/internal/api"
	"github.com/evetabi/betengine/internal/app"
	"github.com/evetabi/betengine/internal/config"
	"github.com/evetabi/betengine/internal/metrics"
	"github.com/evetabi/betengine/internal/service"
	"github.com/evetabi/betengine/internal/ws"
)

func main() {
	// ── 1. Config + logger ────────────────────────────────────────────────────
	cfg := config.MustLoad()
	logger := app.NewLogger(cfg)
	logger.Info("starting betengine server", "env", cfg.Server.Env, "port", cfg.Server.Port,
		"store", cfg.Store.Driver)

	// ── 2. Root context + signal handling ─────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 3. Store, market data, services ───────────────────────────────────────
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "err", err)
		os.Exit(1)
	}

	tokens := service.NewTokenService(cfg.JWT.AccessSecret)

	// ── 4. WebSocket hub ──────────────────────────────────────────────────────
	hub := ws.NewHub(tokens, cfg.Server.AllowedOrigins, logger)
	go hub.Run()
	a.Betting.SetNotifier(hub)
	logger.Info("websocket hub started")

	// ── 5. Resolver (optional in-process) ─────────────────────────────────────
	resolver := a.NewResolver()
	if cfg.Resolver.Enabled {
		resolver.Start(ctx)
		logger.Info("resolver started in-process")
	}

	// ── 6. Metrics listener ───────────────────────────────────────────────────
	var metricsSrv *http.Server
	if cfg.Metrics.Port != "" {
		metricsSrv = metrics.StartServer(cfg.Metrics.Port, a.Health, logger)
		logger.Info("metrics listening", "port", cfg.Metrics.Port)
	}

	// ── 7. HTTP router ────────────────────────────────────────────────────────
	router := api.SetupRouter(ctx, api.RouterDeps{
		BettingSvc: a.Betting,
		Market:     a.Market,
		Tokens:     tokens,
		Hub:        hub,
		Cfg:        cfg,
		Health:     a.Health,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "err", err)
			stop() // trigger graceful shutdown
		}
	}()

	// ── 8. Graceful shutdown ──────────────────────────────────────────────────
	<-ctx.Done()
	logger.Info("shutdown signal received, draining connections…")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "err", err)
	}
	resolver.Stop()
	hub.Close()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	if err := a.Close(); err != nil {
		logger.Warn("close failed", "err", err)
	}
	logger.Info("server stopped cleanly")
}
