// Package main is the entry point for the standalone back-office server.
// It serves catalog maintenance and outcome overrides on BACKOFFICE_PORT
// without the scheduler; run it when the API process has
// BACKOFFICE_EMBEDDED=false. /admin/scheduler answers 503 here.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/evetabi/periodsettle/internal/backoffice"
	"github.com/evetabi/periodsettle/internal/config"
	"github.com/evetabi/periodsettle/internal/metrics"
	"github.com/evetabi/periodsettle/internal/repository"
	"github.com/evetabi/periodsettle/internal/service"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	// ── Logger ────────────────────────────────────────────────────────────────
	cfg := config.MustLoad()

	var logHandler slog.Handler
	if cfg.IsProd() {
		logHandler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		logHandler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	logger.Info("starting backoffice server",
		"env", cfg.Server.Env, "port", cfg.Server.BackofficePort)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Database ──────────────────────────────────────────────────────────────
	db, err := repository.Open(ctx, cfg.DB)
	if err != nil {
		logger.Error("database connection failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("database connected")

	// ── Services ──────────────────────────────────────────────────────────────
	// Override counters land in a private registry; this process exposes no
	// /metrics endpoint.
	m := metrics.NewMetrics(prometheus.NewRegistry())
	catalogSvc := service.NewCatalogService(
		repository.NewItemRepository(db),
		repository.NewOutcomeRepository(db),
		cfg, m, logger,
	)

	// ── Router ────────────────────────────────────────────────────────────────
	router := backoffice.SetupBackofficeRouter(backoffice.BackofficeDeps{
		Auth:    service.NewAuthService(cfg),
		Catalog: catalogSvc,
		Cfg:     cfg,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.BackofficePort,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// ── Start ─────────────────────────────────────────────────────────────────
	go func() {
		logger.Info("backoffice http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("backoffice server error", "err", err)
			stop()
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err = srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("backoffice shutdown error", "err", err)
	}
	logger.Info("backoffice server stopped cleanly")
}
