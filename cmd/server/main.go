// Package main is the entry point for the period settlement API server.
// It wires together all services and starts the HTTP server alongside the
// WebSocket hub, the generate/settle scheduler and, unless disabled, the
// back-office router.
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

	"github.com/evetabi/periodsettle/internal/api"
	"github.com/evetabi/periodsettle/internal/backoffice"
	"github.com/evetabi/periodsettle/internal/cache"
	"github.com/evetabi/periodsettle/internal/config"
	"github.com/evetabi/periodsettle/internal/metrics"
	"github.com/evetabi/periodsettle/internal/repository"
	"github.com/evetabi/periodsettle/internal/scheduler"
	"github.com/evetabi/periodsettle/internal/service"
	"github.com/evetabi/periodsettle/internal/ws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	// ── 1. Logger ─────────────────────────────────────────────────────────────
	cfg := config.MustLoad()

	var logHandler slog.Handler
	if cfg.IsProd() {
		logHandler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		logHandler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	logger.Info("starting period settlement server", "env", cfg.Server.Env, "port", cfg.Server.Port)

	// ── 2. Root context + signal handling ─────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 3. Database + migrations ──────────────────────────────────────────────
	db, err := repository.Open(ctx, cfg.DB)
	if err != nil {
		logger.Error("database connection failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("database connected")

	if err = repository.RunMigrations(ctx, db, cfg.Server.MigrationsDir); err != nil {
		logger.Error("migrations failed", "err", err)
		os.Exit(1)
	}
	logger.Info("migrations applied")

	// ── 4. Repositories ───────────────────────────────────────────────────────
	itemRepo := repository.NewItemRepository(db)
	outcomeRepo := repository.NewOutcomeRepository(db)
	wagerRepo := repository.NewWagerRepository(db)
	walletRepo := repository.NewWalletRepository(db)
	store := repository.NewStore(db, outcomeRepo, wagerRepo, walletRepo)

	// ── 5. Metrics ────────────────────────────────────────────────────────────
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)

	// ── 6. Outcome cache (optional) ───────────────────────────────────────────
	var outcomeCache service.OutcomeCache
	if cfg.Redis.Addr != "" {
		client, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			// The database is authoritative; run uncached rather than not at all.
			logger.Warn("redis unavailable, outcome cache disabled", "err", err)
		} else {
			defer client.Close()
			outcomeCache = cache.NewOutcomeCache(client, cfg.Redis.TTL, logger)
			logger.Info("outcome cache enabled", "addr", cfg.Redis.Addr)
		}
	}

	// ── 7. Services ───────────────────────────────────────────────────────────
	authSvc := service.NewAuthService(cfg)
	catalogSvc := service.NewCatalogService(itemRepo, outcomeRepo, cfg, m, logger)
	generatorSvc := service.NewGeneratorService(outcomeRepo, wagerRepo, cfg, m, logger)
	settlementSvc := service.NewSettlementService(outcomeRepo, store, m, logger)
	wagerSvc := service.NewWagerService(itemRepo, wagerRepo, store, cfg, m, logger)
	outcomeSvc := service.NewOutcomeService(itemRepo, outcomeRepo, outcomeCache)

	// ── 8. WebSocket hub ──────────────────────────────────────────────────────
	hub := ws.NewHub(authSvc, cfg.Origins(), logger)
	go hub.Run(ctx)
	logger.Info("websocket hub started")

	// ── 9. Scheduler ──────────────────────────────────────────────────────────
	sched := scheduler.NewScheduler(catalogSvc, generatorSvc, settlementSvc, hub, cfg, m, logger)
	sched.Start(ctx)

	// ── 10. HTTP routers ──────────────────────────────────────────────────────
	router := api.SetupRouter(api.RouterDeps{
		Auth:     authSvc,
		Items:    catalogSvc,
		Outcomes: outcomeSvc,
		Wagers:   wagerSvc,
		Wallets:  walletRepo,
		Hub:      hub,
		Gatherer: reg,
		Cfg:      cfg,
	})

	servers := []*http.Server{{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}}

	if cfg.Server.EmbedBackoffice {
		boRouter := backoffice.SetupBackofficeRouter(backoffice.BackofficeDeps{
			Auth:      authSvc,
			Catalog:   catalogSvc,
			Scheduler: sched,
			Hub:       hub,
			Cfg:       cfg,
		})
		servers = append(servers, &http.Server{
			Addr:         ":" + cfg.Server.BackofficePort,
			Handler:      boRouter,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		})
	}

	// ── 11. Start servers ─────────────────────────────────────────────────────
	for _, srv := range servers {
		go func(srv *http.Server) {
			logger.Info("http server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "addr", srv.Addr, "err", err)
				stop() // trigger graceful shutdown
			}
		}(srv)
	}

	// ── 12. Graceful shutdown ─────────────────────────────────────────────────
	<-ctx.Done()
	logger.Info("shutdown signal received, draining connections…")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown error", "addr", srv.Addr, "err", err)
		}
	}

	// In-flight settlements commit or roll back on their own; wait so the
	// database is not closed underneath them.
	sched.Wait()
	logger.Info("server stopped cleanly")
}
