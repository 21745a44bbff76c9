// Package main is the entry point for the Playbook thesis to ticker system.
// It wires the six-database architecture, the notification channels, the
// daily trigger evaluation schedule and the HTTP API, then blocks until a
// shutdown signal arrives.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aristath/playbook/internal/clients/embedding"
	"github.com/aristath/playbook/internal/clients/marketdata"
	"github.com/aristath/playbook/internal/config"
	"github.com/aristath/playbook/internal/database"
	"github.com/aristath/playbook/internal/modules/alerts"
	"github.com/aristath/playbook/internal/modules/cards"
	"github.com/aristath/playbook/internal/modules/discovery"
	"github.com/aristath/playbook/internal/modules/portfolio"
	"github.com/aristath/playbook/internal/modules/triggers"
	"github.com/aristath/playbook/internal/modules/universe"
	"github.com/aristath/playbook/internal/scheduler"
	"github.com/aristath/playbook/internal/server"
	"github.com/aristath/playbook/internal/services/prices"
	"github.com/aristath/playbook/pkg/logger"
)

func main() {
	// Load configuration first to get log level
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting Playbook")

	// Six-database architecture: each concern gets its own file so the
	// append-only alert trail, the hot cache and the rest can carry
	// different durability profiles.
	dbConfigs := []database.Config{
		{Name: "universe", Path: filepath.Join(cfg.DataDir, "universe.db"), Profile: database.ProfileStandard},
		{Name: "playbook", Path: filepath.Join(cfg.DataDir, "playbook.db"), Profile: database.ProfileStandard},
		{Name: "alerts", Path: filepath.Join(cfg.DataDir, "alerts.db"), Profile: database.ProfileLedger},
		{Name: "portfolio", Path: filepath.Join(cfg.DataDir, "portfolio.db"), Profile: database.ProfileStandard},
		{Name: "history", Path: filepath.Join(cfg.DataDir, "history.db"), Profile: database.ProfileStandard},
		{Name: "cache", Path: filepath.Join(cfg.DataDir, "cache.db"), Profile: database.ProfileCache},
	}

	databases := make(map[string]*database.DB, len(dbConfigs))
	allDBs := make([]*database.DB, 0, len(dbConfigs))
	for _, dbCfg := range dbConfigs {
		db, err := database.New(dbCfg)
		if err != nil {
			log.Fatal().Err(err).Str("database", dbCfg.Name).Msg("Failed to open database")
		}
		if err := db.Migrate(); err != nil {
			log.Fatal().Err(err).Str("database", dbCfg.Name).Msg("Failed to migrate database")
		}
		databases[dbCfg.Name] = db
		allDBs = append(allDBs, db)
	}
	defer func() {
		for _, db := range allDBs {
			if err := db.Close(); err != nil {
				log.Error().Err(err).Str("database", db.Name()).Msg("Failed to close database")
			}
		}
	}()
	log.Info().Int("databases", len(allDBs)).Str("data_dir", cfg.DataDir).Msg("Databases ready")

	// External clients.
	marketClient := marketdata.NewClient(cfg.MarketDataURL, cfg.ClientTimeout, log)
	embedClient := embedding.NewClient(cfg.EmbeddingURL, cfg.ClientTimeout, log)
	embedder := embedding.NewCachedProvider(embedClient, databases["cache"].Conn(), log)

	// Services and repositories.
	priceService := prices.New(marketClient, databases["history"].Conn(), log)

	universeRepo := universe.NewRepository(databases["universe"].Conn(), log)
	universeService := universe.NewService(universeRepo, embedder, log)

	cardRepo := cards.NewRepository(databases["playbook"].Conn(), log)
	triggerRepo := triggers.NewRepository(databases["playbook"].Conn(), log)
	cardService := cards.NewService(cardRepo, triggerRepo, log)

	alertRepo := alerts.NewRepository(databases["alerts"].Conn(), log)
	channels := alerts.BuildChannels(cfg.Channels)
	retryQueue := alerts.NewRetryQueue(alertRepo, cfg.Channels.SendTimeout, cfg.Channels.MaxRetries, log)

	portfolioRepo := portfolio.NewRepository(databases["portfolio"].Conn(), log)
	portfolioService := portfolio.NewService(portfolioRepo, priceService, log)

	dispatcher := alerts.NewDispatcher(
		alertRepo,
		cardRepo,
		channels,
		retryQueue,
		portfolioService,
		priceService,
		cfg.Channels.SendTimeout,
		log,
	)

	evaluator := triggers.NewEvaluator(priceService, cfg.EvalWorkers, log)
	runService := triggers.NewRunService(triggerRepo, evaluator, dispatcher, log)

	discoveryCache := discovery.NewCache(databases["cache"].Conn(), cfg.DiscoveryCacheTTL, log)
	discoveryService := discovery.NewService(cardRepo, universeService, embedder, discoveryCache, cfg.Scoring, log)

	// Warm the universe snapshot so discovery works from the first request.
	// Failure is not fatal: the API returns 503 until a rebuild succeeds.
	{
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		if snap, err := universeService.Rebuild(ctx); err != nil {
			log.Warn().Err(err).Msg("Initial universe snapshot build failed, discovery unavailable until rebuild")
		} else {
			log.Info().Str("version", snap.Version).Int("instruments", snap.Size()).Msg("Universe snapshot ready")
		}
		cancel()
	}

	// Scheduled jobs: the end-of-day evaluation at the configured local time
	// and hourly maintenance (cache pruning, WAL checkpoints).
	location := cfg.Location()
	sched := scheduler.New(location, log)

	eodJob := scheduler.NewEODEvaluationJob(runService, location, log)
	eodSpec := fmt.Sprintf("0 %d %d * * *", cfg.EvalMinute, cfg.EvalHour)
	if err := sched.AddJob(eodSpec, eodJob); err != nil {
		log.Fatal().Err(err).Str("schedule", eodSpec).Msg("Failed to schedule EOD evaluation")
	}

	maintenanceJob := scheduler.NewMaintenanceJob(discoveryCache, allDBs, log)
	if err := sched.AddJob("0 0 * * * *", maintenanceJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule maintenance")
	}

	sched.Start()
	log.Info().
		Int("hour", cfg.EvalHour).
		Int("minute", cfg.EvalMinute).
		Str("timezone", cfg.Timezone).
		Msg("Scheduler started")

	// HTTP server.
	srv := server.New(server.Config{
		Log:       log,
		Config:    cfg,
		Databases: allDBs,
		Handlers: server.Handlers{
			Universe:  universe.NewHandlers(universeRepo, universeService, log),
			Cards:     cards.NewHandlers(cardRepo, cardService, log),
			Triggers:  triggers.NewHandlers(triggerRepo, runService, location, log),
			Alerts:    alerts.NewHandlers(alertRepo, log),
			Discovery: discovery.NewHandlers(discoveryService, log),
			Portfolio: portfolio.NewHandlers(portfolioService, log),
			System:    server.NewSystemHandlers(log, allDBs, universeService),
		},
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	sched.Stop()
	retryQueue.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}

	log.Info().Msg("Shutdown complete")
}
