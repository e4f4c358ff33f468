package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"studio/internal/adapter/repo"
	"studio/internal/domain"
	"studio/internal/genclient"
	"studio/internal/http/handlers"
	httpapi "studio/internal/http/httpapi"
	"studio/internal/infra"
	"studio/internal/infra/geoip"
	"studio/internal/middleware"
	"studio/internal/orchestrator"
	"studio/internal/providers/genapi"
	"studio/internal/queuetrack"
	"studio/internal/storage"
)

func main() {
	// Load .env (optional)
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()

	// Version store: Postgres when configured, in-memory otherwise.
	var store domain.VersionRepository
	if cfg.DatabaseURL != "" {
		dbpool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer dbpool.Close()

		pg := repo.NewVersionRepository(dbpool)
		if err := pg.Migrate(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to migrate version store")
		}
		store = pg
	} else {
		logger.Warn().Msg("DATABASE_URL not set, version store runs in memory")
		store = repo.NewVersionRepositoryMem()
	}

	// Generation backend and job client.
	backend, err := genapi.NewClient(genapi.Options{
		BaseURL: cfg.GenAPIBaseURL,
		APIKey:  cfg.GenAPIKey,
		Logger:  &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure generation backend")
	}
	tracker := queuetrack.New()
	jobs, err := genclient.New(genclient.Options{
		Backend:      backend,
		Tracker:      tracker,
		Logger:       logger,
		PollInterval: cfg.PollInterval,
		MaxAttempts:  cfg.MaxAttempts,
		Tier:         cfg.AccountTier,
		TierDelays:   cfg.TierDelays,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure job client")
	}

	flows, err := orchestrator.New(orchestrator.Options{
		Generator: jobs,
		Store:     store,
		Logger:    logger,
		ProjectID: cfg.ProjectID,
		BatchGap:  cfg.BatchGap,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure orchestrator")
	}

	files, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare upload storage")
	}

	// Locale detection falls back to headers when no GeoIP database is
	// available.
	var countryLookup middleware.CountryLookup
	if cfg.GeoIPDBPath != "" {
		resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
		if err != nil {
			logger.Warn().Err(err).Msg("geoip database unavailable, skipping IP locale detection")
		} else {
			defer resolver.Close()
			countryLookup = resolver.CountryCode
		}
	}

	app := &handlers.App{
		Config:  cfg,
		Logger:  logger,
		Store:   store,
		Flows:   flows,
		Tracker: tracker,
		Files:   files,
	}
	router := httpapi.NewRouter(app, countryLookup)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
