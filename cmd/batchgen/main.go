package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"studio/internal/adapter/repo"
	"studio/internal/domain"
	"studio/internal/genclient"
	"studio/internal/infra"
	"studio/internal/orchestrator"
	"studio/internal/providers/genapi"
	"studio/internal/queuetrack"
)

// manifestItem is one line of the batch manifest: which slot to fill and
// with what.
type manifestItem struct {
	SlotID  string         `json:"slot_id"`
	Type    string         `json:"type"`
	OwnerID string         `json:"owner_id"`
	Params  map[string]any `json:"params,omitempty"`
}

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	if len(os.Args) != 2 {
		logger.Fatal().Msg("usage: batchgen <manifest.json>")
	}
	items, err := loadManifest(os.Args[1])
	if err != nil {
		logger.Fatal().Err(err).Msg("batchgen: manifest unreadable")
	}
	if len(items) == 0 {
		logger.Info().Msg("batchgen: nothing to do")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store domain.VersionRepository
	if cfg.DatabaseURL != "" {
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("batchgen: db connection failed")
		}
		defer pool.Close()

		pg := repo.NewVersionRepository(pool)
		if err := pg.Migrate(ctx); err != nil {
			logger.Fatal().Err(err).Msg("batchgen: migrate failed")
		}
		store = pg
	} else {
		logger.Warn().Msg("batchgen: DATABASE_URL not set, results are not persisted")
		store = repo.NewVersionRepositoryMem()
	}

	backend, err := genapi.NewClient(genapi.Options{
		BaseURL: cfg.GenAPIBaseURL,
		APIKey:  cfg.GenAPIKey,
		Logger:  &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("batchgen: backend configuration failed")
	}
	jobs, err := genclient.New(genclient.Options{
		Backend:      backend,
		Tracker:      queuetrack.New(),
		Logger:       logger,
		PollInterval: cfg.PollInterval,
		MaxAttempts:  cfg.MaxAttempts,
		Tier:         cfg.AccountTier,
		TierDelays:   cfg.TierDelays,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("batchgen: job client configuration failed")
	}
	flows, err := orchestrator.New(orchestrator.Options{
		Generator: jobs,
		Store:     store,
		Logger:    logger,
		ProjectID: cfg.ProjectID,
		BatchGap:  cfg.BatchGap,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("batchgen: orchestrator configuration failed")
	}

	batch := make([]orchestrator.BatchItem, 0, len(items))
	for _, item := range items {
		batch = append(batch, orchestrator.BatchItem{
			SlotID:  item.SlotID,
			Type:    domain.JobType(item.Type),
			OwnerID: item.OwnerID,
			Params:  item.Params,
		})
	}

	logger.Info().Int("items", len(batch)).Msg("batchgen: starting")
	results := flows.GenerateBatch(ctx, batch)

	failures := 0
	for _, res := range results {
		if res.Err != nil {
			failures++
			logger.Error().Err(res.Err).Str("slot_id", res.SlotID).Msg("batchgen: item failed")
			continue
		}
		logger.Info().
			Str("slot_id", res.SlotID).
			Int("version", res.Version.VersionNumber).
			Bool("active", res.Version.IsActive).
			Msg("batchgen: item done")
	}
	logger.Info().Int("ok", len(results)-failures).Int("failed", failures).Msg("batchgen: finished")
	if failures > 0 {
		os.Exit(1)
	}
}

func loadManifest(path string) ([]manifestItem, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var items []manifestItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	return items, nil
}
