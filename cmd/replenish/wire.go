package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/autopo-replenish/internal/cache"
	"github.com/andresuchdata/autopo-replenish/internal/config"
	"github.com/andresuchdata/autopo-replenish/internal/drive"
	"github.com/andresuchdata/autopo-replenish/internal/forecast"
	"github.com/andresuchdata/autopo-replenish/internal/ordering"
	"github.com/andresuchdata/autopo-replenish/internal/pipeline"
	"github.com/andresuchdata/autopo-replenish/internal/repository/postgres"
	"github.com/andresuchdata/autopo-replenish/internal/service"
	"github.com/andresuchdata/autopo-replenish/internal/storage"
)

type app struct {
	service *service.ReplenishService
	objects *storage.MinioClient
	drive   *drive.Service
	db      *postgres.DB
	cache   cache.ForecastCache
}

func (a *app) Close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			log.Warn().Err(err).Msg("closing forecast cache")
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			log.Warn().Err(err).Msg("closing database")
		}
	}
}

func newForecaster(cfg config.ForecastConfig) pipeline.Forecaster {
	if cfg.URL != "" {
		log.Info().Str("url", cfg.URL).Msg("using remote forecaster")
		return forecast.NewRemote(cfg.URL, cfg.Timeout())
	}
	log.Info().Int("window_days", cfg.WindowDays).Msg("using moving average forecaster")
	return forecast.NewMovingAverage(cfg.WindowDays)
}

func newSubmitter(cfg config.OrderConfig) *pipeline.Submitter {
	var placer pipeline.OrderPlacer = ordering.DryRun{Target: "(order api not configured)"}
	if cfg.APIURL != "" {
		placer = ordering.NewClient(cfg.APIURL, cfg.Timeout())
	}

	var tokens pipeline.TokenProvider = ordering.StaticToken("")
	if cfg.TokenURL != "" {
		tokens = ordering.NewClientCredentials(cfg.TokenURL, cfg.ClientID, cfg.ClientSecret)
	}

	return pipeline.NewSubmitter(placer, tokens, pipeline.SubmitterConfig{
		MaxAttempts: cfg.MaxAttempts,
		Backoff:     pipeline.NewBackoff(cfg.BackoffStrategy, cfg.BackoffBase()),
	})
}

// newApp builds every component from cfg. Optional backends are only connected when configured.
func newApp(ctx context.Context, cfg *config.Config, workers int) (*app, error) {
	a := &app{}

	fc, err := cache.NewForecastCache(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("forecast cache: %w", err)
	}
	a.cache = fc

	deps := service.Dependencies{
		Orchestrator: pipeline.NewOrchestrator(
			cache.NewCachedForecaster(newForecaster(cfg.Forecast), fc),
			newSubmitter(cfg.Order),
			pipeline.OrchestratorConfig{WorkerCount: workers},
		),
		Forecasts: fc,
		OutputDir: cfg.App.OutputDir,
	}

	if cfg.Storage.Configured() {
		objects, err := storage.NewMinioClient(cfg.Storage)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.objects = objects
		deps.Objects = objects
	}

	if cfg.Drive.CredentialsJSON != "" {
		svc, err := drive.NewService(ctx, cfg.Drive.CredentialsJSON)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.drive = svc
		deps.Drive = svc
	}

	if cfg.Database.Enabled {
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("database: %w", err)
		}
		a.db = db
		deps.Runs = postgres.NewRunRepository(db)
	}

	a.service = service.NewReplenishService(deps, cfg.Replenish.HorizonDays)
	return a, nil
}
