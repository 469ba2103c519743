package main

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/ajitpratap0/scholar/internal/pipeline"
	"github.com/ajitpratap0/scholar/internal/runlog"
	"github.com/ajitpratap0/scholar/internal/warehouse"
	"github.com/ajitpratap0/scholar/pkg/config"
	"github.com/ajitpratap0/scholar/pkg/errors"
	"github.com/ajitpratap0/scholar/pkg/logger"
	"github.com/ajitpratap0/scholar/pkg/observability"
	"github.com/ajitpratap0/scholar/pkg/snapshot"
	"github.com/ajitpratap0/scholar/pkg/storage"
)

// app owns the long-lived connections of one command invocation.
type app struct {
	cfg      *config.Config
	store    storage.Store
	db       *sql.DB
	shutdown observability.ShutdownFunc
}

func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	shutdown, err := observability.Init(cfg.Tracing, version, nil)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, shutdown: shutdown}

	// Setup failures are reported as the first stage that needs the resource.
	a.store, err = storage.Open(ctx, cfg.Storage)
	if err != nil {
		a.Close()
		return nil, errors.AtStage(errors.StageStage, err)
	}
	a.db, err = warehouse.Open(ctx, cfg.Warehouse)
	if err != nil {
		a.Close()
		return nil, errors.AtStage(errors.StageBuild, err)
	}
	return a, nil
}

// runner builds a pipeline runner. Each run gets fresh metrics.
func (a *app) runner() (*pipeline.Runner, error) {
	deps := pipeline.Dependencies{
		Stager:    snapshot.NewStager(a.store, a.cfg.Storage.Compression),
		Warehouse: a.db,
	}
	if a.cfg.RunLog.Enabled {
		deps.RunLog = runlog.NewRepository(a.db)
	}
	return pipeline.New(a.cfg, deps)
}

// Close releases every resource, logging failures.
func (a *app) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			logger.Warn("Failed to close warehouse", zap.Error(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warn("Failed to close snapshot store", zap.Error(err))
		}
	}
	if a.shutdown != nil {
		if err := a.shutdown(context.Background()); err != nil {
			logger.Warn("Failed to flush traces", zap.Error(err))
		}
	}
	_ = logger.Sync()
}
