package bootstrap

import (
	"context"
	"errors"
	"log/slog"

	"gorm.io/gorm"

	"creatorguard/internal/bootstrap/config"
	"creatorguard/internal/bootstrap/database"
	"creatorguard/internal/bootstrap/logging"
	"creatorguard/internal/errs"
	"creatorguard/internal/infrastructure/persistence/gormdb/model"
	"creatorguard/internal/usecase/jobworker"
	"creatorguard/internal/usecase/moderation"
)

type App struct {
	Config     config.Config
	DB         *gorm.DB
	Moderation *moderation.Service
	Workers    *jobworker.Factory
	Policy     *moderation.PolicyHolder
}

func (a *App) InitSchema(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.app"))
	logging.Info(logCtx, "start schema migration")

	if err := a.DB.WithContext(ctx).AutoMigrate(model.All()...); err != nil {
		return errs.Wrap(err, "auto migrate schema")
	}

	logging.Info(logCtx, "schema migration completed")
	return nil
}

// Health reports whether the database is reachable.
func (a *App) Health(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	return database.Ping(ctx, a.DB)
}

// NewWorker returns a worker with the given id, or a fresh id when empty.
func (a *App) NewWorker(workerID string) (*jobworker.Worker, error) {
	if a.Workers == nil {
		return nil, errors.New("worker factory is required")
	}
	return a.Workers.New(workerID)
}
