package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"qcflags/internal/bootstrap/config"
	"qcflags/internal/bootstrap/database"
	"qcflags/internal/bootstrap/logging"
	"qcflags/internal/errs"
	"qcflags/internal/infrastructure/persistence/gormdb/model"
	"qcflags/internal/infrastructure/persistence/schema"
)

type App struct {
	Config config.Config
	DB     *gorm.DB
}

func New(ctx context.Context, configFile string) (*App, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.app"))
	logging.Info(logCtx, "loading application config", slog.String("config_file", configFile))

	cfg, err := config.Load(logCtx, configFile)
	if err != nil {
		return nil, errs.Wrap(err, "load config")
	}

	db, err := database.Open(logCtx, cfg.Database)
	if err != nil {
		return nil, errs.Wrap(err, "open database")
	}

	logging.Info(logCtx, "application bootstrap completed", slog.String("database_driver", cfg.Database.Driver))

	return &App{
		Config: cfg,
		DB:     db,
	}, nil
}

// InitSchema migrates every table and records the schema version. A database
// written by a newer schema is refused.
func (a *App) InitSchema(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.app"))
	logging.Info(logCtx, "start schema migration")

	db := a.DB.WithContext(ctx)
	if err := db.AutoMigrate(&schema.SchemaMeta{}); err != nil {
		return errs.Wrap(err, "auto migrate schema meta")
	}

	var current schema.SchemaMeta
	err := db.Where("key = ?", schema.VersionKey).Take(&current).Error
	switch {
	case err == nil:
		if newerVersion(current.Value, schema.CurrentVersion) {
			return fmt.Errorf("database schema version %s is newer than supported %s", current.Value, schema.CurrentVersion)
		}
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return errs.Wrap(err, "query schema version")
	}

	if err := db.AutoMigrate(model.All()...); err != nil {
		return errs.Wrap(err, "auto migrate schema")
	}

	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&schema.SchemaMeta{Key: schema.VersionKey, Value: schema.CurrentVersion}).Error; err != nil {
		return errs.Wrap(err, "record schema version")
	}

	logging.Info(logCtx, "schema migration completed", slog.String("version", schema.CurrentVersion))
	return nil
}

func newerVersion(stored string, supported string) bool {
	a, errA := strconv.Atoi(stored)
	b, errB := strconv.Atoi(supported)
	if errA != nil || errB != nil {
		return stored != supported
	}
	return a > b
}

func (a *App) Close(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}

	sqlDB, err := a.DB.DB()
	if err != nil {
		return errs.Wrap(err, "get sql db")
	}

	if err := sqlDB.Close(); err != nil {
		return errs.Wrap(err, "close sql db")
	}

	logging.Info(logging.WithAttrs(ctx, slog.String("component", "bootstrap.app")), "database connection closed")
	return nil
}
