package bootstrap

import (
	"context"
	"log/slog"
	"strings"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"qcflags/internal/bootstrap/config"
	"qcflags/internal/bootstrap/database"
	"qcflags/internal/bootstrap/logging"
	cacheinfra "qcflags/internal/infrastructure/cache"
	"qcflags/internal/infrastructure/locking"
	"qcflags/internal/infrastructure/messaging"
	"qcflags/internal/infrastructure/metrics"
	"qcflags/internal/infrastructure/persistence/gormdb/repository"
	"qcflags/internal/infrastructure/persistence/gormdb/uow"
	"qcflags/internal/ports"
	"qcflags/internal/usecase/qcflag"
)

var Module = fx.Options(
	fx.Provide(provideConfig),
	fx.Provide(provideDatabase),
	fx.Provide(provideApp),
	fx.Provide(
		fx.Annotate(repository.NewCatalogRepository, fx.As(new(ports.CatalogRepository))),
		fx.Annotate(repository.NewFlagTypeRepository, fx.As(new(ports.FlagTypeRepository))),
		fx.Annotate(repository.NewFlagRepository, fx.As(new(ports.FlagRepository))),
		fx.Annotate(repository.NewGaqDetectorRepository, fx.As(new(ports.GaqDetectorRepository))),
		fx.Annotate(repository.NewAuditRepository, fx.As(new(ports.AuditRepository))),
		fx.Annotate(uow.NewUnitOfWork, fx.As(new(ports.UnitOfWork))),
	),
	fx.Provide(provideLocker),
	fx.Provide(provideCache),
	fx.Provide(providePublisher),
	fx.Provide(provideServiceOptions),
	fx.Provide(provideService),
	fx.Invoke(metrics.Init),
)

type configParams struct {
	fx.In

	Ctx        context.Context
	ConfigFile string `name:"configFile"`
}

func fxContext(ctx context.Context) context.Context {
	return logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx"))
}

func provideConfig(p configParams) (config.Config, error) {
	return config.Load(fxContext(p.Ctx), p.ConfigFile)
}

func provideDatabase(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (*gorm.DB, error) {
	db, err := database.Open(fxContext(ctx), cfg.Database)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})

	return db, nil
}

func provideApp(cfg config.Config, db *gorm.DB) *App {
	return &App{
		Config: cfg,
		DB:     db,
	}
}

// provideLocker picks advisory locks on PostgreSQL and in-process locks otherwise.
func provideLocker(ctx context.Context, cfg config.Config) ports.ScopeLocker {
	switch strings.ToLower(cfg.Database.Driver) {
	case "postgres", "postgresql":
		logging.Info(fxContext(ctx), "scope locker selected", slog.String("kind", "postgres_advisory"))
		return locking.NewPostgresLocker(cfg.Locking.Timeout)
	default:
		logging.Info(fxContext(ctx), "scope locker selected", slog.String("kind", "local"))
		return locking.NewLocalLocker(cfg.Locking.Timeout)
	}
}

func provideCache(lc fx.Lifecycle, ctx context.Context, cfg config.Config, db *gorm.DB) (ports.Cache, error) {
	switch strings.ToLower(cfg.Cache.Driver) {
	case "redis":
		cache, err := cacheinfra.NewRedisCache(fxContext(ctx), cacheinfra.RedisOptions{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.App.Name + ":",
		})
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{
			OnStop: func(_ context.Context) error { return cache.Close() },
		})
		return cache, nil
	case "none":
		return cacheinfra.NoopCache{}, nil
	default:
		return cacheinfra.NewSQLiteCache(db), nil
	}
}

func providePublisher(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (ports.EventPublisher, error) {
	if strings.TrimSpace(cfg.NATS.URL) == "" {
		return messaging.NoopPublisher{}, nil
	}

	publisher, err := messaging.NewNATSPublisher(fxContext(ctx), cfg.NATS.URL, cfg.NATS.SubjectPrefix)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error { return publisher.Close() },
	})
	return publisher, nil
}

func provideServiceOptions(cfg config.Config) (qcflag.Options, error) {
	presets, err := config.LoadGaqPresets(cfg.Gaq.PresetsFile)
	if err != nil {
		return qcflag.Options{}, err
	}

	opts := qcflag.DefaultOptions()
	opts.Retry = qcflag.RetryOptions{
		MaxAttempts:     cfg.Retry.MaxAttempts,
		InitialInterval: cfg.Retry.InitialInterval,
		MaxInterval:     cfg.Retry.MaxInterval,
	}
	opts.CacheTTL = cfg.Cache.TTL
	opts.GaqPresets = presets
	opts.MCReproducibleAsNotBad = cfg.Gaq.MCReproducibleAsNotBad
	return opts, nil
}

type serviceParams struct {
	fx.In

	Catalog      ports.CatalogRepository
	FlagTypes    ports.FlagTypeRepository
	Flags        ports.FlagRepository
	GaqDetectors ports.GaqDetectorRepository
	Audit        ports.AuditRepository
	UnitOfWork   ports.UnitOfWork
	Locker       ports.ScopeLocker
	Cache        ports.Cache
	Publisher    ports.EventPublisher
	Options      qcflag.Options
}

func provideService(p serviceParams) (*qcflag.Service, error) {
	return qcflag.NewService(qcflag.Dependencies{
		Catalog:      p.Catalog,
		FlagTypes:    p.FlagTypes,
		Flags:        p.Flags,
		GaqDetectors: p.GaqDetectors,
		Audit:        p.Audit,
		UnitOfWork:   p.UnitOfWork,
		Locker:       p.Locker,
		Cache:        p.Cache,
		Publisher:    p.Publisher,
	}, p.Options)
}
