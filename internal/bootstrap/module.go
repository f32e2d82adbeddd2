package bootstrap

import (
	"context"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"creatorguard/internal/bootstrap/config"
	"creatorguard/internal/bootstrap/database"
	"creatorguard/internal/bootstrap/logging"
	domain "creatorguard/internal/domain/moderation"
	"creatorguard/internal/errs"
	cacheinfra "creatorguard/internal/infrastructure/cache"
	"creatorguard/internal/infrastructure/events"
	"creatorguard/internal/infrastructure/objectstore"
	"creatorguard/internal/infrastructure/persistence/gormdb/repository"
	"creatorguard/internal/infrastructure/vision"
	"creatorguard/internal/ports"
	"creatorguard/internal/usecase/jobworker"
	"creatorguard/internal/usecase/moderation"
)

var Module = fx.Options(
	fx.Provide(provideConfig),
	fx.Provide(provideDatabase),
	fx.Provide(
		fx.Annotate(
			repository.NewModerationRepository,
			fx.As(new(ports.ScanRepository)),
			fx.As(new(ports.AnchorRepository)),
			fx.As(new(ports.JobRepository)),
		),
	),
	fx.Provide(provideCache),
	fx.Provide(provideVision),
	fx.Provide(provideEvents),
	fx.Provide(provideAssets),
	fx.Provide(providePolicy),
	fx.Provide(provideModeration),
	fx.Provide(provideWorkerFactory),
	fx.Provide(provideApp),
)

type configParams struct {
	fx.In

	Ctx        context.Context
	ConfigFile string `name:"configFile"`
}

func provideConfig(p configParams) (config.Config, error) {
	ctx := logging.WithAttrs(p.Ctx, slog.String("component", "bootstrap.fx"))
	return config.Load(ctx, p.ConfigFile)
}

func provideDatabase(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (*gorm.DB, error) {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx"))

	db, err := database.Open(logCtx, cfg.Database)
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

func provideCache(lc fx.Lifecycle, ctx context.Context, cfg config.Config, db *gorm.DB) (ports.Cache, error) {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx"))

	if !strings.EqualFold(cfg.Cache.Driver, "redis") {
		return cacheinfra.NewSQLiteCache(db), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				return errs.Wrapf(err, "ping redis %s", cfg.Redis.Addr)
			}
			logging.Info(logCtx, "redis cache connected", slog.String("addr", cfg.Redis.Addr))
			return nil
		},
		OnStop: func(_ context.Context) error {
			return client.Close()
		},
	})
	return cacheinfra.NewRedisCache(client, cfg.Redis.Prefix), nil
}

func provideVision(ctx context.Context, cfg config.Config) (ports.VisionScanner, error) {
	if strings.TrimSpace(cfg.Vision.APIKey) == "" {
		logging.Warn(
			logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx")),
			"vision.api_key is empty, scans will fail until it is configured",
		)
	}
	scanner, err := vision.NewOpenAIScanner(vision.Config{
		APIKey:         cfg.Vision.APIKey,
		BaseURL:        cfg.Vision.BaseURL,
		Model:          cfg.Vision.Model,
		RequestTimeout: cfg.Vision.RequestTimeout,
		RatePerSecond:  cfg.Vision.Rate,
		Burst:          cfg.Vision.Burst,
		MaxAnchors:     cfg.Vision.MaxAnchors,
	})
	if err != nil {
		return nil, errs.Wrap(err, "create vision scanner")
	}
	return scanner, nil
}

func provideEvents(lc fx.Lifecycle, cfg config.Config) (ports.EventPublisher, error) {
	if !strings.EqualFold(cfg.Events.Driver, "nats") {
		return events.NoopPublisher{}, nil
	}

	publisher, err := events.NewNATSPublisher(cfg.Events.URL, cfg.Events.SubjectPrefix, cfg.Events.Name)
	if err != nil {
		return nil, errs.Wrap(err, "connect event publisher")
	}
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return publisher.Close()
		},
	})
	return publisher, nil
}

func provideAssets(cfg config.Config) (ports.AssetURLResolver, error) {
	if !strings.EqualFold(cfg.Storage.Driver, "minio") {
		return objectstore.PassthroughResolver{}, nil
	}

	resolver, err := objectstore.NewMinioResolver(objectstore.Config{
		Endpoint:   cfg.Storage.Endpoint,
		AccessKey:  cfg.Storage.AccessKey,
		SecretKey:  cfg.Storage.SecretKey,
		Region:     cfg.Storage.Region,
		Bucket:     cfg.Storage.Bucket,
		UseSSL:     cfg.Storage.UseSSL,
		PresignTTL: cfg.Storage.PresignTTL,
	})
	if err != nil {
		return nil, errs.Wrap(err, "create asset resolver")
	}
	return resolver, nil
}

func providePolicy(ctx context.Context, cfg config.Config) (*moderation.PolicyHolder, error) {
	path := strings.TrimSpace(cfg.Policy.File)
	if path == "" {
		return moderation.NewPolicyHolder(domain.DefaultPolicy()), nil
	}

	policy, err := moderation.LoadPolicyProfile(path)
	if err != nil {
		return nil, errs.Wrapf(err, "load policy profile %s", path)
	}
	logging.Info(
		logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx")),
		"policy profile loaded",
		slog.String("policy_file", path),
	)
	return moderation.NewPolicyHolder(policy), nil
}

type moderationParams struct {
	fx.In

	Config  config.Config
	Scans   ports.ScanRepository
	Anchors ports.AnchorRepository
	Jobs    ports.JobRepository
	Vision  ports.VisionScanner
	Assets  ports.AssetURLResolver
	Events  ports.EventPublisher
	Cache   ports.Cache
	Policy  *moderation.PolicyHolder
}

func provideModeration(p moderationParams) *moderation.Service {
	return moderation.NewService(moderation.Dependencies{
		Scans:   p.Scans,
		Anchors: p.Anchors,
		Jobs:    p.Jobs,
		Vision:  p.Vision,
		Assets:  p.Assets,
		Events:  p.Events,
		Cache:   p.Cache,
		Policy:  p.Policy,
	}, moderation.Options{
		MaxAttempts: p.Config.Worker.MaxAttempts,
		StatsTTL:    p.Config.Cache.StatsTTL,
	})
}

type workerParams struct {
	fx.In

	Config  config.Config
	Service *moderation.Service
	Scans   ports.ScanRepository
	Jobs    ports.JobRepository
	Cache   ports.Cache
}

func provideWorkerFactory(p workerParams) *jobworker.Factory {
	return jobworker.NewFactory(jobworker.Dependencies{
		Processor: p.Service,
		Scans:     p.Scans,
		Jobs:      p.Jobs,
		Cache:     p.Cache,
	}, jobworker.Options{
		MaxJobs:         p.Config.Worker.MaxJobs,
		JobTimeout:      p.Config.Worker.JobTimeout,
		StaleMultiplier: p.Config.Worker.StaleMultiplier,
	})
}

func provideApp(cfg config.Config, db *gorm.DB, svc *moderation.Service, workers *jobworker.Factory, policy *moderation.PolicyHolder) *App {
	return &App{
		Config:     cfg,
		DB:         db,
		Moderation: svc,
		Workers:    workers,
		Policy:     policy,
	}
}
