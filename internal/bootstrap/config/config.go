package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"creatorguard/internal/bootstrap/logging"
	"creatorguard/internal/errs"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Database DatabaseConfig `mapstructure:"database"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Vision   VisionConfig   `mapstructure:"vision"`
	Policy   PolicyConfig   `mapstructure:"policy"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Events   EventsConfig   `mapstructure:"events"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	StreamInterval  time.Duration `mapstructure:"stream_interval"`
}

type AuthConfig struct {
	JWTSecret      string   `mapstructure:"jwt_secret"`
	AdminRoles     []string `mapstructure:"admin_roles"`
	CronSecret     string   `mapstructure:"cron_secret"`
	InternalSecret string   `mapstructure:"internal_secret"`
}

type WorkerConfig struct {
	MaxJobs         int           `mapstructure:"max_jobs"`
	JobTimeout      time.Duration `mapstructure:"job_timeout"`
	StaleMultiplier int           `mapstructure:"stale_multiplier"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	Schedule        string        `mapstructure:"schedule"`
}

type VisionConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	Model          string        `mapstructure:"model"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Rate           float64       `mapstructure:"rate"`
	Burst          int           `mapstructure:"burst"`
	MaxAnchors     int           `mapstructure:"max_anchors"`
}

type PolicyConfig struct {
	File  string `mapstructure:"file"`
	Watch bool   `mapstructure:"watch"`
}

type CacheConfig struct {
	Driver   string        `mapstructure:"driver"`
	StatsTTL time.Duration `mapstructure:"stats_ttl"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type EventsConfig struct {
	Driver        string `mapstructure:"driver"`
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
	Name          string `mapstructure:"name"`
}

type StorageConfig struct {
	Driver     string        `mapstructure:"driver"`
	Endpoint   string        `mapstructure:"endpoint"`
	AccessKey  string        `mapstructure:"access_key"`
	SecretKey  string        `mapstructure:"secret_key"`
	Region     string        `mapstructure:"region"`
	Bucket     string        `mapstructure:"bucket"`
	UseSSL     bool          `mapstructure:"use_ssl"`
	PresignTTL time.Duration `mapstructure:"presign_ttl"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load(ctx context.Context, configFile string) (Config, error) {
	if ctx == nil {
		return Config{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return Config{}, errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.config"))
	loadDotEnv(logCtx)

	v := viper.New()
	setDefaults(logCtx, v)

	v.SetEnvPrefix("CG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile == "" && errors.As(err, &notFound) {
			// Keep default and env-backed config when no file is provided.
			logging.Warn(logCtx, "config file not found, fallback to defaults and env")
		} else {
			return Config{}, errs.Wrap(err, "read config")
		}
	} else {
		logging.Info(logCtx, "using config file", slog.String("path", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return Config{}, errs.Wrap(err, "unmarshal config")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, errs.Wrap(err, "validate config")
	}

	logging.Info(
		logCtx,
		"config loaded",
		slog.String("app", cfg.App.Name),
		slog.String("env", cfg.App.Env),
		slog.String("database_driver", cfg.Database.Driver),
		slog.String("cache_driver", cfg.Cache.Driver),
		slog.String("events_driver", cfg.Events.Driver),
		slog.String("storage_driver", cfg.Storage.Driver),
	)

	return cfg, nil
}

// Validate checks settings every command depends on. Settings only the HTTP
// surface needs are checked by ValidateServe.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("database.dsn is required")
	}
	switch strings.ToLower(c.Database.Driver) {
	case "sqlite", "sqlite3", "postgres", "postgresql":
	default:
		return fmt.Errorf("database.driver %q is not supported", c.Database.Driver)
	}

	if c.Worker.MaxJobs < 1 {
		return fmt.Errorf("worker.max_jobs must be positive, got %d", c.Worker.MaxJobs)
	}
	if c.Worker.JobTimeout <= 0 {
		return fmt.Errorf("worker.job_timeout must be positive, got %s", c.Worker.JobTimeout)
	}
	if c.Worker.StaleMultiplier < 2 {
		return fmt.Errorf("worker.stale_multiplier must be at least 2, got %d", c.Worker.StaleMultiplier)
	}
	if c.Worker.MaxAttempts < 1 {
		return fmt.Errorf("worker.max_attempts must be positive, got %d", c.Worker.MaxAttempts)
	}

	switch strings.ToLower(c.Cache.Driver) {
	case "sqlite", "redis":
	default:
		return fmt.Errorf("cache.driver %q is not supported", c.Cache.Driver)
	}
	switch strings.ToLower(c.Events.Driver) {
	case "", "none", "nats":
	default:
		return fmt.Errorf("events.driver %q is not supported", c.Events.Driver)
	}
	switch strings.ToLower(c.Storage.Driver) {
	case "", "passthrough", "minio":
	default:
		return fmt.Errorf("storage.driver %q is not supported", c.Storage.Driver)
	}
	return nil
}

// ValidateServe checks the secrets the HTTP API cannot run without.
func (c Config) ValidateServe() error {
	if strings.TrimSpace(c.Auth.CronSecret) == "" {
		return errors.New("auth.cron_secret is required to serve the http api")
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return errors.New("auth.jwt_secret is required to serve the http api")
	}
	return nil
}

func loadDotEnv(ctx context.Context) {
	// A missing .env is the normal case outside local development.
	if err := godotenv.Load(); err == nil {
		logging.Debug(ctx, "loaded .env file")
	}
}

func setDefaults(ctx context.Context, v *viper.Viper) {
	if ctx == nil {
		return
	}

	v.SetDefault("app.name", "creatorguard")
	v.SetDefault("app.env", "local")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", ".creatorguard/state/moderation.sqlite?_pragma=busy_timeout(5000)")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", "15s")
	v.SetDefault("http.write_timeout", "120s")
	v.SetDefault("http.shutdown_timeout", "10s")
	v.SetDefault("http.stream_interval", "5s")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.admin_roles", []string{"admin", "moderator"})
	v.SetDefault("auth.cron_secret", "")
	v.SetDefault("auth.internal_secret", "")

	v.SetDefault("worker.max_jobs", 5)
	v.SetDefault("worker.job_timeout", "30s")
	v.SetDefault("worker.stale_multiplier", 4)
	v.SetDefault("worker.max_attempts", 3)
	v.SetDefault("worker.schedule", "0 * * * * *")

	v.SetDefault("vision.api_key", "")
	v.SetDefault("vision.base_url", "")
	v.SetDefault("vision.model", "gpt-4o")
	v.SetDefault("vision.request_timeout", "25s")
	v.SetDefault("vision.rate", 2.0)
	v.SetDefault("vision.burst", 2)
	v.SetDefault("vision.max_anchors", 5)

	v.SetDefault("policy.file", "")
	v.SetDefault("policy.watch", false)

	v.SetDefault("cache.driver", "sqlite")
	v.SetDefault("cache.stats_ttl", "30s")

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "creatorguard:")

	v.SetDefault("events.driver", "none")
	v.SetDefault("events.url", "nats://127.0.0.1:4222")
	v.SetDefault("events.subject_prefix", "creatorguard.moderation")
	v.SetDefault("events.name", "creatorguard")

	v.SetDefault("storage.driver", "passthrough")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.access_key", "")
	v.SetDefault("storage.secret_key", "")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.bucket", "creator-uploads")
	v.SetDefault("storage.use_ssl", true)
	v.SetDefault("storage.presign_ttl", "15m")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}
