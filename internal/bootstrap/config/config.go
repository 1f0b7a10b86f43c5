package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"qcflags/internal/bootstrap/logging"
	"qcflags/internal/domain/qcflag"
	"qcflags/internal/errs"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Locking  LockingConfig  `mapstructure:"locking"`
	Retry    RetryConfig    `mapstructure:"retry"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Redis    RedisConfig    `mapstructure:"redis"`
	NATS     NATSConfig     `mapstructure:"nats"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Gaq      GaqConfig      `mapstructure:"gaq"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type LockingConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

type CacheConfig struct {
	Driver string        `mapstructure:"driver"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type NATSConfig struct {
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type GaqConfig struct {
	PresetsFile            string `mapstructure:"presets_file"`
	MCReproducibleAsNotBad bool   `mapstructure:"mc_reproducible_as_not_bad"`
}

func Load(ctx context.Context, configFile string) (Config, error) {
	if ctx == nil {
		return Config{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return Config{}, errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.config"))

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("QCF")
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
		switch {
		case configFile == "" && errors.As(err, &notFound):
			logging.Warn(logCtx, "config file not found, fallback to defaults and env")
		case configFile == DefaultFile && errors.Is(err, os.ErrNotExist):
			logging.Warn(logCtx, "default config file missing, fallback to defaults and env", slog.String("path", configFile))
		default:
			return Config{}, errs.Wrap(err, "read config")
		}
	} else {
		logging.Info(logCtx, "using config file", slog.String("path", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errs.Wrap(err, "unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	logging.Info(
		logCtx,
		"config loaded",
		slog.String("app", cfg.App.Name),
		slog.String("env", cfg.App.Env),
		slog.String("database_driver", cfg.Database.Driver),
		slog.String("cache_driver", cfg.Cache.Driver),
		slog.Bool("nats_enabled", cfg.NATS.URL != ""),
	)

	return cfg, nil
}

// DefaultFile is the --config default; its absence is not an error.
const DefaultFile = "configs/config.yaml"

func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("database.dsn is required")
	}
	switch strings.ToLower(c.Database.Driver) {
	case "sqlite", "sqlite3", "postgres", "postgresql":
	default:
		return fmt.Errorf("database.driver %q is not supported", c.Database.Driver)
	}
	switch strings.ToLower(c.Cache.Driver) {
	case "sqlite", "redis", "none":
	default:
		return fmt.Errorf("cache.driver %q is not supported", c.Cache.Driver)
	}
	if c.Locking.Timeout <= 0 {
		return errors.New("locking.timeout must be positive")
	}
	if c.Retry.MaxAttempts < 1 {
		return errors.New("retry.max_attempts must be at least 1")
	}
	if c.Cache.Driver == "redis" && strings.TrimSpace(c.Redis.Addr) == "" {
		return errors.New("redis.addr is required when cache.driver is redis")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "qcflags")
	v.SetDefault("app.env", "local")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", ".qcflags/qcflags.sqlite")
	v.SetDefault("locking.timeout", 5*time.Second)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_interval", 50*time.Millisecond)
	v.SetDefault("retry.max_interval", time.Second)
	v.SetDefault("cache.driver", "sqlite")
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject_prefix", "qcflags")
	v.SetDefault("http.addr", ":8090")
	v.SetDefault("gaq.presets_file", "")
	v.SetDefault("gaq.mc_reproducible_as_not_bad", false)
}

type presetsFile struct {
	Presets map[string][]string `toml:"presets"`
}

// LoadGaqPresets reads beam-type presets from a TOML file:
//
//	[presets]
//	pp = ["TPC", "ITS", "FT0"]
//
// An empty path yields the built-in presets.
func LoadGaqPresets(path string) (qcflag.GaqPresets, error) {
	if strings.TrimSpace(path) == "" {
		return qcflag.DefaultGaqPresets, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrapf(err, "read gaq presets %q", path)
	}

	var file presetsFile
	if err := toml.Unmarshal(raw, &file); err != nil {
		return nil, errs.Wrapf(err, "decode gaq presets %q", path)
	}

	presets := make(qcflag.GaqPresets, len(file.Presets))
	for beamType, detectors := range file.Presets {
		key := strings.TrimSpace(beamType)
		if key == "" {
			return nil, errors.New("gaq presets contain an empty beam type")
		}
		names := make([]string, 0, len(detectors))
		for _, name := range detectors {
			if name = strings.TrimSpace(name); name != "" {
				names = append(names, name)
			}
		}
		presets[key] = names
	}
	return presets, nil
}
