package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Config is layered: Default, then the YAML file, then the environment.
type Config struct {
	ListenAddress string `yaml:"listen_address" env:"ADDR"`
	LogLevel      string `yaml:"log_level" env:"LOG_LEVEL"`

	Storage  Storage  `yaml:"storage"`
	Exchange Exchange `yaml:"exchange"`
	Cache    Cache    `yaml:"cache"`
	Backfill Backfill `yaml:"backfill"`

	// DefaultLookback is the number of periods an end-only request covers
	// when nothing is stored for the series.
	DefaultLookback int `yaml:"default_lookback" env:"DEFAULT_LOOKBACK"`
}

type Storage struct {
	Driver string `yaml:"driver" env:"STORAGE_DRIVER"`
	DSN    string `yaml:"dsn" env:"STORAGE_DSN"`
	// DataDir and ChunkSize apply to the file driver only.
	DataDir   string `yaml:"data_dir" env:"DATA_DIR"`
	ChunkSize int    `yaml:"chunk_size" env:"FILE_CHUNK_SIZE"`
}

type Exchange struct {
	Name           string        `yaml:"name" env:"EXCHANGE"`
	BaseURL        string        `yaml:"base_url" env:"EXCHANGE_BASE_URL"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"EXCHANGE_REQUEST_TIMEOUT"`
	RateLimit      float64       `yaml:"rate_limit" env:"EXCHANGE_RATE_LIMIT"`
	Burst          int           `yaml:"burst" env:"EXCHANGE_BURST"`
	MaxRetries     int           `yaml:"max_retries" env:"EXCHANGE_MAX_RETRIES"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay" env:"EXCHANGE_RETRY_BASE_DELAY"`
	RetryMaxDelay  time.Duration `yaml:"retry_max_delay" env:"EXCHANGE_RETRY_MAX_DELAY"`
}

type Cache struct {
	Backend       string        `yaml:"backend" env:"CACHE_BACKEND"`
	TTL           time.Duration `yaml:"ttl" env:"CACHE_TTL"`
	RedisAddr     string        `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword string        `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int           `yaml:"redis_db" env:"REDIS_DB"`
	RedisPrefix   string        `yaml:"redis_prefix" env:"REDIS_PREFIX"`
}

type Backfill struct {
	Cron       string   `yaml:"cron" env:"BACKFILL_CRON"`
	Jobs       []string `yaml:"jobs" env:"BACKFILL_JOBS" envSeparator:","`
	RunOnStart bool     `yaml:"run_on_start" env:"BACKFILL_RUN_ON_START"`
}

func Default() Config {
	return Config{
		ListenAddress: ":6969",
		LogLevel:      "info",
		Storage: Storage{
			Driver:    "sqlite",
			DSN:       "file:candlesync.db?_pragma=busy_timeout(5000)",
			DataDir:   "./data",
			ChunkSize: 10000,
		},
		Exchange: Exchange{
			Name:           "upbit",
			BaseURL:        "https://api.upbit.com",
			RequestTimeout: 10 * time.Second,
			RateLimit:      8,
			Burst:          1,
			MaxRetries:     3,
			RetryBaseDelay: 200 * time.Millisecond,
			RetryMaxDelay:  5 * time.Second,
		},
		Cache: Cache{
			Backend:     "memory",
			TTL:         60 * time.Second,
			RedisAddr:   "localhost:6379",
			RedisPrefix: "candlesync:",
		},
		Backfill: Backfill{
			Cron: "0 */5 * * * *",
		},
		DefaultLookback: 200,
	}
}

// LoadDotEnv exports variables from .env files. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	err := godotenv.Load(files...)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Load reads path from fsys when it is set, applies environment overrides
// and validates the result.
func Load(fsys afero.Fs, path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := afero.ReadFile(fsys, path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// PathFromEnv returns CONFIG_PATH, or "" when it is unset.
func PathFromEnv() string {
	return os.Getenv("CONFIG_PATH")
}

func (c *Config) Validate() error {
	var errs []error

	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	switch c.Storage.Driver {
	case "sqlite", "postgres":
		if c.Storage.DSN == "" {
			errs = append(errs, fmt.Errorf("storage.dsn is required for driver %q", c.Storage.Driver))
		}
	case "file":
		if c.Storage.DataDir == "" {
			errs = append(errs, errors.New("storage.data_dir is required for the file driver"))
		}
		if c.Storage.ChunkSize <= 0 {
			errs = append(errs, errors.New("storage.chunk_size must be positive"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q: want sqlite, postgres or file", c.Storage.Driver))
	}

	switch c.Exchange.Name {
	case "upbit":
		if c.Exchange.BaseURL == "" {
			errs = append(errs, errors.New("exchange.base_url is required"))
		}
	case "mock":
	default:
		errs = append(errs, fmt.Errorf("exchange.name %q: want upbit or mock", c.Exchange.Name))
	}
	if c.Exchange.RateLimit <= 0 {
		errs = append(errs, errors.New("exchange.rate_limit must be positive"))
	}
	if c.Exchange.Burst < 1 {
		errs = append(errs, errors.New("exchange.burst must be at least 1"))
	}
	if c.Exchange.MaxRetries < 1 {
		errs = append(errs, errors.New("exchange.max_retries must be at least 1"))
	}
	if c.Exchange.RequestTimeout <= 0 {
		errs = append(errs, errors.New("exchange.request_timeout must be positive"))
	}

	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Cache.RedisAddr == "" {
			errs = append(errs, errors.New("cache.redis_addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.backend %q: want memory or redis", c.Cache.Backend))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, errors.New("cache.ttl must be positive"))
	}

	if len(c.Backfill.Jobs) > 0 && c.Backfill.Cron == "" {
		errs = append(errs, errors.New("backfill.cron is required when jobs are configured"))
	}
	if c.DefaultLookback <= 0 {
		errs = append(errs, errors.New("default_lookback must be positive"))
	}

	return errors.Join(errs...)
}

func (c *Config) SlogLevel() slog.Level {
	level, _ := parseLevel(c.LogLevel)
	return level
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level %q: %w", s, err)
	}
	return level, nil
}
