package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 60*time.Second, cfg.Cache.TTL)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/etc/candlesync.yaml", []byte(`
log_level: debug
storage:
  driver: file
  data_dir: /var/lib/candlesync
exchange:
  name: mock
  rate_limit: 2.5
  retry_base_delay: 1s
cache:
  ttl: 30s
backfill:
  cron: "0 * * * * *"
  jobs:
    - KRW-BTC:1m:500
    - KRW-ETH:1h:100
`), 0o644))

	cfg, err := Load(fsys, "/etc/candlesync.yaml")
	require.NoError(t, err)

	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	assert.Equal(t, "file", cfg.Storage.Driver)
	assert.Equal(t, "/var/lib/candlesync", cfg.Storage.DataDir)
	assert.Equal(t, 10000, cfg.Storage.ChunkSize)
	assert.Equal(t, "mock", cfg.Exchange.Name)
	assert.Equal(t, 2.5, cfg.Exchange.RateLimit)
	assert.Equal(t, time.Second, cfg.Exchange.RetryBaseDelay)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
	assert.Equal(t, []string{"KRW-BTC:1m:500", "KRW-ETH:1h:100"}, cfg.Backfill.Jobs)
	// untouched keys keep their defaults
	assert.Equal(t, ":6969", cfg.ListenAddress)
}

func TestEnvOverridesYAML(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "c.yaml", []byte("listen_address: \":7000\"\ncache:\n  backend: memory\n"), 0o644))

	t.Setenv("ADDR", ":8080")
	t.Setenv("CACHE_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("BACKFILL_JOBS", "KRW-BTC:1m:10,KRW-ETH:1m:10")

	cfg, err := Load(fsys, "c.yaml")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ListenAddress)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, "redis:6379", cfg.Cache.RedisAddr)
	assert.Len(t, cfg.Backfill.Jobs, 2)
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "bad.yaml", []byte("storage: [\n"), 0o644))
	require.NoError(t, afero.WriteFile(fsys, "invalid.yaml", []byte("storage:\n  driver: mysql\nexchange:\n  rate_limit: -1\n"), 0o644))

	_, err := Load(fsys, "missing.yaml")
	assert.ErrorContains(t, err, "read config")

	_, err = Load(fsys, "bad.yaml")
	assert.ErrorContains(t, err, "parse config")

	_, err = Load(fsys, "invalid.yaml")
	require.Error(t, err)
	assert.ErrorContains(t, err, "storage.driver")
	assert.ErrorContains(t, err, "exchange.rate_limit")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "log level", mutate: func(c *Config) { c.LogLevel = "loud" }, want: "log_level"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Storage.Driver = "postgres"; c.Storage.DSN = "" }, want: "storage.dsn"},
		{name: "file chunk size", mutate: func(c *Config) { c.Storage.Driver = "file"; c.Storage.ChunkSize = 0 }, want: "storage.chunk_size"},
		{name: "exchange", mutate: func(c *Config) { c.Exchange.Name = "binance" }, want: "exchange.name"},
		{name: "retries", mutate: func(c *Config) { c.Exchange.MaxRetries = 0 }, want: "exchange.max_retries"},
		{name: "cache backend", mutate: func(c *Config) { c.Cache.Backend = "disk" }, want: "cache.backend"},
		{name: "cache ttl", mutate: func(c *Config) { c.Cache.TTL = 0 }, want: "cache.ttl"},
		{name: "jobs without cron", mutate: func(c *Config) { c.Backfill.Cron = ""; c.Backfill.Jobs = []string{"KRW-BTC:1m:1"} }, want: "backfill.cron"},
		{name: "lookback", mutate: func(c *Config) { c.DefaultLookback = -1 }, want: "default_lookback"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}
