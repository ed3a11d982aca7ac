package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/0xc0d3d00d/candlesync/internal/cache"
	"github.com/0xc0d3d00d/candlesync/internal/collector"
	"github.com/0xc0d3d00d/candlesync/internal/config"
	"github.com/0xc0d3d00d/candlesync/internal/exchange"
	"github.com/0xc0d3d00d/candlesync/internal/exchange/upbit"
	"github.com/0xc0d3d00d/candlesync/internal/provider"
	"github.com/0xc0d3d00d/candlesync/internal/storage"
	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/spf13/afero"
	"golang.org/x/time/rate"
	_ "modernc.org/sqlite"
)

type closer func() error

type closers []closer

func (cs closers) Close() error {
	var errs []error
	for i := len(cs) - 1; i >= 0; i-- {
		errs = append(errs, cs[i]())
	}
	return errors.Join(errs...)
}

// buildProvider wires storage, exchange, cache and limiter from cfg. The
// returned closers release them in reverse order.
func buildProvider(ctx context.Context, cfg *config.Config, opts ...provider.Option) (*provider.Provider, closers, error) {
	var cs closers

	store, closeStore, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return nil, nil, err
	}
	cs = append(cs, closeStore)

	respCache, closeCache, err := openCache(ctx, cfg.Cache)
	if err != nil {
		cs.Close()
		return nil, nil, err
	}
	if closeCache != nil {
		cs = append(cs, closeCache)
	}

	fetcher, err := newFetcher(cfg.Exchange)
	if err != nil {
		cs.Close()
		return nil, nil, err
	}

	limiter := rate.NewLimiter(rate.Limit(cfg.Exchange.RateLimit), cfg.Exchange.Burst)
	pcfg := provider.Config{
		DefaultLookback: cfg.DefaultLookback,
		Collector: collector.Config{
			MaxAttempts:    cfg.Exchange.MaxRetries,
			RetryBaseDelay: cfg.Exchange.RetryBaseDelay,
			RetryMaxDelay:  cfg.Exchange.RetryMaxDelay,
			CallTimeout:    cfg.Exchange.RequestTimeout,
		},
	}

	opts = append([]provider.Option{provider.WithCache(respCache)}, opts...)
	return provider.New(store, fetcher, limiter, pcfg, opts...), cs, nil
}

func openStore(ctx context.Context, cfg config.Storage) (provider.Store, closer, error) {
	switch cfg.Driver {
	case "file":
		store, err := storage.NewFileStore(afero.NewOsFs(), cfg.DataDir, cfg.ChunkSize)
		if err != nil {
			return nil, nil, fmt.Errorf("open file store: %w", err)
		}
		return store, store.Close, nil
	case "sqlite", "postgres":
		db, err := sqlx.Open(cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
		}
		if cfg.Driver == "sqlite" {
			// sqlite allows a single writer
			db.SetMaxOpenConns(1)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("connect %s: %w", cfg.Driver, err)
		}
		if err := storage.EnsureSchema(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
		return storage.NewSQLStore(db), db.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}

func openCache(ctx context.Context, cfg config.Cache) (cache.Cache, closer, error) {
	switch cfg.Backend {
	case "memory":
		return cache.NewMemoryCache(cfg.TTL, time.Now), nil, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		c := cache.NewRedisCache(client, cfg.RedisPrefix, cfg.TTL)
		if err := c.Ping(ctx); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		return c, client.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
}

func newFetcher(cfg config.Exchange) (exchange.Fetcher, error) {
	switch cfg.Name {
	case "upbit":
		return upbit.New(cfg.BaseURL, upbit.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout})), nil
	case "mock":
		return exchange.NewMockFetcher(), nil
	}
	return nil, fmt.Errorf("unknown exchange %q", cfg.Name)
}
