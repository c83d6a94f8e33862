package config

import (
	"context"

	"github.com/agentuity/tiercache/cache"
	"github.com/agentuity/tiercache/logger"
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// Closer releases whatever OpenStore or NewEngine opened.
type Closer func() error

func nopCloser() error { return nil }

// RedisClient builds the client described by the redis section. A url wins
// over addrs; several addrs make a cluster client, a master name a sentinel
// client.
func (r *Redis) RedisClient() (redis.UniversalClient, error) {
	if r.URL != "" {
		opts, err := redis.ParseURL(r.URL)
		if err != nil {
			return nil, errors.Mark(errors.Wrap(err, "store.redis.url"), ErrInvalidConfig)
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:      r.Addrs,
		Username:   r.Username,
		Password:   r.Password,
		DB:         r.DB,
		MasterName: r.MasterName,
	}), nil
}

// OpenStore opens the configured backing store. It returns a nil store for
// type none. Redis connectivity is checked with a PING.
func (c *Config) OpenStore(ctx context.Context) (cache.Store, Closer, error) {
	switch c.Store.Type {
	case "", "none":
		return nil, nopCloser, nil
	case "memory":
		return cache.NewMemoryStore(), nopCloser, nil
	case "redis":
		client, err := c.Store.Redis.RedisClient()
		if err != nil {
			return nil, nil, err
		}
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, errors.Wrap(err, "connect to redis")
		}
		return cache.NewRedisStore(client, c.Store.Redis.Prefix), client.Close, nil
	case "sqlite":
		s, err := cache.NewSQLiteStore(ctx, c.Store.SQLite.Path, c.Store.SQLite.PurgeEvery.Std())
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
	return nil, nil, invalid("unknown store type %q", c.Store.Type)
}

// NewEngine opens the store and builds an engine over the configured tiers.
// The returned Closer closes the engine, then the store.
func (c *Config) NewEngine(ctx context.Context, log logger.Logger, reg prometheus.Registerer) (*cache.Engine, Closer, error) {
	tiers, err := c.CacheTiers()
	if err != nil {
		return nil, nil, err
	}
	opts, err := c.Options(log, reg)
	if err != nil {
		return nil, nil, err
	}
	store, closeStore, err := c.OpenStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if store != nil {
		opts = append(opts, cache.WithStore(store))
	}
	e, err := cache.New(ctx, tiers, opts...)
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	return e, func() error {
		return errors.CombineErrors(e.Close(), closeStore())
	}, nil
}
