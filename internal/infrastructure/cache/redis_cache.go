package cache

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"qcflags/internal/bootstrap/logging"
	"qcflags/internal/errs"
	"qcflags/internal/ports"
)

type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisCache shares derived summaries between API replicas.
type RedisCache struct {
	client *redis.Client
	prefix string
}

var _ ports.Cache = (*RedisCache)(nil)

func NewRedisCache(ctx context.Context, opts RedisOptions) (*RedisCache, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errs.Wrapf(err, "connect redis %s", opts.Addr)
	}

	logging.Info(
		logging.WithAttrs(ctx, slog.String("component", "infrastructure.cache")),
		"redis cache connected",
		slog.String("addr", opts.Addr),
		slog.Int("db", opts.DB),
	)
	return &RedisCache{client: client, prefix: opts.KeyPrefix}, nil
}

func (c *RedisCache) key(key string) (string, error) {
	trimmedKey := strings.TrimSpace(key)
	if trimmedKey == "" {
		return "", errors.New("key is required")
	}
	return c.prefix + trimmedKey, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	fullKey, err := c.key(key)
	if err != nil {
		return "", false, err
	}

	value, err := c.client.Get(ctx, fullKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errs.Wrap(err, "redis get")
	}
	return value, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	fullKey, err := c.key(key)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, fullKey, value, ttl).Err(); err != nil {
		return errs.Wrap(err, "redis set")
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	fullKey, err := c.key(key)
	if err != nil {
		return err
	}
	if err := c.client.Del(ctx, fullKey).Err(); err != nil {
		return errs.Wrap(err, "redis del")
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
