package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/diagnosis/buildhub/pkg/config"
	"github.com/diagnosis/buildhub/pkg/logger"
)

// ErrMiss is returned by Get when the key is absent.
var ErrMiss = errors.New("cache miss")

func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// JSON stores JSON-encoded values under a key prefix.
type JSON struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewJSON(client *redis.Client, prefix string, ttl time.Duration) *JSON {
	return &JSON{client: client, prefix: prefix, ttl: ttl}
}

func (c *JSON) key(k string) string {
	return c.prefix + ":" + k
}

func (c *JSON) Get(ctx context.Context, key string, dst any) error {
	raw, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return fmt.Errorf("cache get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("cache decode %s: %w", key, err)
	}
	return nil
}

// Set writes the value; failures are logged and swallowed since the cache
// is never the source of truth.
func (c *JSON) Set(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		logger.WarnContext(ctx, "Cache encode failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, c.key(key), raw, c.ttl).Err(); err != nil {
		logger.WarnContext(ctx, "Cache set failed", "key", key, "error", err)
	}
}

func (c *JSON) Delete(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	if err := c.client.Del(ctx, full...).Err(); err != nil {
		logger.WarnContext(ctx, "Cache delete failed", "keys", full, "error", err)
	}
}
