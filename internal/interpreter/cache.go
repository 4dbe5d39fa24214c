package interpreter

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/card-scanner/internal/capture"
	"github.com/example/card-scanner/internal/logging"
)

// Cache abstracts the Redis operations used by CachedClient.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

// RedisCache is a Cache backed by go-redis.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, key).Result()
}

// CachedClient memoises non-empty results by image content. Cache failures
// are logged and never reach the caller.
type CachedClient struct {
	next   Client
	cache  Cache
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedClient(next Client, cache Cache, ttl time.Duration, logger *zap.Logger) *CachedClient {
	return &CachedClient{
		next:   next,
		cache:  cache,
		ttl:    ttl,
		logger: logger.Named("interpreter_cache"),
	}
}

func (c *CachedClient) Interpret(ctx context.Context, image capture.CapturedImage) (Result, error) {
	opLogger := logging.WithOperation(c.logger, "interpreter.cache", logging.ScanIDFrom(ctx))

	hash, err := Fingerprint(image)
	if err != nil {
		// The gateway reports the unreadable image.
		return c.next.Interpret(ctx, image)
	}
	key := "interpret:" + hash

	cached, err := c.cache.Get(ctx, key)
	switch {
	case err == nil:
		var result Result
		decodeErr := json.Unmarshal([]byte(cached), &result)
		if decodeErr == nil {
			opLogger.Info("interpretation served from cache", zap.String("sha1", hash))
			return result, nil
		}
		opLogger.Warn("failed to decode cached interpretation", zap.Error(decodeErr))
	case !errors.Is(err, redis.Nil):
		opLogger.Warn("failed to read cache", zap.Error(err))
	}

	result, err := c.next.Interpret(ctx, image)
	if err != nil || result.Empty() {
		return result, err
	}

	serialized, err := json.Marshal(result)
	if err != nil {
		opLogger.Warn("failed to serialize interpretation", zap.Error(err))
		return result, nil
	}
	if err := c.cache.Set(ctx, key, string(serialized), c.ttl); err != nil {
		opLogger.Warn("failed to cache interpretation", zap.Error(err))
	}
	return result, nil
}
