package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bk-med/kanban/internal/config"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

var (
	ErrCacheMiss = errors.New("cache miss")
	ErrCacheDown = errors.New("cache unavailable")
)

const opTimeout = 3 * time.Second

type RedisCache struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker
	metrics *Metrics
}

type CacheConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 5,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

func CacheConfigFrom(cfg *config.Config) *CacheConfig {
	return &CacheConfig{
		Addr:         cfg.GetRedisAddr(),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		MaxRetries:   cfg.Redis.MaxRetries,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	}
}

func NewRedisClient(config *CacheConfig) *redis.Client {
	if config == nil {
		config = DefaultCacheConfig()
	}
	return redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		MaxRetries:   config.MaxRetries,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})
}

func NewRedisCache(config *CacheConfig) *RedisCache {
	return NewRedisCacheWithClient(NewRedisClient(config), nil, nil)
}

// NewRedisCacheWithClient wraps an existing client; the worker queue shares
// the same connection pool.
func NewRedisCacheWithClient(client *redis.Client, metrics *Metrics, logger logrus.FieldLogger) *RedisCache {
	return &RedisCache{
		client:  client,
		breaker: NewCircuitBreaker(nil, logger),
		metrics: metrics,
	}
}

func (r *RedisCache) Client() *redis.Client {
	return r.client
}

func (r *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	err = guard(r.breaker, func() error {
		ctx, cancel := context.WithTimeout(ctx, opTimeout)
		defer cancel()
		if err := r.client.Set(ctx, key, data, expiration).Err(); err != nil {
			return fmt.Errorf("failed to set cache: %w", err)
		}
		return nil
	})
	r.metrics.record("set", err)
	return err
}

func (r *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	var data []byte
	err := guard(r.breaker, func() error {
		ctx, cancel := context.WithTimeout(ctx, opTimeout)
		defer cancel()
		raw, err := r.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		if err != nil {
			return fmt.Errorf("failed to get from cache: %w", err)
		}
		data = raw
		return nil
	})
	r.metrics.record("get", err)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to unmarshal cached data: %w", err)
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	err := guard(r.breaker, func() error {
		ctx, cancel := context.WithTimeout(ctx, opTimeout)
		defer cancel()
		return r.client.Del(ctx, keys...).Err()
	})
	r.metrics.record("delete", err)
	return err
}

// DeletePattern removes every key matching pattern, walking the keyspace
// with SCAN rather than blocking Redis with KEYS.
func (r *RedisCache) DeletePattern(ctx context.Context, pattern string) error {
	err := guard(r.breaker, func() error {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
		var keys []string
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("failed to scan keys for pattern %s: %w", pattern, err)
		}
		if len(keys) == 0 {
			return nil
		}
		return r.client.Del(ctx, keys...).Err()
	})
	r.metrics.record("delete_pattern", err)
	return err
}

func (r *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	var n int64
	err := guard(r.breaker, func() error {
		ctx, cancel := context.WithTimeout(ctx, opTimeout)
		defer cancel()
		var err error
		n, err = r.client.Exists(ctx, key).Result()
		return err
	})
	return n > 0, err
}

// SetWithTags stores value and records key under each tag so a later
// InvalidateByTag drops it.
func (r *RedisCache) SetWithTags(ctx context.Context, key string, value interface{}, expiration time.Duration, tags []string) error {
	if err := r.Set(ctx, key, value, expiration); err != nil {
		return err
	}

	return guard(r.breaker, func() error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		pipe := r.client.Pipeline()
		for _, tag := range tags {
			tagKey := tagKey(tag)
			pipe.SAdd(ctx, tagKey, key)
			pipe.Expire(ctx, tagKey, expiration)
		}
		_, err := pipe.Exec(ctx)
		return err
	})
}

func (r *RedisCache) InvalidateByTag(ctx context.Context, tag string) error {
	err := guard(r.breaker, func() error {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		keys, err := r.client.SMembers(ctx, tagKey(tag)).Result()
		if err != nil {
			return fmt.Errorf("failed to get tag members: %w", err)
		}
		return r.client.Del(ctx, append(keys, tagKey(tag))...).Err()
	})
	r.metrics.record("invalidate", err)
	return err
}

func (r *RedisCache) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return r.client.Ping(ctx).Err()
}

func (r *RedisCache) Stats() map[string]interface{} {
	poolStats := r.client.PoolStats()

	return map[string]interface{}{
		"breaker":       r.breaker.State().String(),
		"pool_hits":     poolStats.Hits,
		"pool_misses":   poolStats.Misses,
		"pool_timeouts": poolStats.Timeouts,
		"pool_total":    poolStats.TotalConns,
		"pool_idle":     poolStats.IdleConns,
		"pool_stale":    poolStats.StaleConns,
	}
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}

func tagKey(tag string) string {
	return "tag:" + tag
}
