package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

func TestDefaultCacheConfig(t *testing.T) {
	config := DefaultCacheConfig()

	if config.Addr != "localhost:6379" {
		t.Errorf("Expected Addr to be localhost:6379, got %s", config.Addr)
	}
	if config.PoolSize != 10 {
		t.Errorf("Expected PoolSize to be 10, got %d", config.PoolSize)
	}
	if config.MinIdleConns != 5 {
		t.Errorf("Expected MinIdleConns to be 5, got %d", config.MinIdleConns)
	}
	if config.MaxRetries != 3 {
		t.Errorf("Expected MaxRetries to be 3, got %d", config.MaxRetries)
	}
	if config.DialTimeout != 5*time.Second {
		t.Errorf("Expected DialTimeout to be 5s, got %v", config.DialTimeout)
	}
	if config.ReadTimeout != 3*time.Second || config.WriteTimeout != 3*time.Second {
		t.Errorf("Expected 3s read/write timeouts, got %v/%v", config.ReadTimeout, config.WriteTimeout)
	}
}

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis, *Metrics) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	metrics := NewMetrics(prometheus.NewRegistry())
	c := NewRedisCacheWithClient(client, metrics, nil)
	t.Cleanup(func() { c.Close() })
	return c, mr, metrics
}

func TestNewRedisCache_WithNilConfig(t *testing.T) {
	c := NewRedisCache(nil)
	defer c.Close()

	if c.Client() == nil {
		t.Error("Expected Redis client to be initialized")
	}
	if c.breaker == nil {
		t.Error("Expected circuit breaker to be initialized")
	}
}

func TestRedisCache_SetAndGet(t *testing.T) {
	c, _, metrics := setupTestRedis(t)
	ctx := context.Background()

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	if err := c.Set(ctx, "k", payload{Name: "board", Count: 3}, time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	var got payload
	if err := c.Get(ctx, "k", &got); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Name != "board" || got.Count != 3 {
		t.Errorf("Unexpected value %+v", got)
	}
	if metrics.Count("get", "ok") != 1 {
		t.Errorf("Expected one recorded get hit, got %v", metrics.Count("get", "ok"))
	}
}

func TestRedisCache_GetMiss(t *testing.T) {
	c, _, metrics := setupTestRedis(t)

	var got string
	err := c.Get(context.Background(), "absent", &got)
	if err != ErrCacheMiss {
		t.Fatalf("Expected ErrCacheMiss, got %v", err)
	}
	if metrics.Count("get", "miss") != 1 {
		t.Errorf("Expected one recorded miss, got %v", metrics.Count("get", "miss"))
	}
}

func TestRedisCache_Expiration(t *testing.T) {
	c, mr, _ := setupTestRedis(t)
	ctx := context.Background()

	if err := c.Set(ctx, "short", "v", time.Second); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	mr.FastForward(2 * time.Second)

	var got string
	if err := c.Get(ctx, "short", &got); err != ErrCacheMiss {
		t.Errorf("Expected expired key to miss, got %v", err)
	}
}

func TestRedisCache_Delete(t *testing.T) {
	c, mr, _ := setupTestRedis(t)
	ctx := context.Background()

	mr.Set("a", `"1"`)
	mr.Set("b", `"2"`)

	if err := c.Delete(ctx, "a", "b"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if mr.Exists("a") || mr.Exists("b") {
		t.Error("Expected keys to be deleted")
	}
	if err := c.Delete(ctx); err != nil {
		t.Errorf("Expected empty delete to be a no-op, got %v", err)
	}
}

func TestRedisCache_DeletePattern(t *testing.T) {
	c, mr, _ := setupTestRedis(t)
	ctx := context.Background()

	mr.Set("project_stats:1:2026-01-01", "{}")
	mr.Set("project_stats:1:2026-01-02", "{}")
	mr.Set("project_stats:2:2026-01-01", "{}")

	if err := c.DeletePattern(ctx, "project_stats:1:*"); err != nil {
		t.Fatalf("DeletePattern failed: %v", err)
	}
	if mr.Exists("project_stats:1:2026-01-01") || mr.Exists("project_stats:1:2026-01-02") {
		t.Error("Expected matching keys to be deleted")
	}
	if !mr.Exists("project_stats:2:2026-01-01") {
		t.Error("Expected non-matching key to survive")
	}
	if err := c.DeletePattern(ctx, "nothing:*"); err != nil {
		t.Errorf("Expected no error when nothing matches, got %v", err)
	}
}

func TestRedisCache_Exists(t *testing.T) {
	c, mr, _ := setupTestRedis(t)
	ctx := context.Background()

	mr.Set("here", "1")

	ok, err := c.Exists(ctx, "here")
	if err != nil || !ok {
		t.Errorf("Expected key to exist, got %v, %v", ok, err)
	}
	ok, err = c.Exists(ctx, "gone")
	if err != nil || ok {
		t.Errorf("Expected key to be absent, got %v, %v", ok, err)
	}
}

func TestRedisCache_Tags(t *testing.T) {
	c, mr, _ := setupTestRedis(t)
	ctx := context.Background()

	if err := c.SetWithTags(ctx, "task:1", "one", time.Minute, []string{"project:9"}); err != nil {
		t.Fatalf("SetWithTags failed: %v", err)
	}
	if err := c.SetWithTags(ctx, "task:2", "two", time.Minute, []string{"project:9"}); err != nil {
		t.Fatalf("SetWithTags failed: %v", err)
	}

	if err := c.InvalidateByTag(ctx, "project:9"); err != nil {
		t.Fatalf("InvalidateByTag failed: %v", err)
	}
	for _, key := range []string{"task:1", "task:2", tagKey("project:9")} {
		if mr.Exists(key) {
			t.Errorf("Expected %s to be removed", key)
		}
	}
}

func TestRedisCache_HealthAndStats(t *testing.T) {
	c, mr, _ := setupTestRedis(t)

	if err := c.Health(context.Background()); err != nil {
		t.Errorf("Expected healthy cache, got %v", err)
	}

	stats := c.Stats()
	if stats["breaker"] != "closed" {
		t.Errorf("Expected closed breaker, got %v", stats["breaker"])
	}
	if _, ok := stats["pool_total"]; !ok {
		t.Error("Expected pool stats to be reported")
	}

	mr.Close()
	if err := c.Health(context.Background()); err == nil {
		t.Error("Expected health check to fail once Redis is gone")
	}
}

func TestRedisCache_BreakerOpensWhenRedisIsDown(t *testing.T) {
	c, mr, metrics := setupTestRedis(t)
	ctx := context.Background()
	mr.Close()

	var got string
	for i := 0; i < int(DefaultCircuitBreakerConfig().MaxFailures); i++ {
		if err := c.Get(ctx, "k", &got); err == nil || err == ErrCacheDown {
			t.Fatalf("Expected a connection error on attempt %d, got %v", i, err)
		}
	}

	if err := c.Get(ctx, "k", &got); err != ErrCacheDown {
		t.Fatalf("Expected ErrCacheDown once the breaker is open, got %v", err)
	}
	if metrics.Count("get", "rejected") != 1 {
		t.Errorf("Expected one rejected get, got %v", metrics.Count("get", "rejected"))
	}
	if metrics.Count("get", "error") != float64(DefaultCircuitBreakerConfig().MaxFailures) {
		t.Errorf("Expected %d errored gets, got %v", DefaultCircuitBreakerConfig().MaxFailures, metrics.Count("get", "error"))
	}
}
