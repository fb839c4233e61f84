package source

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Vodeneev/footpredict/internal/pkg/config"
)

// ResponseCache keeps raw provider responses for a short time so repeated
// lookups do not spend the provider's request quota
type ResponseCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}

type memoryEntry struct {
	value   []byte
	expires time.Time
}

// MemoryResponseCache is a process-local ResponseCache
type MemoryResponseCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryResponseCache(now func() time.Time) *MemoryResponseCache {
	if now == nil {
		now = time.Now
	}
	return &MemoryResponseCache{entries: make(map[string]memoryEntry), now: now}
}

func (c *MemoryResponseCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

func (c *MemoryResponseCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{value: value, expires: c.now().Add(ttl)}
}

// RedisResponseCache shares provider responses between processes
type RedisResponseCache struct {
	client *redis.Client
	prefix string
}

func NewRedisResponseCache(cfg *config.RedisConfig) (*RedisResponseCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Check connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisResponseCache{client: client, prefix: "footpredict:source:"}, nil
}

func (r *RedisResponseCache) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		return nil, false
	}
	return data, true
}

// Set stores value with ttl. Write failures only cost a cache miss later.
func (r *RedisResponseCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	_ = r.client.Set(ctx, r.prefix+key, value, ttl).Err()
}

// Close closes Redis connection
func (r *RedisResponseCache) Close() error {
	return r.client.Close()
}
