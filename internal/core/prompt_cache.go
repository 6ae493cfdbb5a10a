package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// CachedTemplate is a rendered template tagged with the connection version it
// was rendered from. A version mismatch is a miss.
type CachedTemplate struct {
	Version  int64  `json:"version"`
	Template string `json:"template"`
}

// TemplateCache holds connection-scoped prompt templates keyed by connection id.
type TemplateCache interface {
	Get(ctx context.Context, connectionID string) (CachedTemplate, bool, error)
	Set(ctx context.Context, connectionID string, tmpl CachedTemplate) error
	Invalidate(ctx context.Context, connectionID string) error
}

type MemoryTemplateCache struct {
	mu      sync.RWMutex
	entries map[string]CachedTemplate
}

func NewMemoryTemplateCache() *MemoryTemplateCache {
	return &MemoryTemplateCache{entries: make(map[string]CachedTemplate)}
}

func (c *MemoryTemplateCache) Get(_ context.Context, connectionID string) (CachedTemplate, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.entries[connectionID]
	return t, ok, nil
}

func (c *MemoryTemplateCache) Set(_ context.Context, connectionID string, tmpl CachedTemplate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	// never overwrite a newer render with an older one
	if cur, ok := c.entries[connectionID]; ok && cur.Version > tmpl.Version {
		return nil
	}
	c.entries[connectionID] = tmpl
	return nil
}

func (c *MemoryTemplateCache) Invalidate(_ context.Context, connectionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, connectionID)
	return nil
}

// RedisTemplateCache shares templates between server instances.
type RedisTemplateCache struct {
	rdb    *goredis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisTemplateCache connects to addr and verifies the connection.
func NewRedisTemplateCache(ctx context.Context, addr string, ttl time.Duration) (*RedisTemplateCache, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisTemplateCacheWithClient(rdb, ttl), nil
}

func NewRedisTemplateCacheWithClient(rdb *goredis.Client, ttl time.Duration) *RedisTemplateCache {
	return &RedisTemplateCache{rdb: rdb, prefix: "botsystem:template:", ttl: ttl}
}

func (c *RedisTemplateCache) key(connectionID string) string {
	return c.prefix + connectionID
}

func (c *RedisTemplateCache) Get(ctx context.Context, connectionID string) (CachedTemplate, bool, error) {
	raw, err := c.rdb.Get(ctx, c.key(connectionID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return CachedTemplate{}, false, nil
	}
	if err != nil {
		return CachedTemplate{}, false, fmt.Errorf("redis get: %w", err)
	}
	var t CachedTemplate
	if err := json.Unmarshal(raw, &t); err != nil {
		return CachedTemplate{}, false, fmt.Errorf("decode cached template: %w", err)
	}
	return t, true, nil
}

func (c *RedisTemplateCache) Set(ctx context.Context, connectionID string, tmpl CachedTemplate) error {
	raw, err := json.Marshal(tmpl)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.key(connectionID), raw, c.ttl).Err()
}

func (c *RedisTemplateCache) Invalidate(ctx context.Context, connectionID string) error {
	return c.rdb.Del(ctx, c.key(connectionID)).Err()
}

func (c *RedisTemplateCache) Close() error {
	return c.rdb.Close()
}
