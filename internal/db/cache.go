package db

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"ohnitiel/upsql/internal/config"
	"ohnitiel/upsql/internal/locale"
)

// Cache stores drained results per profile and query.
type Cache interface {
	Get(ctx context.Context, profile string, query string) (*ResultSet, bool)
	Set(ctx context.Context, profile string, query string, results *ResultSet)
}

// NewCache builds the backend selected in conf. A nil Cache means caching
// is off.
func NewCache(conf config.CacheConfig) Cache {
	if !conf.UseCache {
		return nil
	}

	if conf.Backend == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     conf.Redis.Addr,
			Password: conf.Redis.Password,
			DB:       conf.Redis.DB,
		})
		return NewRedisCache(client, conf.Redis.Prefix, conf.MaxAge)
	}

	return NewMemoryCache(conf.MaxAge)
}

type CacheEntry struct {
	Results   *ResultSet
	Timestamp time.Time
}

// MemoryCache is a thread-safe in-memory cache
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]CacheEntry
	maxAge  time.Duration
	now     func() time.Time
}

func NewMemoryCache(maxAge time.Duration) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]CacheEntry),
		maxAge:  maxAge,
		now:     time.Now,
	}
}

func (c *MemoryCache) Set(_ context.Context, profile string, query string, results *ResultSet) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.invalidateOlder(c.maxAge)
	c.entries[getCacheKey(profile, query)] = CacheEntry{
		Results:   results,
		Timestamp: c.now(),
	}
}

func (c *MemoryCache) Get(ctx context.Context, profile string, query string) (*ResultSet, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[getCacheKey(profile, query)]
	if !ok {
		return nil, false
	}

	if c.now().Sub(entry.Timestamp) > c.maxAge {
		slog.InfoContext(ctx, locale.L.Logs.CacheExpired, "profile", profile)
		return nil, false
	}

	return entry.Results, true
}

// Len reports how many entries are held, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Removes all cache entries older than the given duration
func (c *MemoryCache) invalidateOlder(olderThan time.Duration) {
	clearOlderThan := c.now().Add(-olderThan)

	for key, entry := range c.entries {
		if entry.Timestamp.Before(clearOlderThan) {
			delete(c.entries, key)
		}
	}
}

// RedisCache shares results between processes. Entries expire through the
// redis TTL.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisCache(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = "upsql:"
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, profile string, query string) (*ResultSet, bool) {
	b, err := c.client.Get(ctx, c.prefix+getCacheKey(profile, query)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		slog.WarnContext(ctx, "Cache read failed", "profile", profile, "error", err)
		return nil, false
	}

	results, err := decodeResultSet(b)
	if err != nil {
		slog.WarnContext(ctx, "Cache entry unreadable", "profile", profile, "error", err)
		return nil, false
	}
	return results, true
}

func (c *RedisCache) Set(ctx context.Context, profile string, query string, results *ResultSet) {
	b, err := json.Marshal(results)
	if err != nil {
		slog.WarnContext(ctx, "Cache entry not encodable", "profile", profile, "error", err)
		return
	}

	if err := c.client.Set(ctx, c.prefix+getCacheKey(profile, query), b, c.ttl).Err(); err != nil {
		slog.WarnContext(ctx, "Cache write failed", "profile", profile, "error", err)
	}
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// decodeResultSet keeps integral numbers as int64, as the query layer
// delivers them.
func decodeResultSet(b []byte) (*ResultSet, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	var rs ResultSet
	if err := dec.Decode(&rs); err != nil {
		return nil, err
	}

	for _, row := range rs.Rows {
		for i, v := range row {
			row[i] = normalizeNumber(v)
		}
	}
	return &rs, nil
}

func normalizeNumber(v any) any {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		f, _ := n.Float64()
		return f
	case []any:
		for i := range n {
			n[i] = normalizeNumber(n[i])
		}
	case map[string]any:
		for k := range n {
			n[k] = normalizeNumber(n[k])
		}
	}
	return v
}

// getCacheKey length-prefixes the profile so no profile/query pair can
// produce the same input as another.
func getCacheKey(profile string, query string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d:%s", len(profile), profile)
	h.Write([]byte(query))

	return fmt.Sprintf("%x", h.Sum(nil))
}
