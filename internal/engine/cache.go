package engine

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// catalogGenKey holds the shared catalog generation in Redis so that a
// catalog write from one process (a CLI scrape, a seed import) invalidates
// reads cached by another (serve).
const catalogGenKey = "gl:catalog_gen"

// genRefresh bounds how stale a process's view of the shared generation may be.
const genRefresh = 2 * time.Second

// queryCache holds catalog reads: L1 in process memory, L2 in Redis.
var queryCache *tieredCache

var (
	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
)

// catalogGen is mixed into every catalog cache key. Bumping it makes all
// previously cached catalog reads unreachable without touching Redis.
var catalogGen atomic.Int64

type tieredCache struct {
	mu      sync.Mutex
	l1      map[string]cacheEntry
	rdb     *redis.Client // nil = L1 only
	ttl     time.Duration
	max     int
	genSeen atomic.Int64 // unix nanos of the last shared generation read
}

type cacheEntry struct {
	data      []byte
	expiresAt time.Time
}

// InitCache sets up the catalog cache. An empty redisURL keeps it in memory;
// ttl <= 0 disables caching.
func InitCache(redisURL string, ttl time.Duration, maxEntries int, cleanupInterval time.Duration) {
	if ttl <= 0 {
		queryCache = nil
		slog.Info("cache: disabled")
		return
	}
	c := &tieredCache{l1: make(map[string]cacheEntry), ttl: ttl, max: maxEntries}
	if redisURL != "" {
		c.rdb = connectRedis(redisURL)
	}
	queryCache = c
	if c.rdb != nil {
		c.syncGeneration(context.Background())
	}
	slog.Info("cache: initialized", slog.Duration("ttl", ttl), slog.Bool("redis", c.rdb != nil), slog.Int("max_entries", maxEntries))

	if cleanupInterval <= 0 {
		cleanupInterval = 5 * time.Minute
	}
	go c.sweep(cleanupInterval)
}

func connectRedis(url string) *redis.Client {
	opts, err := redis.ParseURL(url)
	if err != nil {
		slog.Warn("cache: invalid redis URL, L2 disabled", slog.Any("error", err))
		return nil
	}
	rdb := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("cache: redis unreachable, L2 disabled", slog.Any("error", err))
		return nil
	}
	slog.Info("cache: L2 redis connected", slog.String("addr", opts.Addr))
	return rdb
}

// CacheKey builds a deterministic cache key from parts.
func CacheKey(parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return fmt.Sprintf("gl:%x", hash[:12])
}

// CatalogCacheKey is CacheKey scoped to the current catalog generation.
func CatalogCacheKey(parts ...string) string {
	if c := queryCache; c != nil && c.rdb != nil {
		c.maybeSyncGeneration()
	}
	return CacheKey(append([]string{"catalog", strconv.FormatInt(catalogGen.Load(), 10)}, parts...)...)
}

// InvalidateCatalog drops every cached catalog read. Called after any catalog,
// path, relationship or feedback write.
func InvalidateCatalog() {
	c := queryCache
	if c == nil || c.rdb == nil {
		catalogGen.Add(1)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	gen, err := c.rdb.Incr(ctx, catalogGenKey).Result()
	if err != nil {
		slog.Debug("cache: shared generation bump failed", slog.Any("error", err))
		catalogGen.Add(1)
		return
	}
	storeMaxGen(gen)
	c.genSeen.Store(time.Now().UnixNano())
}

// storeMaxGen never moves the local generation backwards.
func storeMaxGen(gen int64) {
	for {
		cur := catalogGen.Load()
		if gen <= cur || catalogGen.CompareAndSwap(cur, gen) {
			return
		}
	}
}

func (c *tieredCache) maybeSyncGeneration() {
	last := c.genSeen.Load()
	now := time.Now().UnixNano()
	if now-last < int64(genRefresh) || !c.genSeen.CompareAndSwap(last, now) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	c.syncGeneration(ctx)
}

func (c *tieredCache) syncGeneration(ctx context.Context) {
	gen, err := c.rdb.Get(ctx, catalogGenKey).Int64()
	if err != nil && err != redis.Nil {
		slog.Debug("cache: shared generation read failed", slog.Any("error", err))
		return
	}
	storeMaxGen(gen)
	c.genSeen.Store(time.Now().UnixNano())
}

// CacheGet tries L1, then L2. An L2 hit is copied into L1.
func CacheGet(ctx context.Context, key string) ([]byte, bool) {
	c := queryCache
	if c == nil {
		cacheMisses.Add(1)
		return nil, false
	}
	now := time.Now()
	c.mu.Lock()
	entry, ok := c.l1[key]
	if ok && now.After(entry.expiresAt) {
		delete(c.l1, key)
		ok = false
	}
	c.mu.Unlock()
	if ok {
		cacheHits.Add(1)
		return entry.data, true
	}

	if c.rdb != nil {
		if data, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
			slog.Debug("cache: L2 hit", slog.String("key", key))
			cacheHits.Add(1)
			c.put(key, data, now)
			return data, true
		}
	}
	cacheMisses.Add(1)
	return nil, false
}

// CacheSet stores data in both tiers.
func CacheSet(ctx context.Context, key string, data []byte) {
	c := queryCache
	if c == nil {
		return
	}
	c.put(key, data, time.Now())
	if c.rdb != nil {
		if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
			slog.Debug("cache: L2 set failed", slog.Any("error", err))
		}
	}
}

// CacheLoadJSON decodes a cached value. A decode failure counts as a miss.
func CacheLoadJSON[T any](ctx context.Context, key string) (T, bool) {
	var out T
	data, ok := CacheGet(ctx, key)
	if !ok {
		return out, false
	}
	if err := json.Unmarshal(data, &out); err != nil {
		var zero T
		return zero, false
	}
	return out, true
}

// CacheStoreJSON marshals v and stores it.
func CacheStoreJSON[T any](ctx context.Context, key string, v T) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	CacheSet(ctx, key, data)
}

// CacheStats returns the hit and miss counters.
func CacheStats() (hits, misses int64) {
	return cacheHits.Load(), cacheMisses.Load()
}

func (c *tieredCache) put(key string, data []byte, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.l1[key]; !exists && c.max > 0 && len(c.l1) >= c.max {
		c.evictLocked(now)
	}
	c.l1[key] = cacheEntry{data: data, expiresAt: now.Add(c.ttl)}
}

// evictLocked drops expired entries, then the entries closest to expiry
// until there is room for one more.
func (c *tieredCache) evictLocked(now time.Time) {
	for k, e := range c.l1 {
		if now.After(e.expiresAt) {
			delete(c.l1, k)
		}
	}
	for len(c.l1) >= c.max {
		var oldest string
		var oldestAt time.Time
		for k, e := range c.l1 {
			if oldest == "" || e.expiresAt.Before(oldestAt) {
				oldest, oldestAt = k, e.expiresAt
			}
		}
		delete(c.l1, oldest)
	}
}

func (c *tieredCache) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for range ticker.C {
		now := time.Now()
		c.mu.Lock()
		for k, e := range c.l1 {
			if now.After(e.expiresAt) {
				delete(c.l1, k)
			}
		}
		c.mu.Unlock()
	}
}
