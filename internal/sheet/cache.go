package sheet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultTTL é a vida da copia en caché da planilla.
const DefaultTTL = 600 * time.Second

// ErrCacheMiss indica que a clave non está (ou caducou).
var ErrCacheMiss = errors.New("cache miss")

// Cache garda bytes con caducidade.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// ==== memoria ====

// MemoryCache é unha caché en proceso.
type MemoryCache struct {
	mu   sync.Mutex
	data map[string]memEntry
	now  func() time.Time
}

type memEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryCache crea unha caché en memoria.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{data: map[string]memEntry{}, now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.data[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.data, key)
		return nil, ErrCacheMiss
	}
	return e.value, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = memEntry{value: value, expiresAt: c.now().Add(ttl)}
	return nil
}

// ==== redis ====

// RedisCache garda as follas en Redis baixo un prefixo.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache conecta con Redis e comproba a conexión.
func NewRedisCache(ctx context.Context, addr, password string, db int, prefix string) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	if prefix == "" {
		prefix = "fenix:"
	}
	return &RedisCache{client: client, prefix: prefix}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return val, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close pecha a conexión.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// ==== fonte con caché ====

// Cached envolve unha Source: a primeira carga vai á fonte e as seguintes,
// ata que caduque TTL, saen da caché. Un fallo da caché non é fatal.
type Cached struct {
	Source Source
	Cache  Cache
	TTL    time.Duration
	Log    zerolog.Logger
}

func cacheKey(sheetID string, allowed []string) string {
	a := append([]string(nil), allowed...)
	for i := range a {
		a[i] = strings.ToUpper(strings.TrimSpace(a[i]))
	}
	sort.Strings(a)
	return "sheet:" + sheetID + ":" + strings.Join(a, ",")
}

func (c *Cached) Load(ctx context.Context, sheetID string, allowed []string) (map[string]*Table, error) {
	key := cacheKey(sheetID, allowed)
	if b, err := c.Cache.Get(ctx, key); err == nil {
		var tables map[string]*Table
		if err := json.Unmarshal(b, &tables); err == nil {
			c.Log.Debug().Str("key", key).Msg("sheet cache hit")
			return tables, nil
		}
	} else if !errors.Is(err, ErrCacheMiss) {
		c.Log.Warn().Err(err).Msg("sheet cache get")
	}

	tables, err := c.Source.Load(ctx, sheetID, allowed)
	if err != nil {
		return nil, err
	}
	ttl := c.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	b, err := json.Marshal(tables)
	if err == nil {
		err = c.Cache.Set(ctx, key, b, ttl)
	}
	if err != nil {
		c.Log.Warn().Err(err).Msg("sheet cache set")
	}
	c.Log.Debug().Str("key", key).Int("tables", len(tables)).Msg("sheet loaded")
	return tables, nil
}
