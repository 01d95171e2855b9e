package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrCacheNotAvailable = errors.New("cache not available")
	ErrCacheNotFound     = errors.New("cache not found")
)

type CacheConfig struct {
	TTL    time.Duration
	Prefix string
}

var (
	// Exams are read on every access and autosave; status changes invalidate.
	ExamCacheConfig = CacheConfig{
		TTL:    2 * time.Minute,
		Prefix: "exam:",
	}

	// Supervisor and roster predicates.
	AccessCacheConfig = CacheConfig{
		TTL:    2 * time.Minute,
		Prefix: "access:",
	}
)

// CacheHelper is a prefixed view over a redis client. A nil client turns every
// read into a miss and every write into a no-op.
type CacheHelper struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewCacheHelper(client *redis.Client, cfg CacheConfig) *CacheHelper {
	return &CacheHelper{client: client, prefix: cfg.Prefix, ttl: cfg.TTL}
}

func (c *CacheHelper) Key(key string) string {
	return c.prefix + key
}

func (c *CacheHelper) TTL() time.Duration {
	return c.ttl
}

func (c *CacheHelper) Get(ctx context.Context, key string, dest interface{}) error {
	if c.client == nil {
		return ErrCacheNotAvailable
	}

	data, err := c.client.Get(ctx, c.Key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheNotFound
		}
		return fmt.Errorf("cache get error: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("cache unmarshal error: %w", err)
	}
	return nil
}

func (c *CacheHelper) Set(ctx context.Context, key string, value interface{}) error {
	if c.client == nil {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal error: %w", err)
	}
	return c.client.Set(ctx, c.Key(key), data, c.ttl).Err()
}

func (c *CacheHelper) Delete(ctx context.Context, keys ...string) error {
	if c.client == nil || len(keys) == 0 {
		return nil
	}

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.Key(k)
	}
	return c.client.Del(ctx, full...).Err()
}

// InvalidatePattern deletes keys matching pattern using SCAN, never KEYS.
func (c *CacheHelper) InvalidatePattern(ctx context.Context, pattern string) error {
	if c.client == nil {
		return nil
	}

	var (
		cursor uint64
		keys   []string
	)
	for {
		batch, next, err := c.client.Scan(ctx, cursor, c.Key(pattern), 100).Result()
		if err != nil {
			return fmt.Errorf("cache scan pattern error: %w", err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}

	if len(keys) == 0 {
		return nil
	}

	pipe := c.client.Pipeline()
	const batchSize = 100
	for i := 0; i < len(keys); i += batchSize {
		end := min(i+batchSize, len(keys))
		pipe.Del(ctx, keys[i:end]...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache pipeline delete error: %w", err)
	}
	return nil
}

// CacheOrExecute is cache-aside: a hit returns the cached value, a miss runs
// fetch and stores its result. Cache failures never fail the call.
func CacheOrExecute[T any](ctx context.Context, c *CacheHelper, key string, fetch func() (T, error)) (T, error) {
	return CacheOrExecuteWhen(ctx, c, key, fetch, func(T) bool { return true })
}

// CacheOrExecuteWhen stores a fetched value only when keep accepts it, for
// predicates whose false answer can flip without an invalidation.
func CacheOrExecuteWhen[T any](ctx context.Context, c *CacheHelper, key string, fetch func() (T, error), keep func(T) bool) (T, error) {
	var cached T
	err := c.Get(ctx, key, &cached)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, ErrCacheNotFound) && !errors.Is(err, ErrCacheNotAvailable) {
		slog.WarnContext(ctx, "Cache get error, proceeding to fetch", "error", err, "key", c.Key(key))
	}

	value, err := fetch()
	if err != nil || !keep(value) {
		return value, err
	}

	if err := c.Set(ctx, key, value); err != nil {
		slog.WarnContext(ctx, "Cache set error", "error", err, "key", c.Key(key))
	}
	return value, nil
}

type CacheManager struct {
	client *redis.Client

	Exam   *CacheHelper
	Access *CacheHelper
}

func NewCacheManager(client *redis.Client) *CacheManager {
	return &CacheManager{
		client: client,
		Exam:   NewCacheHelper(client, ExamCacheConfig),
		Access: NewCacheHelper(client, AccessCacheConfig),
	}
}

func (cm *CacheManager) Enabled() bool {
	return cm.client != nil
}

func (cm *CacheManager) HealthCheck(ctx context.Context) error {
	if cm.client == nil {
		return ErrCacheNotAvailable
	}
	if err := cm.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("cache health check failed: %w", err)
	}
	return nil
}
