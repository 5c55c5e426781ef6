package generation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/otherjamesbrown/studynotes-cli/pkg/logging"
	"github.com/otherjamesbrown/studynotes-cli/pkg/observability"
)

// DefaultCachePrefix namespaces cached responses in Redis.
const DefaultCachePrefix = "studynotes:gen:"

// Cache stores generated responses by key.
type Cache interface {
	// Get returns the cached value and whether it was found.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// RedisCache is a Cache backed by Redis string keys.
type RedisCache struct {
	client redis.Cmdable
	prefix string
}

// NewRedisCache creates a cache using client. An empty prefix selects DefaultCachePrefix.
func NewRedisCache(client redis.Cmdable, prefix string) *RedisCache {
	if prefix == "" {
		prefix = DefaultCachePrefix
	}
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, c.prefix+key, value, ttl).Err()
}

// CacheKey derives the cache key for a model and prompt.
func CacheKey(model, prompt string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + prompt))
	return hex.EncodeToString(sum[:])
}

// CacheOption configures WithCache.
type CacheOption func(*cachingGenerator)

// WithCacheLogger logs cache failures. They never fail a generation.
func WithCacheLogger(l logging.Logger) CacheOption {
	return func(c *cachingGenerator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithCacheMetrics counts hits and misses.
func WithCacheMetrics(m *observability.Metrics) CacheOption {
	return func(c *cachingGenerator) {
		c.metrics = m
	}
}

type cachingGenerator struct {
	next    Generator
	cache   Cache
	ttl     time.Duration
	logger  logging.Logger
	metrics *observability.Metrics
}

// WithCache wraps g with a response cache. Only successful responses are stored.
func WithCache(g Generator, cache Cache, ttl time.Duration, opts ...CacheOption) Generator {
	c := &cachingGenerator{
		next:   g,
		cache:  cache,
		ttl:    ttl,
		logger: logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *cachingGenerator) Model() string {
	return ModelOf(c.next)
}

func (c *cachingGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	key := CacheKey(c.Model(), prompt)

	cached, ok, err := c.cache.Get(ctx, key)
	switch {
	case err != nil:
		c.logger.Warn("Cache lookup failed", logging.Err(err))
	case ok:
		c.metrics.RecordCache(observability.CacheHit)
		return cached, nil
	}
	c.metrics.RecordCache(observability.CacheMiss)

	out, err := c.next.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}

	if err := c.cache.Set(ctx, key, out, c.ttl); err != nil {
		c.logger.Warn("Cache store failed", logging.Err(err))
	}
	return out, nil
}
