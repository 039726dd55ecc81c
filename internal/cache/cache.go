// Package cache stores JSON query results in redis. A nil *Cache is a valid
// disabled cache.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/viant/sqlite-kd/internal/metrics"
)

// Cache wraps a redis client with a key prefix and TTL.
type Cache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// Open connects to redis at addr; an empty addr disables caching.
func Open(addr, pass string, db int, ttl time.Duration) *Cache {
	if addr == "" || strings.HasPrefix(addr, ":") {
		return nil
	}
	return New(redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db}), ttl)
}

// New wraps an existing client.
func New(client *redis.Client, ttl time.Duration) *Cache {
	if client == nil {
		return nil
	}
	return &Cache{client: client, prefix: "kd:", ttl: ttl}
}

// Ping checks connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.client.Ping(ctx).Err()
}

// Close releases the client.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

// Key builds a cache key versioned by the dataset epoch and size. Inserts
// change the size; removals and invalidations bump the epoch.
func Key(dataset string, epoch int64, size int, query string, args ...float64) string {
	var b strings.Builder
	b.WriteString(dataset)
	b.WriteByte(':')
	b.WriteString(strconv.FormatInt(epoch, 10))
	b.WriteByte('.')
	b.WriteString(strconv.Itoa(size))
	b.WriteByte(':')
	b.WriteString(query)
	for _, a := range args {
		b.WriteByte(':')
		b.WriteString(strconv.FormatFloat(a, 'g', -1, 64))
	}
	return b.String()
}

// Epoch returns the current epoch of dataset; 0 when never bumped.
func (c *Cache) Epoch(ctx context.Context, dataset string) (int64, error) {
	if c == nil {
		return 0, nil
	}
	n, err := c.client.Get(ctx, c.prefix+"epoch:"+dataset).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// Bump advances the epoch of dataset, retiring every key built before.
func (c *Cache) Bump(ctx context.Context, dataset string) error {
	if c == nil {
		return nil
	}
	return c.client.Incr(ctx, c.prefix+"epoch:"+dataset).Err()
}

// Get decodes the cached value of key into v; ok is false on a miss.
func (c *Cache) Get(ctx context.Context, key string, v interface{}) (bool, error) {
	if c == nil {
		return false, nil
	}
	s, err := c.client.Get(ctx, c.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		metrics.RedisMissesTotal.Inc()
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return false, err
	}
	metrics.RedisHitsTotal.Inc()
	return true, nil
}

// Set stores v under key.
func (c *Cache) Set(ctx context.Context, key string, v interface{}) error {
	if c == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+key, string(b), c.ttl).Err()
}
