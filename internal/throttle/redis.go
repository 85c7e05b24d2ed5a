// Package throttle keeps httprate counters in Redis so every server
// instance draws from the same per-user quota.
package throttle

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-chi/httprate"
	"github.com/redis/go-redis/v9"
)

const defaultTimeout = 500 * time.Millisecond

type commands interface {
	IncrBy(ctx context.Context, key string, value int64) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
}

var _ httprate.LimitCounter = (*RedisCounter)(nil)

// RedisCounter stores one counter per key and window start. Redis failures
// are logged and read as an empty window, so sends are never blocked by an
// unavailable quota store.
type RedisCounter struct {
	client  commands
	prefix  string
	window  time.Duration
	timeout time.Duration
}

func NewRedisCounter(client *redis.Client, prefix string) *RedisCounter {
	return newRedisCounter(client, prefix)
}

func newRedisCounter(client commands, prefix string) *RedisCounter {
	if prefix == "" {
		prefix = "rate_limit:"
	}
	return &RedisCounter{client: client, prefix: prefix, window: time.Minute, timeout: defaultTimeout}
}

// Config is called by httprate with the limiter's window.
func (c *RedisCounter) Config(_ int, windowLength time.Duration) {
	c.window = windowLength
}

func (c *RedisCounter) Increment(key string, currentWindow time.Time) error {
	return c.IncrementBy(key, currentWindow, 1)
}

func (c *RedisCounter) IncrementBy(key string, currentWindow time.Time, amount int) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	redisKey := c.key(key, currentWindow)
	count, err := c.client.IncrBy(ctx, redisKey, int64(amount)).Result()
	if err != nil {
		slog.Warn("send quota increment failed", "component", "throttle", "error", err)
		return nil
	}
	// The previous window is still read for the sliding estimate.
	if count == int64(amount) {
		if err := c.client.Expire(ctx, redisKey, 2*c.window).Err(); err != nil {
			slog.Warn("send quota expiry failed", "component", "throttle", "error", err, "key", redisKey)
		}
	}
	return nil
}

func (c *RedisCounter) Get(key string, currentWindow, previousWindow time.Time) (int, int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	values, err := c.client.MGet(ctx, c.key(key, currentWindow), c.key(key, previousWindow)).Result()
	if err != nil {
		slog.Warn("send quota lookup failed", "component", "throttle", "error", err)
		return 0, 0, nil
	}
	if len(values) != 2 {
		return 0, 0, nil
	}
	return parseCount(values[0]), parseCount(values[1]), nil
}

func (c *RedisCounter) key(key string, window time.Time) string {
	return fmt.Sprintf("%s%s:%d", c.prefix, key, window.Unix())
}

func parseCount(v any) int {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
