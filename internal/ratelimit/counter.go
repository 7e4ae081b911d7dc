package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/httprate"
	"github.com/redis/go-redis/v9"
)

// RedisCounter is an httprate.LimitCounter shared by every API replica.
// Counters live under <prefix>:<key>:<window start unix> and expire after two
// windows so the sliding-window estimate can still read the previous one.
type RedisCounter struct {
	client  redis.UniversalClient
	prefix  string
	timeout time.Duration
	window  time.Duration
}

// NewRedisCounter constructs a RedisCounter.
func NewRedisCounter(client redis.UniversalClient, prefix string, timeout time.Duration) *RedisCounter {
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	return &RedisCounter{client: client, prefix: prefix, timeout: timeout, window: time.Hour}
}

// Config is called by httprate with the limiter's window.
func (c *RedisCounter) Config(_ int, windowLength time.Duration) {
	c.window = windowLength
}

// Increment adds one request to the window.
func (c *RedisCounter) Increment(key string, currentWindow time.Time) error {
	return c.IncrementBy(key, currentWindow, 1)
}

// IncrementBy adds amount requests to the window.
func (c *RedisCounter) IncrementBy(key string, currentWindow time.Time, amount int) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	k := c.key(key, currentWindow)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.IncrBy(ctx, k, int64(amount))
		pipe.Expire(ctx, k, 2*c.window)
		return nil
	})
	if err != nil {
		return fmt.Errorf("ratelimit: increment: %w", err)
	}
	return nil
}

// Get returns the current and previous window counts.
func (c *RedisCounter) Get(key string, currentWindow, previousWindow time.Time) (int, int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	values, err := c.client.MGet(ctx, c.key(key, currentWindow), c.key(key, previousWindow)).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("ratelimit: get: %w", err)
	}
	counts := [2]int{}
	for i, v := range values {
		if i >= len(counts) {
			break
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, 0, fmt.Errorf("ratelimit: parse counter: %w", err)
		}
		counts[i] = n
	}
	return counts[0], counts[1], nil
}

func (c *RedisCounter) key(key string, window time.Time) string {
	return fmt.Sprintf("%s:%s:%d", c.prefix, strings.TrimSuffix(key, ":"), window.Unix())
}

var _ httprate.LimitCounter = (*RedisCounter)(nil)
