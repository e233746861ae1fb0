package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrementScript increments a counter and starts its window on first hit
var incrementScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisRateCounter is a Redis implementation of ports.RateCounter
type RedisRateCounter struct {
	client *redis.Client
	prefix string
}

// NewRedisRateCounter creates a new Redis rate counter
func NewRedisRateCounter(client *redis.Client) *RedisRateCounter {
	return &RedisRateCounter{
		client: client,
		prefix: "remitgate:ratelimit:",
	}
}

// Increment atomically bumps the window counter for key
func (c *RedisRateCounter) Increment(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	res, err := incrementScript.Run(ctx, c.client, []string{c.prefix + key}, window.Milliseconds()).Slice()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to increment counter: %w", err)
	}
	if len(res) != 2 {
		return 0, time.Time{}, fmt.Errorf("unexpected counter reply: %v", res)
	}

	count, ok := res[0].(int64)
	if !ok {
		return 0, time.Time{}, fmt.Errorf("unexpected counter value: %v", res[0])
	}
	ttl, ok := res[1].(int64)
	if !ok {
		return 0, time.Time{}, fmt.Errorf("unexpected ttl value: %v", res[1])
	}

	return count, time.Now().Add(time.Duration(ttl) * time.Millisecond), nil
}
