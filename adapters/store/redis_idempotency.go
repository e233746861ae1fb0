package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/layer-3/remitgate/core"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes a record only while it is still pending
var releaseScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then
	return 0
end
local record = cjson.decode(raw)
if record.status == 'pending' then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisIdempotencyStore is a Redis implementation of ports.IdempotencyStore
type RedisIdempotencyStore struct {
	client *redis.Client
	prefix string
}

// NewRedisIdempotencyStore creates a new Redis idempotency store
func NewRedisIdempotencyStore(client *redis.Client) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{
		client: client,
		prefix: "remitgate:idempotency:",
	}
}

// Reserve uses SET NX so only one caller can own a key
func (s *RedisIdempotencyStore) Reserve(ctx context.Context, key, requestHash string, ttl time.Duration) (core.IdempotencyRecord, bool, error) {
	now := time.Now()
	record := core.IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Status:      core.IdempotencyPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return core.IdempotencyRecord{}, false, fmt.Errorf("failed to encode record: %w", err)
	}

	// A record can expire between SETNX and GET, so try twice
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := s.client.SetNX(ctx, s.prefix+key, payload, ttl).Result()
		if err != nil {
			return core.IdempotencyRecord{}, false, fmt.Errorf("failed to reserve key: %w", err)
		}
		if ok {
			return record, true, nil
		}

		raw, err := s.client.Get(ctx, s.prefix+key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return core.IdempotencyRecord{}, false, fmt.Errorf("failed to load record: %w", err)
		}

		var existing core.IdempotencyRecord
		if err := json.Unmarshal(raw, &existing); err != nil {
			return core.IdempotencyRecord{}, false, fmt.Errorf("failed to decode record: %w", err)
		}
		return existing, false, nil
	}

	return core.IdempotencyRecord{}, false, fmt.Errorf("failed to reserve key %q: record churned", key)
}

// Complete overwrites the pending record for its remaining lifetime
func (s *RedisIdempotencyStore) Complete(ctx context.Context, record core.IdempotencyRecord) error {
	record.Status = core.IdempotencyCompleted
	ttl := time.Until(record.ExpiresAt)
	if ttl <= 0 {
		return nil
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+record.Key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store record: %w", err)
	}

	return nil
}

// Release deletes a pending reservation
func (s *RedisIdempotencyStore) Release(ctx context.Context, key string) error {
	if err := releaseScript.Run(ctx, s.client, []string{s.prefix + key}).Err(); err != nil {
		return fmt.Errorf("failed to release key: %w", err)
	}
	return nil
}
