package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/layer-3/remitgate/core"
	"github.com/redis/go-redis/v9"
)

// RedisNonceStore is a Redis implementation of ports.NonceStore
type RedisNonceStore struct {
	client *redis.Client
	prefix string
}

// NewRedisNonceStore creates a new Redis nonce store
func NewRedisNonceStore(client *redis.Client) *RedisNonceStore {
	return &RedisNonceStore{
		client: client,
		prefix: "remitgate:nonce:",
	}
}

// Put stores the nonce with a TTL matching its expiry
func (s *RedisNonceStore) Put(ctx context.Context, nonce core.Nonce) error {
	ttl := time.Until(nonce.ExpiresAt)
	if ttl <= 0 {
		return nil
	}

	if err := s.client.Set(ctx, s.prefix+nonce.Identity, nonce.Value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store nonce: %w", err)
	}

	return nil
}

// Consume atomically reads and deletes the nonce with GETDEL
func (s *RedisNonceStore) Consume(ctx context.Context, identity string) (core.Nonce, error) {
	value, err := s.client.GetDel(ctx, s.prefix+identity).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return core.Nonce{}, core.ErrNonceNotFound
		}
		return core.Nonce{}, fmt.Errorf("failed to consume nonce: %w", err)
	}

	return core.Nonce{Identity: identity, Value: value}, nil
}
