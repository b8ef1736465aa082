package adapter

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	dErrors "attestor/pkg/domain-errors"
)

const redisCASPrefix = "cas:"

// RedisContentStore keeps content-addressed objects in Redis under
// "cas:<digest>". Objects are immutable, so SetNX suffices for idempotent
// writes and concurrent writers of equal payloads cannot disagree.
type RedisContentStore struct {
	client redis.Cmdable
}

// NewRedisContentStore wraps a Redis client as a content store.
func NewRedisContentStore(client redis.Cmdable) *RedisContentStore {
	return &RedisContentStore{client: client}
}

func (s *RedisContentStore) Put(ctx context.Context, payload []byte) (string, error) {
	addr := ContentAddress(payload)
	if err := s.client.SetNX(ctx, redisCASPrefix+addr, payload, 0).Err(); err != nil {
		return "", fmt.Errorf("redis cas put: %w", err)
	}
	return addr, nil
}

func (s *RedisContentStore) Get(ctx context.Context, address string) ([]byte, error) {
	payload, err := s.client.Get(ctx, redisCASPrefix+address).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "no content at %s", address)
		}
		return nil, fmt.Errorf("redis cas get: %w", err)
	}
	return payload, nil
}

var _ ContentStore = (*RedisContentStore)(nil)
