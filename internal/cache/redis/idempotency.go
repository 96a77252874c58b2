package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// IdempotencyStore занимает ключи вида payment:<orderId> через SET NX.
type IdempotencyStore struct {
	rdb goredis.UniversalClient
}

func (s *IdempotencyStore) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire idempotency key %s: %w", key, err)
	}
	return ok, nil
}

func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("release idempotency key %s: %w", key, err)
	}
	return nil
}

var _ domain.IdempotencyStore = (*IdempotencyStore)(nil)
