package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// ReservationCache хранит резервы как product:reservation:<p>:<c> с TTL
// и индекс корзин по товару в множестве product:reserved:<p>.
type ReservationCache struct {
	rdb goredis.UniversalClient
}

func (c *ReservationCache) Reserve(ctx context.Context, r domain.Reservation, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("%w: reservation ttl must be positive", domain.ErrInvalidInput)
	}
	if r.ReservedAt.IsZero() {
		r.ReservedAt = time.Now().UTC()
	}
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal reservation: %w", err)
	}

	pipe := c.rdb.Pipeline()
	pipe.SetEx(ctx, reservationKey(r.ProductID, r.CartID), body, ttl)
	pipe.SAdd(ctx, reservedIndexKey(r.ProductID), r.CartID)
	pipe.Expire(ctx, reservedIndexKey(r.ProductID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("reserve product %s for cart %s: %w", r.ProductID, r.CartID, err)
	}
	return nil
}

func (c *ReservationCache) Verify(ctx context.Context, productID, cartID string, expectedQty int) (bool, error) {
	body, err := c.rdb.Get(ctx, reservationKey(productID, cartID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get reservation %s/%s: %w", productID, cartID, err)
	}

	var r domain.Reservation
	if err := json.Unmarshal(body, &r); err != nil {
		return false, fmt.Errorf("unmarshal reservation %s/%s: %w", productID, cartID, err)
	}
	return r.Matches(expectedQty), nil
}

func (c *ReservationCache) Release(ctx context.Context, productID, cartID string) error {
	pipe := c.rdb.Pipeline()
	pipe.Del(ctx, reservationKey(productID, cartID))
	pipe.SRem(ctx, reservedIndexKey(productID), cartID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("release reservation %s/%s: %w", productID, cartID, err)
	}
	return nil
}

func (c *ReservationCache) ClearForCart(ctx context.Context, cartID string, productIDs []string) error {
	if len(productIDs) == 0 {
		return nil
	}

	pipe := c.rdb.Pipeline()
	for _, productID := range productIDs {
		pipe.Del(ctx, reservationKey(productID, cartID))
		pipe.SRem(ctx, reservedIndexKey(productID), cartID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("clear reservations for cart %s: %w", cartID, err)
	}
	return nil
}

func (c *ReservationCache) ReservedCarts(ctx context.Context, productID string) ([]string, error) {
	ids, err := c.rdb.SMembers(ctx, reservedIndexKey(productID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list reserved carts for %s: %w", productID, err)
	}
	return ids, nil
}

var _ domain.ReservationCache = (*ReservationCache)(nil)
