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

// CartCache хранит JSON-снимки корзин в cart:<id> и tombstone-ы в cart:closed:<id>.
type CartCache struct {
	rdb goredis.UniversalClient
}

func (c *CartCache) Get(ctx context.Context, id string) (*domain.Cart, error) {
	body, err := c.rdb.Get(ctx, cartKey(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cart %s: %w", id, err)
	}

	var cart domain.Cart
	if err := json.Unmarshal(body, &cart); err != nil {
		return nil, fmt.Errorf("unmarshal cart %s: %w", id, err)
	}
	return &cart, nil
}

func (c *CartCache) Set(ctx context.Context, cart *domain.Cart, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	body, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart %s: %w", cart.ID, err)
	}
	if err := c.rdb.SetEx(ctx, cartKey(cart.ID), body, ttl).Err(); err != nil {
		return fmt.Errorf("set cart %s: %w", cart.ID, err)
	}
	return nil
}

func (c *CartCache) Delete(ctx context.Context, id string) error {
	if err := c.rdb.Del(ctx, cartKey(id)).Err(); err != nil {
		return fmt.Errorf("delete cart %s: %w", id, err)
	}
	return nil
}

func (c *CartCache) MarkClosed(ctx context.Context, id string, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, cartClosedKey(id), "1", ttl).Err(); err != nil {
		return fmt.Errorf("mark cart %s closed: %w", id, err)
	}
	return nil
}

func (c *CartCache) IsClosed(ctx context.Context, id string) (bool, error) {
	n, err := c.rdb.Exists(ctx, cartClosedKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("check cart %s tombstone: %w", id, err)
	}
	return n > 0, nil
}

var _ domain.CartCache = (*CartCache)(nil)
