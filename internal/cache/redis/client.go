package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const defaultDialTimeout = 5 * time.Second

// Config задаёт параметры подключения к Redis.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Client оборачивает go-redis и раздаёт адаптеры доменных кэшей.
type Client struct {
	rdb    goredis.UniversalClient
	logger *log.Entry
}

// Connect открывает подключение и проверяет его PING-ом.
func Connect(ctx context.Context, cfg Config, logger *log.Entry) (*Client, error) {
	if logger == nil {
		logger = log.WithField("component", "redis")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: defaultDialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, defaultDialTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	logger.WithField("addr", cfg.Addr).Info("redis connected")
	return &Client{rdb: rdb, logger: logger}, nil
}

// NewClient оборачивает уже созданный клиент go-redis.
func NewClient(rdb goredis.UniversalClient, logger *log.Entry) *Client {
	if logger == nil {
		logger = log.WithField("component", "redis")
	}
	return &Client{rdb: rdb, logger: logger}
}

// Ping проверяет доступность Redis. Используется readiness-пробой.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close закрывает подключение.
func (c *Client) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

// Reservations возвращает кэш резервов товаров.
func (c *Client) Reservations() *ReservationCache {
	return &ReservationCache{rdb: c.rdb}
}

// Carts возвращает кэш снимков корзин.
func (c *Client) Carts() *CartCache {
	return &CartCache{rdb: c.rdb}
}

// Locker возвращает распределённую блокировку корзин.
func (c *Client) Locker(opts ...LockOption) *CartLocker {
	return newCartLocker(c.rdb, c.logger, opts...)
}

// Idempotency возвращает хранилище ключей идемпотентности.
func (c *Client) Idempotency() *IdempotencyStore {
	return &IdempotencyStore{rdb: c.rdb}
}
