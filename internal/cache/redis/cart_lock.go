package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// unlockScript удаляет ключ, только если он всё ещё принадлежит владельцу токена.
var unlockScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LockOptions задаёт параметры распределённой блокировки.
type LockOptions struct {
	// TTL защищает от вечной блокировки, если процесс упал до unlock.
	TTL          time.Duration
	Wait         time.Duration
	RetryBackoff time.Duration
}

// LockOption настраивает CartLocker.
type LockOption func(*LockOptions)

// WithLockTTL задаёт время жизни ключа блокировки.
func WithLockTTL(ttl time.Duration) LockOption {
	return func(o *LockOptions) {
		if ttl > 0 {
			o.TTL = ttl
		}
	}
}

// WithLockWait задаёт, сколько ждать занятую корзину до ErrCartBusy.
func WithLockWait(wait time.Duration) LockOption {
	return func(o *LockOptions) {
		if wait >= 0 {
			o.Wait = wait
		}
	}
}

// CartLocker — блокировка lock:cart:<id> через SET NX PX.
type CartLocker struct {
	rdb    goredis.UniversalClient
	opts   LockOptions
	logger *log.Entry
}

func newCartLocker(rdb goredis.UniversalClient, logger *log.Entry, opts ...LockOption) *CartLocker {
	options := LockOptions{
		TTL:          10 * time.Second,
		Wait:         2 * time.Second,
		RetryBackoff: 25 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &CartLocker{rdb: rdb, opts: options, logger: logger}
}

func (l *CartLocker) Lock(ctx context.Context, cartID string) (func(), error) {
	key := cartLockKey(cartID)
	token := uuid.NewString()
	deadline := time.Now().Add(l.opts.Wait)

	for {
		ok, err := l.rdb.SetNX(ctx, key, token, l.opts.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire cart lock %s: %w", cartID, err)
		}
		if ok {
			return func() { l.unlock(key, token) }, nil
		}
		if !time.Now().Add(l.opts.RetryBackoff).Before(deadline) {
			return nil, domain.ErrCartBusy
		}

		select {
		case <-time.After(l.opts.RetryBackoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (l *CartLocker) unlock(key, token string) {
	// Снятие не зависит от контекста запроса: отменённый запрос всё равно должен освободить корзину.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := unlockScript.Run(ctx, l.rdb, []string{key}, token).Err(); err != nil && !errors.Is(err, goredis.Nil) {
		l.logger.WithError(err).WithField("key", key).Warn("failed to release cart lock")
	}
}

var _ domain.CartLocker = (*CartLocker)(nil)
