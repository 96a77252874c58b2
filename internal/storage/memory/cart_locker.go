package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

const defaultLockWait = 2 * time.Second

// CartLocker — блокировка корзины внутри одного процесса.
type CartLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
	wait  time.Duration
}

// NewCartLocker создаёт locker; wait ограничивает ожидание занятой корзины.
func NewCartLocker(wait time.Duration) *CartLocker {
	if wait <= 0 {
		wait = defaultLockWait
	}
	return &CartLocker{locks: make(map[string]chan struct{}), wait: wait}
}

// Lock ждёт освобождения корзины не дольше wait, затем возвращает ErrCartBusy.
func (l *CartLocker) Lock(ctx context.Context, cartID string) (func(), error) {
	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	for {
		l.mu.Lock()
		held, busy := l.locks[cartID]
		if !busy {
			ch := make(chan struct{})
			l.locks[cartID] = ch
			l.mu.Unlock()

			var once sync.Once
			return func() {
				once.Do(func() {
					l.mu.Lock()
					delete(l.locks, cartID)
					l.mu.Unlock()
					close(ch)
				})
			}, nil
		}
		l.mu.Unlock()

		select {
		case <-held:
		case <-timer.C:
			return nil, domain.ErrCartBusy
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

var _ domain.CartLocker = (*CartLocker)(nil)
