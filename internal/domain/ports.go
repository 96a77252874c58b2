package domain

import (
	"context"
	"time"
)

// ReservationCache — TTL-хранилище резервов (productId, cartId) -> Reservation
// с индексом корзин по товару.
type ReservationCache interface {
	// Reserve записывает (перезаписывает) резерв и обновляет индекс товара.
	Reserve(ctx context.Context, reservation Reservation, ttl time.Duration) error
	// Verify возвращает true, только если резерв есть и количество совпадает точно.
	Verify(ctx context.Context, productID, cartID string, expectedQty int) (bool, error)
	// Release удаляет резерв. Идемпотентна.
	Release(ctx context.Context, productID, cartID string) error
	// ClearForCart удаляет резервы корзины по перечисленным товарам. Идемпотентна.
	ClearForCart(ctx context.Context, cartID string, productIDs []string) error
	// ReservedCarts возвращает корзины, удерживающие товар.
	ReservedCarts(ctx context.Context, productID string) ([]string, error)
}

// CartCache хранит снимки корзин.
type CartCache interface {
	// Get возвращает корзину; (nil, nil) при промахе.
	Get(ctx context.Context, id string) (*Cart, error)
	Set(ctx context.Context, cart *Cart, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
	// MarkClosed ставит tombstone, чтобы запоздавшая запись не воскресила корзину.
	MarkClosed(ctx context.Context, id string, ttl time.Duration) error
	IsClosed(ctx context.Context, id string) (bool, error)
}

// CartLocker сериализует изменения одной корзины между запросами.
type CartLocker interface {
	// Lock возвращает функцию снятия блокировки или ErrCartBusy.
	Lock(ctx context.Context, cartID string) (func(), error)
}

// IdempotencyStore защищает фоновые задачи от повторной доставки.
type IdempotencyStore interface {
	// Acquire возвращает true, если ключ занят впервые.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release освобождает ключ, чтобы повтор задачи мог выполниться.
	Release(ctx context.Context, key string) error
}

// JobQueue ставит фоновые задачи.
type JobQueue interface {
	Enqueue(ctx context.Context, topic string, payload any, policy RetryPolicy) error
}

// NotificationPublisher передаёт уведомление внешнему сервису.
type NotificationPublisher interface {
	PublishNotification(ctx context.Context, notification SendNotificationPayload) error
}

// DeadLetterPublisher получает задачи, исчерпавшие попытки.
type DeadLetterPublisher interface {
	PublishDeadLetter(ctx context.Context, job Job, cause error) error
}
