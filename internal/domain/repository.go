package domain

import (
	"context"
	"time"
)

// ProductRepository — чтение и администрирование товаров вне транзакции checkout.
type ProductRepository interface {
	// Create сохраняет новый товар.
	Create(ctx context.Context, product *Product) error
	// Get возвращает товар или ErrProductNotFound.
	Get(ctx context.Context, id string) (*Product, error)
	// ListByOrganization возвращает товары организации, новые первыми.
	ListByOrganization(ctx context.Context, organizationID string) ([]*Product, error)
}

// CartRepository — durable-хранилище корзин.
type CartRepository interface {
	// Get возвращает корзину или ErrCartNotFound.
	Get(ctx context.Context, id string) (*Cart, error)
	// UpdateActive перезаписывает активную строку корзины, если снимок не старее её.
	// Отсутствующую или закрытую строку не трогает: строку создаёт только транзакция.
	UpdateActive(ctx context.Context, cart *Cart) error
	// Delete удаляет строку корзины; отсутствие строки не ошибка.
	Delete(ctx context.Context, id string) error
	// ListExpiredActive возвращает активные корзины с expiresAt < before.
	ListExpiredActive(ctx context.Context, before time.Time, limit int) ([]*Cart, error)
}

// OrderRepository — чтение заказов и смена статуса вне checkout.
type OrderRepository interface {
	// Get возвращает заказ или ErrOrderNotFound.
	Get(ctx context.Context, id string) (Order, error)
	// ListByOrganization возвращает заказы, в которых участвует организация.
	ListByOrganization(ctx context.Context, organizationID string) ([]Order, error)
	// UpdateStatus меняет статус заказа.
	UpdateStatus(ctx context.Context, id string, status OrderStatus, updatedAt time.Time) error
}

// ProductTxRepository работает с товарами внутри транзакции.
type ProductTxRepository interface {
	// FindByIDForUpdate берёт эксклюзивную блокировку строки товара.
	FindByIDForUpdate(ctx context.Context, id string) (*Product, error)
	// FindByIDsForUpdate блокирует товары одним запросом в порядке возрастания id.
	// Отсутствующие товары просто не попадают в результат.
	FindByIDsForUpdate(ctx context.Context, ids []string) ([]*Product, error)
	// Save сохраняет остатки и атрибуты товара.
	Save(ctx context.Context, product *Product) error
}

// CartTxRepository работает с корзиной внутри транзакции.
type CartTxRepository interface {
	// FindByIDForUpdate блокирует строку корзины или возвращает ErrCartNotFound.
	FindByIDForUpdate(ctx context.Context, id string) (*Cart, error)
	Save(ctx context.Context, cart *Cart) error
	Delete(ctx context.Context, id string) error
}

// OrderTxRepository создаёт заказ внутри транзакции.
type OrderTxRepository interface {
	Create(ctx context.Context, order Order) error
}

// Tx — набор репозиториев, разделяющих одну транзакцию.
type Tx interface {
	Products() ProductTxRepository
	Carts() CartTxRepository
	Orders() OrderTxRepository
}

// Transactor выполняет fn в транзакции: коммит при nil, откат при ошибке.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// JobRepository хранит задачи очереди.
type JobRepository interface {
	Enqueue(ctx context.Context, job Job) (Job, error)
	// ClaimDue забирает до limit задач с nextRunAt <= now и продлевает их lease.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]Job, error)
	MarkDone(ctx context.Context, id string) error
	// ScheduleRetry фиксирует неудачную попытку и время следующей.
	ScheduleRetry(ctx context.Context, id string, attempts int, nextRunAt time.Time, lastErr string) error
	MarkFailed(ctx context.Context, id string, attempts int, lastErr string) error
	Requeue(ctx context.Context, id string) error
	Stats(ctx context.Context) (JobStats, error)
}
