package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// Store реализует durable-хранилище в памяти для локальной разработки и тестов.
// Транзакции выполняются строго по очереди: txMu играет роль блокировки строк,
// а изменения копятся в txScope и применяются только при коммите.
type Store struct {
	txMu sync.Mutex

	mu       sync.RWMutex
	products map[string]domain.Product
	carts    map[string]domain.Cart
	orders   map[string]domain.Order
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{
		products: make(map[string]domain.Product),
		carts:    make(map[string]domain.Cart),
		orders:   make(map[string]domain.Order),
	}
}

// Products возвращает репозиторий товаров.
func (s *Store) Products() domain.ProductRepository {
	return &productRepositoryInMemory{store: s}
}

// Carts возвращает репозиторий корзин.
func (s *Store) Carts() domain.CartRepository {
	return &cartRepositoryInMemory{store: s}
}

// Orders возвращает репозиторий заказов.
func (s *Store) Orders() domain.OrderRepository {
	return &orderRepositoryInMemory{store: s}
}

// WithinTx выполняет fn; при ошибке накопленные изменения отбрасываются.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	scope := &txScope{
		store:    s,
		products: make(map[string]domain.Product),
		carts:    make(map[string]*domain.Cart),
		orders:   make(map[string]domain.Order),
	}
	if err := fn(ctx, scope); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range scope.products {
		s.products[id] = p
	}
	for id, cart := range scope.carts {
		if cart == nil {
			delete(s.carts, id)
			continue
		}
		s.carts[id] = cloneCart(*cart)
	}
	for id, order := range scope.orders {
		s.orders[id] = order
	}
	return nil
}

// txScope копит изменения одной транзакции. Чтение видит собственные записи.
type txScope struct {
	store    *Store
	products map[string]domain.Product
	// nil-значение означает удаление корзины.
	carts  map[string]*domain.Cart
	orders map[string]domain.Order
}

func (t *txScope) Products() domain.ProductTxRepository { return (*productTx)(t) }
func (t *txScope) Carts() domain.CartTxRepository       { return (*cartTx)(t) }
func (t *txScope) Orders() domain.OrderTxRepository     { return (*orderTx)(t) }

var (
	_ domain.Transactor = (*Store)(nil)
	_ domain.Tx         = (*txScope)(nil)
)
