package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// ttlMap хранит записи с истечением по времени; безопасна для конкурентного доступа.
type ttlMap[V any] struct {
	mu    sync.Mutex
	now   func() time.Time
	items map[string]ttlEntry[V]
}

type ttlEntry[V any] struct {
	value     V
	expiresAt time.Time
}

func newTTLMap[V any](now func() time.Time) *ttlMap[V] {
	return &ttlMap[V]{now: now, items: make(map[string]ttlEntry[V])}
}

func (m *ttlMap[V]) set(key string, value V, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = ttlEntry[V]{value: value, expiresAt: m.now().Add(ttl)}
}

// setNX записывает значение, только если ключа нет или он истёк.
func (m *ttlMap[V]) setNX(key string, value V, ttl time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.items[key]; ok && m.now().Before(e.expiresAt) {
		return false
	}
	m.items[key] = ttlEntry[V]{value: value, expiresAt: m.now().Add(ttl)}
	return true
}

func (m *ttlMap[V]) get(key string) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.items[key]
	if !ok || !m.now().Before(e.expiresAt) {
		delete(m.items, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

func (m *ttlMap[V]) delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
}

// Cache реализует в памяти кэши корзин, резервов и ключей идемпотентности.
// Используется, когда Redis не настроен.
type Cache struct {
	reservations *ttlMap[domain.Reservation]
	// index: productID -> set(cartID). Устаревшие элементы отсекаются при чтении.
	indexMu sync.Mutex
	index   map[string]map[string]struct{}

	carts       *ttlMap[domain.Cart]
	tombstones  *ttlMap[struct{}]
	idempotency *ttlMap[struct{}]
}

// NewCache создаёт пустой кэш. now позволяет тестам управлять временем.
func NewCache(now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{
		reservations: newTTLMap[domain.Reservation](now),
		index:        make(map[string]map[string]struct{}),
		carts:        newTTLMap[domain.Cart](now),
		tombstones:   newTTLMap[struct{}](now),
		idempotency:  newTTLMap[struct{}](now),
	}
}

// Reservations возвращает кэш резервов.
func (c *Cache) Reservations() domain.ReservationCache { return (*reservationCache)(c) }

// CartCache возвращает кэш снимков корзин.
func (c *Cache) CartCache() domain.CartCache { return (*cartCache)(c) }

// Idempotency возвращает хранилище ключей идемпотентности.
func (c *Cache) Idempotency() domain.IdempotencyStore { return (*idempotencyStore)(c) }

func reservationKey(productID, cartID string) string {
	return productID + ":" + cartID
}

type reservationCache Cache

func (c *reservationCache) Reserve(_ context.Context, r domain.Reservation, ttl time.Duration) error {
	c.reservations.set(reservationKey(r.ProductID, r.CartID), r, ttl)

	c.indexMu.Lock()
	defer c.indexMu.Unlock()
	carts, ok := c.index[r.ProductID]
	if !ok {
		carts = make(map[string]struct{})
		c.index[r.ProductID] = carts
	}
	carts[r.CartID] = struct{}{}
	return nil
}

func (c *reservationCache) Verify(_ context.Context, productID, cartID string, expectedQty int) (bool, error) {
	r, ok := c.reservations.get(reservationKey(productID, cartID))
	if !ok {
		return false, nil
	}
	return r.Matches(expectedQty), nil
}

func (c *reservationCache) Release(_ context.Context, productID, cartID string) error {
	c.reservations.delete(reservationKey(productID, cartID))

	c.indexMu.Lock()
	defer c.indexMu.Unlock()
	if carts, ok := c.index[productID]; ok {
		delete(carts, cartID)
		if len(carts) == 0 {
			delete(c.index, productID)
		}
	}
	return nil
}

func (c *reservationCache) ClearForCart(ctx context.Context, cartID string, productIDs []string) error {
	for _, productID := range productIDs {
		if err := c.Release(ctx, productID, cartID); err != nil {
			return err
		}
	}
	return nil
}

func (c *reservationCache) ReservedCarts(_ context.Context, productID string) ([]string, error) {
	c.indexMu.Lock()
	ids := make([]string, 0, len(c.index[productID]))
	for cartID := range c.index[productID] {
		ids = append(ids, cartID)
	}
	c.indexMu.Unlock()

	live := ids[:0]
	for _, cartID := range ids {
		if _, ok := c.reservations.get(reservationKey(productID, cartID)); ok {
			live = append(live, cartID)
		}
	}
	slices.Sort(live)
	return live, nil
}

type cartCache Cache

func (c *cartCache) Get(_ context.Context, id string) (*domain.Cart, error) {
	cart, ok := c.carts.get(id)
	if !ok {
		return nil, nil
	}
	clone := cloneCart(cart)
	return &clone, nil
}

func (c *cartCache) Set(_ context.Context, cart *domain.Cart, ttl time.Duration) error {
	c.carts.set(cart.ID, cloneCart(*cart), ttl)
	return nil
}

func (c *cartCache) Delete(_ context.Context, id string) error {
	c.carts.delete(id)
	return nil
}

func (c *cartCache) MarkClosed(_ context.Context, id string, ttl time.Duration) error {
	c.tombstones.set(id, struct{}{}, ttl)
	return nil
}

func (c *cartCache) IsClosed(_ context.Context, id string) (bool, error) {
	_, ok := c.tombstones.get(id)
	return ok, nil
}

type idempotencyStore Cache

func (c *idempotencyStore) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	return c.idempotency.setNX(key, struct{}{}, ttl), nil
}

func (c *idempotencyStore) Release(_ context.Context, key string) error {
	c.idempotency.delete(key)
	return nil
}

var (
	_ domain.ReservationCache = (*reservationCache)(nil)
	_ domain.CartCache        = (*cartCache)(nil)
	_ domain.IdempotencyStore = (*idempotencyStore)(nil)
)
