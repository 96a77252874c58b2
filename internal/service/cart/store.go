package cart

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

const defaultTombstoneTTL = time.Hour

// StoreOptions задаёт параметры cache-aside хранилища корзин.
type StoreOptions struct {
	Logger       *log.Entry
	TombstoneTTL time.Duration
	Clock        func() time.Time
}

// StoreOption настраивает Store.
type StoreOption func(*StoreOptions)

// WithStoreLogger задаёт logger хранилища.
func WithStoreLogger(logger *log.Entry) StoreOption {
	return func(opts *StoreOptions) {
		opts.Logger = logger
	}
}

// WithTombstoneTTL задаёт время жизни метки закрытой корзины.
// Должно перекрывать максимальную задержку persist-задачи с учётом повторов.
func WithTombstoneTTL(ttl time.Duration) StoreOption {
	return func(opts *StoreOptions) {
		if ttl > 0 {
			opts.TombstoneTTL = ttl
		}
	}
}

// WithStoreClock подменяет источник времени (для тестов).
func WithStoreClock(clock func() time.Time) StoreOption {
	return func(opts *StoreOptions) {
		if clock != nil {
			opts.Clock = clock
		}
	}
}

// Store — cache-aside хранилище корзин: кэш синхронно, БД через очередь задач.
type Store struct {
	cache        domain.CartCache
	repo         domain.CartRepository
	queue        domain.JobQueue
	logger       *log.Entry
	tombstoneTTL time.Duration
	now          func() time.Time
}

// NewStore создаёт cache-aside хранилище корзин.
func NewStore(cache domain.CartCache, repo domain.CartRepository, queue domain.JobQueue, options ...StoreOption) *Store {
	opts := StoreOptions{
		TombstoneTTL: defaultTombstoneTTL,
		Clock:        time.Now,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "cart-store")
	}

	return &Store{
		cache:        cache,
		repo:         repo,
		queue:        queue,
		logger:       logger,
		tombstoneTTL: opts.TombstoneTTL,
		now:          opts.Clock,
	}
}

// Get читает корзину из кэша, при промахе из БД с повторным прогревом кэша.
func (s *Store) Get(ctx context.Context, cartID string) (*domain.Cart, error) {
	if cartID == "" {
		return nil, domain.ErrCartIDRequired
	}

	cached, err := s.cache.Get(ctx, cartID)
	if err != nil {
		s.logger.WithError(err).WithField("cart_id", cartID).Warn("cart cache read failed, falling back to database")
	}
	if cached != nil {
		return cached, nil
	}

	stored, err := s.repo.Get(ctx, cartID)
	if err != nil {
		return nil, err
	}

	if ttl := stored.TTL(s.now()); ttl > 0 && stored.Status == domain.CartStatusActive {
		if err := s.cache.Set(ctx, stored, ttl); err != nil {
			s.logger.WithError(err).WithField("cart_id", cartID).Warn("failed to repopulate cart cache")
		}
	}
	return stored, nil
}

// Save пишет снимок в кэш на оставшееся время жизни корзины и ставит задачу записи в БД.
func (s *Store) Save(ctx context.Context, cart *domain.Cart) error {
	if ttl := cart.TTL(s.now()); ttl > 0 {
		if err := s.cache.Set(ctx, cart, ttl); err != nil {
			return fmt.Errorf("cache cart %s: %w", cart.ID, err)
		}
	} else if err := s.cache.Delete(ctx, cart.ID); err != nil {
		s.logger.WithError(err).WithField("cart_id", cart.ID).Warn("failed to drop expired cart from cache")
	}

	payload := domain.PersistShoppingCartPayload{Cart: *cart, Timestamp: s.now().UTC()}
	if err := s.queue.Enqueue(ctx, domain.TopicPersistShoppingCart, payload, domain.CartJobPolicy); err != nil {
		return fmt.Errorf("enqueue cart %s persist: %w", cart.ID, err)
	}
	return nil
}

// Delete убирает корзину из кэша, ставит tombstone и задачу удаления строки.
func (s *Store) Delete(ctx context.Context, cartID string) error {
	if err := s.Evict(ctx, cartID); err != nil {
		return err
	}

	payload := domain.DeleteShoppingCartPayload{CartID: cartID}
	if err := s.queue.Enqueue(ctx, domain.TopicDeleteShoppingCart, payload, domain.CartJobPolicy); err != nil {
		return fmt.Errorf("enqueue cart %s delete: %w", cartID, err)
	}
	return nil
}

// Evict убирает корзину из кэша и ставит tombstone, не трогая БД.
// Используется после checkout, когда строка уже удалена в транзакции.
func (s *Store) Evict(ctx context.Context, cartID string) error {
	if err := s.cache.Delete(ctx, cartID); err != nil {
		return fmt.Errorf("evict cart %s: %w", cartID, err)
	}
	if err := s.cache.MarkClosed(ctx, cartID, s.tombstoneTTL); err != nil {
		return fmt.Errorf("mark cart %s closed: %w", cartID, err)
	}
	return nil
}

// Invalidate убирает корзину из кэша без tombstone: следующее чтение придёт в БД.
func (s *Store) Invalidate(ctx context.Context, cartID string) error {
	if err := s.cache.Delete(ctx, cartID); err != nil {
		return fmt.Errorf("invalidate cart %s: %w", cartID, err)
	}
	return nil
}

// IsClosed сообщает, закрыта ли корзина checkout-ом или удалением.
func (s *Store) IsClosed(ctx context.Context, cartID string) (bool, error) {
	closed, err := s.cache.IsClosed(ctx, cartID)
	if err != nil {
		return false, fmt.Errorf("check cart %s tombstone: %w", cartID, err)
	}
	return closed, nil
}
