package cart

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
)

// ServiceOptions задаёт параметры сервиса корзин.
type ServiceOptions struct {
	Logger  *log.Entry
	Metrics *metrics.CheckoutMetrics
	CartTTL time.Duration
	Clock   func() time.Time
}

// ServiceOption настраивает Service.
type ServiceOption func(*ServiceOptions)

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) ServiceOption {
	return func(opts *ServiceOptions) {
		opts.Logger = logger
	}
}

// WithMetrics включает метрики складских операций.
func WithMetrics(m *metrics.CheckoutMetrics) ServiceOption {
	return func(opts *ServiceOptions) {
		opts.Metrics = m
	}
}

// WithCartTTL задаёт время жизни новых корзин.
func WithCartTTL(ttl time.Duration) ServiceOption {
	return func(opts *ServiceOptions) {
		if ttl > 0 {
			opts.CartTTL = ttl
		}
	}
}

// WithClock подменяет источник времени (для тестов).
func WithClock(clock func() time.Time) ServiceOption {
	return func(opts *ServiceOptions) {
		if clock != nil {
			opts.Clock = clock
		}
	}
}

// Service реализует сценарии корзины: добавление, удаление позиций и самой корзины.
// Изменения одной корзины сериализуются блокировкой, остатки меняются под блокировкой строки товара.
type Service struct {
	tx           domain.Transactor
	store        *Store
	reservations domain.ReservationCache
	locker       domain.CartLocker
	metrics      *metrics.CheckoutMetrics
	logger       *log.Entry
	cartTTL      time.Duration
	now          func() time.Time
}

// NewService создаёт сервис корзин.
func NewService(
	tx domain.Transactor,
	store *Store,
	reservations domain.ReservationCache,
	locker domain.CartLocker,
	options ...ServiceOption,
) *Service {
	opts := ServiceOptions{
		CartTTL: domain.DefaultCartTTL,
		Clock:   time.Now,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "cart-service")
	}

	return &Service{
		tx:           tx,
		store:        store,
		reservations: reservations,
		locker:       locker,
		metrics:      opts.Metrics,
		logger:       logger,
		cartTTL:      opts.CartTTL,
		now:          opts.Clock,
	}
}

// AddItem добавляет qty единиц товара в корзину. Пустой cartID создаёт новую корзину.
func (s *Service) AddItem(ctx context.Context, cartID, productID string, qty int) (*domain.Cart, error) {
	if productID == "" {
		return nil, domain.ErrProductIDRequired
	}
	if qty <= 0 {
		return nil, domain.ErrQuantityInvalid
	}

	var cart *domain.Cart
	isNew := cartID == ""
	if isNew {
		cart = domain.NewCart(s.cartTTL, s.now().UTC())
		s.logger.WithField("cart_id", cart.ID).Debug("new cart created")
	} else {
		unlock, err := s.locker.Lock(ctx, cartID)
		if err != nil {
			return nil, err
		}
		defer unlock()

		cart, err = s.store.Get(ctx, cartID)
		if err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		if !isNew {
			current, err := tx.Carts().FindByIDForUpdate(ctx, cart.ID)
			if err != nil {
				return err
			}
			cart = current
		}
		product, err := tx.Products().FindByIDForUpdate(ctx, productID)
		if err != nil {
			return err
		}
		if err := cart.AddItem(product, qty, now); err != nil {
			return err
		}
		if err := tx.Products().Save(ctx, product); err != nil {
			return err
		}
		return tx.Carts().Save(ctx, cart)
	})
	s.metrics.RecordStockOperation("reserve", qty, err)
	if err != nil {
		return nil, err
	}
	s.saveSnapshot(ctx, cart)

	reservation := domain.Reservation{
		ProductID:  productID,
		CartID:     cart.ID,
		Quantity:   cart.Quantity(productID),
		ReservedAt: now,
	}
	if err := s.reservations.Reserve(ctx, reservation, cart.TTL(now)); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"cart_id":    cart.ID,
			"product_id": productID,
		}).Warn("failed to write reservation to cache")
	}

	s.logger.WithFields(log.Fields{
		"cart_id":    cart.ID,
		"product_id": productID,
		"quantity":   reservation.Quantity,
	}).Info("item added to cart")
	return cart, nil
}

// GetCart возвращает корзину по идентификатору.
func (s *Service) GetCart(ctx context.Context, cartID string) (*domain.Cart, error) {
	return s.store.Get(ctx, cartID)
}

// RemoveItem снимает резерв товара и удаляет позицию. Для отсутствующей позиции ничего не делает.
func (s *Service) RemoveItem(ctx context.Context, cartID, productID string) (*domain.Cart, error) {
	if cartID == "" {
		return nil, domain.ErrCartIDRequired
	}
	if productID == "" {
		return nil, domain.ErrProductIDRequired
	}

	unlock, err := s.locker.Lock(ctx, cartID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	cart, err := s.store.Get(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if cart.Quantity(productID) == 0 {
		return cart, nil
	}

	qty := 0
	now := s.now().UTC()
	err = s.tx.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		current, err := tx.Carts().FindByIDForUpdate(ctx, cartID)
		if err != nil {
			return err
		}
		if err := ensureActive(current, now); err != nil {
			return err
		}
		cart = current
		qty = cart.Quantity(productID)
		if qty == 0 {
			return nil
		}

		product, err := tx.Products().FindByIDForUpdate(ctx, productID)
		if err != nil {
			return err
		}
		if err := cart.RemoveItem(product, now); err != nil {
			return err
		}
		if err := tx.Products().Save(ctx, product); err != nil {
			return err
		}
		return tx.Carts().Save(ctx, cart)
	})
	s.metrics.RecordStockOperation("release", qty, err)
	if err != nil {
		return nil, err
	}
	if qty == 0 {
		return cart, nil
	}
	s.saveSnapshot(ctx, cart)

	if err := s.reservations.Release(ctx, productID, cartID); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"cart_id":    cartID,
			"product_id": productID,
		}).Warn("failed to release reservation in cache")
	}
	return cart, nil
}

// DeleteCart снимает все резервы корзины и удаляет её.
func (s *Service) DeleteCart(ctx context.Context, cartID string) error {
	if cartID == "" {
		return domain.ErrCartIDRequired
	}

	unlock, err := s.locker.Lock(ctx, cartID)
	if err != nil {
		return err
	}
	defer unlock()

	if _, err := s.store.Get(ctx, cartID); err != nil {
		return err
	}

	var (
		productIDs []string
		units      int
	)
	now := s.now().UTC()
	err = s.tx.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		cart, err := tx.Carts().FindByIDForUpdate(ctx, cartID)
		if err != nil {
			return err
		}
		productIDs = cart.ProductIDs()

		// Резервы истёкшей корзины уже сняты reconciler-ом.
		if cart.Status == domain.CartStatusActive && len(productIDs) > 0 {
			locked, err := tx.Products().FindByIDsForUpdate(ctx, productIDs)
			if err != nil {
				return err
			}
			products := make(map[string]*domain.Product, len(locked))
			for _, p := range locked {
				products[p.ID] = p
			}
			for _, item := range cart.Items {
				units += item.Quantity
			}
			if err := cart.Clear(products, now); err != nil {
				return err
			}
			for _, p := range locked {
				if err := tx.Products().Save(ctx, p); err != nil {
					return err
				}
			}
		}
		return tx.Carts().Delete(ctx, cartID)
	})
	s.metrics.RecordStockOperation("release", units, err)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, cartID); err != nil {
		s.logger.WithError(err).WithField("cart_id", cartID).Warn("failed to drop deleted cart from cache")
	}
	if err := s.reservations.ClearForCart(ctx, cartID, productIDs); err != nil {
		s.logger.WithError(err).WithField("cart_id", cartID).Warn("failed to clear cart reservations")
	}

	s.logger.WithFields(log.Fields{
		"cart_id": cartID,
		"units":   units,
	}).Info("cart deleted")
	return nil
}

// saveSnapshot обновляет кэш и ставит задачу записи уже после коммита.
// Строка в БД записана транзакцией, поэтому сбой здесь только логируется:
// при ошибке кэш сбрасывается, и следующее чтение придёт в БД.
func (s *Service) saveSnapshot(ctx context.Context, cart *domain.Cart) {
	err := s.store.Save(ctx, cart)
	if err == nil {
		return
	}
	logger := s.logger.WithError(err).WithField("cart_id", cart.ID)
	logger.Warn("failed to save cart snapshot after commit")
	if err := s.store.Invalidate(ctx, cart.ID); err != nil {
		logger.WithError(err).Warn("failed to invalidate cart cache")
	}
}

// ensureActive запрещает снимать резервы корзины, которую уже закрыл checkout или reconciler.
func ensureActive(cart *domain.Cart, now time.Time) error {
	if cart.Status != domain.CartStatusActive {
		return domain.ErrCartNotActive
	}
	if cart.IsExpired(now) {
		return domain.ErrCartExpired
	}
	return nil
}
