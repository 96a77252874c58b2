package checkout

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
	"github.com/vladislavdragonenkov/marketplace/internal/service/cart"
)

// Options задаёт параметры оркестратора checkout.
type Options struct {
	Logger  *log.Entry
	Metrics *metrics.CheckoutMetrics
	Clock   func() time.Time
}

// Option настраивает Orchestrator.
type Option func(*Options)

// WithLogger задаёт logger оркестратора.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithMetrics включает метрики checkout.
func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(opts *Options) {
		opts.Metrics = m
	}
}

// WithClock подменяет источник времени (для тестов).
func WithClock(clock func() time.Time) Option {
	return func(opts *Options) {
		if clock != nil {
			opts.Clock = clock
		}
	}
}

// Orchestrator превращает корзину в заказ ровно один раз.
//
// Все изменения остатков, вставка заказа и удаление строки корзины выполняются
// в одной транзакции; товары блокируются одним запросом по возрастанию id.
// Очистка кэша и постановка оплаты идут после коммита и не откатывают заказ.
type Orchestrator struct {
	tx           domain.Transactor
	carts        *cart.Store
	reservations domain.ReservationCache
	locker       domain.CartLocker
	queue        domain.JobQueue
	metrics      *metrics.CheckoutMetrics
	logger       *log.Entry
	now          func() time.Time
}

// NewOrchestrator создаёт оркестратор checkout.
func NewOrchestrator(
	tx domain.Transactor,
	carts *cart.Store,
	reservations domain.ReservationCache,
	locker domain.CartLocker,
	queue domain.JobQueue,
	options ...Option,
) *Orchestrator {
	opts := Options{Clock: time.Now}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "checkout")
	}

	return &Orchestrator{
		tx:           tx,
		carts:        carts,
		reservations: reservations,
		locker:       locker,
		queue:        queue,
		metrics:      opts.Metrics,
		logger:       logger,
		now:          opts.Clock,
	}
}

// Checkout подтверждает корзину и создаёт заказ.
func (o *Orchestrator) Checkout(ctx context.Context, cartID string, customer domain.Customer) (order domain.Order, err error) {
	finish := o.metrics.CheckoutStarted()
	defer func() { finish(err) }()

	if cartID == "" {
		return domain.Order{}, domain.ErrCartIDRequired
	}
	customer = customer.Normalize()
	if err := customer.Validate(); err != nil {
		return domain.Order{}, err
	}

	unlock, err := o.locker.Lock(ctx, cartID)
	if err != nil {
		return domain.Order{}, err
	}
	defer unlock()

	logger := o.logger.WithField("cart_id", cartID)

	snapshot, err := o.carts.Get(ctx, cartID)
	if err != nil {
		return domain.Order{}, err
	}
	if len(snapshot.Items) == 0 {
		return domain.Order{}, domain.ErrCartEmpty
	}
	now := o.now().UTC()
	if err := snapshot.ConfirmCheckout(now); err != nil {
		return domain.Order{}, err
	}

	var (
		units      int
		productIDs []string
	)
	err = o.tx.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		// Строка корзины авторитетна: кэш мог отстать от reconciler-а.
		current, err := tx.Carts().FindByIDForUpdate(ctx, cartID)
		if err != nil {
			return err
		}
		if len(current.Items) == 0 {
			return domain.ErrCartEmpty
		}
		if err := current.ConfirmCheckout(now); err != nil {
			return err
		}

		productIDs = current.ProductIDs()
		products, err := o.lockProducts(ctx, tx, productIDs)
		if err != nil {
			return err
		}

		for _, item := range current.Items {
			ok, err := o.reservations.Verify(ctx, item.ProductID, cartID, item.Quantity)
			if err != nil {
				return fmt.Errorf("verify reservation of product %s: %w", item.ProductID, err)
			}
			if !ok {
				return &domain.ReservationExpiredError{ProductID: item.ProductID, ProductName: item.ProductName}
			}

			product := products[item.ProductID]
			if !product.CanConfirm(item.Quantity) {
				return fmt.Errorf(
					"%w for product %s: reserved %d, stock %d, requested %d",
					domain.ErrInsufficientStock, product.Name, product.ReservedStock(), product.Stock(), item.Quantity,
				)
			}
		}

		order, err = domain.NewOrder(current, customer, now)
		if err != nil {
			return err
		}

		for _, item := range current.Items {
			product := products[item.ProductID]
			if err := product.Confirm(item.Quantity); err != nil {
				return err
			}
			units += item.Quantity
		}
		for _, product := range products {
			if err := tx.Products().Save(ctx, product); err != nil {
				return err
			}
		}
		if err := tx.Orders().Create(ctx, order); err != nil {
			return err
		}
		return tx.Carts().Delete(ctx, cartID)
	})
	if err != nil {
		logger.WithError(err).Info("checkout rejected")
		return domain.Order{}, err
	}
	o.metrics.RecordStockOperation("confirm", units, nil)

	o.afterCommit(ctx, logger.WithField("order_id", order.ID), cartID, order, productIDs)

	logger.WithFields(log.Fields{
		"order_id": order.ID,
		"total":    order.Total.StringFixed(2),
	}).Info("checkout completed")
	return order, nil
}

// lockProducts блокирует все товары корзины одним запросом.
func (o *Orchestrator) lockProducts(ctx context.Context, tx domain.Tx, ids []string) (map[string]*domain.Product, error) {
	locked, err := tx.Products().FindByIDsForUpdate(ctx, ids)
	if err != nil {
		return nil, err
	}

	products := make(map[string]*domain.Product, len(locked))
	for _, p := range locked {
		products[p.ID] = p
	}
	for _, id := range ids {
		if _, ok := products[id]; !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrProductNotFound, id)
		}
	}
	return products, nil
}

// afterCommit выполняет побочные эффекты после коммита; ошибки только логируются.
func (o *Orchestrator) afterCommit(ctx context.Context, logger *log.Entry, cartID string, order domain.Order, productIDs []string) {
	if err := o.reservations.ClearForCart(ctx, cartID, productIDs); err != nil {
		logger.WithError(err).Warn("failed to clear cart reservations")
	}
	if err := o.carts.Evict(ctx, cartID); err != nil {
		logger.WithError(err).Warn("failed to evict checked out cart from cache")
	}

	payment := domain.ProcessPaymentPayload{
		OrderID:         order.ID,
		OrganizationIDs: order.OrganizationIDs,
		Total:           order.Total,
	}
	if err := o.queue.Enqueue(ctx, domain.TopicProcessPayment, payment, domain.PaymentJobPolicy); err != nil {
		logger.WithError(err).Error("failed to enqueue payment processing")
	}
}
