package expiry

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/cart"
)

const (
	defaultInterval  = 10 * time.Minute
	defaultBatchSize = 100
)

var (
	expiryRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_expiry_runs_total",
		Help: "Total number of expired cart reconciliation runs grouped by result.",
	}, []string{"result"})
	expiryCartsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_expiry_carts_expired_total",
		Help: "Total number of carts moved to expired by the reconciler.",
	})
	expiryReleasedUnitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_expiry_released_units_total",
		Help: "Total number of reserved stock units released from expired carts.",
	})
	expiryLastExpired = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marketplace_expiry_last_expired",
		Help: "Number of carts expired during the last reconciliation run.",
	})
)

// Options задаёт параметры reconciler-а.
type Options struct {
	Logger    *log.Entry
	Interval  time.Duration
	BatchSize int
	CartTTL   time.Duration
	Clock     func() time.Time
}

// Option настраивает Reconciler.
type Option func(*Options)

// WithLogger задаёт logger reconciler-а.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithInterval задаёт интервал между прогонами.
func WithInterval(interval time.Duration) Option {
	return func(opts *Options) {
		opts.Interval = interval
	}
}

// WithBatchSize задаёт размер выборки корзин за один запрос.
func WithBatchSize(batchSize int) Option {
	return func(opts *Options) {
		opts.BatchSize = batchSize
	}
}

// WithCartTTL задаёт окно, которое корзина ещё живёт после дедлайна до снятия резервов.
func WithCartTTL(ttl time.Duration) Option {
	return func(opts *Options) {
		opts.CartTTL = ttl
	}
}

// WithClock подменяет источник времени (для тестов).
func WithClock(clock func() time.Time) Option {
	return func(opts *Options) {
		opts.Clock = clock
	}
}

// Result содержит итог одного прогона.
type Result struct {
	Expired       int
	ReleasedUnits int
	Skipped       int
}

// Reconciler снимает резервы корзин, брошенных после дедлайна.
type Reconciler struct {
	tx           domain.Transactor
	repo         domain.CartRepository
	carts        *cart.Store
	reservations domain.ReservationCache
	locker       domain.CartLocker
	logger       *log.Entry
	interval     time.Duration
	batchSize    int
	cartTTL      time.Duration
	now          func() time.Time
}

// NewReconciler создаёт reconciler истёкших корзин.
func NewReconciler(
	tx domain.Transactor,
	repo domain.CartRepository,
	carts *cart.Store,
	reservations domain.ReservationCache,
	locker domain.CartLocker,
	options ...Option,
) *Reconciler {
	opts := Options{
		Interval:  defaultInterval,
		BatchSize: defaultBatchSize,
		CartTTL:   domain.DefaultCartTTL,
		Clock:     time.Now,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "expiry-reconciler")
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.CartTTL <= 0 {
		opts.CartTTL = domain.DefaultCartTTL
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &Reconciler{
		tx:           tx,
		repo:         repo,
		carts:        carts,
		reservations: reservations,
		locker:       locker,
		logger:       logger,
		interval:     opts.Interval,
		batchSize:    opts.BatchSize,
		cartTTL:      opts.CartTTL,
		now:          opts.Clock,
	}
}

// Run выполняет прогон сразу и затем по таймеру до отмены ctx.
func (r *Reconciler) Run(ctx context.Context) {
	if r.repo == nil || r.tx == nil {
		r.logger.Warn("expiry reconciler is disabled: storage is nil")
		return
	}

	r.reconcile(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reconcile(ctx)
		}
	}
}

func (r *Reconciler) reconcile(ctx context.Context) {
	result, err := r.ReconcileOnce(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		expiryRunsTotal.WithLabelValues("error").Inc()
		r.logger.WithError(err).Warn("expiry reconciliation run failed")
		return
	}

	expiryRunsTotal.WithLabelValues("ok").Inc()
	expiryLastExpired.Set(float64(result.Expired))
	if result.Expired > 0 || result.Skipped > 0 {
		r.logger.WithFields(log.Fields{
			"expired":        result.Expired,
			"released_units": result.ReleasedUnits,
			"skipped":        result.Skipped,
		}).Info("expiry reconciliation completed")
	}
}

// ReconcileOnce обрабатывает порциями batchSize активные корзины, чей дедлайн прошёл
// больше cartTTL назад. Повторный прогон ничего не меняет: обработанные корзины уже не активны.
func (r *Reconciler) ReconcileOnce(ctx context.Context) (Result, error) {
	var total Result
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		now := r.now().UTC()
		batch, err := r.repo.ListExpiredActive(ctx, now.Add(-r.cartTTL), r.batchSize)
		if err != nil {
			return total, err
		}

		progressed := 0
		for _, c := range batch {
			released, expired, err := r.expireCart(ctx, c.ID, now)
			if err != nil {
				total.Skipped++
				r.logger.WithError(err).WithField("cart_id", c.ID).Warn("failed to expire cart")
				continue
			}
			if expired {
				progressed++
				total.Expired++
				total.ReleasedUnits += released
			}
		}

		// Корзины, которые не удалось обработать, вернутся в следующей выборке: выходим до следующего прогона.
		if len(batch) < r.batchSize || progressed == 0 {
			return total, nil
		}
	}
}

// expireCart снимает резервы одной корзины в отдельной транзакции.
func (r *Reconciler) expireCart(ctx context.Context, cartID string, now time.Time) (int, bool, error) {
	unlock, err := r.locker.Lock(ctx, cartID)
	if err != nil {
		return 0, false, err
	}
	defer unlock()

	logger := r.logger.WithField("cart_id", cartID)

	var (
		released   int
		expired    bool
		productIDs []string
	)
	err = r.tx.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		current, err := tx.Carts().FindByIDForUpdate(ctx, cartID)
		if err != nil {
			if errors.Is(err, domain.ErrCartNotFound) {
				return nil
			}
			return err
		}
		// Корзину могли оформить или удалить, пока она ждала блокировку.
		if current.Status != domain.CartStatusActive || !current.IsExpired(now) {
			return nil
		}

		productIDs = current.ProductIDs()
		locked, err := tx.Products().FindByIDsForUpdate(ctx, productIDs)
		if err != nil {
			return err
		}
		products := make(map[string]*domain.Product, len(locked))
		for _, p := range locked {
			products[p.ID] = p
		}

		for _, item := range current.Items {
			product, ok := products[item.ProductID]
			if !ok {
				logger.WithField("product_id", item.ProductID).Warn("product of expired cart not found, skipping")
				continue
			}
			if err := product.Release(item.Quantity); err != nil {
				logger.WithError(err).WithField("product_id", item.ProductID).Warn("reservation already released")
				continue
			}
			released += item.Quantity
		}
		for _, p := range locked {
			if err := tx.Products().Save(ctx, p); err != nil {
				return err
			}
		}

		if err := current.MarkExpired(now); err != nil {
			return err
		}
		if err := tx.Carts().Save(ctx, current); err != nil {
			return err
		}
		expired = true
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	if !expired {
		return 0, false, nil
	}

	expiryCartsTotal.Inc()
	expiryReleasedUnitsTotal.Add(float64(released))

	if err := r.reservations.ClearForCart(ctx, cartID, productIDs); err != nil {
		logger.WithError(err).Warn("failed to clear reservations of expired cart")
	}
	if err := r.carts.Invalidate(ctx, cartID); err != nil {
		logger.WithError(err).Warn("failed to invalidate expired cart cache")
	}

	logger.WithField("released_units", released).Info("cart expired")
	return released, true, nil
}
