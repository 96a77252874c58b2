package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
	"github.com/vladislavdragonenkov/marketplace/internal/service/cart"
	"github.com/vladislavdragonenkov/marketplace/internal/service/catalog"
	"github.com/vladislavdragonenkov/marketplace/internal/service/checkout"
	"github.com/vladislavdragonenkov/marketplace/internal/service/expiry"
	"github.com/vladislavdragonenkov/marketplace/internal/service/jobs"
	"github.com/vladislavdragonenkov/marketplace/internal/service/orders"
	"github.com/vladislavdragonenkov/marketplace/internal/transport/httpapi"
)

// services хранит собранный граф прикладных сервисов и фоновых воркеров.
type services struct {
	api        httpapi.Services
	worker     *jobs.Worker
	reconciler *expiry.Reconciler
}

// buildServices связывает сервисы с зависимостями. producer может быть nil:
// тогда DLQ только логируется, а уведомления пишутся в лог.
func buildServices(cfg Config, deps *runtimeDependencies, producer *kafka.Producer, checkoutMetrics *metrics.CheckoutMetrics, logger *log.Entry) *services {
	queue := jobs.NewQueue(deps.jobs, logger.WithField("component", "job-queue"))

	cartStore := cart.NewStore(deps.cartCache, deps.carts, queue,
		cart.WithStoreLogger(logger.WithField("component", "cart-store")),
	)
	cartService := cart.NewService(deps.tx, cartStore, deps.reservations, deps.locker,
		cart.WithLogger(logger.WithField("component", "cart-service")),
		cart.WithMetrics(checkoutMetrics),
		cart.WithCartTTL(cfg.CartTTL),
	)
	orchestrator := checkout.NewOrchestrator(deps.tx, cartStore, deps.reservations, deps.locker, queue,
		checkout.WithLogger(logger.WithField("component", "checkout")),
		checkout.WithMetrics(checkoutMetrics),
	)

	workerOpts := []jobs.Option{
		jobs.WithLogger(logger.WithField("component", "job-worker")),
		jobs.WithPollInterval(cfg.JobPollInterval),
		jobs.WithBatchSize(cfg.JobBatchSize),
	}
	var notifications domain.NotificationPublisher
	if producer != nil {
		workerOpts = append(workerOpts, jobs.WithDLQPublisher(kafka.NewDeadLetterPublisher(producer, cfg.KafkaDLQTopic)))
		notifications = kafka.NewNotificationPublisher(producer, cfg.KafkaNotificationTopic)
	}

	worker := jobs.NewWorker(deps.jobs, workerOpts...)
	worker.Register(domain.TopicPersistShoppingCart, cart.NewPersistHandler(cartStore, deps.carts, logger.WithField("component", "cart-persist")))
	worker.Register(domain.TopicDeleteShoppingCart, cart.NewDeleteHandler(deps.carts))
	worker.Register(domain.TopicProcessPayment, orders.NewPaymentHandler(deps.orders, deps.idempotency, queue, logger.WithField("component", "payment-handler")))
	worker.Register(domain.TopicSendNotification, orders.NewNotificationHandler(deps.idempotency, notifications, logger.WithField("component", "notification-handler")))

	reconciler := expiry.NewReconciler(deps.tx, deps.carts, cartStore, deps.reservations, deps.locker,
		expiry.WithLogger(logger.WithField("component", "expiry-reconciler")),
		expiry.WithInterval(cfg.ExpiryInterval),
		expiry.WithBatchSize(cfg.ExpiryBatchSize),
		expiry.WithCartTTL(cfg.CartTTL),
	)

	return &services{
		api: httpapi.Services{
			Carts:    cartService,
			Checkout: orchestrator,
			Catalog:  catalog.NewService(deps.products, deps.tx, logger.WithField("component", "catalog")),
			Orders:   orders.NewService(deps.orders),
		},
		worker:     worker,
		reconciler: reconciler,
	}
}
