package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/jobs"
)

// PaymentHandler обрабатывает process-payment: переводит заказ в processing
// и ставит уведомление покупателю.
type PaymentHandler struct {
	repo        domain.OrderRepository
	idempotency domain.IdempotencyStore
	queue       domain.JobQueue
	logger      *log.Entry
	now         func() time.Time
}

// NewPaymentHandler создаёт обработчик оплаты.
func NewPaymentHandler(repo domain.OrderRepository, idempotency domain.IdempotencyStore, queue domain.JobQueue, logger *log.Entry) *PaymentHandler {
	if logger == nil {
		logger = log.WithField("component", "payment-handler")
	}
	return &PaymentHandler{
		repo:        repo,
		idempotency: idempotency,
		queue:       queue,
		logger:      logger,
		now:         time.Now,
	}
}

// Handle защищён ключом payment:<orderId>: повторная доставка не обрабатывает оплату дважды.
func (h *PaymentHandler) Handle(ctx context.Context, payload []byte) error {
	var msg domain.ProcessPaymentPayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: decode payment payload: %v", jobs.ErrPermanent, err)
	}
	if msg.OrderID == "" {
		return fmt.Errorf("%w: payment payload without order id", jobs.ErrPermanent)
	}

	logger := h.logger.WithField("order_id", msg.OrderID)
	key := domain.PaymentIdempotencyKey(msg.OrderID)

	acquired, err := h.idempotency.Acquire(ctx, key, domain.IdempotencyTTL)
	if err != nil {
		return err
	}
	if !acquired {
		logger.Info("payment already processed, skipping")
		return nil
	}

	if err := h.process(ctx, msg); err != nil {
		if releaseErr := h.idempotency.Release(ctx, key); releaseErr != nil {
			logger.WithError(releaseErr).Warn("failed to release payment idempotency key")
		}
		return err
	}

	logger.WithField("total", msg.Total.StringFixed(2)).Info("payment processed")
	return nil
}

func (h *PaymentHandler) process(ctx context.Context, msg domain.ProcessPaymentPayload) error {
	order, err := h.repo.Get(ctx, msg.OrderID)
	if err != nil {
		return err
	}

	// Статус уже сменила прошлая попытка, упавшая на постановке уведомления.
	if order.Status != domain.OrderStatusProcessing {
		now := h.now().UTC()
		if err := order.TransitionTo(domain.OrderStatusProcessing, now); err != nil {
			return fmt.Errorf("%w: order %s is %s", jobs.ErrPermanent, order.ID, order.Status)
		}
		if err := h.repo.UpdateStatus(ctx, order.ID, order.Status, now); err != nil {
			return err
		}
	}

	notification := domain.SendNotificationPayload{
		OrderID: order.ID,
		Type:    domain.NotificationPaymentConfirmed,
	}
	if err := h.queue.Enqueue(ctx, domain.TopicSendNotification, notification, domain.NotificationJobPolicy); err != nil {
		return fmt.Errorf("enqueue payment notification: %w", err)
	}
	return nil
}

var _ jobs.Handler = (*PaymentHandler)(nil)
