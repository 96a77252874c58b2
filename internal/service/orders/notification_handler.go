package orders

import (
	"context"
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/jobs"
)

// NotificationHandler обрабатывает send-notification.
type NotificationHandler struct {
	idempotency domain.IdempotencyStore
	publisher   domain.NotificationPublisher
	logger      *log.Entry
}

// NewNotificationHandler создаёт обработчик уведомлений. Без publisher уведомления только логируются.
func NewNotificationHandler(idempotency domain.IdempotencyStore, publisher domain.NotificationPublisher, logger *log.Entry) *NotificationHandler {
	if logger == nil {
		logger = log.WithField("component", "notification-handler")
	}
	return &NotificationHandler{idempotency: idempotency, publisher: publisher, logger: logger}
}

// Handle защищён ключом notification:<orderId>:<type>.
func (h *NotificationHandler) Handle(ctx context.Context, payload []byte) error {
	var msg domain.SendNotificationPayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: decode notification payload: %v", jobs.ErrPermanent, err)
	}
	if msg.OrderID == "" || msg.Type == "" {
		return fmt.Errorf("%w: notification payload requires order id and type", jobs.ErrPermanent)
	}

	logger := h.logger.WithFields(log.Fields{
		"order_id": msg.OrderID,
		"type":     msg.Type,
	})
	key := domain.NotificationIdempotencyKey(msg.OrderID, msg.Type)

	acquired, err := h.idempotency.Acquire(ctx, key, domain.IdempotencyTTL)
	if err != nil {
		return err
	}
	if !acquired {
		logger.Info("notification already sent, skipping")
		return nil
	}

	if h.publisher == nil {
		logger.Info("notification sent")
		return nil
	}

	if err := h.publisher.PublishNotification(ctx, msg); err != nil {
		if releaseErr := h.idempotency.Release(ctx, key); releaseErr != nil {
			logger.WithError(releaseErr).Warn("failed to release notification idempotency key")
		}
		return fmt.Errorf("publish notification: %w", err)
	}

	logger.Info("notification published")
	return nil
}

var _ jobs.Handler = (*NotificationHandler)(nil)
