package kafka

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// DeadLetterPublisher отправляет исчерпавшие попытки задачи в DLQ topic.
type DeadLetterPublisher struct {
	producer *Producer
	topic    string
	now      func() time.Time
}

// NewDeadLetterPublisher создаёт паблишер DLQ.
func NewDeadLetterPublisher(producer *Producer, topic string) *DeadLetterPublisher {
	if topic == "" {
		topic = TopicDeadLetterQueue
	}
	return &DeadLetterPublisher{producer: producer, topic: topic, now: time.Now}
}

// PublishDeadLetter публикует задачу с ключом по её идентификатору.
func (p *DeadLetterPublisher) PublishDeadLetter(ctx context.Context, job domain.Job, cause error) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka dead letter publisher is not initialized")
	}

	failedAt := p.now().UTC()
	event := NewDeadLetterEvent(job, cause, failedAt)
	headers := []sarama.RecordHeader{
		{Key: []byte(HeaderJobTopic), Value: []byte(job.Topic)},
		{Key: []byte(HeaderAttempts), Value: []byte(strconv.Itoa(job.Attempts))},
		{Key: []byte(HeaderErrorMessage), Value: []byte(event.Error)},
		{Key: []byte(HeaderFailedAt), Value: []byte(failedAt.Format(time.RFC3339))},
	}
	return p.producer.PublishEvent(ctx, p.topic, job.ID, event, headers...)
}

// NotificationPublisher публикует уведомления покупателям.
type NotificationPublisher struct {
	producer *Producer
	topic    string
	now      func() time.Time
}

// NewNotificationPublisher создаёт паблишер уведомлений.
func NewNotificationPublisher(producer *Producer, topic string) *NotificationPublisher {
	if topic == "" {
		topic = TopicNotifications
	}
	return &NotificationPublisher{producer: producer, topic: topic, now: time.Now}
}

// PublishNotification публикует уведомление с ключом по заказу.
func (p *NotificationPublisher) PublishNotification(ctx context.Context, n domain.SendNotificationPayload) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka notification publisher is not initialized")
	}
	return p.producer.PublishEvent(ctx, p.topic, n.OrderID, NewNotificationEvent(n, p.now()))
}

var (
	_ domain.DeadLetterPublisher   = (*DeadLetterPublisher)(nil)
	_ domain.NotificationPublisher = (*NotificationPublisher)(nil)
)
