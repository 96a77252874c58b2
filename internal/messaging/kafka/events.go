package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// Topics для Kafka
const (
	TopicNotifications   = "marketplace.notifications"
	TopicDeadLetterQueue = "marketplace.jobs.dlq"
)

// Kafka headers сообщений DLQ
const (
	HeaderJobTopic     = "x-job-topic"
	HeaderAttempts     = "x-attempts"
	HeaderErrorMessage = "x-error-message"
	HeaderFailedAt     = "x-failed-at"
)

// DeadLetterEvent описывает задачу очереди, исчерпавшую попытки.
type DeadLetterEvent struct {
	JobID     string             `json:"job_id"`
	JobTopic  string             `json:"job_topic"`
	Payload   json.RawMessage    `json:"payload"`
	Policy    domain.RetryPolicy `json:"policy"`
	Attempts  int                `json:"attempts"`
	Error     string             `json:"error"`
	CreatedAt time.Time          `json:"created_at"`
	FailedAt  time.Time          `json:"failed_at"`
}

// NotificationEvent описывает уведомление о событии заказа.
type NotificationEvent struct {
	OrderID   string    `json:"order_id"`
	UserID    string    `json:"user_id,omitempty"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// NewDeadLetterEvent создает событие DLQ из задачи.
func NewDeadLetterEvent(job domain.Job, cause error, failedAt time.Time) DeadLetterEvent {
	payload := json.RawMessage(job.Payload)
	if !json.Valid(job.Payload) {
		// Невалидный JSON сохраняем строкой, чтобы событие оставалось сериализуемым.
		quoted, _ := json.Marshal(string(job.Payload))
		payload = quoted
	}

	event := DeadLetterEvent{
		JobID:     job.ID,
		JobTopic:  job.Topic,
		Payload:   payload,
		Policy:    job.Policy,
		Attempts:  job.Attempts,
		Error:     job.LastError,
		CreatedAt: job.CreatedAt,
		FailedAt:  failedAt.UTC(),
	}
	if cause != nil {
		event.Error = cause.Error()
	}
	return event
}

// NewNotificationEvent создает событие уведомления.
func NewNotificationEvent(n domain.SendNotificationPayload, now time.Time) NotificationEvent {
	return NotificationEvent{
		OrderID:   n.OrderID,
		UserID:    n.UserID,
		Type:      n.Type,
		Timestamp: now.UTC(),
	}
}

// ParseDeadLetterEvent парсит DeadLetterEvent из сообщения
func ParseDeadLetterEvent(message *sarama.ConsumerMessage) (DeadLetterEvent, error) {
	var event DeadLetterEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return DeadLetterEvent{}, fmt.Errorf("failed to unmarshal dead letter event: %w", err)
	}
	if event.JobTopic == "" {
		return DeadLetterEvent{}, fmt.Errorf("dead letter event without job topic")
	}
	return event, nil
}
