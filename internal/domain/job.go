package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Топики очереди фоновых задач.
const (
	TopicPersistShoppingCart = "persist-shopping-cart"
	TopicDeleteShoppingCart  = "delete-shopping-cart"
	TopicProcessPayment      = "process-payment"
	TopicSendNotification    = "send-notification"
)

// NotificationPaymentConfirmed — тип уведомления после обработки оплаты.
const NotificationPaymentConfirmed = "payment_confirmed"

// BackoffType определяет рост задержки между попытками.
type BackoffType string

const (
	BackoffFixed       BackoffType = "fixed"
	BackoffExponential BackoffType = "exponential"
)

// RetryPolicy задаёт политику повторов задачи.
type RetryPolicy struct {
	Attempts int
	Backoff  BackoffType
	Delay    time.Duration
}

// NextDelay возвращает задержку перед попыткой attempt+1 после неудачной попытки attempt.
func (p RetryPolicy) NextDelay(attempt int) time.Duration {
	if p.Delay <= 0 {
		return 0
	}
	if p.Backoff != BackoffExponential || attempt <= 1 {
		return p.Delay
	}

	const maxDuration = time.Duration(1<<63 - 1)
	delay := p.Delay
	for i := 1; i < attempt; i++ {
		if delay > maxDuration/2 {
			return maxDuration
		}
		delay *= 2
	}
	return delay
}

// JobStatus описывает состояние задачи в хранилище очереди.
type JobStatus string

const (
	JobStatusPending JobStatus = "pending"
	JobStatusDone    JobStatus = "done"
	JobStatusFailed  JobStatus = "failed"
)

// Job — задача очереди с накопленными попытками.
type Job struct {
	ID        string
	Topic     string
	Payload   []byte
	Policy    RetryPolicy
	Attempts  int
	Status    JobStatus
	LastError string
	NextRunAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Exhausted сообщает, что попытки задачи закончились.
func (j Job) Exhausted() bool {
	attempts := j.Policy.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	return j.Attempts >= attempts
}

// JobStats описывает backlog очереди.
type JobStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

// PersistShoppingCartPayload — снимок корзины для асинхронной записи в БД.
type PersistShoppingCartPayload struct {
	Cart      Cart      `json:"cart"`
	Timestamp time.Time `json:"timestamp"`
}

// DeleteShoppingCartPayload просит удалить строку корзины.
type DeleteShoppingCartPayload struct {
	CartID string `json:"cartId"`
}

// ProcessPaymentPayload ставится в очередь после успешного checkout.
type ProcessPaymentPayload struct {
	OrderID         string          `json:"orderId"`
	OrganizationIDs []string        `json:"organizationIds"`
	Total           decimal.Decimal `json:"total"`
}

// SendNotificationPayload описывает уведомление о событии заказа.
type SendNotificationPayload struct {
	OrderID string `json:"orderId"`
	UserID  string `json:"userId"`
	Type    string `json:"type"`
}

// Политики повторов по топикам.
var (
	CartJobPolicy         = RetryPolicy{Attempts: 3, Backoff: BackoffExponential, Delay: time.Second}
	PaymentJobPolicy      = RetryPolicy{Attempts: 3, Backoff: BackoffExponential, Delay: 2 * time.Second}
	NotificationJobPolicy = RetryPolicy{Attempts: 3, Backoff: BackoffExponential, Delay: time.Second}
)

// IdempotencyTTL — время жизни ключей payment:<orderId> и notification:<orderId>:<type>.
const IdempotencyTTL = 24 * time.Hour

// PaymentIdempotencyKey возвращает ключ идемпотентности обработки оплаты.
func PaymentIdempotencyKey(orderID string) string {
	return "payment:" + orderID
}

// NotificationIdempotencyKey возвращает ключ идемпотентности уведомления.
func NotificationIdempotencyKey(orderID, notificationType string) string {
	return "notification:" + orderID + ":" + notificationType
}
