package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// Queue ставит фоновые задачи в JobRepository.
type Queue struct {
	repo   domain.JobRepository
	logger *log.Entry
	now    func() time.Time
}

// NewQueue создаёт очередь поверх хранилища задач.
func NewQueue(repo domain.JobRepository, logger *log.Entry) *Queue {
	if logger == nil {
		logger = log.WithField("component", "job-queue")
	}
	return &Queue{repo: repo, logger: logger, now: time.Now}
}

// Enqueue сериализует payload в JSON и сохраняет задачу, готовую к немедленному запуску.
func (q *Queue) Enqueue(ctx context.Context, topic string, payload any, policy domain.RetryPolicy) error {
	if topic == "" {
		return fmt.Errorf("%w: job topic is required", domain.ErrInvalidInput)
	}

	var body []byte
	switch p := payload.(type) {
	case json.RawMessage:
		body = p
	case []byte:
		body = p
	default:
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s payload: %w", topic, err)
		}
		body = encoded
	}

	job, err := q.repo.Enqueue(ctx, domain.Job{
		Topic:     topic,
		Payload:   body,
		Policy:    policy,
		NextRunAt: q.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", topic, err)
	}

	q.logger.WithFields(log.Fields{
		"job_id": job.ID,
		"topic":  topic,
	}).Debug("job enqueued")
	return nil
}

var _ domain.JobQueue = (*Queue)(nil)
