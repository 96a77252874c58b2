package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

const (
	defaultPollInterval = 500 * time.Millisecond
	defaultBatchSize    = 50
)

// ErrPermanent помечает ошибку, повтор которой бессмыслен (битый payload, неизвестный топик).
var ErrPermanent = errors.New("permanent job failure")

var (
	jobAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_job_attempts_total",
		Help: "Total number of background job attempts grouped by topic and result.",
	}, []string{"topic", "result"})
	jobPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marketplace_jobs_pending",
		Help: "Current number of pending background jobs.",
	})
	jobOldestPendingAge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marketplace_jobs_oldest_pending_age_seconds",
		Help: "Age in seconds of the oldest pending background job.",
	})
)

// Handler обрабатывает payload задачи одного топика.
type Handler interface {
	Handle(ctx context.Context, payload []byte) error
}

// HandlerFunc адаптирует функцию к Handler.
type HandlerFunc func(ctx context.Context, payload []byte) error

// Handle вызывает f(ctx, payload).
func (f HandlerFunc) Handle(ctx context.Context, payload []byte) error {
	return f(ctx, payload)
}

// WorkerOptions задаёт параметры job worker.
type WorkerOptions struct {
	Logger       *log.Entry
	DLQPublisher domain.DeadLetterPublisher
	PollInterval time.Duration
	BatchSize    int
	Clock        func() time.Time
}

// Option настраивает Worker.
type Option func(*WorkerOptions)

// WithLogger задаёт logger для воркера.
func WithLogger(logger *log.Entry) Option {
	return func(opts *WorkerOptions) {
		opts.Logger = logger
	}
}

// WithDLQPublisher задаёт publisher для задач, исчерпавших попытки.
func WithDLQPublisher(publisher domain.DeadLetterPublisher) Option {
	return func(opts *WorkerOptions) {
		opts.DLQPublisher = publisher
	}
}

// WithPollInterval задаёт частоту опроса очереди.
func WithPollInterval(interval time.Duration) Option {
	return func(opts *WorkerOptions) {
		opts.PollInterval = interval
	}
}

// WithBatchSize задаёт размер батча ClaimDue.
func WithBatchSize(batchSize int) Option {
	return func(opts *WorkerOptions) {
		opts.BatchSize = batchSize
	}
}

// WithClock подменяет источник времени (для тестов).
func WithClock(clock func() time.Time) Option {
	return func(opts *WorkerOptions) {
		opts.Clock = clock
	}
}

// Worker забирает готовые задачи и раздаёт их обработчикам по топику.
type Worker struct {
	repo         domain.JobRepository
	dlqPublisher domain.DeadLetterPublisher
	logger       *log.Entry
	pollInterval time.Duration
	batchSize    int
	now          func() time.Time

	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewWorker создаёт job worker.
func NewWorker(repo domain.JobRepository, options ...Option) *Worker {
	opts := WorkerOptions{
		PollInterval: defaultPollInterval,
		BatchSize:    defaultBatchSize,
		Clock:        time.Now,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "job-worker")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &Worker{
		repo:         repo,
		dlqPublisher: opts.DLQPublisher,
		logger:       logger,
		pollInterval: opts.PollInterval,
		batchSize:    opts.BatchSize,
		now:          opts.Clock,
		handlers:     make(map[string]Handler),
	}
}

// Register назначает обработчик топику. Повторная регистрация заменяет обработчик.
func (w *Worker) Register(topic string, handler Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[topic] = handler
}

// Run запускает периодический polling очереди до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil {
		w.logger.Warn("job worker is disabled: repository is nil")
		return
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.ProcessOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.ProcessOnce(ctx)
		}
	}
}

// ProcessOnce выполняет один polling-цикл и возвращает число обработанных задач.
func (w *Worker) ProcessOnce(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}

	jobs, err := w.repo.ClaimDue(ctx, w.now().UTC(), w.batchSize)
	if err != nil {
		w.logger.WithError(err).Warn("failed to claim due jobs")
		return 0
	}

	processed := 0
	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		w.process(ctx, job)
		processed++
	}

	w.refreshBacklogMetrics(ctx)
	return processed
}

func (w *Worker) process(ctx context.Context, job domain.Job) {
	logger := w.logger.WithFields(log.Fields{
		"job_id": job.ID,
		"topic":  job.Topic,
	})

	err := w.dispatch(ctx, job)
	if err == nil {
		jobAttempts.WithLabelValues(job.Topic, "done").Inc()
		if markErr := w.repo.MarkDone(ctx, job.ID); markErr != nil {
			logger.WithError(markErr).Warn("failed to mark job as done")
		}
		return
	}

	job.Attempts++
	job.LastError = err.Error()

	if !errors.Is(err, ErrPermanent) && !job.Exhausted() {
		jobAttempts.WithLabelValues(job.Topic, "retry").Inc()
		nextRunAt := w.now().UTC().Add(job.Policy.NextDelay(job.Attempts))
		logger.WithError(err).WithFields(log.Fields{
			"attempt":     job.Attempts,
			"next_run_at": nextRunAt,
		}).Warn("job failed, retry scheduled")
		if retryErr := w.repo.ScheduleRetry(ctx, job.ID, job.Attempts, nextRunAt, job.LastError); retryErr != nil {
			logger.WithError(retryErr).Warn("failed to schedule job retry")
		}
		return
	}

	jobAttempts.WithLabelValues(job.Topic, "failed").Inc()
	logger.WithError(err).WithField("attempts", job.Attempts).Error("job failed permanently")

	if markErr := w.repo.MarkFailed(ctx, job.ID, job.Attempts, job.LastError); markErr != nil {
		logger.WithError(markErr).Warn("failed to mark job as failed")
	}
	if dlqErr := w.publishToDLQ(ctx, job, err); dlqErr != nil {
		jobAttempts.WithLabelValues(job.Topic, "dlq_failed").Inc()
		logger.WithError(dlqErr).Warn("failed to publish job to DLQ")
	}
}

func (w *Worker) dispatch(ctx context.Context, job domain.Job) (err error) {
	w.mu.RLock()
	handler, ok := w.handlers[job.Topic]
	w.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: no handler for topic %q", ErrPermanent, job.Topic)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panic: %v", r)
		}
	}()

	return handler.Handle(ctx, job.Payload)
}

func (w *Worker) publishToDLQ(ctx context.Context, job domain.Job, cause error) error {
	if w.dlqPublisher == nil {
		return nil
	}
	return w.dlqPublisher.PublishDeadLetter(ctx, job, cause)
}

func (w *Worker) refreshBacklogMetrics(ctx context.Context) {
	stats, err := w.repo.Stats(ctx)
	if err != nil {
		w.logger.WithError(err).Warn("failed to collect job backlog stats")
		return
	}

	jobPending.Set(float64(stats.PendingCount))
	if stats.PendingCount == 0 || stats.OldestPendingAt.IsZero() {
		jobOldestPendingAge.Set(0)
		return
	}

	age := w.now().Sub(stats.OldestPendingAt).Seconds()
	if age < 0 {
		age = 0
	}
	jobOldestPendingAge.Set(age)
}
