package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// claimLease совпадает с lease PostgreSQL-реализации.
const claimLease = time.Minute

type jobRepositoryInMemory struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
}

// NewJobRepository создаёт in-memory реализацию JobRepository.
func NewJobRepository() *jobRepositoryInMemory {
	return &jobRepositoryInMemory{jobs: make(map[string]*domain.Job)}
}

// Enqueue сохраняет задачу со статусом pending.
func (r *jobRepositoryInMemory) Enqueue(_ context.Context, job domain.Job) (domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if _, exists := r.jobs[job.ID]; exists {
		return domain.Job{}, fmt.Errorf("%w: job %s", domain.ErrDuplicate, job.ID)
	}
	now := time.Now().UTC()
	if job.NextRunAt.IsZero() {
		job.NextRunAt = now
	}
	job.Status = domain.JobStatusPending
	job.CreatedAt, job.UpdatedAt = now, now
	job.Payload = slices.Clone(job.Payload)

	stored := job
	r.jobs[job.ID] = &stored
	return job, nil
}

// ClaimDue возвращает до limit готовых задач и скрывает их на время lease.
func (r *jobRepositoryInMemory) ClaimDue(_ context.Context, now time.Time, limit int) ([]domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}

	due := make([]*domain.Job, 0)
	for _, job := range r.jobs {
		if job.Status == domain.JobStatusPending && !job.NextRunAt.After(now) {
			due = append(due, job)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].NextRunAt.Equal(due[j].NextRunAt) {
			return due[i].NextRunAt.Before(due[j].NextRunAt)
		}
		return due[i].ID < due[j].ID
	})
	if len(due) > limit {
		due = due[:limit]
	}

	result := make([]domain.Job, 0, len(due))
	for _, job := range due {
		job.NextRunAt = now.Add(claimLease)
		job.UpdatedAt = now
		result = append(result, *job)
	}
	return result, nil
}

// MarkDone фиксирует успешную обработку.
func (r *jobRepositoryInMemory) MarkDone(_ context.Context, id string) error {
	return r.update(id, func(job *domain.Job) {
		job.Status = domain.JobStatusDone
		job.Attempts++
		job.LastError = ""
	})
}

// ScheduleRetry откладывает задачу до nextRunAt.
func (r *jobRepositoryInMemory) ScheduleRetry(_ context.Context, id string, attempts int, nextRunAt time.Time, lastErr string) error {
	return r.update(id, func(job *domain.Job) {
		job.Attempts = attempts
		job.NextRunAt = nextRunAt
		job.LastError = lastErr
	})
}

// MarkFailed переводит задачу в терминальный статус failed.
func (r *jobRepositoryInMemory) MarkFailed(_ context.Context, id string, attempts int, lastErr string) error {
	return r.update(id, func(job *domain.Job) {
		job.Status = domain.JobStatusFailed
		job.Attempts = attempts
		job.LastError = lastErr
	})
}

// Requeue возвращает задачу в очередь с обнулёнными попытками.
func (r *jobRepositoryInMemory) Requeue(_ context.Context, id string) error {
	now := time.Now().UTC()
	return r.update(id, func(job *domain.Job) {
		job.Status = domain.JobStatusPending
		job.Attempts = 0
		job.LastError = ""
		job.NextRunAt = now
	})
}

// Stats возвращает размер backlog и возраст самой старой задачи.
func (r *jobRepositoryInMemory) Stats(_ context.Context) (domain.JobStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stats domain.JobStats
	for _, job := range r.jobs {
		if job.Status != domain.JobStatusPending {
			continue
		}
		stats.PendingCount++
		if stats.OldestPendingAt.IsZero() || job.CreatedAt.Before(stats.OldestPendingAt) {
			stats.OldestPendingAt = job.CreatedAt
		}
	}
	return stats, nil
}

// Get возвращает копию задачи (используется в тестах).
func (r *jobRepositoryInMemory) Get(id string) (domain.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return domain.Job{}, false
	}
	return *job, true
}

// All возвращает копию всех задач указанного топика (используется в тестах).
func (r *jobRepositoryInMemory) All(topic string) []domain.Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]domain.Job, 0)
	for _, job := range r.jobs {
		if topic == "" || job.Topic == topic {
			result = append(result, *job)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result
}

func (r *jobRepositoryInMemory) update(id string, mutate func(job *domain.Job)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	mutate(job)
	job.UpdatedAt = time.Now().UTC()
	return nil
}

var _ domain.JobRepository = (*jobRepositoryInMemory)(nil)
