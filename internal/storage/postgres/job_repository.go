package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// claimLease: на сколько забранная задача скрывается от других воркеров.
// Если воркер упал, задача снова станет доступна после истечения lease.
const claimLease = time.Minute

const jobColumns = `
	id, topic, payload, max_attempts, backoff, delay_ms, attempts,
	status, last_error, next_run_at, created_at, updated_at`

type jobRepository struct {
	db *sql.DB
}

// NewJobRepository создаёт PostgreSQL-реализацию JobRepository.
func NewJobRepository(store *Store) domain.JobRepository {
	return &jobRepository{db: store.DB()}
}

func (r *jobRepository) Enqueue(ctx context.Context, job domain.Job) (domain.Job, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if job.NextRunAt.IsZero() {
		job.NextRunAt = now
	}
	job.Status = domain.JobStatusPending
	job.CreatedAt, job.UpdatedAt = now, now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`,
		job.ID, job.Topic, job.Payload, job.Policy.Attempts, string(job.Policy.Backoff),
		job.Policy.Delay.Milliseconds(), job.Attempts, string(job.Status), job.LastError,
		job.NextRunAt, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Job{}, fmt.Errorf("%w: job %s", domain.ErrDuplicate, job.ID)
		}
		return domain.Job{}, domain.RepositoryError("enqueue job", err)
	}
	return job, nil
}

// ClaimDue забирает готовые задачи через SKIP LOCKED, поэтому несколько
// реплик воркера не получают одну задачу одновременно.
func (r *jobRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.Job, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
		UPDATE jobs
		SET next_run_at = $2,
		    updated_at = $1
		WHERE id IN (
			SELECT id
			FROM jobs
			WHERE status = 'pending'
			  AND next_run_at <= $1
			ORDER BY next_run_at, id
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns,
		now, now.Add(claimLease), limit,
	)
	if err != nil {
		return nil, domain.RepositoryError("claim jobs", err)
	}
	defer rows.Close()

	jobs := make([]domain.Job, 0, limit)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, domain.RepositoryError("scan job row", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.RepositoryError("iterate job rows", err)
	}
	return jobs, nil
}

func (r *jobRepository) MarkDone(ctx context.Context, id string) error {
	return r.update(ctx, "mark job done", `
		UPDATE jobs
		SET status = 'done',
		    attempts = attempts + 1,
		    last_error = '',
		    updated_at = $2
		WHERE id = $1
	`, id, time.Now().UTC())
}

func (r *jobRepository) ScheduleRetry(ctx context.Context, id string, attempts int, nextRunAt time.Time, lastErr string) error {
	return r.update(ctx, "schedule job retry", `
		UPDATE jobs
		SET attempts = $2,
		    next_run_at = $3,
		    last_error = $4,
		    updated_at = $5
		WHERE id = $1
	`, id, attempts, nextRunAt, lastErr, time.Now().UTC())
}

func (r *jobRepository) MarkFailed(ctx context.Context, id string, attempts int, lastErr string) error {
	return r.update(ctx, "mark job failed", `
		UPDATE jobs
		SET status = 'failed',
		    attempts = $2,
		    last_error = $3,
		    updated_at = $4
		WHERE id = $1
	`, id, attempts, lastErr, time.Now().UTC())
}

func (r *jobRepository) Requeue(ctx context.Context, id string) error {
	now := time.Now().UTC()
	return r.update(ctx, "requeue job", `
		UPDATE jobs
		SET status = 'pending',
		    attempts = 0,
		    last_error = '',
		    next_run_at = $2,
		    updated_at = $2
		WHERE id = $1
	`, id, now)
}

func (r *jobRepository) Stats(ctx context.Context) (domain.JobStats, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var (
		stats  domain.JobStats
		oldest sql.NullTime
	)
	if err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), MIN(created_at)
		FROM jobs
		WHERE status = 'pending'
	`).Scan(&stats.PendingCount, &oldest); err != nil {
		return domain.JobStats{}, domain.RepositoryError("job stats", err)
	}
	if oldest.Valid {
		stats.OldestPendingAt = oldest.Time.UTC()
	}
	return stats, nil
}

func (r *jobRepository) update(ctx context.Context, op, query string, args ...any) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return domain.RepositoryError(op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.RepositoryError(op, err)
	}
	if affected == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

func scanJob(row rowScanner) (domain.Job, error) {
	var (
		job     domain.Job
		backoff string
		status  string
		delayMS int64
	)
	if err := row.Scan(
		&job.ID, &job.Topic, &job.Payload, &job.Policy.Attempts, &backoff, &delayMS,
		&job.Attempts, &status, &job.LastError, &job.NextRunAt, &job.CreatedAt, &job.UpdatedAt,
	); err != nil {
		return domain.Job{}, err
	}
	job.Policy.Backoff = domain.BackoffType(backoff)
	job.Policy.Delay = time.Duration(delayMS) * time.Millisecond
	job.Status = domain.JobStatus(status)
	return job, nil
}

var _ domain.JobRepository = (*jobRepository)(nil)
