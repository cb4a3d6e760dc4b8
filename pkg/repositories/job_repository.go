package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/aurascan-ai/aurascan-engine/pkg/apperrors"
	"github.com/aurascan-ai/aurascan-engine/pkg/database"
	"github.com/aurascan-ai/aurascan-engine/pkg/models"
)

// JobRepository provides data access for batch scan jobs. All status
// transitions go through TransitionIf so concurrent triggers race safely:
// exactly one caller wins, the loser observes ErrConcurrencyConflict.
type JobRepository interface {
	Create(ctx context.Context, job *models.BatchJob) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.BatchJob, error)
	GetByKey(ctx context.Context, idempotencyKey string) (*models.BatchJob, error)

	// TransitionIf moves the job from expected to next status. Returns
	// apperrors.ErrConcurrencyConflict when the row is no longer in the
	// expected status.
	TransitionIf(ctx context.Context, id uuid.UUID, expected, next models.JobStatus) error

	// UpdateHeartbeat advances last_heartbeat and stores progress metadata.
	UpdateHeartbeat(ctx context.Context, id uuid.UUID, progress *models.JobProgress) error

	// ClaimForResume atomically takes over an interrupted job: queued,
	// failed, or in_progress with a heartbeat older than staleAfter. The
	// claim stamps a fresh heartbeat, so of several concurrent callers
	// exactly one wins; a live in_progress job keeps its current worker
	// and the claim fails with ErrConcurrencyConflict.
	ClaimForResume(ctx context.Context, id uuid.UUID, staleAfter time.Duration) error

	// ReleaseKey frees the job's idempotency key so a replacement job can
	// claim it. The released key is suffixed with the job id so the row
	// stays unique and traceable.
	ReleaseKey(ctx context.Context, id uuid.UUID) error

	// ListStale returns in_progress jobs whose heartbeat is older than the
	// staleness threshold.
	ListStale(ctx context.Context, staleAfter time.Duration) ([]*models.BatchJob, error)
}

type jobRepository struct{}

// NewJobRepository creates a new JobRepository.
func NewJobRepository() JobRepository {
	return &jobRepository{}
}

var _ JobRepository = (*jobRepository)(nil)

const jobColumns = `id, org_id, status, idempotency_key, progress,
		started_at, completed_at, last_heartbeat, created_at, updated_at`

func (r *jobRepository) Create(ctx context.Context, job *models.BatchJob) error {
	scope, ok := database.GetOrgScope(ctx)
	if !ok {
		return fmt.Errorf("no org scope in context")
	}

	now := time.Now()
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = models.JobStatusQueued
	}

	progressJSON, err := marshalProgress(job.Progress)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO batch_jobs (id, org_id, status, idempotency_key, progress, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = scope.Conn.Exec(ctx, query,
		job.ID, job.OrgID, job.Status, job.IdempotencyKey, progressJSON,
		job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("idempotency key %q already taken: %w", job.IdempotencyKey, apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to create batch job: %w", err)
	}

	return nil
}

func (r *jobRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.BatchJob, error) {
	return r.getOne(ctx, `SELECT `+jobColumns+` FROM batch_jobs WHERE id = $1`, id)
}

func (r *jobRepository) GetByKey(ctx context.Context, idempotencyKey string) (*models.BatchJob, error) {
	return r.getOne(ctx, `SELECT `+jobColumns+` FROM batch_jobs WHERE idempotency_key = $1`, idempotencyKey)
}

func (r *jobRepository) getOne(ctx context.Context, query string, arg any) (*models.BatchJob, error) {
	scope, ok := database.GetOrgScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no org scope in context")
	}

	job, err := scanJob(scope.Conn.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get batch job: %w", err)
	}
	return job, nil
}

func (r *jobRepository) TransitionIf(ctx context.Context, id uuid.UUID, expected, next models.JobStatus) error {
	scope, ok := database.GetOrgScope(ctx)
	if !ok {
		return fmt.Errorf("no org scope in context")
	}

	// started_at is stamped on the first move into in_progress,
	// completed_at on entering a terminal status.
	query := `
		UPDATE batch_jobs
		SET status = $3,
		    started_at = CASE WHEN $3 = 'in_progress' AND started_at IS NULL THEN NOW() ELSE started_at END,
		    completed_at = CASE WHEN $3 IN ('completed', 'failed') THEN NOW() ELSE completed_at END,
		    last_heartbeat = CASE WHEN $3 = 'in_progress' THEN NOW() ELSE last_heartbeat END,
		    updated_at = NOW()
		WHERE id = $1 AND status = $2`

	tag, err := scope.Conn.Exec(ctx, query, id, expected, next)
	if err != nil {
		return fmt.Errorf("failed to transition batch job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s not in status %q: %w", id, expected, apperrors.ErrConcurrencyConflict)
	}
	return nil
}

func (r *jobRepository) ClaimForResume(ctx context.Context, id uuid.UUID, staleAfter time.Duration) error {
	scope, ok := database.GetOrgScope(ctx)
	if !ok {
		return fmt.Errorf("no org scope in context")
	}

	// The fresh last_heartbeat is what makes the claim exclusive: the
	// first caller to commit resets the staleness clock and every
	// concurrent claim after it matches zero rows.
	query := `
		UPDATE batch_jobs
		SET status = 'in_progress',
		    started_at = COALESCE(started_at, NOW()),
		    last_heartbeat = NOW(),
		    updated_at = NOW()
		WHERE id = $1
		  AND (status IN ('queued', 'failed')
		       OR (status = 'in_progress'
		           AND COALESCE(last_heartbeat, created_at) < NOW() - make_interval(secs => $2)))`

	tag, err := scope.Conn.Exec(ctx, query, id, staleAfter.Seconds())
	if err != nil {
		return fmt.Errorf("failed to claim batch job for resume: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s is live or already claimed: %w", id, apperrors.ErrConcurrencyConflict)
	}
	return nil
}

func (r *jobRepository) UpdateHeartbeat(ctx context.Context, id uuid.UUID, progress *models.JobProgress) error {
	scope, ok := database.GetOrgScope(ctx)
	if !ok {
		return fmt.Errorf("no org scope in context")
	}

	progressJSON, err := marshalProgress(progress)
	if err != nil {
		return err
	}

	// GREATEST keeps heartbeats monotonically non-decreasing even if two
	// workers briefly overlap after a resume.
	query := `
		UPDATE batch_jobs
		SET last_heartbeat = GREATEST(COALESCE(last_heartbeat, 'epoch'::timestamptz), NOW()),
		    progress = $2,
		    updated_at = NOW()
		WHERE id = $1`

	tag, err := scope.Conn.Exec(ctx, query, id, progressJSON)
	if err != nil {
		return fmt.Errorf("failed to update heartbeat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s: %w", id, apperrors.ErrNotFound)
	}
	return nil
}

func (r *jobRepository) ReleaseKey(ctx context.Context, id uuid.UUID) error {
	scope, ok := database.GetOrgScope(ctx)
	if !ok {
		return fmt.Errorf("no org scope in context")
	}

	query := `
		UPDATE batch_jobs
		SET idempotency_key = idempotency_key || '-replaced-' || id::text,
		    updated_at = NOW()
		WHERE id = $1 AND idempotency_key NOT LIKE '%-replaced-%'`

	tag, err := scope.Conn.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s key already released or missing: %w", id, apperrors.ErrNotFound)
	}
	return nil
}

func (r *jobRepository) ListStale(ctx context.Context, staleAfter time.Duration) ([]*models.BatchJob, error) {
	scope, ok := database.GetOrgScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no org scope in context")
	}

	query := `
		SELECT ` + jobColumns + `
		FROM batch_jobs
		WHERE status = 'in_progress'
		  AND COALESCE(last_heartbeat, created_at) < NOW() - make_interval(secs => $1)
		ORDER BY last_heartbeat`

	rows, err := scope.Conn.Query(ctx, query, staleAfter.Seconds())
	if err != nil {
		return nil, fmt.Errorf("failed to list stale jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.BatchJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan batch job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func scanJob(row pgx.Row) (*models.BatchJob, error) {
	var job models.BatchJob
	var progressJSON []byte
	err := row.Scan(
		&job.ID, &job.OrgID, &job.Status, &job.IdempotencyKey, &progressJSON,
		&job.StartedAt, &job.CompletedAt, &job.LastHeartbeat,
		&job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(progressJSON) > 0 {
		job.Progress = &models.JobProgress{}
		if err := json.Unmarshal(progressJSON, job.Progress); err != nil {
			return nil, fmt.Errorf("failed to unmarshal job progress: %w", err)
		}
	}
	return &job, nil
}

func marshalProgress(p *models.JobProgress) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job progress: %w", err)
	}
	return data, nil
}
