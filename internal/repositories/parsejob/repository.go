package parsejob

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const columns = "id, artifact_id, parser_version, idempotency_key, status, attempt_count, max_attempts, locked_by, locked_at, last_error, created_at, updated_at"

// ErrLockLost is returned when a finalize call finds the job claimed by
// someone else. The caller's work must be discarded.
var ErrLockLost = httperror.NewHTTPError(http.StatusConflict, "parse job lock lost")

// Repository handles parse job persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new parse job repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// EnqueueIfAbsent creates a queued parse job for the artifact unless a job
// with the same idempotency key already exists. Returns the surviving job
// and whether this call created it.
func (r *Repository) EnqueueIfAbsent(ctx context.Context, artifactID, parserVersion string, maxAttempts int) (*models.ParseJob, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "parsejob.Repository.EnqueueIfAbsent")
	defer span.End()

	now := time.Now().UTC()
	job := &models.ParseJob{
		ID:             uuid.New().String(),
		ArtifactID:     artifactID,
		ParserVersion:  parserVersion,
		IdempotencyKey: models.ParseJobKey(artifactID, parserVersion),
		Status:         models.JobStatusQueued,
		AttemptCount:   0,
		MaxAttempts:    maxAttempts,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	result := job
	created, err := database.InsertOrGet(ctx,
		func(ctx context.Context) error {
			sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
			sb.InsertInto("parse_jobs")
			sb.Cols("id", "artifact_id", "parser_version", "idempotency_key", "status", "attempt_count", "max_attempts", "created_at", "updated_at")
			sb.Values(job.ID, job.ArtifactID, job.ParserVersion, job.IdempotencyKey, job.Status, job.AttemptCount, job.MaxAttempts, job.CreatedAt, job.UpdatedAt)

			query, args := sb.Build()
			_, err := r.db.ExecContext(ctx, query, args...)
			return err
		},
		func(ctx context.Context) error {
			existing, err := r.GetByIdempotencyKey(ctx, job.IdempotencyKey)
			if err != nil {
				return err
			}
			result = existing
			return nil
		},
	)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"artifact_id": artifactID}).Error("Failed to enqueue parse job")
		return nil, false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to enqueue parse job")
	}

	return result, created, nil
}

// Claim atomically picks one runnable job for the worker: a queued job, or a
// running job whose lock has been stale for longer than the grace period.
// The conditional update is the claim; losing the race simply returns no job.
func (r *Repository) Claim(ctx context.Context, workerID string, gracePeriod time.Duration) (*models.ParseJob, error) {
	ctx, span := tracing.StartSpan(ctx, "parsejob.Repository.Claim")
	defer span.End()

	staleBefore := time.Now().UTC().Add(-gracePeriod)

	query := `
		UPDATE parse_jobs SET
			status = 'running',
			locked_by = $1,
			locked_at = NOW(),
			attempt_count = attempt_count + 1,
			updated_at = NOW()
		WHERE id = (
			SELECT id FROM parse_jobs
			WHERE status = 'queued'
			   OR (status = 'running' AND locked_at < $2)
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + columns

	var job models.ParseJob
	if err := r.db.GetContext(ctx, &job, query, workerID, staleBefore); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil // nothing runnable
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to claim parse job")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to claim parse job")
	}

	return &job, nil
}

// Complete marks a running job done. Fails with ErrLockLost when the job is
// no longer locked by this worker.
func (r *Repository) Complete(ctx context.Context, jobID, workerID string) error {
	ctx, span := tracing.StartSpan(ctx, "parsejob.Repository.Complete")
	defer span.End()

	query := `
		UPDATE parse_jobs SET
			status = 'done',
			locked_by = NULL,
			locked_at = NULL,
			last_error = NULL,
			updated_at = NOW()
		WHERE id = $1 AND locked_by = $2 AND status = 'running'`

	result, err := r.db.ExecContext(ctx, query, jobID, workerID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"job_id": jobID}).Error("Failed to complete parse job")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to complete parse job")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to complete parse job")
	}
	if rows == 0 {
		r.logger.WithContext(ctx).WithFields(map[string]any{"job_id": jobID, "worker_id": workerID}).Warn("Parse job lock lost before completion")
		return ErrLockLost
	}

	return nil
}

// Fail records a failed attempt. The job goes back to queued while attempts
// remain and to deadletter once the budget is spent. Fails with ErrLockLost
// when the job is no longer locked by this worker.
func (r *Repository) Fail(ctx context.Context, jobID, workerID, lastError string) (models.JobStatus, error) {
	ctx, span := tracing.StartSpan(ctx, "parsejob.Repository.Fail")
	defer span.End()

	query := `
		UPDATE parse_jobs SET
			status = CASE WHEN attempt_count >= max_attempts THEN 'deadletter' ELSE 'queued' END,
			last_error = $3,
			locked_by = NULL,
			locked_at = NULL,
			updated_at = NOW()
		WHERE id = $1 AND locked_by = $2 AND status = 'running'
		RETURNING status`

	var status models.JobStatus
	if err := r.db.GetContext(ctx, &status, query, jobID, workerID, lastError); err != nil {
		if err.Error() == "sql: no rows in result set" {
			r.logger.WithContext(ctx).WithFields(map[string]any{"job_id": jobID, "worker_id": workerID}).Warn("Parse job lock lost before failure was recorded")
			return "", ErrLockLost
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"job_id": jobID}).Error("Failed to record parse job failure")
		return "", httperror.NewHTTPError(http.StatusInternalServerError, "failed to record parse job failure")
	}

	return status, nil
}

// RequeueDeadletter moves a deadlettered job back to queued with a fresh
// attempt budget.
func (r *Repository) RequeueDeadletter(ctx context.Context, jobID string) (*models.ParseJob, error) {
	ctx, span := tracing.StartSpan(ctx, "parsejob.Repository.RequeueDeadletter")
	defer span.End()

	query := `
		UPDATE parse_jobs SET
			status = 'queued',
			attempt_count = 0,
			last_error = NULL,
			locked_by = NULL,
			locked_at = NULL,
			updated_at = NOW()
		WHERE id = $1 AND status = 'deadletter'
		RETURNING ` + columns

	var job models.ParseJob
	if err := r.db.GetContext(ctx, &job, query, jobID); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("parse job %s is not in deadletter", jobID))
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"job_id": jobID}).Error("Failed to requeue parse job")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to requeue parse job")
	}

	return &job, nil
}

// Get retrieves a parse job by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.ParseJob, error) {
	ctx, span := tracing.StartSpan(ctx, "parsejob.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("parse_jobs")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var job models.ParseJob
	if err := r.db.GetContext(ctx, &job, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("parse job %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get parse job")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get parse job")
	}

	return &job, nil
}

// GetByIdempotencyKey retrieves a parse job by its idempotency key
func (r *Repository) GetByIdempotencyKey(ctx context.Context, key string) (*models.ParseJob, error) {
	ctx, span := tracing.StartSpan(ctx, "parsejob.Repository.GetByIdempotencyKey")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("parse_jobs")
	sb.Where(sb.Equal("idempotency_key", key))

	query, args := sb.Build()
	var job models.ParseJob
	if err := r.db.GetContext(ctx, &job, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("parse job %s not found", key))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get parse job by idempotency key")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get parse job")
	}

	return &job, nil
}

// ListFilter narrows parse job listings
type ListFilter struct {
	Status     models.JobStatus
	ArtifactID string
	Page       int
	PageSize   int
}

// List retrieves parse jobs matching the filter, newest first
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]models.ParseJob, int, error) {
	ctx, span := tracing.StartSpan(ctx, "parsejob.Repository.List")
	defer span.End()

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > 500 {
		filter.PageSize = 100
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("parse_jobs")
	if filter.Status != "" {
		sb.Where(sb.Equal("status", filter.Status))
	}
	if filter.ArtifactID != "" {
		sb.Where(sb.Equal("artifact_id", filter.ArtifactID))
	}
	sb.OrderBy("created_at DESC")
	sb.Limit(filter.PageSize)
	sb.Offset((filter.Page - 1) * filter.PageSize)

	query, args := sb.Build()
	var jobs []models.ParseJob
	if err := r.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list parse jobs")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list parse jobs")
	}

	cb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	cb.Select("COUNT(*)")
	cb.From("parse_jobs")
	if filter.Status != "" {
		cb.Where(cb.Equal("status", filter.Status))
	}
	if filter.ArtifactID != "" {
		cb.Where(cb.Equal("artifact_id", filter.ArtifactID))
	}

	countQuery, countArgs := cb.Build()
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count parse jobs")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count parse jobs")
	}

	return jobs, total, nil
}
