package refreshjob

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

const jobColumns = "id, as_of_date, status, started_at, finished_at, stats, created_at, updated_at"
const itemColumns = "id, job_id, ticker, status, last_error, created_at, updated_at"

// Repository handles refresh job persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new refresh job repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// InsertOrGetForDate creates the refresh job for an as-of date, or returns
// the existing one. Uniqueness on as_of_date makes the daily refresh
// single-flight across processes.
func (r *Repository) InsertOrGetForDate(ctx context.Context, asOfDate string) (*models.RefreshJob, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "refreshjob.Repository.InsertOrGetForDate")
	defer span.End()

	now := time.Now().UTC()
	job := &models.RefreshJob{
		ID:        uuid.New().String(),
		AsOfDate:  asOfDate,
		Status:    models.RefreshJobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	job.Stats.Data = map[string]int{}

	result := job
	created, err := database.InsertOrGet(ctx,
		func(ctx context.Context) error {
			sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
			sb.InsertInto("refresh_jobs")
			sb.Cols("id", "as_of_date", "status", "created_at", "updated_at")
			sb.Values(job.ID, job.AsOfDate, job.Status, job.CreatedAt, job.UpdatedAt)

			query, args := sb.Build()
			_, err := r.db.ExecContext(ctx, query, args...)
			return err
		},
		func(ctx context.Context) error {
			existing, err := r.GetByDate(ctx, asOfDate)
			if err != nil {
				return err
			}
			result = existing
			return nil
		},
	)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"as_of_date": asOfDate}).Error("Failed to create refresh job")
		return nil, false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create refresh job")
	}

	return result, created, nil
}

// GetByDate retrieves the refresh job for an as-of date
func (r *Repository) GetByDate(ctx context.Context, asOfDate string) (*models.RefreshJob, error) {
	ctx, span := tracing.StartSpan(ctx, "refreshjob.Repository.GetByDate")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(jobColumns)
	sb.From("refresh_jobs")
	sb.Where(sb.Equal("as_of_date", asOfDate))

	query, args := sb.Build()
	var job models.RefreshJob
	if err := r.db.GetContext(ctx, &job, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("no refresh job for %s", asOfDate))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get refresh job")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get refresh job")
	}

	return &job, nil
}

// SetJobStatus transitions a refresh job. Started and finished timestamps
// follow the status.
func (r *Repository) SetJobStatus(ctx context.Context, jobID string, status models.RefreshJobStatus) error {
	ctx, span := tracing.StartSpan(ctx, "refreshjob.Repository.SetJobStatus")
	defer span.End()

	query := `
		UPDATE refresh_jobs SET
			status = $2,
			started_at = CASE WHEN $2 = 'running' AND started_at IS NULL THEN NOW() ELSE started_at END,
			finished_at = CASE WHEN $2 IN ('completed', 'failed') THEN NOW() ELSE finished_at END,
			updated_at = NOW()
		WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, jobID, status); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"job_id": jobID, "status": status}).Error("Failed to update refresh job status")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update refresh job")
	}

	return nil
}

// SetJobStats persists the per-status item counts on the job row.
func (r *Repository) SetJobStats(ctx context.Context, jobID string, stats map[string]int) error {
	ctx, span := tracing.StartSpan(ctx, "refreshjob.Repository.SetJobStats")
	defer span.End()

	query := `UPDATE refresh_jobs SET stats = $2, updated_at = NOW() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, jobID, database.JSONB[map[string]int]{Data: stats}); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"job_id": jobID}).Error("Failed to update refresh job stats")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update refresh job")
	}

	return nil
}

// EnsureItem creates the (job, ticker) slot unless it already exists.
func (r *Repository) EnsureItem(ctx context.Context, jobID, ticker string) (*models.RefreshJobItem, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "refreshjob.Repository.EnsureItem")
	defer span.End()

	now := time.Now().UTC()
	item := &models.RefreshJobItem{
		ID:        uuid.New().String(),
		JobID:     jobID,
		Ticker:    ticker,
		Status:    models.RefreshItemStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	result := item
	created, err := database.InsertOrGet(ctx,
		func(ctx context.Context) error {
			sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
			sb.InsertInto("refresh_job_items")
			sb.Cols("id", "job_id", "ticker", "status", "created_at", "updated_at")
			sb.Values(item.ID, item.JobID, item.Ticker, item.Status, item.CreatedAt, item.UpdatedAt)

			query, args := sb.Build()
			_, err := r.db.ExecContext(ctx, query, args...)
			return err
		},
		func(ctx context.Context) error {
			sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
			sb.Select(itemColumns)
			sb.From("refresh_job_items")
			sb.Where(
				sb.Equal("job_id", jobID),
				sb.Equal("ticker", ticker),
			)

			query, args := sb.Build()
			var existing models.RefreshJobItem
			if err := r.db.GetContext(ctx, &existing, query, args...); err != nil {
				return err
			}
			result = &existing
			return nil
		},
	)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"job_id": jobID, "ticker": ticker}).Error("Failed to ensure refresh job item")
		return nil, false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to ensure refresh job item")
	}

	return result, created, nil
}

// SetItemStatus transitions a refresh job item and records its error, if any.
func (r *Repository) SetItemStatus(ctx context.Context, itemID string, status models.RefreshItemStatus, lastError string) error {
	ctx, span := tracing.StartSpan(ctx, "refreshjob.Repository.SetItemStatus")
	defer span.End()

	query := `
		UPDATE refresh_job_items SET
			status = $2,
			last_error = NULLIF($3, ''),
			updated_at = NOW()
		WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, itemID, status, lastError); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"item_id": itemID, "status": status}).Error("Failed to update refresh job item")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update refresh job item")
	}

	return nil
}

// ListItems retrieves all items of a refresh job
func (r *Repository) ListItems(ctx context.Context, jobID string) ([]models.RefreshJobItem, error) {
	ctx, span := tracing.StartSpan(ctx, "refreshjob.Repository.ListItems")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(itemColumns)
	sb.From("refresh_job_items")
	sb.Where(sb.Equal("job_id", jobID))
	sb.OrderBy("ticker")

	query, args := sb.Build()
	var items []models.RefreshJobItem
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list refresh job items")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list refresh job items")
	}

	return items, nil
}

// Summary aggregates item counts for a refresh job
func (r *Repository) Summary(ctx context.Context, jobID string) (*models.RefreshJobSummary, error) {
	ctx, span := tracing.StartSpan(ctx, "refreshjob.Repository.Summary")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(jobColumns)
	sb.From("refresh_jobs")
	sb.Where(sb.Equal("id", jobID))

	query, args := sb.Build()
	var job models.RefreshJob
	if err := r.db.GetContext(ctx, &job, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("refresh job %s not found", jobID))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get refresh job")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get refresh job")
	}

	type statusCount struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}

	var rows []statusCount
	countQuery := `SELECT status, COUNT(*) AS count FROM refresh_job_items WHERE job_id = $1 GROUP BY status`
	if err := r.db.SelectContext(ctx, &rows, countQuery, jobID); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count refresh job items")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to summarize refresh job")
	}

	summary := &models.RefreshJobSummary{
		Job:    job,
		Counts: make(map[string]int, len(rows)),
	}
	for _, row := range rows {
		summary.Counts[row.Status] = row.Count
		summary.ItemCount += row.Count
	}

	return summary, nil
}
