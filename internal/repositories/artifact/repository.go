package artifact

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

const columns = "id, cik, accession_number, kind, form_type, filing_date, storage_path, sha256, size_bytes, source_url, parent_artifact_id, parser_version, warnings, created_at, updated_at"

// Repository handles artifact persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new artifact repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// InsertOrGet registers an artifact row. When another call already created
// the row for the same (cik, accession_number, kind, parser_version), the
// surviving row is returned and created is false.
func (r *Repository) InsertOrGet(ctx context.Context, artifact *models.Artifact) (*models.Artifact, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "artifact.Repository.InsertOrGet")
	defer span.End()

	if artifact.ID == "" {
		artifact.ID = uuid.New().String()
	}
	artifact.CreatedAt = time.Now().UTC()
	artifact.UpdatedAt = artifact.CreatedAt

	result := artifact
	created, err := database.InsertOrGet(ctx,
		func(ctx context.Context) error {
			return r.insert(ctx, artifact)
		},
		func(ctx context.Context) error {
			existing, err := r.GetByNaturalKey(ctx, artifact.CIK, artifact.AccessionNumber, artifact.Kind, artifact.ParserVersion)
			if err != nil {
				return err
			}
			result = existing
			return nil
		},
	)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"cik":              artifact.CIK,
			"accession_number": artifact.AccessionNumber,
			"kind":             artifact.Kind,
		}).Error("Failed to register artifact")
		return nil, false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to register artifact")
	}

	return result, created, nil
}

func (r *Repository) insert(ctx context.Context, artifact *models.Artifact) error {
	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("artifacts")
	sb.Cols("id", "cik", "accession_number", "kind", "form_type", "filing_date", "storage_path", "sha256", "size_bytes", "source_url", "parent_artifact_id", "parser_version", "warnings", "created_at", "updated_at")
	sb.Values(artifact.ID, artifact.CIK, artifact.AccessionNumber, artifact.Kind, artifact.FormType, artifact.FilingDate, artifact.StoragePath, artifact.SHA256, artifact.SizeBytes, artifact.SourceURL, artifact.ParentArtifactID, artifact.ParserVersion, artifact.Warnings, artifact.CreatedAt, artifact.UpdatedAt)

	query, args := sb.Build()
	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}

// Get retrieves an artifact by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.Artifact, error) {
	ctx, span := tracing.StartSpan(ctx, "artifact.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("artifacts")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var artifact models.Artifact
	if err := r.db.GetContext(ctx, &artifact, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("artifact %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get artifact")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get artifact")
	}

	return &artifact, nil
}

// GetByNaturalKey retrieves an artifact by its (cik, accession_number, kind,
// parser_version) key. Raw filings use an empty parserVersion.
func (r *Repository) GetByNaturalKey(ctx context.Context, cik, accessionNumber string, kind models.ArtifactKind, parserVersion string) (*models.Artifact, error) {
	ctx, span := tracing.StartSpan(ctx, "artifact.Repository.GetByNaturalKey")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("artifacts")
	sb.Where(
		sb.Equal("cik", cik),
		sb.Equal("accession_number", accessionNumber),
		sb.Equal("kind", kind),
		sb.Equal("parser_version", parserVersion),
	)

	query, args := sb.Build()
	var artifact models.Artifact
	if err := r.db.GetContext(ctx, &artifact, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("artifact (%s, %s, %s) not found", cik, accessionNumber, kind))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get artifact by natural key")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get artifact")
	}

	return &artifact, nil
}

// ListBySHA256 retrieves artifacts sharing a content hash. Used to flag
// byte-identical documents registered under different filings.
func (r *Repository) ListBySHA256(ctx context.Context, sha256 string) ([]models.Artifact, error) {
	ctx, span := tracing.StartSpan(ctx, "artifact.Repository.ListBySHA256")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("artifacts")
	sb.Where(sb.Equal("sha256", sha256))

	query, args := sb.Build()
	var artifacts []models.Artifact
	if err := r.db.SelectContext(ctx, &artifacts, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list artifacts by sha256")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list artifacts")
	}

	return artifacts, nil
}

// ListFilter narrows artifact listings
type ListFilter struct {
	CIK      string
	Kind     models.ArtifactKind
	Page     int
	PageSize int
}

// List retrieves artifacts matching the filter, newest first
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]models.Artifact, int, error) {
	ctx, span := tracing.StartSpan(ctx, "artifact.Repository.List")
	defer span.End()

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > 500 {
		filter.PageSize = 100
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("artifacts")
	if filter.CIK != "" {
		sb.Where(sb.Equal("cik", filter.CIK))
	}
	if filter.Kind != "" {
		sb.Where(sb.Equal("kind", filter.Kind))
	}
	sb.OrderBy("filing_date DESC NULLS LAST", "accession_number DESC", "kind")
	sb.Limit(filter.PageSize)
	sb.Offset((filter.Page - 1) * filter.PageSize)

	query, args := sb.Build()
	var artifacts []models.Artifact
	if err := r.db.SelectContext(ctx, &artifacts, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list artifacts")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list artifacts")
	}

	cb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	cb.Select("COUNT(*)")
	cb.From("artifacts")
	if filter.CIK != "" {
		cb.Where(cb.Equal("cik", filter.CIK))
	}
	if filter.Kind != "" {
		cb.Where(cb.Equal("kind", filter.Kind))
	}

	countQuery, countArgs := cb.Build()
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count artifacts")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count artifacts")
	}

	return artifacts, total, nil
}

// ListWithJobStatus retrieves artifacts matching the filter, each joined to
// the most recent parse job targeting it. Rows are ordered by filing date,
// then accession, newest first.
func (r *Repository) ListWithJobStatus(ctx context.Context, filter ListFilter) ([]models.ArtifactWithJob, int, error) {
	ctx, span := tracing.StartSpan(ctx, "artifact.Repository.ListWithJobStatus")
	defer span.End()

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > 500 {
		filter.PageSize = 100
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("a.id, a.cik, a.accession_number, a.kind, a.form_type, a.filing_date, a.storage_path, a.sha256, a.size_bytes, a.source_url, a.parent_artifact_id, a.parser_version, a.warnings, a.created_at, a.updated_at, j.id AS latest_job_id, j.status AS latest_job_status")
	sb.From("artifacts a")
	sb.JoinWithOption(sqlbuilder.LeftJoin,
		"LATERAL (SELECT id, status FROM parse_jobs WHERE artifact_id = a.id ORDER BY created_at DESC LIMIT 1) j",
		"TRUE")
	if filter.CIK != "" {
		sb.Where(sb.Equal("a.cik", filter.CIK))
	}
	if filter.Kind != "" {
		sb.Where(sb.Equal("a.kind", filter.Kind))
	}
	sb.OrderBy("a.filing_date DESC NULLS LAST", "a.accession_number DESC", "a.kind")
	sb.Limit(filter.PageSize)
	sb.Offset((filter.Page - 1) * filter.PageSize)

	query, args := sb.Build()
	var rows []models.ArtifactWithJob
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list artifacts with job status")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list artifacts")
	}

	cb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	cb.Select("COUNT(*)")
	cb.From("artifacts")
	if filter.CIK != "" {
		cb.Where(cb.Equal("cik", filter.CIK))
	}
	if filter.Kind != "" {
		cb.Where(cb.Equal("kind", filter.Kind))
	}

	countQuery, countArgs := cb.Build()
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count artifacts")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count artifacts")
	}

	return rows, total, nil
}
