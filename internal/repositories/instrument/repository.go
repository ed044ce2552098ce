package instrument

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const columns = "id, ticker, cik, name, created_at, updated_at"

// Repository handles instrument persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new instrument repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// EnsureWithCIK makes sure an instrument row exists for the ticker and that
// its CIK is recorded. A CIK already on the row is never overwritten; the
// first resolution wins.
func (r *Repository) EnsureWithCIK(ctx context.Context, ticker, cik, name string) (*models.Instrument, error) {
	ctx, span := tracing.StartSpan(ctx, "instrument.Repository.EnsureWithCIK")
	defer span.End()

	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	now := time.Now().UTC()

	instrument := &models.Instrument{
		ID:        uuid.New().String(),
		Ticker:    ticker,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if cik != "" {
		instrument.CIK = &cik
	}
	if name != "" {
		instrument.Name = &name
	}

	result := instrument
	_, err := database.InsertOrGet(ctx,
		func(ctx context.Context) error {
			sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
			sb.InsertInto("instruments")
			sb.Cols("id", "ticker", "cik", "name", "created_at", "updated_at")
			sb.Values(instrument.ID, instrument.Ticker, instrument.CIK, instrument.Name, instrument.CreatedAt, instrument.UpdatedAt)

			query, args := sb.Build()
			_, err := r.db.ExecContext(ctx, query, args...)
			return err
		},
		func(ctx context.Context) error {
			existing, err := r.backfill(ctx, ticker, cik, name)
			if err != nil {
				return err
			}
			result = existing
			return nil
		},
	)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"ticker": ticker}).Error("Failed to ensure instrument")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to ensure instrument")
	}

	return result, nil
}

// backfill fills a missing CIK or name on an existing row and returns it.
func (r *Repository) backfill(ctx context.Context, ticker, cik, name string) (*models.Instrument, error) {
	query := `
		UPDATE instruments SET
			cik = COALESCE(cik, NULLIF($2, '')),
			name = COALESCE(name, NULLIF($3, '')),
			updated_at = NOW()
		WHERE ticker = $1
		RETURNING ` + columns

	var instrument models.Instrument
	if err := r.db.GetContext(ctx, &instrument, query, ticker, cik, name); err != nil {
		return nil, err
	}
	return &instrument, nil
}

// GetByTicker retrieves an instrument by ticker
func (r *Repository) GetByTicker(ctx context.Context, ticker string) (*models.Instrument, error) {
	ctx, span := tracing.StartSpan(ctx, "instrument.Repository.GetByTicker")
	defer span.End()

	ticker = strings.ToUpper(strings.TrimSpace(ticker))

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("instruments")
	sb.Where(sb.Equal("ticker", ticker))

	query, args := sb.Build()
	var instrument models.Instrument
	if err := r.db.GetContext(ctx, &instrument, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("instrument %s not found", ticker))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get instrument")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get instrument")
	}

	return &instrument, nil
}

// List retrieves all instruments ordered by ticker
func (r *Repository) List(ctx context.Context) ([]models.Instrument, error) {
	ctx, span := tracing.StartSpan(ctx, "instrument.Repository.List")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("instruments")
	sb.OrderBy("ticker")

	query, args := sb.Build()
	var instruments []models.Instrument
	if err := r.db.SelectContext(ctx, &instruments, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list instruments")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list instruments")
	}

	return instruments, nil
}
