package snapshot

import (
	"context"
	"encoding/json"
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

const columns = "id, ticker, kind, payload, snapshot_date, fetched_at"

// Repository handles data snapshot persistence. At most one snapshot is
// stored per (ticker, kind, snapshot_date); readers take the newest row
// per (ticker, kind).
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new snapshot repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Append stores a new snapshot for a ticker. The period holds one row: when
// a concurrent refresher already stored a snapshot for this (ticker, kind,
// snapshot_date), the row that won is returned instead.
func (r *Repository) Append(ctx context.Context, ticker string, kind models.SnapshotKind, payload json.RawMessage) (*models.DataSnapshot, error) {
	ctx, span := tracing.StartSpan(ctx, "snapshot.Repository.Append")
	defer span.End()

	now := time.Now().UTC()
	snapshot := &models.DataSnapshot{
		ID:           uuid.New().String(),
		Ticker:       strings.ToUpper(strings.TrimSpace(ticker)),
		Kind:         kind,
		Payload:      payload,
		SnapshotDate: now.Format("2006-01-02"),
		FetchedAt:    now,
	}

	result := snapshot
	_, err := database.InsertOrGet(ctx,
		func(ctx context.Context) error {
			sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
			sb.InsertInto("data_snapshots")
			sb.Cols("id", "ticker", "kind", "payload", "snapshot_date", "fetched_at")
			sb.Values(snapshot.ID, snapshot.Ticker, snapshot.Kind, snapshot.Payload, snapshot.SnapshotDate, snapshot.FetchedAt)

			query, args := sb.Build()
			_, err := r.db.ExecContext(ctx, query, args...)
			return err
		},
		func(ctx context.Context) error {
			existing, err := r.getByPeriod(ctx, snapshot.Ticker, kind, snapshot.SnapshotDate)
			if err != nil {
				return err
			}
			result = existing
			return nil
		},
	)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"ticker": snapshot.Ticker, "kind": kind}).Error("Failed to append snapshot")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to append snapshot")
	}

	return result, nil
}

func (r *Repository) getByPeriod(ctx context.Context, ticker string, kind models.SnapshotKind, snapshotDate string) (*models.DataSnapshot, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("data_snapshots")
	sb.Where(
		sb.Equal("ticker", ticker),
		sb.Equal("kind", kind),
		sb.Equal("snapshot_date", snapshotDate),
	)

	query, args := sb.Build()
	var snapshot models.DataSnapshot
	if err := r.db.GetContext(ctx, &snapshot, query, args...); err != nil {
		return nil, err
	}

	return &snapshot, nil
}

// GetLatest retrieves the newest snapshot for a (ticker, kind)
func (r *Repository) GetLatest(ctx context.Context, ticker string, kind models.SnapshotKind) (*models.DataSnapshot, error) {
	ctx, span := tracing.StartSpan(ctx, "snapshot.Repository.GetLatest")
	defer span.End()

	ticker = strings.ToUpper(strings.TrimSpace(ticker))

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("data_snapshots")
	sb.Where(
		sb.Equal("ticker", ticker),
		sb.Equal("kind", kind),
	)
	sb.OrderBy("fetched_at DESC")
	sb.Limit(1)

	query, args := sb.Build()
	var snapshot models.DataSnapshot
	if err := r.db.GetContext(ctx, &snapshot, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("no %s snapshot for %s", kind, ticker))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get latest snapshot")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get snapshot")
	}

	return &snapshot, nil
}

// GetLatestFetchedAt returns when the newest snapshot for a (ticker, kind)
// was fetched, or nil when none exists.
func (r *Repository) GetLatestFetchedAt(ctx context.Context, ticker string, kind models.SnapshotKind) (*time.Time, error) {
	ctx, span := tracing.StartSpan(ctx, "snapshot.Repository.GetLatestFetchedAt")
	defer span.End()

	ticker = strings.ToUpper(strings.TrimSpace(ticker))

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("fetched_at")
	sb.From("data_snapshots")
	sb.Where(
		sb.Equal("ticker", ticker),
		sb.Equal("kind", kind),
	)
	sb.OrderBy("fetched_at DESC")
	sb.Limit(1)

	query, args := sb.Build()
	var fetchedAt time.Time
	if err := r.db.GetContext(ctx, &fetchedAt, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get latest snapshot time")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get snapshot time")
	}

	return &fetchedAt, nil
}
