package watchlist

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

const columns = "id, tenant_id, name, created_at, updated_at"
const itemColumns = "id, watchlist_id, ticker, created_at"

// Repository handles watchlist persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new watchlist repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new watchlist
func (r *Repository) Create(ctx context.Context, tenantID, name string) (*models.Watchlist, error) {
	ctx, span := tracing.StartSpan(ctx, "watchlist.Repository.Create")
	defer span.End()

	now := time.Now().UTC()
	watchlist := &models.Watchlist{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("watchlists")
	sb.Cols("id", "tenant_id", "name", "created_at", "updated_at")
	sb.Values(watchlist.ID, watchlist.TenantID, watchlist.Name, watchlist.CreatedAt, watchlist.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("watchlist %q already exists", name))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create watchlist")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create watchlist")
	}

	return watchlist, nil
}

// Get retrieves a watchlist by ID
func (r *Repository) Get(ctx context.Context, tenantID, id string) (*models.Watchlist, error) {
	ctx, span := tracing.StartSpan(ctx, "watchlist.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("watchlists")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var watchlist models.Watchlist
	if err := r.db.GetContext(ctx, &watchlist, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("watchlist %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get watchlist")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get watchlist")
	}

	return &watchlist, nil
}

// List retrieves all watchlists for a tenant
func (r *Repository) List(ctx context.Context, tenantID string) ([]models.Watchlist, error) {
	ctx, span := tracing.StartSpan(ctx, "watchlist.Repository.List")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("watchlists")
	sb.Where(sb.Equal("tenant_id", tenantID))
	sb.OrderBy("name")

	query, args := sb.Build()
	var watchlists []models.Watchlist
	if err := r.db.SelectContext(ctx, &watchlists, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list watchlists")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list watchlists")
	}

	return watchlists, nil
}

// AddItem adds a ticker to a watchlist. Adding a ticker twice is a no-op.
func (r *Repository) AddItem(ctx context.Context, watchlistID, ticker string) (*models.WatchlistItem, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "watchlist.Repository.AddItem")
	defer span.End()

	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	item := &models.WatchlistItem{
		ID:          uuid.New().String(),
		WatchlistID: watchlistID,
		Ticker:      ticker,
		CreatedAt:   time.Now().UTC(),
	}

	result := item
	created, err := database.InsertOrGet(ctx,
		func(ctx context.Context) error {
			sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
			sb.InsertInto("watchlist_items")
			sb.Cols("id", "watchlist_id", "ticker", "created_at")
			sb.Values(item.ID, item.WatchlistID, item.Ticker, item.CreatedAt)

			query, args := sb.Build()
			_, err := r.db.ExecContext(ctx, query, args...)
			return err
		},
		func(ctx context.Context) error {
			sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
			sb.Select(itemColumns)
			sb.From("watchlist_items")
			sb.Where(
				sb.Equal("watchlist_id", watchlistID),
				sb.Equal("ticker", ticker),
			)

			query, args := sb.Build()
			var existing models.WatchlistItem
			if err := r.db.GetContext(ctx, &existing, query, args...); err != nil {
				return err
			}
			result = &existing
			return nil
		},
	)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"watchlist_id": watchlistID, "ticker": ticker}).Error("Failed to add watchlist item")
		return nil, false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to add watchlist item")
	}

	return result, created, nil
}

// RemoveItem removes a ticker from a watchlist
func (r *Repository) RemoveItem(ctx context.Context, watchlistID, ticker string) error {
	ctx, span := tracing.StartSpan(ctx, "watchlist.Repository.RemoveItem")
	defer span.End()

	ticker = strings.ToUpper(strings.TrimSpace(ticker))

	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom("watchlist_items")
	sb.Where(
		sb.Equal("watchlist_id", watchlistID),
		sb.Equal("ticker", ticker),
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to remove watchlist item")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to remove watchlist item")
	}

	return nil
}

// ListItems retrieves the tickers on a watchlist
func (r *Repository) ListItems(ctx context.Context, watchlistID string) ([]models.WatchlistItem, error) {
	ctx, span := tracing.StartSpan(ctx, "watchlist.Repository.ListItems")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(itemColumns)
	sb.From("watchlist_items")
	sb.Where(sb.Equal("watchlist_id", watchlistID))
	sb.OrderBy("ticker")

	query, args := sb.Build()
	var items []models.WatchlistItem
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list watchlist items")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list watchlist items")
	}

	return items, nil
}

// ListAllTickers retrieves the distinct tickers across every watchlist.
// This is the refresh universe.
func (r *Repository) ListAllTickers(ctx context.Context) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "watchlist.Repository.ListAllTickers")
	defer span.End()

	var tickers []string
	query := `SELECT DISTINCT ticker FROM watchlist_items ORDER BY ticker`
	if err := r.db.SelectContext(ctx, &tickers, query); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list watchlist tickers")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list watchlist tickers")
	}

	return tickers, nil
}
