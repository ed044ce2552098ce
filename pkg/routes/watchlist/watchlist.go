package watchlist

import (
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/internal/repositories/refreshjob"
	"github.com/Ramsey-B/fern/internal/repositories/watchlist"
	"github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/refresh"
)

var validate = validator.New()

// Register registers watchlist and refresh routes
func Register(g *echo.Group) {
	g.GET("", ListWatchlists)
	g.POST("", CreateWatchlist)
	g.GET("/:id", GetWatchlist)
	g.GET("/:id/items", ListWatchlistItems)
	g.POST("/:id/items", AddWatchlistItem)
	g.DELETE("/:id/items/:ticker", RemoveWatchlistItem)
	g.POST("/refresh", TriggerRefresh)
	g.GET("/refresh/:date", GetRefreshSummary)
}

// ListWatchlists lists the tenant's watchlists
func ListWatchlists(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)

	ctx, repo, err := ectoinject.GetContext[*watchlist.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	lists, err := repo.List(ctx, tenantID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, lists)
}

// CreateWatchlist creates a watchlist, optionally seeding tickers
func CreateWatchlist(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)

	var req models.CreateWatchlistRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "name is required")
	}

	ctx, repo, err := ectoinject.GetContext[*watchlist.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	created, err := repo.Create(ctx, tenantID, req.Name)
	if err != nil {
		return err
	}

	for _, ticker := range req.Tickers {
		ticker = strings.ToUpper(strings.TrimSpace(ticker))
		if ticker == "" {
			continue
		}
		if _, _, err := repo.AddItem(ctx, created.ID, ticker); err != nil {
			return err
		}
	}

	return c.JSON(http.StatusCreated, created)
}

// GetWatchlist gets a watchlist by ID
func GetWatchlist(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)
	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*watchlist.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	list, err := repo.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, list)
}

// ListWatchlistItems lists the tickers on a watchlist
func ListWatchlistItems(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)
	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*watchlist.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	// ownership check before listing items
	if _, err := repo.Get(ctx, tenantID, id); err != nil {
		return err
	}

	items, err := repo.ListItems(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, items)
}

// AddWatchlistItem adds a ticker to a watchlist
func AddWatchlistItem(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)
	id := c.Param("id")

	var req models.AddWatchlistItemRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	req.Ticker = strings.ToUpper(strings.TrimSpace(req.Ticker))
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "ticker is required")
	}
	ticker := req.Ticker

	ctx, repo, err := ectoinject.GetContext[*watchlist.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	if _, err := repo.Get(ctx, tenantID, id); err != nil {
		return err
	}

	item, created, err := repo.AddItem(ctx, id, ticker)
	if err != nil {
		return err
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return c.JSON(status, item)
}

// RemoveWatchlistItem removes a ticker from a watchlist
func RemoveWatchlistItem(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := context.GetTenantID(ctx)
	id := c.Param("id")
	ticker := strings.ToUpper(c.Param("ticker"))

	ctx, repo, err := ectoinject.GetContext[*watchlist.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	if _, err := repo.Get(ctx, tenantID, id); err != nil {
		return err
	}

	if err := repo.RemoveItem(ctx, id, ticker); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

// TriggerRefresh runs (or resumes) today's watchlist refresh
func TriggerRefresh(c echo.Context) error {
	ctx := c.Request().Context()

	ctx, service, err := ectoinject.GetContext[*refresh.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	summary, err := service.RunDaily(ctx)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, summary)
}

// GetRefreshSummary gets the refresh job summary for an as-of date (YYYY-MM-DD)
func GetRefreshSummary(c echo.Context) error {
	ctx := c.Request().Context()
	date := c.Param("date")

	ctx, repo, err := ectoinject.GetContext[*refreshjob.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	job, err := repo.GetByDate(ctx, date)
	if err != nil {
		return err
	}

	summary, err := repo.Summary(ctx, job.ID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, summary)
}
