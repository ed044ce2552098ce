package filings

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/internal/repositories/artifact"
	"github.com/Ramsey-B/fern/internal/repositories/parsejob"
	"github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/ingestion"
	"github.com/Ramsey-B/fern/pkg/models"
)

var validate = validator.New()

// Register registers filing ingestion and pipeline routes
func Register(g *echo.Group) {
	g.POST("/ingest", IngestFilings)
	g.GET("/artifacts", ListArtifacts)
	g.GET("/artifacts/:id", GetArtifact)
	g.GET("/jobs", ListParseJobs)
	g.GET("/jobs/:id", GetParseJob)
	g.POST("/jobs/:id/requeue", RequeueParseJob)
}

// IngestFilings triggers filing ingestion for a ticker
func IngestFilings(c echo.Context) error {
	ctx := c.Request().Context()

	var req models.IngestRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	req.Ticker = strings.ToUpper(strings.TrimSpace(req.Ticker))
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "ticker is required")
	}

	ctx = context.SetTicker(ctx, req.Ticker)

	ctx, orchestrator, err := ectoinject.GetContext[*ingestion.Orchestrator](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := orchestrator.IngestFilings(ctx, req.Ticker, req.Force)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// ListArtifacts lists stored filing artifacts
func ListArtifacts(c echo.Context) error {
	ctx := c.Request().Context()

	filter := artifact.ListFilter{
		CIK:  c.QueryParam("cik"),
		Kind: models.ArtifactKind(c.QueryParam("kind")),
	}
	filter.Page, _ = strconv.Atoi(c.QueryParam("page"))
	filter.PageSize, _ = strconv.Atoi(c.QueryParam("page_size"))

	ctx, repo, err := ectoinject.GetContext[*artifact.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	items, total, err := repo.ListWithJobStatus(ctx, filter)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.ArtifactListResponse{
		Items:      items,
		TotalCount: total,
		Page:       filter.Page,
		PageSize:   filter.PageSize,
	})
}

// GetArtifact gets an artifact by ID
func GetArtifact(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*artifact.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	art, err := repo.Get(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, art)
}

// ListParseJobs lists parse jobs
func ListParseJobs(c echo.Context) error {
	ctx := c.Request().Context()

	status := models.JobStatus(c.QueryParam("status"))
	if status != "" && !status.Valid() {
		return httperror.NewHTTPError(http.StatusBadRequest, "unknown job status")
	}

	filter := parsejob.ListFilter{
		Status:     status,
		ArtifactID: c.QueryParam("artifact_id"),
	}
	filter.Page, _ = strconv.Atoi(c.QueryParam("page"))
	filter.PageSize, _ = strconv.Atoi(c.QueryParam("page_size"))

	ctx, repo, err := ectoinject.GetContext[*parsejob.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	items, total, err := repo.List(ctx, filter)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.ParseJobListResponse{
		Items:      items,
		TotalCount: total,
		Page:       filter.Page,
		PageSize:   filter.PageSize,
	})
}

// GetParseJob gets a parse job by ID
func GetParseJob(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*parsejob.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	job, err := repo.Get(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, job)
}

// RequeueParseJob moves a deadlettered parse job back to the queue
func RequeueParseJob(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*parsejob.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	job, err := repo.RequeueDeadletter(ctx, id)
	if err != nil {
		return err
	}

	ctx, emitter, _ := ectoinject.GetContext[*events.Emitter](ctx)
	emitter.EmitJobRequeued(ctx, job, "")

	return c.JSON(http.StatusOK, job)
}
