package refresh

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/internal/repositories/refreshjob"
	"github.com/Ramsey-B/fern/internal/repositories/watchlist"
	"github.com/Ramsey-B/fern/pkg/ingestion"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Service runs the daily refresh of every ticker on any watchlist.
// The job row is keyed by as-of date, so reruns on the same day attach
// to the existing job and only reprocess tickers that have not
// completed yet.
type Service struct {
	jobs       *refreshjob.Repository
	watchlists *watchlist.Repository
	ingester   *ingestion.Orchestrator
	logger     ectologger.Logger
	now        func() time.Time
}

// NewService creates a new Service
func NewService(jobs *refreshjob.Repository, watchlists *watchlist.Repository, ingester *ingestion.Orchestrator, logger ectologger.Logger) *Service {
	return &Service{
		jobs:       jobs,
		watchlists: watchlists,
		ingester:   ingester,
		logger:     logger,
		now:        time.Now,
	}
}

// RunDaily executes (or resumes) today's refresh job and returns its summary.
func (s *Service) RunDaily(ctx context.Context) (*models.RefreshJobSummary, error) {
	ctx, span := tracing.StartSpan(ctx, "RefreshService.RunDaily")
	defer span.End()

	asOfDate := s.now().UTC().Format("2006-01-02")
	log := s.logger.WithContext(ctx).WithFields(map[string]any{"as_of_date": asOfDate})

	job, created, err := s.jobs.InsertOrGetForDate(ctx, asOfDate)
	if err != nil {
		return nil, err
	}
	if !created && job.Status == models.RefreshJobStatusCompleted {
		log.Infof("Refresh job already completed, returning summary")
		return s.jobs.Summary(ctx, job.ID)
	}

	if err := s.jobs.SetJobStatus(ctx, job.ID, models.RefreshJobStatusRunning); err != nil {
		return nil, err
	}

	tickers, err := s.watchlists.ListAllTickers(ctx)
	if err != nil {
		s.finalize(ctx, job.ID, models.RefreshJobStatusFailed)
		return nil, err
	}

	existing, err := s.jobs.ListItems(ctx, job.ID)
	if err != nil {
		s.finalize(ctx, job.ID, models.RefreshJobStatusFailed)
		return nil, err
	}
	done := make(map[string]bool, len(existing))
	for _, item := range existing {
		if item.Status == models.RefreshItemStatusCompleted || item.Status == models.RefreshItemStatusSkipped {
			done[item.Ticker] = true
		}
	}

	failed := 0
	for _, ticker := range tickers {
		if done[ticker] {
			continue
		}
		if err := s.refreshTicker(ctx, job.ID, ticker); err != nil {
			failed++
		}
	}

	status := models.RefreshJobStatusCompleted
	if failed > 0 {
		status = models.RefreshJobStatusFailed
	}
	s.finalize(ctx, job.ID, status)

	log.WithFields(map[string]any{
		"tickers": len(tickers),
		"failed":  failed,
	}).Infof("Refresh job finished")

	summary, err := s.jobs.Summary(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	if err := s.jobs.SetJobStats(ctx, job.ID, summary.Counts); err != nil {
		log.WithError(err).Warnf("Failed to persist refresh job stats")
	} else {
		summary.Job.Stats.Data = summary.Counts
	}

	return summary, nil
}

// refreshTicker ingests one ticker, recording the outcome on its job item.
func (s *Service) refreshTicker(ctx context.Context, jobID, ticker string) error {
	ctx, span := tracing.StartSpan(ctx, "RefreshService.refreshTicker")
	defer span.End()

	item, _, err := s.jobs.EnsureItem(ctx, jobID, ticker)
	if err != nil {
		return err
	}

	if err := s.jobs.SetItemStatus(ctx, item.ID, models.RefreshItemStatusRunning, ""); err != nil {
		return err
	}

	result, err := s.ingester.IngestFilings(ctx, ticker, false)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"ticker": ticker}).Errorf("Failed to refresh ticker")
		if setErr := s.jobs.SetItemStatus(ctx, item.ID, models.RefreshItemStatusFailed, err.Error()); setErr != nil {
			s.logger.WithContext(ctx).WithError(setErr).Errorf("Failed to record item failure")
		}
		return err
	}

	status := models.RefreshItemStatusCompleted
	if result.Skipped {
		status = models.RefreshItemStatusSkipped
	}
	return s.jobs.SetItemStatus(ctx, item.ID, status, "")
}

func (s *Service) finalize(ctx context.Context, jobID string, status models.RefreshJobStatus) {
	if err := s.jobs.SetJobStatus(ctx, jobID, status); err != nil {
		s.logger.WithContext(ctx).WithError(err).Errorf("Failed to finalize refresh job")
	}
}
