package ingestion

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/internal/repositories/parsejob"
	"github.com/Ramsey-B/fern/pkg/artifacts"
	"github.com/Ramsey-B/fern/pkg/edgar"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/freshness"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Config holds the orchestrator's selection and pipeline settings.
type Config struct {
	SelectionRules   models.SelectionRules
	ParserVersion    string
	ParseMaxAttempts int
}

// FilingSource is the EDGAR surface the orchestrator pulls from.
type FilingSource interface {
	ResolveCIK(ctx context.Context, ticker string) (string, error)
	GetCompanySubmissions(ctx context.Context, cik string) (*models.CompanySubmissions, error)
	DownloadPrimaryDocument(ctx context.Context, filing models.FilingRef) ([]byte, string, error)
}

// InstrumentStore is the instrument persistence surface the orchestrator needs.
type InstrumentStore interface {
	GetByTicker(ctx context.Context, ticker string) (*models.Instrument, error)
	EnsureWithCIK(ctx context.Context, ticker, cik, name string) (*models.Instrument, error)
}

// Orchestrator runs the filing ingestion pipeline for a single ticker:
// resolve the CIK, snapshot the submissions index, select filings,
// download primary documents and enqueue parse jobs. Every step is
// idempotent, so re-running a partially failed ingest converges.
type Orchestrator struct {
	config      Config
	client      FilingSource
	store       *artifacts.Store
	guard       *freshness.Guard
	instruments InstrumentStore
	jobs        *parsejob.Repository
	emitter     *events.Emitter
	logger      ectologger.Logger
}

// NewOrchestrator creates a new Orchestrator
func NewOrchestrator(
	config Config,
	client FilingSource,
	store *artifacts.Store,
	guard *freshness.Guard,
	instruments InstrumentStore,
	jobs *parsejob.Repository,
	emitter *events.Emitter,
	logger ectologger.Logger,
) *Orchestrator {
	return &Orchestrator{
		config:      config,
		client:      client,
		store:       store,
		guard:       guard,
		instruments: instruments,
		jobs:        jobs,
		emitter:     emitter,
		logger:      logger,
	}
}

// IngestFilings runs the full pipeline for a ticker. Per-filing failures
// are collected in the result instead of aborting the batch.
func (o *Orchestrator) IngestFilings(ctx context.Context, ticker string, force bool) (*models.IngestResult, error) {
	ctx, span := tracing.StartSpan(ctx, "Orchestrator.IngestFilings")
	defer span.End()

	log := o.logger.WithContext(ctx).WithFields(map[string]any{"ticker": ticker})

	refresh, err := o.guard.ShouldRefresh(ctx, ticker, force)
	if err != nil {
		metrics.IngestRunsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if !refresh {
		log.Infof("Data is fresh, skipping ingest")
		metrics.IngestRunsTotal.WithLabelValues("skipped").Inc()
		return &models.IngestResult{Ticker: ticker, Skipped: true}, nil
	}

	if lock, heldElsewhere := o.guard.AcquireRefreshLock(ctx, ticker); heldElsewhere {
		log.Infof("Refresh already in progress elsewhere, skipping ingest")
		metrics.IngestRunsTotal.WithLabelValues("skipped").Inc()
		return &models.IngestResult{Ticker: ticker, Skipped: true}, nil
	} else if lock != nil {
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				log.WithError(err).Warnf("Failed to release refresh lock")
			}
		}()
	}

	cik, err := o.resolveCIK(ctx, ticker)
	if err != nil {
		metrics.IngestRunsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	submissions, err := o.client.GetCompanySubmissions(ctx, cik)
	if err != nil {
		metrics.IngestRunsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	if _, err := o.instruments.EnsureWithCIK(ctx, ticker, cik, submissions.Name); err != nil {
		metrics.IngestRunsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	payload, err := json.Marshal(submissions)
	if err == nil {
		if err := o.guard.MarkRefreshed(ctx, ticker, payload); err != nil {
			// the filings themselves still ingest; freshness just won't advance
			log.WithError(err).Warnf("Failed to record submissions snapshot")
		}
	}

	candidates := edgar.FilingsFromSubmissions(cik, submissions.Filings.Recent)
	selected := edgar.SelectFilings(candidates, o.config.SelectionRules)

	result := &models.IngestResult{
		Ticker:        ticker,
		CIK:           cik,
		SelectedCount: len(selected),
	}

	for _, filing := range selected {
		if err := o.ingestFiling(ctx, filing, result); err != nil {
			log.WithError(err).WithFields(map[string]any{
				"accession_number": filing.AccessionNumber,
				"form_type":        filing.FormType,
			}).Errorf("Failed to ingest filing")
			result.Failures = append(result.Failures, models.IngestFailure{
				AccessionNumber: filing.AccessionNumber,
				FormType:        filing.FormType,
				Error:           err.Error(),
			})
		}
	}

	outcome := "success"
	if len(result.Failures) > 0 {
		outcome = "partial"
	}
	metrics.IngestRunsTotal.WithLabelValues(outcome).Inc()

	log.WithFields(map[string]any{
		"selected":          result.SelectedCount,
		"new_raw_artifacts": result.NewRawArtifacts,
		"new_parse_jobs":    result.NewParseJobs,
		"failures":          len(result.Failures),
	}).Infof("Ingest completed")

	return result, nil
}

// resolveCIK reuses the CIK already stored on the instrument row and falls
// back to the network mapping only when the row is missing or has none.
func (o *Orchestrator) resolveCIK(ctx context.Context, ticker string) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "Orchestrator.resolveCIK")
	defer span.End()

	if inst, err := o.instruments.GetByTicker(ctx, ticker); err == nil && inst.CIK != nil && *inst.CIK != "" {
		return *inst.CIK, nil
	}

	return o.client.ResolveCIK(ctx, ticker)
}

// ingestFiling downloads one filing, registers its raw artifact and
// enqueues a parse job for it.
func (o *Orchestrator) ingestFiling(ctx context.Context, filing models.FilingRef, result *models.IngestResult) error {
	ctx, span := tracing.StartSpan(ctx, "Orchestrator.ingestFiling")
	defer span.End()

	body, sourceURL, err := o.client.DownloadPrimaryDocument(ctx, filing)
	if err != nil {
		return err
	}

	artifact, created, err := o.store.RegisterRaw(ctx, filing, body, sourceURL)
	if err != nil {
		return err
	}
	if created {
		result.NewRawArtifacts++
		o.emitter.EmitArtifactRegistered(ctx, artifact)
	}

	job, enqueued, err := o.jobs.EnqueueIfAbsent(ctx, artifact.ID, o.config.ParserVersion, o.config.ParseMaxAttempts)
	if err != nil {
		return err
	}
	if enqueued {
		result.NewParseJobs++
		o.emitter.EmitJobEnqueued(ctx, job)
	}

	return nil
}
