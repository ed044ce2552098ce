// Package worker runs the parse job worker pool. Workers claim jobs through
// conditional updates in Postgres; there is no separate broker, and a
// crashed worker's jobs are reclaimed once their lock goes stale.
package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	appctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	// DefaultPollInterval is how long an idle worker waits before polling again
	DefaultPollInterval = 5 * time.Second

	// DefaultLockGracePeriod is how long a running job's lock may sit idle
	// before another worker may reclaim it
	DefaultLockGracePeriod = 10 * time.Minute
)

// JobStore is the persistence surface the pool needs.
type JobStore interface {
	Claim(ctx context.Context, workerID string, gracePeriod time.Duration) (*models.ParseJob, error)
	Complete(ctx context.Context, jobID, workerID string) error
	Fail(ctx context.Context, jobID, workerID, lastError string) (models.JobStatus, error)
}

// Executor runs the work a claimed job describes.
type Executor interface {
	Execute(ctx context.Context, job *models.ParseJob) error
}

// PoolConfig holds configuration for the worker pool
type PoolConfig struct {
	// WorkerCount is the number of concurrent workers
	WorkerCount int

	// PollInterval is how long an idle worker sleeps between claims
	PollInterval time.Duration

	// LockGracePeriod is the stale-lock reclaim threshold
	LockGracePeriod time.Duration

	// WorkerIDPrefix distinguishes pools sharing a database; defaults to hostname
	WorkerIDPrefix string
}

// DefaultPoolConfig returns the default pool configuration
func DefaultPoolConfig() PoolConfig {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = uuid.New().String()[:8]
	}

	return PoolConfig{
		WorkerCount:     4,
		PollInterval:    DefaultPollInterval,
		LockGracePeriod: DefaultLockGracePeriod,
		WorkerIDPrefix:  hostname,
	}
}

// Pool polls for runnable parse jobs and executes them.
type Pool struct {
	store    JobStore
	executor Executor
	emitter  *events.Emitter
	config   PoolConfig
	logger   ectologger.Logger

	stopCh   chan struct{}
	stoppedC chan struct{}

	running bool
	mu      sync.RWMutex
}

// NewPool creates a new worker pool
func NewPool(store JobStore, executor Executor, emitter *events.Emitter, config PoolConfig, logger ectologger.Logger) *Pool {
	if config.WorkerCount <= 0 {
		config.WorkerCount = 1
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.LockGracePeriod <= 0 {
		config.LockGracePeriod = DefaultLockGracePeriod
	}
	if config.WorkerIDPrefix == "" {
		config.WorkerIDPrefix = uuid.New().String()[:8]
	}

	return &Pool{
		store:    store,
		executor: executor,
		emitter:  emitter,
		config:   config,
		logger:   logger,
	}
}

// GetName implements startup.StartupDependency
func (p *Pool) GetName() string {
	return "parse-worker-pool"
}

// DependsOn implements startup.StartupDependency
func (p *Pool) DependsOn() []string {
	return []string{"database"}
}

// Start launches the workers.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return errors.New("worker pool already running")
	}
	p.running = true
	// fresh channels per start so a stopped pool can be restarted
	p.stopCh = make(chan struct{})
	p.stoppedC = make(chan struct{})
	stopCh, stoppedC := p.stopCh, p.stoppedC
	p.mu.Unlock()

	p.logger.WithContext(ctx).Infof("Starting parse worker pool: workers=%d poll=%s grace=%s",
		p.config.WorkerCount, p.config.PollInterval, p.config.LockGracePeriod)

	var wg sync.WaitGroup
	for i := 0; i < p.config.WorkerCount; i++ {
		wg.Add(1)
		workerID := fmt.Sprintf("%s-%d", p.config.WorkerIDPrefix, i)
		go p.worker(context.WithoutCancel(ctx), &wg, workerID, stopCh)
	}

	go func() {
		wg.Wait()
		close(stoppedC)
	}()

	return nil
}

// Stop stops the pool and waits for in-flight jobs to finish.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	stopCh, stoppedC := p.stopCh, p.stoppedC
	p.mu.Unlock()

	p.logger.WithContext(ctx).Info("Stopping parse worker pool...")

	close(stopCh)

	select {
	case <-stoppedC:
		p.logger.WithContext(ctx).Info("Parse worker pool stopped gracefully")
	case <-ctx.Done():
		p.logger.WithContext(ctx).Warn("Parse worker pool shutdown timed out")
		return ctx.Err()
	}

	return nil
}

// IsRunning returns whether the pool is running
func (p *Pool) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

func (p *Pool) worker(ctx context.Context, wg *sync.WaitGroup, workerID string, stopCh <-chan struct{}) {
	defer wg.Done()

	p.logger.WithContext(ctx).Debugf("Worker %s started", workerID)

	for {
		select {
		case <-stopCh:
			p.logger.WithContext(ctx).Debugf("Worker %s stopping", workerID)
			return
		default:
		}

		job, err := p.store.Claim(ctx, workerID, p.config.LockGracePeriod)
		if err != nil {
			p.logger.WithContext(ctx).WithError(err).Warnf("Worker %s failed to claim a job", workerID)
			p.sleep(stopCh)
			continue
		}

		if job == nil {
			p.sleep(stopCh)
			continue
		}

		p.processJob(ctx, workerID, job)
	}
}

func (p *Pool) sleep(stopCh <-chan struct{}) {
	select {
	case <-stopCh:
	case <-time.After(p.config.PollInterval):
	}
}

func (p *Pool) processJob(ctx context.Context, workerID string, job *models.ParseJob) {
	ctx, span := tracing.StartSpan(ctx, "worker.Pool.processJob")
	defer span.End()

	ctx = appctx.SetJobID(ctx, job.ID)

	metrics.JobsInFlight.Inc()
	defer metrics.JobsInFlight.Dec()

	start := time.Now()
	p.logger.WithContext(ctx).Infof("Processing parse job %s: artifact=%s attempt=%d/%d",
		job.ID, job.ArtifactID, job.AttemptCount, job.MaxAttempts)

	execErr := p.executor.Execute(ctx, job)
	duration := time.Since(start)

	if execErr == nil {
		if err := p.store.Complete(ctx, job.ID, workerID); err != nil {
			// Lock lost: another worker reclaimed the job. The work stands
			// (artifact registration is idempotent) but the outcome is not ours.
			p.logger.WithContext(ctx).WithError(err).Warnf("Job %s finished but could not be finalized", job.ID)
			metrics.RecordParseJob("lock_lost")
			return
		}
		job.Status = models.JobStatusDone
		metrics.RecordParseJob(string(models.JobStatusDone))
		p.emitter.EmitJobCompleted(ctx, job)
		p.logger.WithContext(ctx).Infof("Parse job %s completed in %s", job.ID, duration)
		return
	}

	status, err := p.store.Fail(ctx, job.ID, workerID, execErr.Error())
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).Warnf("Job %s failed but the failure could not be recorded", job.ID)
		metrics.RecordParseJob("lock_lost")
		return
	}

	job.Status = status
	metrics.RecordParseJob(string(status))

	switch status {
	case models.JobStatusDeadletter:
		metrics.DeadletterTotal.Inc()
		p.emitter.EmitJobDeadlettered(ctx, job, execErr.Error())
		p.logger.WithContext(ctx).WithError(execErr).Errorf("Parse job %s moved to deadletter after %d attempts", job.ID, job.AttemptCount)
	default:
		p.emitter.EmitJobRequeued(ctx, job, execErr.Error())
		p.logger.WithContext(ctx).WithError(execErr).Warnf("Parse job %s failed after %s, requeued (attempt %d/%d)",
			job.ID, duration, job.AttemptCount, job.MaxAttempts)
	}
}
