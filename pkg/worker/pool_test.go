package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/models"
)

type fakeStore struct {
	mu        sync.Mutex
	jobs      []*models.ParseJob
	completed []string
	failed    []string
	failAs    models.JobStatus
}

func (s *fakeStore) Claim(ctx context.Context, workerID string, gracePeriod time.Duration) (*models.ParseJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.jobs) == 0 {
		return nil, nil
	}
	job := s.jobs[0]
	s.jobs = s.jobs[1:]
	job.Status = models.JobStatusRunning
	job.AttemptCount++
	return job, nil
}

func (s *fakeStore) Complete(ctx context.Context, jobID, workerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = append(s.completed, jobID)
	return nil
}

func (s *fakeStore) Fail(ctx context.Context, jobID, workerID, lastError string) (models.JobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, jobID)
	return s.failAs, nil
}

func (s *fakeStore) completedJobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.completed...)
}

func (s *fakeStore) failedJobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.failed...)
}

type fakeExecutor struct {
	mu       sync.Mutex
	executed []string
	err      error
}

func (e *fakeExecutor) Execute(ctx context.Context, job *models.ParseJob) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.executed = append(e.executed, job.ID)
	return e.err
}

func (e *fakeExecutor) executedJobs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.executed...)
}

func testPool(store JobStore, executor Executor, workers int) *Pool {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	emitter := events.NewEmitter(nil, logger)
	return NewPool(store, executor, emitter, PoolConfig{
		WorkerCount:     workers,
		PollInterval:    10 * time.Millisecond,
		LockGracePeriod: time.Minute,
		WorkerIDPrefix:  "test",
	}, logger)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func job(id string) *models.ParseJob {
	return &models.ParseJob{
		ID:          id,
		ArtifactID:  "artifact-" + id,
		Status:      models.JobStatusQueued,
		MaxAttempts: 3,
	}
}

func TestPool_CompletesSuccessfulJobs(t *testing.T) {
	store := &fakeStore{jobs: []*models.ParseJob{job("j1"), job("j2")}}
	executor := &fakeExecutor{}
	pool := testPool(store, executor, 2)

	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop(context.Background())

	waitFor(t, func() bool { return len(store.completedJobs()) == 2 })
	assert.ElementsMatch(t, []string{"j1", "j2"}, store.completedJobs())
	assert.ElementsMatch(t, []string{"j1", "j2"}, executor.executedJobs())
	assert.Empty(t, store.failedJobs())
}

func TestPool_FailedJobIsRecorded(t *testing.T) {
	store := &fakeStore{jobs: []*models.ParseJob{job("j1")}, failAs: models.JobStatusQueued}
	executor := &fakeExecutor{err: errors.New("parse exploded")}
	pool := testPool(store, executor, 1)

	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop(context.Background())

	waitFor(t, func() bool { return len(store.failedJobs()) == 1 })
	assert.Equal(t, []string{"j1"}, store.failedJobs())
	assert.Empty(t, store.completedJobs())
}

func TestPool_DeadletterOutcome(t *testing.T) {
	store := &fakeStore{jobs: []*models.ParseJob{job("j1")}, failAs: models.JobStatusDeadletter}
	executor := &fakeExecutor{err: errors.New("parse exploded")}
	pool := testPool(store, executor, 1)

	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop(context.Background())

	waitFor(t, func() bool { return len(store.failedJobs()) == 1 })
}

func TestPool_StartTwiceFails(t *testing.T) {
	store := &fakeStore{}
	pool := testPool(store, &fakeExecutor{}, 1)

	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop(context.Background())

	assert.Error(t, pool.Start(context.Background()))
	assert.True(t, pool.IsRunning())
}

func TestPool_RestartAfterStop(t *testing.T) {
	store := &fakeStore{}
	executor := &fakeExecutor{}
	pool := testPool(store, executor, 2)

	require.NoError(t, pool.Start(context.Background()))
	require.NoError(t, pool.Stop(context.Background()))
	require.False(t, pool.IsRunning())

	// a second lifecycle gets fresh workers that actually drain the queue
	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop(context.Background())
	require.True(t, pool.IsRunning())

	store.mu.Lock()
	store.jobs = append(store.jobs, job("j1"))
	store.mu.Unlock()

	waitFor(t, func() bool { return len(store.completedJobs()) == 1 })
	require.NoError(t, pool.Stop(context.Background()))
	assert.False(t, pool.IsRunning())
}

func TestPool_StopIsIdempotent(t *testing.T) {
	store := &fakeStore{}
	pool := testPool(store, &fakeExecutor{}, 2)

	require.NoError(t, pool.Start(context.Background()))
	require.NoError(t, pool.Stop(context.Background()))
	assert.False(t, pool.IsRunning())
	assert.NoError(t, pool.Stop(context.Background()))
}
