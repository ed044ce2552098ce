package parsejob_test

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/internal/repositories/artifact"
	"github.com/Ramsey-B/fern/internal/repositories/parsejob"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func getTestDB(t *testing.T) database.DB {
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		dbHost = "localhost"
	}
	dbUser := os.Getenv("DB_USER_NAME")
	if dbUser == "" {
		dbUser = "user"
	}
	dbPass := os.Getenv("DB_PASSWORD")
	if dbPass == "" {
		dbPass = "password"
	}
	dbName := os.Getenv("DB_NAME")
	if dbName == "" {
		dbName = "fern"
	}

	dsn := "host=" + dbHost + " user=" + dbUser + " password=" + dbPass + " dbname=" + dbName + " sslmode=disable"
	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err, "Failed to connect to test database")

	return database.NewDatabaseInstance(db, getTestLogger())
}

// createArtifact satisfies the parse job foreign key
func createArtifact(t *testing.T, db database.DB) *models.Artifact {
	t.Helper()
	repo := artifact.NewRepository(db, getTestLogger())
	accession := "0000000000-24-" + uuid.New().String()[:6]
	record := &models.Artifact{
		CIK:             "0000320193",
		AccessionNumber: accession,
		Kind:            models.ArtifactKindRawFiling,
		FormType:        "10-Q",
		StoragePath:     "data/filings/0000320193/" + accession + "/doc.htm",
		SHA256:          uuid.New().String(),
		SizeBytes:       512,
	}
	created, _, err := repo.InsertOrGet(context.Background(), record)
	require.NoError(t, err)
	return created
}

func TestParseJobRepository_EnqueueIfAbsent(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := parsejob.NewRepository(db, getTestLogger())
	ctx := context.Background()

	art := createArtifact(t, db)

	job, created, err := repo.EnqueueIfAbsent(ctx, art.ID, "v0", 3)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.JobStatusQueued, job.Status)
	assert.Equal(t, models.ParseJobKey(art.ID, "v0"), job.IdempotencyKey)
	assert.Equal(t, 0, job.AttemptCount)

	// second enqueue for the same key attaches to the existing job
	again, created, err := repo.EnqueueIfAbsent(ctx, art.ID, "v0", 3)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, job.ID, again.ID)

	// a new parser version is a new job
	upgraded, created, err := repo.EnqueueIfAbsent(ctx, art.ID, "v1", 3)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, job.ID, upgraded.ID)
}

func TestParseJobRepository_ClaimAndComplete(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := parsejob.NewRepository(db, getTestLogger())
	ctx := context.Background()

	art := createArtifact(t, db)
	enqueued, _, err := repo.EnqueueIfAbsent(ctx, art.ID, "v0", 3)
	require.NoError(t, err)

	claimed := claimSpecificJob(t, repo, enqueued.ID, "worker-1")
	assert.Equal(t, models.JobStatusRunning, claimed.Status)
	assert.Equal(t, 1, claimed.AttemptCount)
	require.NotNil(t, claimed.LockedBy)
	assert.Equal(t, "worker-1", *claimed.LockedBy)

	require.NoError(t, repo.Complete(ctx, claimed.ID, "worker-1"))

	done, err := repo.Get(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusDone, done.Status)
	assert.Nil(t, done.LockedBy)

	// a done job is not claimable again
	assert.Nil(t, findClaimedJob(t, repo, claimed.ID, "worker-2"))
}

func TestParseJobRepository_CompleteByWrongWorkerIsLockLost(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := parsejob.NewRepository(db, getTestLogger())
	ctx := context.Background()

	art := createArtifact(t, db)
	enqueued, _, err := repo.EnqueueIfAbsent(ctx, art.ID, "v0", 3)
	require.NoError(t, err)

	claimed := claimSpecificJob(t, repo, enqueued.ID, "worker-1")

	err = repo.Complete(ctx, claimed.ID, "worker-2")
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))

	// the rightful owner still can
	require.NoError(t, repo.Complete(ctx, claimed.ID, "worker-1"))
}

func TestParseJobRepository_FailRequeuesThenDeadletters(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := parsejob.NewRepository(db, getTestLogger())
	ctx := context.Background()

	art := createArtifact(t, db)
	enqueued, _, err := repo.EnqueueIfAbsent(ctx, art.ID, "v0", 2)
	require.NoError(t, err)

	// attempt 1 fails: requeued
	claimed := claimSpecificJob(t, repo, enqueued.ID, "worker-1")
	status, err := repo.Fail(ctx, claimed.ID, "worker-1", "boom")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, status)

	// attempt 2 fails: attempts exhausted, deadlettered
	claimed = claimSpecificJob(t, repo, enqueued.ID, "worker-1")
	assert.Equal(t, 2, claimed.AttemptCount)
	status, err = repo.Fail(ctx, claimed.ID, "worker-1", "boom again")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusDeadletter, status)

	dead, err := repo.Get(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusDeadletter, dead.Status)
	require.NotNil(t, dead.LastError)
	assert.Equal(t, "boom again", *dead.LastError)
}

func TestParseJobRepository_RequeueDeadletter(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := parsejob.NewRepository(db, getTestLogger())
	ctx := context.Background()

	art := createArtifact(t, db)
	enqueued, _, err := repo.EnqueueIfAbsent(ctx, art.ID, "v0", 1)
	require.NoError(t, err)

	// a queued job cannot be requeued
	_, err = repo.RequeueDeadletter(ctx, enqueued.ID)
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))

	claimed := claimSpecificJob(t, repo, enqueued.ID, "worker-1")
	_, err = repo.Fail(ctx, claimed.ID, "worker-1", "boom")
	require.NoError(t, err)

	requeued, err := repo.RequeueDeadletter(ctx, enqueued.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, requeued.Status)
	assert.Equal(t, 0, requeued.AttemptCount)
}

// claimSpecificJob drains the queue until it claims jobID; other queued jobs
// from concurrent tests are failed back so they requeue untouched.
func claimSpecificJob(t *testing.T, repo *parsejob.Repository, jobID, workerID string) *models.ParseJob {
	t.Helper()
	job := findClaimedJob(t, repo, jobID, workerID)
	require.NotNil(t, job, "job %s was not claimable", jobID)
	return job
}

func findClaimedJob(t *testing.T, repo *parsejob.Repository, jobID, workerID string) *models.ParseJob {
	t.Helper()
	ctx := context.Background()
	var skipped []*models.ParseJob
	defer func() {
		for _, job := range skipped {
			_, _ = repo.Fail(ctx, job.ID, workerID, "released by test")
		}
	}()

	for i := 0; i < 100; i++ {
		job, err := repo.Claim(ctx, workerID, time.Hour)
		require.NoError(t, err)
		if job == nil {
			return nil
		}
		if job.ID == jobID {
			return job
		}
		skipped = append(skipped, job)
	}
	return nil
}
