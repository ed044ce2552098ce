package artifact_test

import (
	"context"
	"net/http"
	"os"
	"testing"

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

func testArtifact(kind models.ArtifactKind) *models.Artifact {
	accession := "0000000000-24-" + uuid.New().String()[:6]
	return &models.Artifact{
		CIK:             "0000320193",
		AccessionNumber: accession,
		Kind:            kind,
		FormType:        "10-K",
		StoragePath:     "data/filings/0000320193/" + accession + "/doc.htm",
		SHA256:          uuid.New().String(),
		SizeBytes:       1024,
	}
}

func TestArtifactRepository_InsertOrGet(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := artifact.NewRepository(db, getTestLogger())
	ctx := context.Background()

	record := testArtifact(models.ArtifactKindRawFiling)

	created, wasCreated, err := repo.InsertOrGet(ctx, record)
	require.NoError(t, err)
	assert.True(t, wasCreated)
	assert.NotEmpty(t, created.ID)

	// same natural key resolves to the surviving row
	duplicate := testArtifact(models.ArtifactKindRawFiling)
	duplicate.AccessionNumber = record.AccessionNumber
	duplicate.StoragePath = "somewhere/else.htm"

	survivor, wasCreated, err := repo.InsertOrGet(ctx, duplicate)
	require.NoError(t, err)
	assert.False(t, wasCreated)
	assert.Equal(t, created.ID, survivor.ID)
	assert.Equal(t, created.StoragePath, survivor.StoragePath)

	// same accession under a different kind is a distinct artifact
	derived := testArtifact(models.ArtifactKindParsedText)
	derived.AccessionNumber = record.AccessionNumber

	parsed, wasCreated, err := repo.InsertOrGet(ctx, derived)
	require.NoError(t, err)
	assert.True(t, wasCreated)
	assert.NotEqual(t, created.ID, parsed.ID)

	// a newer parser version is a new row, not a conflict
	reparsed := testArtifact(models.ArtifactKindParsedText)
	reparsed.AccessionNumber = record.AccessionNumber
	reparsed.ParserVersion = "v2"

	versioned, wasCreated, err := repo.InsertOrGet(ctx, reparsed)
	require.NoError(t, err)
	assert.True(t, wasCreated)
	assert.NotEqual(t, parsed.ID, versioned.ID)
}

func TestArtifactRepository_GetByNaturalKey(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := artifact.NewRepository(db, getTestLogger())
	ctx := context.Background()

	record := testArtifact(models.ArtifactKindRawFiling)
	created, _, err := repo.InsertOrGet(ctx, record)
	require.NoError(t, err)

	fetched, err := repo.GetByNaturalKey(ctx, record.CIK, record.AccessionNumber, record.Kind, "")
	require.NoError(t, err)
	assert.Equal(t, created.ID, fetched.ID)

	_, err = repo.GetByNaturalKey(ctx, record.CIK, "0000000000-00-000000", record.Kind, "")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
}

func TestArtifactRepository_ListBySHA256(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := artifact.NewRepository(db, getTestLogger())
	ctx := context.Background()

	first := testArtifact(models.ArtifactKindRawFiling)
	second := testArtifact(models.ArtifactKindRawFiling)
	second.SHA256 = first.SHA256

	_, _, err := repo.InsertOrGet(ctx, first)
	require.NoError(t, err)
	_, _, err = repo.InsertOrGet(ctx, second)
	require.NoError(t, err)

	matches, err := repo.ListBySHA256(ctx, first.SHA256)
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestArtifactRepository_ListFilters(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := artifact.NewRepository(db, getTestLogger())
	ctx := context.Background()

	record := testArtifact(models.ArtifactKindRawFiling)
	_, _, err := repo.InsertOrGet(ctx, record)
	require.NoError(t, err)

	items, total, err := repo.List(ctx, artifact.ListFilter{
		CIK:      record.CIK,
		Kind:     models.ArtifactKindRawFiling,
		PageSize: 10,
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, total, 1)
	require.NotEmpty(t, items)
	for _, item := range items {
		assert.Equal(t, record.CIK, item.CIK)
		assert.Equal(t, models.ArtifactKindRawFiling, item.Kind)
	}
}

func TestArtifactRepository_ListWithJobStatus(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	logger := getTestLogger()
	repo := artifact.NewRepository(db, logger)
	jobs := parsejob.NewRepository(db, logger)
	ctx := context.Background()

	record := testArtifact(models.ArtifactKindRawFiling)
	created, _, err := repo.InsertOrGet(ctx, record)
	require.NoError(t, err)

	job, _, err := jobs.EnqueueIfAbsent(ctx, created.ID, "v1", 3)
	require.NoError(t, err)

	rows, total, err := repo.ListWithJobStatus(ctx, artifact.ListFilter{
		CIK:      record.CIK,
		Kind:     models.ArtifactKindRawFiling,
		PageSize: 500,
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, total, 1)

	var found bool
	for _, row := range rows {
		if row.ID == created.ID {
			found = true
			require.NotNil(t, row.LatestJobID)
			assert.Equal(t, job.ID, *row.LatestJobID)
			require.NotNil(t, row.LatestJobStatus)
		}
	}
	assert.True(t, found, "expected artifact %s in listing", created.ID)
}
