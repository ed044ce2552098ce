package snapshot_test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/internal/repositories/snapshot"
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

func testTicker() string {
	return "SN" + strings.ToUpper(uuid.New().String()[:6])
}

func TestSnapshotRepository_AppendAndGetLatest(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := snapshot.NewRepository(db, getTestLogger())
	ctx := context.Background()
	ticker := testTicker()

	created, err := repo.Append(ctx, ticker, models.SnapshotKindSubmissions, json.RawMessage(`{"filings":1}`))
	require.NoError(t, err)
	assert.Equal(t, ticker, created.Ticker)
	assert.NotEmpty(t, created.SnapshotDate)

	latest, err := repo.GetLatest(ctx, ticker, models.SnapshotKindSubmissions)
	require.NoError(t, err)
	assert.Equal(t, created.ID, latest.ID)

	fetchedAt, err := repo.GetLatestFetchedAt(ctx, ticker, models.SnapshotKindSubmissions)
	require.NoError(t, err)
	require.NotNil(t, fetchedAt)
}

func TestSnapshotRepository_ConcurrentAppendsStoreOneRow(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := snapshot.NewRepository(db, getTestLogger())
	ctx := context.Background()
	ticker := testTicker()

	const refreshers = 8
	results := make([]*models.DataSnapshot, refreshers)
	errs := make([]error, refreshers)

	var wg sync.WaitGroup
	for i := 0; i < refreshers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payload := json.RawMessage(fmt.Sprintf(`{"refresher":%d}`, i))
			results[i], errs[i] = repo.Append(ctx, ticker, models.SnapshotKindSubmissions, payload)
		}(i)
	}
	wg.Wait()

	// every caller converges on the row that won the insert race
	require.NoError(t, errs[0])
	for i := 1; i < refreshers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].ID, results[i].ID)
		assert.Equal(t, results[0].SnapshotDate, results[i].SnapshotDate)
	}

	latest, err := repo.GetLatest(ctx, ticker, models.SnapshotKindSubmissions)
	require.NoError(t, err)
	assert.Equal(t, results[0].ID, latest.ID)
}
