package artifacts

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/internal/repositories/artifact"
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

func TestStore_Path(t *testing.T) {
	store := NewStore("data/filings", nil, getTestLogger())

	path := store.Path("0000320193", "0000320193-24-000123", "aapl-20240928.htm")
	assert.Equal(t, filepath.Join("data", "filings", "0000320193", "000032019324000123", "aapl-20240928.htm"), path)
}

func TestStore_RegisterRawAndDerived(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	logger := getTestLogger()
	repo := artifact.NewRepository(db, logger)
	store := NewStore(t.TempDir(), repo, logger)
	ctx := context.Background()

	filing := models.FilingRef{
		CIK:             "0000320193",
		AccessionNumber: "0000320193-24-" + uuid.New().String()[:6],
		FormType:        "10-K",
		FilingDate:      "2024-02-01",
		PrimaryDocument: "aapl-10k.htm",
	}
	body := []byte("<html><body>Annual Report</body></html>")

	raw, created, err := store.RegisterRaw(ctx, filing, body, "https://example.com/aapl-10k.htm")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.ArtifactKindRawFiling, raw.Kind)
	assert.Equal(t, int64(len(body)), raw.SizeBytes)

	onDisk, err := store.Read(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, body, onDisk)

	// re-registering the same filing refreshes bytes, not rows
	again, created, err := store.RegisterRaw(ctx, filing, body, "https://example.com/aapl-10k.htm")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, raw.ID, again.ID)

	parsed, created, err := store.RegisterDerived(ctx, raw, models.ArtifactKindParsedText, ".txt", "v1", []string{"normalized text is only 13 bytes"}, []byte("Annual Report"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.ArtifactKindParsedText, parsed.Kind)
	assert.Equal(t, filepath.Dir(raw.StoragePath), filepath.Dir(parsed.StoragePath))
	assert.Equal(t, ".txt", filepath.Ext(parsed.StoragePath))
	require.NotNil(t, parsed.ParentArtifactID)
	assert.Equal(t, raw.ID, *parsed.ParentArtifactID)
	assert.Equal(t, "v1", parsed.ParserVersion)
	assert.Equal(t, []string{"normalized text is only 13 bytes"}, parsed.Warnings.Data)

	// a newer parser version creates a second row, not an overwrite
	reparsed, created, err := store.RegisterDerived(ctx, raw, models.ArtifactKindParsedText, ".txt", "v2", nil, []byte("Annual Report"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, parsed.ID, reparsed.ID)
	assert.NotEqual(t, parsed.StoragePath, reparsed.StoragePath)

	text, err := store.Read(ctx, parsed)
	require.NoError(t, err)
	assert.Equal(t, "Annual Report", string(text))
}

func TestStore_RegisterRawStripsPathSegments(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	logger := getTestLogger()
	repo := artifact.NewRepository(db, logger)
	base := t.TempDir()
	store := NewStore(base, repo, logger)

	filing := models.FilingRef{
		CIK:             "0000320193",
		AccessionNumber: "0000320193-24-" + uuid.New().String()[:6],
		FormType:        "10-Q",
		PrimaryDocument: "xslF345X05/wk-form4.xml",
	}

	raw, _, err := store.RegisterRaw(context.Background(), filing, []byte("doc"), "")
	require.NoError(t, err)
	assert.Equal(t, "wk-form4.xml", filepath.Base(raw.StoragePath))
	assert.True(t, strings.HasPrefix(raw.StoragePath, base))
}
