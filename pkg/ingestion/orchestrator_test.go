package ingestion

import (
	"context"
	"net/http"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

type fakeFilingSource struct {
	cik          string
	resolveCalls int
}

func (f *fakeFilingSource) ResolveCIK(ctx context.Context, ticker string) (string, error) {
	f.resolveCalls++
	return f.cik, nil
}

func (f *fakeFilingSource) GetCompanySubmissions(ctx context.Context, cik string) (*models.CompanySubmissions, error) {
	return &models.CompanySubmissions{CIK: cik}, nil
}

func (f *fakeFilingSource) DownloadPrimaryDocument(ctx context.Context, filing models.FilingRef) ([]byte, string, error) {
	return nil, "", nil
}

type fakeInstrumentStore struct {
	instrument *models.Instrument
}

func (s *fakeInstrumentStore) GetByTicker(ctx context.Context, ticker string) (*models.Instrument, error) {
	if s.instrument == nil {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "instrument not found")
	}
	return s.instrument, nil
}

func (s *fakeInstrumentStore) EnsureWithCIK(ctx context.Context, ticker, cik, name string) (*models.Instrument, error) {
	return s.instrument, nil
}

func testOrchestrator(client FilingSource, instruments InstrumentStore) *Orchestrator {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewOrchestrator(Config{}, client, nil, nil, instruments, nil, nil, logger)
}

func TestResolveCIK_ReusesStoredCIK(t *testing.T) {
	storedCIK := "0000320193"
	client := &fakeFilingSource{cik: "0009999999"}
	instruments := &fakeInstrumentStore{instrument: &models.Instrument{Ticker: "AAPL", CIK: &storedCIK}}
	orchestrator := testOrchestrator(client, instruments)

	cik, err := orchestrator.resolveCIK(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, storedCIK, cik)
	assert.Zero(t, client.resolveCalls, "stored CIK must be reused without a network lookup")
}

func TestResolveCIK_UnknownTickerHitsNetwork(t *testing.T) {
	client := &fakeFilingSource{cik: "0000320193"}
	orchestrator := testOrchestrator(client, &fakeInstrumentStore{})

	cik, err := orchestrator.resolveCIK(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "0000320193", cik)
	assert.Equal(t, 1, client.resolveCalls)
}

func TestResolveCIK_RowWithoutCIKHitsNetwork(t *testing.T) {
	client := &fakeFilingSource{cik: "0000320193"}
	instruments := &fakeInstrumentStore{instrument: &models.Instrument{Ticker: "AAPL"}}
	orchestrator := testOrchestrator(client, instruments)

	cik, err := orchestrator.resolveCIK(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "0000320193", cik)
	assert.Equal(t, 1, client.resolveCalls)
}
