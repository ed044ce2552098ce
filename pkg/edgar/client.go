package edgar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"golang.org/x/time/rate"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	companyTickersURL  = "https://www.sec.gov/files/company_tickers.json"
	submissionsURLTmpl = "https://data.sec.gov/submissions/CIK%s.json"
	archivesBaseURL    = "https://www.sec.gov/Archives/edgar/data"

	// DefaultMaxBodyBytes caps response bodies; large filings run tens of MB
	DefaultMaxBodyBytes = int64(100 * 1024 * 1024)
)

// ClientConfig holds the EDGAR client settings.
type ClientConfig struct {
	// UserAgent declares the caller's identity to the SEC. Required.
	UserAgent string

	// MaxAttempts bounds the retry loop per request, first try included
	MaxAttempts int

	// Timeout applies per HTTP request
	Timeout time.Duration

	// MaxBodyBytes caps the size of a response body
	MaxBodyBytes int64
}

// Client talks to SEC EDGAR. Every request flows through the shared rate
// limiter, so a single process never exceeds the SEC ceiling no matter how
// many goroutines hold the client.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	config     ClientConfig
	logger     ectologger.Logger
}

// NewLimiter builds the process-wide EDGAR rate limiter.
func NewLimiter(requestsPerSecond float64, burst int) *rate.Limiter {
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}

// NewClient creates an EDGAR client. Construction fails when no User-Agent
// is configured: the SEC blocks anonymous traffic, so an unidentified client
// must never start.
func NewClient(cfg ClientConfig, limiter *rate.Limiter, logger ectologger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.UserAgent) == "" {
		return nil, fmt.Errorf("edgar: a User-Agent identifying the caller is required")
	}
	if limiter == nil {
		return nil, fmt.Errorf("edgar: a shared rate limiter is required")
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
		config:     cfg,
		logger:     logger,
	}, nil
}

// GetBytes fetches a URL with rate limiting and bounded retries. Transient
// failures back off exponentially; permanent failures return immediately.
func (c *Client) GetBytes(ctx context.Context, url string) ([]byte, error) {
	ctx, span := tracing.StartSpan(ctx, "edgar.Client.GetBytes")
	defer span.End()

	var lastErr error
	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		if attempt > 1 {
			backoff := time.Duration(1<<(attempt-2)) * time.Second
			c.logger.WithContext(ctx).Warnf("Retrying EDGAR request in %s (attempt %d/%d): %s", backoff, attempt, c.config.MaxAttempts, url)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		body, err := c.doRequest(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if !IsTransient(err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("edgar: request failed after %d attempts: %w", c.config.MaxAttempts, lastErr)
}

func (c *Client) doRequest(ctx context.Context, url string) ([]byte, error) {
	waitStart := time.Now()
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	metrics.RateLimitWaitTime.Observe(time.Since(waitStart).Seconds())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept-Encoding", "gzip, deflate")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordEdgarRequest(req.URL.Host, "error", time.Since(start).Seconds())
		return nil, err
	}
	defer resp.Body.Close()

	metrics.RecordEdgarRequest(req.URL.Host, strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, url)
	}
	if resp.StatusCode != http.StatusOK {
		if retryableStatuses[resp.StatusCode] {
			metrics.EdgarRetriesTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: url}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > c.config.MaxBodyBytes {
		return nil, fmt.Errorf("edgar: response from %s exceeds %d bytes", url, c.config.MaxBodyBytes)
	}

	return body, nil
}

// GetJSON fetches a URL and decodes the response into dest.
func (c *Client) GetJSON(ctx context.Context, url string, dest any) error {
	body, err := c.GetBytes(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("edgar: failed to decode response from %s: %w", url, err)
	}
	return nil
}

// PadCIK zero-pads a CIK to the 10 digits the submissions API expects.
func PadCIK(cik string) string {
	if len(cik) >= 10 {
		return cik
	}
	return strings.Repeat("0", 10-len(cik)) + cik
}

// ResolveCIK maps a ticker to its zero-padded CIK via the SEC company
// tickers file.
func (c *Client) ResolveCIK(ctx context.Context, ticker string) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "edgar.Client.ResolveCIK")
	defer span.End()

	var mapping map[string]models.CompanyTicker
	if err := c.GetJSON(ctx, companyTickersURL, &mapping); err != nil {
		return "", err
	}

	want := strings.ToUpper(strings.TrimSpace(ticker))
	for _, entry := range mapping {
		if strings.ToUpper(entry.Ticker) == want {
			return PadCIK(strconv.FormatInt(entry.CIK, 10)), nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrTickerUnknown, ticker)
}

// GetCompanySubmissions fetches the submissions index for a CIK.
func (c *Client) GetCompanySubmissions(ctx context.Context, cik string) (*models.CompanySubmissions, error) {
	ctx, span := tracing.StartSpan(ctx, "edgar.Client.GetCompanySubmissions")
	defer span.End()

	url := fmt.Sprintf(submissionsURLTmpl, PadCIK(cik))
	var submissions models.CompanySubmissions
	if err := c.GetJSON(ctx, url, &submissions); err != nil {
		return nil, err
	}

	return &submissions, nil
}

// PrimaryDocumentURL builds the archives URL for a filing's primary document.
// The archives path uses the unpadded CIK and the dashless accession number.
func PrimaryDocumentURL(cik, accessionNumber, primaryDocument string) string {
	unpadded := strings.TrimLeft(cik, "0")
	if unpadded == "" {
		unpadded = "0"
	}
	accession := strings.ReplaceAll(accessionNumber, "-", "")
	return fmt.Sprintf("%s/%s/%s/%s", archivesBaseURL, unpadded, accession, primaryDocument)
}

// DownloadPrimaryDocument fetches the primary document bytes for a filing
// and returns them with the source URL.
func (c *Client) DownloadPrimaryDocument(ctx context.Context, filing models.FilingRef) ([]byte, string, error) {
	ctx, span := tracing.StartSpan(ctx, "edgar.Client.DownloadPrimaryDocument")
	defer span.End()

	if filing.PrimaryDocument == "" {
		return nil, "", fmt.Errorf("edgar: filing %s has no primary document", filing.AccessionNumber)
	}

	url := PrimaryDocumentURL(filing.CIK, filing.AccessionNumber, filing.PrimaryDocument)
	body, err := c.GetBytes(ctx, url)
	if err != nil {
		return nil, url, err
	}

	return body, url, nil
}
