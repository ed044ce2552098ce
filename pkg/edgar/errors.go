package edgar

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
)

// Statuses EDGAR is known to return under throttling or transient outages.
var retryableStatuses = map[int]bool{
	429: true,
	403: true, // EDGAR throttles with 403 as well as 429
	500: true,
	502: true,
	503: true,
	504: true,
}

// StatusError is a non-2xx response from EDGAR.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("edgar: unexpected status %d from %s", e.StatusCode, e.URL)
}

// Transient reports whether the status is worth retrying.
func (e *StatusError) Transient() bool {
	return retryableStatuses[e.StatusCode]
}

// ErrNotFound is returned when EDGAR has no resource at the requested URL.
var ErrNotFound = errors.New("edgar: resource not found")

// ErrTickerUnknown is returned when a ticker has no CIK mapping.
var ErrTickerUnknown = errors.New("edgar: ticker has no CIK mapping")

// IsTransient reports whether err should be retried: throttling, server
// errors and transport failures (timeouts, refused or reset connections,
// DNS lookups) are transient, everything else is permanent and burns no
// retries.
func IsTransient(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Transient()
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// a request that never produced a status code failed in transport;
	// from here a brief outage and a dead host look the same, so retry
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return false
}
