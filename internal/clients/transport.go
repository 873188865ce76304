/**
 * Outbound HTTP transport for the Inscription Recognition Worker
 *
 * All backend clients share transport built here: explicit timeouts, an
 * optional proxy taken from configuration (never from ambient environment
 * lookups), and HTTP failure classification that drives the fallback policy.
 */

package clients

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/epigraphia/inscription-worker/internal/errors"
)

// TransportConfig holds outbound transport settings.
type TransportConfig struct {
	Timeout  time.Duration
	ProxyURL string
}

// NewHTTPClient builds an HTTP client from explicit transport configuration.
func NewHTTPClient(cfg TransportConfig) (*http.Client, error) {
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("transport timeout must be positive")
	}

	transport := &http.Transport{}
	if cfg.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
	}, nil
}

// ClassifyStatus maps an HTTP status code onto the backend error taxonomy.
// 404 and 410 mean the capability does not exist at this endpoint, 429 means
// rate limited; both are skipped without capture. Everything else is an
// application-level failure captured as the last error.
func ClassifyStatus(status int) errors.ErrorCode {
	switch status {
	case http.StatusNotFound, http.StatusGone:
		return errors.ErrorBackendGone
	case http.StatusTooManyRequests:
		return errors.ErrorRateLimited
	default:
		return errors.ErrorBackendFailed
	}
}

// ClassifyErr maps a transport-level error onto the taxonomy. Timed-out calls
// are treated identically to backend failures by the orchestrator; the
// distinct code is kept for logging.
func ClassifyErr(err error) errors.ErrorCode {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.ErrorBackendTimeout
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return errors.ErrorBackendTimeout
	}
	return errors.ErrorBackendFailed
}
