package existence

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// WebChecker probes a community URL for an unambiguous deletion signal.
type WebChecker interface {
	// CheckURL returns the HTTP status for the URL. Only 404 is conclusive
	// evidence of deletion; every other status, and any transport error,
	// is inconclusive.
	CheckURL(ctx context.Context, url string) (int, error)
}

// HTTPChecker issues HEAD requests against the public community page.
type HTTPChecker struct {
	client *http.Client
	log    *slog.Logger
}

// NewHTTPChecker builds a checker with a bounded request timeout.
func NewHTTPChecker(log *slog.Logger) *HTTPChecker {
	return &HTTPChecker{
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}
}

// CheckURL performs a HEAD request. Transport errors return status 0; the
// caller treats that as inconclusive, never as deletion evidence.
func (c *HTTPChecker) CheckURL(ctx context.Context, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Debug("web check inconclusive", "url", url, "err", err)
		return 0, err
	}
	defer resp.Body.Close()

	c.log.Debug("web check", "url", url, "status", resp.StatusCode)
	return resp.StatusCode, nil
}
