// Package fetch retrieves the daily CSV export from the upstream source.
//
// Two strategies: a plain HTTP GET for sources that expose a direct file
// URL, and a headless-browser download for dashboards that only offer an
// export button. Both obey a bounded wait; past it the download fails with
// a *TimeoutError and the ingestion cycle aborts.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// TimeoutError reports that the bounded wait for a download elapsed.
type TimeoutError struct {
	Wait time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("fetch: download not complete after %v", e.Wait)
}

// IsTimeout reports whether err is a download timeout.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// Config configures the HTTP fetcher.
type Config struct {
	URL      string
	Timeout  time.Duration // total request timeout. Default: 2 minutes.
	MaxBytes int64         // max response body size. Default: 100MB.
	// UserAgent sent with requests.
	UserAgent string
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Minute
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 100 * 1024 * 1024
	}
	if c.UserAgent == "" {
		c.UserAgent = "corronaservice/1.0"
	}
}

// HTTPFetcher downloads the CSV from a direct URL.
type HTTPFetcher struct {
	client *http.Client
	config Config
}

// NewHTTP creates an HTTP fetcher.
func NewHTTP(cfg Config) *HTTPFetcher {
	cfg.defaults()
	return &HTTPFetcher{
		client: &http.Client{Timeout: cfg.Timeout},
		config: cfg,
	}
}

// Download retrieves the configured URL and returns the response body.
func (f *HTTPFetcher) Download(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.config.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: new request: %w", err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		var ue *url.Error
		if errors.As(err, &ue) && ue.Timeout() {
			return nil, &TimeoutError{Wait: f.config.Timeout}
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &TimeoutError{Wait: f.config.Timeout}
		}
		return nil, fmt.Errorf("fetch: http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetch: http %d from %s", resp.StatusCode, f.config.URL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBytes))
	if err != nil {
		return nil, fmt.Errorf("fetch: read body: %w", err)
	}
	return body, nil
}
