package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/truecost/backend/internal/domain"
	"github.com/truecost/backend/internal/observability"
)

const defaultMaxBodyBytes = 16 << 20

// ClientConfig holds catalog HTTP client settings
type ClientConfig struct {
	UserAgent         string
	Timeout           time.Duration
	MaxAttempts       int
	RequestsPerSecond float64
	Burst             int
	MaxBodyBytes      int64
}

// Client fetches raw catalog pages from the host's listing endpoints
type Client struct {
	httpClient   *http.Client
	userAgent    string
	rateLimiter  *rate.Limiter
	maxAttempts  int
	maxBodyBytes int64
	debug        bool
	logger       zerolog.Logger
}

// NewClient creates a new catalog client
func NewClient(cfg ClientConfig, logger zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 6
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "TrueCost/1.0"
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		userAgent:    cfg.UserAgent,
		rateLimiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		maxAttempts:  cfg.MaxAttempts,
		maxBodyBytes: cfg.MaxBodyBytes,
		logger:       observability.Component(logger, "catalog"),
	}
}

// SetDebug enables logging of every request attempt
func (c *Client) SetDebug(debug bool) {
	c.debug = debug
}

func (c *Client) debugLog(format string, args ...any) {
	if c.debug {
		c.logger.Debug().Msgf(format, args...)
	}
}

// doRequest executes an HTTP GET request with proper headers
func (c *Client) doRequest(ctx context.Context, reqURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	return c.httpClient.Do(req)
}

// FetchJSON fetches one catalog page and returns its raw body.
// Transport errors are retried with exponential backoff. 429 and 5xx responses are
// retried only for dialect B: a dialect A failure switches the retrieval to dialect B,
// which should happen without waiting out the backoff. Any other non-success status
// fails immediately.
func (c *Client) FetchJSON(ctx context.Context, dialect domain.Dialect, reqURL string) ([]byte, error) {
	c.debugLog("fetch %s %s", dialect, reqURL)

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, domain.NetworkError(dialect, reqURL, 0, fmt.Errorf("rate limiter: %w", err))
		}

		resp, err := c.doRequest(ctx, reqURL)
		if err != nil {
			if ctx.Err() != nil {
				return nil, domain.NetworkError(dialect, reqURL, 0, ctx.Err())
			}
			c.logger.Warn().Err(err).Int("attempt", attempt).Str("url", reqURL).Msg("request error")
			lastErr = domain.NetworkError(dialect, reqURL, 0, err)
			if !c.backoff(ctx, attempt) {
				break
			}
			continue
		}

		body, readErr := readLimitedBody(resp.Body, c.maxBodyBytes)
		resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			c.logger.Warn().
				Int("attempt", attempt).
				Int("status", resp.StatusCode).
				Str("url", reqURL).
				Msg("catalog API error")
			lastErr = domain.NetworkError(dialect, reqURL, resp.StatusCode, nil)
			if !retryableStatus(dialect, resp.StatusCode) || !c.backoff(ctx, attempt) {
				break
			}
			continue
		}

		if readErr != nil {
			lastErr = domain.NetworkError(dialect, reqURL, resp.StatusCode, readErr)
			if !c.backoff(ctx, attempt) {
				break
			}
			continue
		}

		c.debugLog("fetched %d bytes from %s", len(body), reqURL)
		return body, nil
	}

	return nil, lastErr
}

// backoff sleeps before the next attempt; it returns false when no attempt remains
// or the context is done.
func (c *Client) backoff(ctx context.Context, attempt int) bool {
	if attempt >= c.maxAttempts {
		return false
	}
	timer := time.NewTimer(exponentialBackoff(attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func retryableStatus(dialect domain.Dialect, status int) bool {
	if dialect != domain.DialectB {
		return false
	}
	return status == http.StatusTooManyRequests || status >= 500
}

// exponentialBackoff returns 500ms, 1s, 2s, ... for attempts 1, 2, 3, ...
func exponentialBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(500<<uint(attempt-1)) * time.Millisecond
}

// readLimitedBody reads at most limit bytes from r
func readLimitedBody(r io.Reader, limit int64) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, limit))
}
