// Package client implements the Jikan (MyAnimeList) catalog API client with
// rate limiting and retry on throttling.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"animerank/ingestion/internal/metrics"
)

const (
	// Jikan permits ~3 requests/second; one request per 350ms keeps a
	// conservative margin under bursty scheduling.
	defaultRequestInterval = 350 * time.Millisecond
	defaultMaxInFlight     = 2
	defaultMaxAttempts     = 4
	defaultBackoffBase     = 1 * time.Second
	maxBackoff             = 10 * time.Second
	maxErrorBody           = 200
)

// FetchError is returned for non-2xx or non-JSON upstream responses. It is
// never retried; the ingestion pipeline skips the affected title or page.
type FetchError struct {
	URL        string
	StatusCode int
	Body       string // truncated for diagnostics
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch failed: %s returned status %d: %s", e.URL, e.StatusCode, e.Body)
}

// Client is the Jikan API client. Pacing policy lives in the injected
// limiter, not in the callers.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	limiter     *rate.Limiter
	inFlight    chan struct{}
	maxAttempts int
	backoffBase time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithLimiter replaces the default token-bucket limiter.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithBackoff overrides the retry schedule, used by tests to avoid real waits.
func WithBackoff(maxAttempts int, base time.Duration) Option {
	return func(c *Client) {
		c.maxAttempts = maxAttempts
		c.backoffBase = base
	}
}

// NewClient creates a Jikan API client.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		limiter:     rate.NewLimiter(rate.Every(defaultRequestInterval), 1),
		inFlight:    make(chan struct{}, defaultMaxInFlight),
		maxAttempts: defaultMaxAttempts,
		backoffBase: defaultBackoffBase,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// get performs a rate-limited GET and returns the response body. HTTP 429 is
// retried with exponential backoff; any other failure surfaces immediately
// as a *FetchError. endpoint labels the call metrics and must be a fixed
// name, never the raw path, to keep the label set bounded.
func (c *Client) get(ctx context.Context, endpoint, path string) ([]byte, error) {
	url := fmt.Sprintf("%s/%s", c.baseURL, path)

	resp, err := c.doWithRetry(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		metrics.RecordAPICall(endpoint, "error")
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode, Body: truncate(body)}
	}

	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "application/json") {
		metrics.RecordAPICall(endpoint, "error")
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode, Body: truncate(body)}
	}

	metrics.RecordAPICall(endpoint, "ok")
	log.Debug().
		Str("url", url).
		Int("size", len(body)).
		Msg("API request successful")

	return body, nil
}

// doWithRetry issues the request, retrying only on 429 with exponential
// backoff capped at maxBackoff. After exhausting attempts the last response
// is returned as-is for the caller to judge.
func (c *Client) doWithRetry(ctx context.Context, url string) (*http.Response, error) {
	var resp *http.Response

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := c.backoffBase * time.Duration(1<<uint(attempt-1))
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			log.Warn().
				Str("url", url).
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("Rate limited by upstream, backing off")
			metrics.RecordRateLimit()

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		select {
		case c.inFlight <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			<-c.inFlight
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "animerank-ingestion/1.0")

		start := time.Now()
		resp, err = c.httpClient.Do(req)
		<-c.inFlight
		if err != nil {
			return nil, fmt.Errorf("API request failed: %w", err)
		}
		metrics.ObserveAPICallDuration(time.Since(start).Seconds())

		if resp.StatusCode != http.StatusTooManyRequests || attempt == c.maxAttempts-1 {
			return resp, nil
		}

		// Drain before retrying so the connection can be reused.
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}

	return resp, nil
}

func truncate(body []byte) string {
	if len(body) > maxErrorBody {
		return string(body[:maxErrorBody])
	}
	return string(body)
}
