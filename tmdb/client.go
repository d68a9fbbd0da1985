package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/s0up4200/airdate/ratelimit"
)

// DefaultConcurrency is the number of requests allowed in flight when no limit is configured
const DefaultConcurrency = 8

const (
	headerRetryAfter         = "Retry-After"
	headerRateLimitRemaining = "X-RateLimit-Remaining"
	headerRateLimitReset     = "X-RateLimit-Reset"
)

// Client represents a TMDB API client.
//
// All requests share one Gate bounding the requests in flight and one Backoff
// window, so a 429 seen by any request pauses every other request as well.
type Client struct {
	baseURL    string
	version    string
	apiKey     string
	httpClient *http.Client
	logger     zerolog.Logger
	clock      clockwork.Clock

	gate    *ratelimit.Gate
	backoff *ratelimit.Backoff
	pacer   *rate.Limiter

	cache     *cache.Cache
	cacheFile string

	attempts    atomic.Int64
	rateLimited atomic.Int64
}

// Status is a snapshot of the client's rate limiting state
type Status struct {
	InFlight    int
	Waiting     int
	Attempts    int64
	RateLimited int64
	Backoff     time.Duration
}

// NewClient creates a new TMDB client
func NewClient(baseURL, version, apiKey string, logger zerolog.Logger, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("%w: API URL is required", ErrInvalidConfig)
	}
	if version == "" {
		return nil, fmt.Errorf("%w: API version is required", ErrInvalidConfig)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidConfig)
	}

	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	gate, err := ratelimit.NewGate(options.concurrency)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	httpClient := options.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: options.timeout}
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		version:    strings.Trim(version, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
		logger:     logger,
		clock:      options.clock,
		gate:       gate,
		backoff:    ratelimit.NewBackoff(logger, ratelimit.WithClock(options.clock)),
	}

	if options.rps > 0 {
		c.pacer = rate.NewLimiter(rate.Limit(options.rps), max(options.burst, 1))
	}

	if options.cacheTTL > 0 {
		c.cache = cache.New(options.cacheTTL, 10*time.Minute)
		c.cacheFile = options.cacheFile

		if c.cacheFile != "" {
			if _, err := os.Stat(c.cacheFile); err == nil {
				if err := c.cache.LoadFile(c.cacheFile); err != nil {
					logger.Warn().Err(err).Str("file", c.cacheFile).Msg("Failed to load response cache")
				}
			}
		}
	}

	return c, nil
}

// Get fetches path with the given query parameters and decodes the JSON body into out.
// Rate limited responses are retried after the shared backoff window; every other
// failure is returned as is.
func (c *Client) Get(ctx context.Context, path string, params url.Values, out any) error {
	body, err := c.fetch(ctx, path, params)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", path, err)
	}

	return nil
}

// fetch returns the raw body of a successful response. The request slot is
// held for the whole exchange, including any 429 retries.
func (c *Client) fetch(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	key := path + "?" + params.Encode()
	if c.cache != nil {
		if cached, found := c.cache.Get(key); found {
			if body, ok := cached.([]byte); ok {
				return body, nil
			}
		}
	}

	if err := c.gate.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("failed to acquire request slot: %w", err)
	}
	defer c.gate.Release()

	requestURL := c.buildURL(path, params)

	for {
		if err := c.backoff.Wait(ctx); err != nil {
			return nil, err
		}
		if c.pacer != nil {
			if err := c.pacer.Wait(ctx); err != nil {
				return nil, err
			}
		}

		resp, body, err := c.do(ctx, path, requestURL)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			c.rateLimited.Add(1)
			retryAfter := parseRetryAfter(resp.Header.Get(headerRetryAfter), c.clock.Now())

			c.logger.Debug().
				Str("path", path).
				Dur("retry_after", retryAfter).
				Msg("Rate limited by TMDB")

			c.backoff.TriggerReactive(retryAfter)
			continue
		}

		c.observeQuota(resp.Header)

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &APIError{
				StatusCode: resp.StatusCode,
				Message:    statusMessage(resp.StatusCode, body),
				Body:       string(body),
			}
		}

		if c.cache != nil {
			c.cache.SetDefault(key, body)
		}

		return body, nil
	}
}

// do performs a single HTTP attempt and reads the whole body
func (c *Client) do(ctx context.Context, path, requestURL string) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", c.redact(err))
	}
	req.Header.Set("Accept", "application/json")

	attempt := c.attempts.Add(1)
	c.logger.Debug().
		Str("path", path).
		Int64("attempt", attempt).
		Int("in_flight", c.gate.InFlight()).
		Msg("Making TMDB API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request failed: %w", c.redact(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return resp, body, nil
}

// observeQuota opens a predictive backoff window when the quota reported by
// the server would run out before it resets. Missing headers disable the check.
func (c *Client) observeQuota(header http.Header) {
	remainingValue := header.Get(headerRateLimitRemaining)
	resetValue := header.Get(headerRateLimitReset)
	if remainingValue == "" || resetValue == "" {
		return
	}

	remaining, err := strconv.Atoi(remainingValue)
	if err != nil {
		c.logger.Debug().Str("value", remainingValue).Msg("Ignoring malformed rate limit remaining header")
		return
	}
	reset, err := strconv.ParseInt(resetValue, 10, 64)
	if err != nil {
		c.logger.Debug().Str("value", resetValue).Msg("Ignoring malformed rate limit reset header")
		return
	}

	c.backoff.TriggerPredictive(remaining, time.Unix(reset, 0), c.gate.InFlight())
}

func (c *Client) buildURL(path string, params url.Values) string {
	query := url.Values{}
	query.Set("api_key", c.apiKey)
	for key, values := range params {
		for _, v := range values {
			query.Add(key, v)
		}
	}

	return fmt.Sprintf("%s/%s%s?%s", c.baseURL, c.version, path, query.Encode())
}

// redact strips the API key from URLs embedded in transport errors
func (c *Client) redact(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		urlErr.URL = strings.ReplaceAll(urlErr.URL, url.QueryEscape(c.apiKey), "REDACTED")
	}
	return err
}

// Status returns the current rate limiting counters
func (c *Client) Status() Status {
	return Status{
		InFlight:    c.gate.InFlight(),
		Waiting:     c.gate.Waiting(),
		Attempts:    c.attempts.Load(),
		RateLimited: c.rateLimited.Load(),
		Backoff:     c.backoff.Remaining(),
	}
}

// TestConnection verifies the API URL and key by fetching the API configuration
func (c *Client) TestConnection(ctx context.Context) error {
	var configuration map[string]any
	if err := c.Get(ctx, "/configuration", nil, &configuration); err != nil {
		return fmt.Errorf("failed to connect to TMDB: %w", err)
	}
	return nil
}

// SaveCache persists the response cache when a cache file is configured
func (c *Client) SaveCache() error {
	if c.cache == nil || c.cacheFile == "" {
		return nil
	}
	return c.cache.SaveFile(c.cacheFile)
}

// maxRetryAfter caps the delay a server can ask for
const maxRetryAfter = 24 * time.Hour

// parseRetryAfter accepts both forms allowed for Retry-After: delay seconds
// and an HTTP date. Anything else yields zero. Delays are capped at maxRetryAfter.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}

	// Out of range values still parse to the nearest bound
	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil || errors.Is(err, strconv.ErrRange) {
		if seconds <= 0 {
			return 0
		}
		if seconds > int64(maxRetryAfter/time.Second) {
			return maxRetryAfter
		}
		return time.Duration(seconds) * time.Second
	}

	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return min(d, maxRetryAfter)
		}
	}

	return 0
}

// statusMessage extracts TMDB's status_message from an error body
func statusMessage(statusCode int, body []byte) string {
	var payload struct {
		StatusMessage string `json:"status_message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.StatusMessage != "" {
		return payload.StatusMessage
	}
	return http.StatusText(statusCode)
}
