package tmdb

import (
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
)

// Option configures a Client.
type Option func(*clientOptions)

// clientOptions holds configuration options for the Client.
type clientOptions struct {
	timeout     time.Duration
	httpClient  *http.Client
	concurrency int
	rps         float64
	burst       int
	cacheTTL    time.Duration
	cacheFile   string
	clock       clockwork.Clock
}

func defaultOptions() clientOptions {
	return clientOptions{
		timeout:     30 * time.Second,
		concurrency: DefaultConcurrency,
		clock:       clockwork.NewRealClock(),
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(o *clientOptions) {
		o.timeout = timeout
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *clientOptions) {
		o.httpClient = client
	}
}

// WithConcurrency sets how many requests may be in flight at once.
func WithConcurrency(n int) Option {
	return func(o *clientOptions) {
		o.concurrency = n
	}
}

// WithRequestRate paces outgoing requests to rps per second with the given burst.
// A non-positive rps disables pacing.
func WithRequestRate(rps float64, burst int) Option {
	return func(o *clientOptions) {
		o.rps = rps
		o.burst = burst
	}
}

// WithCache keeps successful responses in memory for ttl. When file is not
// empty the cache is loaded from it on creation and written back by SaveCache.
func WithCache(ttl time.Duration, file string) Option {
	return func(o *clientOptions) {
		o.cacheTTL = ttl
		o.cacheFile = file
	}
}

// WithClock sets the clock used for backoff windows and quota reset times.
func WithClock(clock clockwork.Clock) Option {
	return func(o *clientOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}
