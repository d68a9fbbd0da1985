package tmdb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAPIKey = "test-key"

func newTestClient(t *testing.T, baseURL string, opts ...Option) *Client {
	t.Helper()

	client, err := NewClient(baseURL, "3", testAPIKey, zerolog.Nop(), opts...)
	require.NoError(t, err)
	return client
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		version string
		apiKey  string
		opts    []Option
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid config",
			baseURL: "https://api.themoviedb.org/",
			version: "3",
			apiKey:  testAPIKey,
		},
		{
			name:    "missing URL",
			version: "3",
			apiKey:  testAPIKey,
			wantErr: true,
			errMsg:  "API URL is required",
		},
		{
			name:    "missing version",
			baseURL: "https://api.themoviedb.org",
			apiKey:  testAPIKey,
			wantErr: true,
			errMsg:  "API version is required",
		},
		{
			name:    "missing API key",
			baseURL: "https://api.themoviedb.org",
			version: "3",
			wantErr: true,
			errMsg:  "API key is required",
		},
		{
			name:    "zero concurrency",
			baseURL: "https://api.themoviedb.org",
			version: "3",
			apiKey:  testAPIKey,
			opts:    []Option{WithConcurrency(0)},
			wantErr: true,
			errMsg:  "concurrency limit must be at least 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.baseURL, tt.version, tt.apiKey, zerolog.Nop(), tt.opts...)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidConfig)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "https://api.themoviedb.org", client.baseURL)
			assert.Equal(t, DefaultConcurrency, client.gate.Limit())
			assert.Nil(t, client.pacer)
			assert.Nil(t, client.cache)
		})
	}
}

func TestClientOptions(t *testing.T) {
	t.Run("with timeout", func(t *testing.T) {
		client := newTestClient(t, "http://localhost", WithTimeout(5*time.Second))
		assert.Equal(t, 5*time.Second, client.httpClient.Timeout)
	})

	t.Run("with custom http client", func(t *testing.T) {
		custom := &http.Client{Timeout: 10 * time.Second}
		client := newTestClient(t, "http://localhost", WithHTTPClient(custom))
		assert.Same(t, custom, client.httpClient)
	})

	t.Run("with concurrency", func(t *testing.T) {
		client := newTestClient(t, "http://localhost", WithConcurrency(3))
		assert.Equal(t, 3, client.gate.Limit())
	})

	t.Run("with request rate", func(t *testing.T) {
		client := newTestClient(t, "http://localhost", WithRequestRate(40, 0))
		require.NotNil(t, client.pacer)
		assert.Equal(t, 1, client.pacer.Burst())
	})
}

func TestClient_RequestShape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/3/search/tv", r.URL.Path)
		assert.Equal(t, testAPIKey, r.URL.Query().Get("api_key"))
		assert.Equal(t, "The Expanse", r.URL.Query().Get("query"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))

		writeJSON(w, map[string]any{
			"page":    1,
			"results": []map[string]any{{"id": 63639, "name": "The Expanse"}},
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL+"/")
	results, err := client.SearchTV(context.Background(), "The Expanse")
	require.NoError(t, err)
	require.Len(t, results.Results, 1)
	assert.Equal(t, int64(63639), results.Results[0].ID)
}

func TestClient_RetriesAfterRateLimit(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeJSON(w, map[string]any{"id": 42, "name": "Foo"})
	}))
	defer server.Close()

	clock := clockwork.NewFakeClock()
	client := newTestClient(t, server.URL, WithClock(clock))
	start := clock.Now()

	type result struct {
		show *TVShow
		err  error
	}
	done := make(chan result, 1)
	go func() {
		show, err := client.GetTV(context.Background(), 42)
		done <- result{show, err}
	}()

	require.Eventually(t, client.backoff.Active, time.Second, time.Millisecond)
	assert.Equal(t, 3*time.Second, client.Status().Backoff)

	clock.Advance(2 * time.Second)
	select {
	case <-done:
		t.Fatal("request completed before the backoff window expired")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, int32(1), hits.Load())

	clock.Advance(time.Second)
	var res result
	select {
	case res = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("request did not complete after the backoff window")
	}

	require.NoError(t, res.err)
	assert.Equal(t, "Foo", res.show.Name)
	assert.GreaterOrEqual(t, clock.Since(start), 3*time.Second)
	assert.Equal(t, int32(2), hits.Load())

	status := client.Status()
	assert.Equal(t, int64(2), status.Attempts)
	assert.Equal(t, int64(1), status.RateLimited)
	assert.Zero(t, status.InFlight)
}

func TestClient_PredictiveBackoff(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0))
	reset := clock.Now().Add(5 * time.Second).Unix()

	var hits atomic.Int32
	arrived := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		if n <= 3 {
			if n == 3 {
				close(arrived)
			}
			// Hold the first three requests until all of them are in flight
			<-arrived
			w.Header().Set("X-RateLimit-Remaining", "1")
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset, 10))
		}
		writeJSON(w, map[string]any{"id": n, "name": fmt.Sprintf("Show %d", n)})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, WithClock(clock), WithConcurrency(3))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 1; i <= 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.GetTV(ctx, int64(i))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.True(t, client.backoff.Active())
	assert.GreaterOrEqual(t, client.Status().Backoff, 5*time.Second)

	done := make(chan error, 1)
	go func() {
		_, err := client.GetTV(ctx, 4)
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("request dispatched while the backoff window was open")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, int32(3), hits.Load())

	clock.Advance(6 * time.Second)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("request did not complete after the backoff window")
	}
	assert.Equal(t, int32(4), hits.Load())
}

func TestClient_QuotaHeaders(t *testing.T) {
	tests := []struct {
		name      string
		remaining string
		reset     string
		wantOpen  bool
	}{
		{name: "headers missing"},
		{name: "only remaining", remaining: "0"},
		{name: "malformed remaining", remaining: "lots", reset: "1700000005"},
		{name: "malformed reset", remaining: "0", reset: "soon"},
		{name: "plenty of quota", remaining: "39", reset: "1700000005"},
		{name: "quota exhausted", remaining: "0", reset: "1700000005", wantOpen: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.remaining != "" {
					w.Header().Set("X-RateLimit-Remaining", tt.remaining)
				}
				if tt.reset != "" {
					w.Header().Set("X-RateLimit-Reset", tt.reset)
				}
				writeJSON(w, map[string]any{"id": 1})
			}))
			defer server.Close()

			clock := clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0))
			client := newTestClient(t, server.URL, WithClock(clock))

			_, err := client.GetTV(context.Background(), 1)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOpen, client.backoff.Active())
		})
	}
}

func TestClient_FailuresAreNotRetried(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		check   func(t *testing.T, err error)
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			check: func(t *testing.T, err error) {
				var apiErr *APIError
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
				assert.Equal(t, "Internal Server Error", apiErr.Message)
			},
		},
		{
			name: "unauthorized with status message",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				writeJSON(w, map[string]any{
					"status_code":    7,
					"status_message": "Invalid API key: You must be granted a valid key.",
				})
			},
			check: func(t *testing.T, err error) {
				var apiErr *APIError
				require.ErrorAs(t, err, &apiErr)
				assert.True(t, apiErr.IsUnauthorized())
				assert.Contains(t, apiErr.Message, "Invalid API key")
			},
		},
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
			check: func(t *testing.T, err error) {
				assert.True(t, IsNotFound(err))
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("<html>not json</html>"))
			},
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "failed to parse")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				tt.handler(w, r)
			}))
			defer server.Close()

			client := newTestClient(t, server.URL)
			_, err := client.GetTV(context.Background(), 7)
			require.Error(t, err)
			tt.check(t, err)

			assert.Equal(t, int32(1), hits.Load())
			assert.Zero(t, client.Status().InFlight)
		})
	}
}

func TestClient_TransportErrorReleasesSlot(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	baseURL := server.URL
	server.Close()

	client := newTestClient(t, baseURL, WithConcurrency(1))

	for i := 0; i < 3; i++ {
		_, err := client.GetTV(context.Background(), 1)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "request failed")
		assert.NotContains(t, err.Error(), testAPIKey)
	}

	assert.Zero(t, client.Status().InFlight)
	assert.Equal(t, int64(3), client.Status().Attempts)
}

func TestClient_NeverExceedsConcurrency(t *testing.T) {
	var current, peak atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := current.Add(1)
		defer current.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		writeJSON(w, map[string]any{"id": 1})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, WithConcurrency(2))

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.GetTV(context.Background(), int64(i))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, int64(12), client.Status().Attempts)
}

func TestClient_GetTVIsRepeatable(t *testing.T) {
	body := `{
		"id": 1399,
		"name": "Game of Thrones",
		"status": "Ended",
		"number_of_seasons": 8,
		"last_episode_to_air": {"id": 1, "name": "The Iron Throne", "season_number": 8, "episode_number": 6, "air_date": "2019-05-19"},
		"next_episode_to_air": null
	}`
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(body))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	ctx := context.Background()

	first, err := client.GetTV(ctx, 1399)
	require.NoError(t, err)
	second, err := client.GetTV(ctx, 1399)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("GetTV() results differ (-first +second):\n%s", diff)
	}
	assert.NotSame(t, first, second)
	assert.Equal(t, int32(2), hits.Load())
}

func TestClient_Cache(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, map[string]any{"id": 1, "name": "Cached"})
	}))
	defer server.Close()

	cacheFile := t.TempDir() + "/tmdb_cache.gob"
	client := newTestClient(t, server.URL, WithCache(time.Hour, cacheFile))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		show, err := client.GetTV(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "Cached", show.Name)
	}
	assert.Equal(t, int32(1), hits.Load())
	require.NoError(t, client.SaveCache())

	// A fresh client picks the saved responses up from disk
	reloaded := newTestClient(t, server.URL, WithCache(time.Hour, cacheFile))
	_, err := reloaded.GetTV(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestClient_TestConnection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("api_key") != testAPIKey {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "/3/configuration", r.URL.Path)
		writeJSON(w, map[string]any{"images": map[string]any{}})
	}))
	defer server.Close()

	require.NoError(t, newTestClient(t, server.URL).TestConnection(context.Background()))

	bad, err := NewClient(server.URL, "3", "wrong", zerolog.Nop())
	require.NoError(t, err)
	err = bad.TestConnection(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to TMDB")
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		value    string
		expected time.Duration
	}{
		{"", 0},
		{"2", 2 * time.Second},
		{" 10 ", 10 * time.Second},
		{"-4", 0},
		{"soon", 0},
		{now.Add(30 * time.Second).Format(http.TimeFormat), 30 * time.Second},
		{now.Add(-30 * time.Second).Format(http.TimeFormat), 0},
		{"86400", maxRetryAfter},
		{"86401", maxRetryAfter},
		{"9300000000", maxRetryAfter},
		{"99999999999999999999", maxRetryAfter},
		{"-99999999999999999999", 0},
		{now.AddDate(300, 0, 0).Format(http.TimeFormat), maxRetryAfter},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseRetryAfter(tt.value, now))
		})
	}
}

func TestAPIError(t *testing.T) {
	t.Run("Error message", func(t *testing.T) {
		err := &APIError{StatusCode: 404, Message: "Not Found"}
		assert.Equal(t, "tmdb API error: status 404: Not Found", err.Error())
	})

	t.Run("IsUnauthorized", func(t *testing.T) {
		tests := []struct {
			code     int
			expected bool
		}{
			{401, true},
			{403, true},
			{404, false},
			{500, false},
		}

		for _, tt := range tests {
			err := &APIError{StatusCode: tt.code}
			assert.Equal(t, tt.expected, err.IsUnauthorized())
		}
	})

	t.Run("IsNotFound wraps", func(t *testing.T) {
		assert.True(t, IsNotFound(fmt.Errorf("outer: %w", &APIError{StatusCode: 404})))
		assert.True(t, IsNotFound(fmt.Errorf("%w for show %q", ErrNotFound, "Foo")))
		assert.False(t, IsNotFound(&APIError{StatusCode: 500}))
	})
}
