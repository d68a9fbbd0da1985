package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// SafetyMargin is added to every backoff window to absorb clock skew between
// us and the server's own quota window.
const SafetyMargin = time.Second

// Reason describes what opened a backoff window
type Reason string

const (
	// ReasonRateLimited means the server answered 429 Too Many Requests
	ReasonRateLimited Reason = "rate_limited"
	// ReasonQuotaExhausted means the requests in flight would use up the remaining quota
	ReasonQuotaExhausted Reason = "quota_exhausted"
)

// window is a single cooldown period. done is closed when it expires.
type window struct {
	until  time.Time
	reason Reason
	done   chan struct{}
}

// Backoff holds at most one active cooldown window shared by all callers.
type Backoff struct {
	mu     sync.Mutex
	clock  clockwork.Clock
	logger zerolog.Logger
	window *window
	opened int
}

// BackoffOption configures a Backoff
type BackoffOption func(*Backoff)

// WithClock sets the clock used to time windows
func WithClock(clock clockwork.Clock) BackoffOption {
	return func(b *Backoff) {
		if clock != nil {
			b.clock = clock
		}
	}
}

// NewBackoff creates a backoff controller with no active window
func NewBackoff(logger zerolog.Logger, opts ...BackoffOption) *Backoff {
	b := &Backoff{
		clock:  clockwork.NewRealClock(),
		logger: logger,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Wait returns immediately when no window is active, otherwise it blocks until
// the current window expires or ctx is done.
func (b *Backoff) Wait(ctx context.Context) error {
	b.mu.Lock()
	w := b.window
	b.mu.Unlock()

	if w == nil {
		return nil
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TriggerReactive opens a window of retryAfter plus the safety margin.
// It reports whether a new window was opened.
func (b *Backoff) TriggerReactive(retryAfter time.Duration) bool {
	if retryAfter < 0 {
		retryAfter = 0
	}

	return b.open(retryAfter+SafetyMargin, ReasonRateLimited)
}

// TriggerPredictive opens a window lasting until reset (plus the safety margin)
// when the remaining quota is smaller than the number of requests in flight.
// It reports whether a new window was opened.
func (b *Backoff) TriggerPredictive(remaining int, reset time.Time, inFlight int) bool {
	if remaining >= inFlight {
		return false
	}

	wait := reset.Sub(b.clock.Now())
	if wait < 0 {
		wait = 0
	}

	return b.open(wait+SafetyMargin, ReasonQuotaExhausted)
}

func (b *Backoff) open(d time.Duration, reason Reason) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.window != nil {
		return false
	}

	w := &window{
		until:  b.clock.Now().Add(d),
		reason: reason,
		done:   make(chan struct{}),
	}
	b.window = w
	b.opened++

	b.logger.Info().
		Str("reason", string(reason)).
		Dur("duration", d).
		Msg("Backing off TMDB requests")

	expired := b.clock.After(d)
	go func() {
		<-expired

		b.mu.Lock()
		b.window = nil
		b.mu.Unlock()
		close(w.done)

		b.logger.Debug().Str("reason", string(reason)).Msg("Backoff window cleared")
	}()

	return true
}

// Active reports whether a window is currently open
func (b *Backoff) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.window != nil
}

// Remaining returns how long the current window still lasts, zero if none
func (b *Backoff) Remaining() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.window == nil {
		return 0
	}

	remaining := b.window.until.Sub(b.clock.Now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Opened returns how many windows have been opened so far
func (b *Backoff) Opened() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.opened
}
