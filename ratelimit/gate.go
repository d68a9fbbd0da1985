package ratelimit

import (
	"container/list"
	"context"
	"fmt"
	"sync"
)

// Gate bounds the number of requests in flight.
//
// Acquirers beyond the limit wait in a FIFO queue. A released slot is handed
// straight to the head of the queue, so a newcomer can never overtake a caller
// that was already waiting.
type Gate struct {
	mu       sync.Mutex
	limit    int
	inFlight int
	waiters  *list.List // of chan struct{}
}

// NewGate creates a gate allowing at most limit concurrent holders
func NewGate(limit int) (*Gate, error) {
	if limit < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidLimit, limit)
	}

	return &Gate{
		limit:   limit,
		waiters: list.New(),
	}, nil
}

// Acquire blocks until a slot is available or ctx is done.
// Every successful Acquire must be paired with exactly one Release.
func (g *Gate) Acquire(ctx context.Context) error {
	g.mu.Lock()
	if g.inFlight < g.limit && g.waiters.Len() == 0 {
		g.inFlight++
		g.mu.Unlock()
		return nil
	}

	ready := make(chan struct{})
	elem := g.waiters.PushBack(ready)
	g.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
	}

	g.mu.Lock()
	select {
	case <-ready:
		// Release handed us the slot while we were giving up; pass it on.
		g.mu.Unlock()
		g.Release()
	default:
		g.waiters.Remove(elem)
		g.mu.Unlock()
	}

	return ctx.Err()
}

// Release frees a slot, admitting the longest waiting caller if there is one.
func (g *Gate) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.inFlight == 0 {
		panic("ratelimit: Release called without a matching Acquire")
	}

	if front := g.waiters.Front(); front != nil {
		// The slot moves to the waiter; inFlight stays the same.
		g.waiters.Remove(front)
		close(front.Value.(chan struct{}))
		return
	}

	g.inFlight--
}

// Do runs fn while holding a slot. The slot is released on every exit path.
func (g *Gate) Do(ctx context.Context, fn func() error) error {
	if err := g.Acquire(ctx); err != nil {
		return err
	}
	defer g.Release()

	return fn()
}

// InFlight returns the number of currently held slots
func (g *Gate) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.inFlight
}

// Waiting returns the number of queued acquirers
func (g *Gate) Waiting() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.waiters.Len()
}

// Limit returns the configured concurrency ceiling
func (g *Gate) Limit() int {
	return g.limit
}
