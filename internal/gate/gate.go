package gate

import (
	"context"
	"sync"
)

// Gate admits outbound platform calls. Run blocks until the call is
// admitted, executes fn, then releases the slot. Implementations must
// admit waiters in submission order.
type Gate interface {
	Run(ctx context.Context, fn func() error) error
}

// Nop admits every call immediately. Useful when the surrounding
// harness provides its own throttling.
type Nop struct{}

func (Nop) Run(_ context.Context, fn func() error) error {
	return fn()
}

// FIFO is an admission gate with a fixed number of slots (default 1,
// which serializes all traffic to the remote platform). Callers waiting
// for a slot suspend on a channel; admission is strictly first-come
// first-served. A waiter can be abandoned through its context, but an
// admitted call always runs to completion.
type FIFO struct {
	mu      sync.Mutex
	slots   int
	active  int
	waiters []chan struct{}
}

// NewFIFO returns a gate admitting at most concurrency calls at once.
// Concurrency values below 1 are treated as 1.
func NewFIFO(concurrency int) *FIFO {
	if concurrency < 1 {
		concurrency = 1
	}
	return &FIFO{slots: concurrency}
}

func (g *FIFO) Run(ctx context.Context, fn func() error) error {
	if err := g.acquire(ctx); err != nil {
		return err
	}
	defer g.release()
	return fn()
}

func (g *FIFO) acquire(ctx context.Context) error {
	g.mu.Lock()
	if g.active < g.slots {
		g.active++
		g.mu.Unlock()
		return nil
	}

	ready := make(chan struct{})
	g.waiters = append(g.waiters, ready)
	g.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		g.mu.Lock()
		for i, w := range g.waiters {
			if w == ready {
				g.waiters = append(g.waiters[:i], g.waiters[i+1:]...)
				g.mu.Unlock()
				return ctx.Err()
			}
		}
		g.mu.Unlock()
		// The slot was granted between ctx.Done and the removal
		// attempt; hand it to the next waiter.
		g.release()
		return ctx.Err()
	}
}

func (g *FIFO) release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.waiters) > 0 {
		next := g.waiters[0]
		g.waiters = g.waiters[1:]
		close(next)
		return
	}
	g.active--
}
