package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"vizflow/internal/viz"
)

// guard admits one operation at a time. A second caller is rejected at
// once with viz.ErrBusy; nothing queues.
type guard struct {
	sem *semaphore.Weighted

	mu     sync.Mutex
	op     string
	cancel context.CancelFunc
}

func newGuard() *guard {
	return &guard{sem: semaphore.NewWeighted(1)}
}

// enter claims the slot for op and derives a context bounded by timeout.
// The returned release must be called exactly once.
func (g *guard) enter(ctx context.Context, op string, timeout time.Duration) (context.Context, func(), error) {
	if !g.sem.TryAcquire(1) {
		g.mu.Lock()
		inFlight := g.op
		g.mu.Unlock()
		return nil, nil, fmt.Errorf("%s: %w (%s in progress)", op, viz.ErrBusy, inFlight)
	}
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	g.mu.Lock()
	g.op = op
	g.cancel = cancel
	g.mu.Unlock()

	release := func() {
		cancel()
		g.mu.Lock()
		g.op = ""
		g.cancel = nil
		g.mu.Unlock()
		g.sem.Release(1)
	}
	return ctx, release, nil
}

// inFlight returns the name of the running operation.
func (g *guard) inFlight() (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.op, g.op != ""
}

// abort cancels the running operation's context.
func (g *guard) abort() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel == nil {
		return false
	}
	g.cancel()
	return true
}
