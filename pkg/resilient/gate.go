package resilient

import (
	"context"
	"sync"
	"time"
)

// Gate is the single-holder concurrency primitive from the glossary: it
// enforces a minimum inter-request interval for a rate-limited backend
// (Azure's ≤3rpm commodity tier, Gemini's documented RPM). Acquisition is
// FIFO under Go's starvation-avoiding mutex; the holder must call the
// returned release func on every exit path, including cancellation.
//
// Design notes §9 calls for shared mutable state like provider gates to be
// small explicit synchronization primitives rather than a borrowed
// token-bucket abstraction, so this is built directly on sync.Mutex and
// time.Time rather than a generic rate limiter.
type Gate struct {
	mu          sync.Mutex
	minInterval time.Duration
	lastRelease time.Time
}

// NewGate constructs a Gate enforcing at least minInterval between the
// release of one holder and the next acquisition starting its work. A
// zero or negative interval makes the gate a plain mutex.
func NewGate(minInterval time.Duration) *Gate {
	return &Gate{minInterval: minInterval}
}

// Acquire blocks until the caller becomes the sole holder and the minimum
// interval since the previous holder's release has elapsed. It returns a
// release func that must be called exactly once; callers should
// `defer release()` immediately to guarantee release on cancellation.
func (g *Gate) Acquire(ctx context.Context) (release func(), err error) {
	g.mu.Lock()

	if g.minInterval > 0 {
		wait := time.Until(g.lastRelease.Add(g.minInterval))
		if wait > 0 && !SleepWithContext(ctx, wait) {
			g.mu.Unlock()
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	release = func() {
		once.Do(func() {
			g.lastRelease = time.Now()
			g.mu.Unlock()
		})
	}
	return release, nil
}
