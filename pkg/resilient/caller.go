// Package resilient wraps every outbound AI/tool call (C2): retry with
// backoff, a per-provider rate-limit Gate, and a fallback chain across
// providers. It is grounded on the teacher's agent-level fallback loop,
// generalized to operate on the provider.Provider contract directly
// instead of a streaming chat session.
package resilient

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/byerlikaya/smartrag/pkg/provider"
	"github.com/byerlikaya/smartrag/pkg/ragerr"
)

// DefaultFallbackCooldown is how long the caller sticks with a fallback
// provider after the primary fails with a non-retryable error, before
// trying the primary again.
const DefaultFallbackCooldown = 1 * time.Minute

type cooldownState struct {
	index int
	until time.Time
}

// Caller holds the per-key cooldown state across calls. A zero Caller is
// usable; construct with NewCaller for clarity.
type Caller struct {
	mu        sync.Mutex
	cooldowns map[string]*cooldownState
}

func NewCaller() *Caller {
	return &Caller{cooldowns: make(map[string]*cooldownState)}
}

func (c *Caller) getCooldown(key string) *cooldownState {
	c.mu.Lock()
	defer c.mu.Unlock()

	state := c.cooldowns[key]
	if state == nil {
		return nil
	}
	if time.Now().After(state.until) {
		delete(c.cooldowns, key)
		return nil
	}
	return state
}

func (c *Caller) setCooldown(key string, index int, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cooldowns[key] = &cooldownState{index: index, until: time.Now().Add(d)}
}

func (c *Caller) clearCooldown(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cooldowns, key)
}

// Do retries fn per cfg's policy, optionally serializing through gate.
// gate may be nil when the provider has no rate-limit requirement.
func Do(ctx context.Context, gate *Gate, cfg Config, fn func(context.Context) error) error {
	maxAttempts := cfg.MaxRetryAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := range maxAttempts {
		if ctx.Err() != nil {
			return ragerr.Wrap(ragerr.Cancelled, "context done before attempt", ctx.Err())
		}
		if attempt > 0 {
			if !SleepWithContext(ctx, Backoff(cfg, attempt-1)) {
				return ragerr.Wrap(ragerr.Cancelled, "context done during backoff", ctx.Err())
			}
		}

		err := callGated(ctx, gate, fn)
		if err == nil {
			return nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if !IsRetryable(err) {
			return err
		}
		slog.Warn("resilient: retrying call", "attempt", attempt+1, "max_attempts", maxAttempts, "error", err)
	}
	return lastErr
}

func callGated(ctx context.Context, gate *Gate, fn func(context.Context) error) error {
	if gate == nil {
		return fn(ctx)
	}
	release, err := gate.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}

// CallWithFallback walks chain (primary first, then FallbackProviders in
// order per spec §4.2), retrying each entry per cfg before moving to the
// next. Fallback only happens when cfg.EnableFallbackProviders is set; the
// caller is responsible for passing just [primary] otherwise. On success
// from a non-primary provider, the caller "sticks" with it for cooldown
// (spec's teacher-derived cooldown behavior, §9 design notes on small
// explicit synchronization rather than agent-coupled state); key scopes
// the cooldown (e.g. a logical operation name such as "generate" or
// "embed").
func CallWithFallback[T any](
	ctx context.Context,
	caller *Caller,
	key string,
	chain []provider.Provider,
	cfg Config,
	cooldown time.Duration,
	call func(context.Context, provider.Provider) (T, error),
) (T, provider.Provider, error) {
	var zero T
	if len(chain) == 0 {
		return zero, nil, ragerr.New(ragerr.ConfigMissing, "no provider configured")
	}
	if cooldown <= 0 {
		cooldown = DefaultFallbackCooldown
	}

	startIdx := 0
	if cfg.EnableFallbackProviders {
		if cs := caller.getCooldown(key); cs != nil && cs.index < len(chain) {
			startIdx = cs.index
		}
	}

	maxAttempts := cfg.MaxRetryAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	primaryFailedNonRetryable := false

	for idx := startIdx; idx < len(chain); idx++ {
		if idx > startIdx && !cfg.EnableFallbackProviders {
			break
		}
		p := chain[idx]

		for attempt := range maxAttempts {
			if ctx.Err() != nil {
				return zero, nil, ragerr.Wrap(ragerr.Cancelled, "context done", ctx.Err())
			}
			if attempt > 0 {
				if !SleepWithContext(ctx, Backoff(cfg, attempt-1)) {
					return zero, nil, ragerr.Wrap(ragerr.Cancelled, "context done during backoff", ctx.Err())
				}
			}

			res, err := call(ctx, p)
			if err == nil {
				if idx == 0 {
					caller.clearCooldown(key)
				} else if primaryFailedNonRetryable {
					caller.setCooldown(key, idx, cooldown)
				}
				return res, p, nil
			}

			lastErr = err
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return zero, nil, err
			}
			if !IsRetryable(err) {
				if idx == 0 {
					primaryFailedNonRetryable = true
				}
				slog.Warn("resilient: non-retryable error, moving to next provider", "provider", p.Kind(), "error", err)
				break
			}
			slog.Warn("resilient: retryable error, retrying provider", "provider", p.Kind(), "attempt", attempt+1, "error", err)
		}
	}

	if lastErr != nil {
		return zero, nil, lastErr
	}
	return zero, nil, ragerr.New(ragerr.Transport, "all providers failed with unknown error")
}
