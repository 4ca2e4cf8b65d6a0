package resilient

import (
	"context"
	"math/rand"
	"time"
)

// Policy is the retry backoff policy (spec §4.2).
type Policy string

const (
	PolicyNone               Policy = "None"
	PolicyFixedDelay         Policy = "FixedDelay"
	PolicyLinearBackoff      Policy = "LinearBackoff"
	PolicyExponentialBackoff Policy = "ExponentialBackoff"
)

const (
	maxBackoff  = 60 * time.Second
	jitterRatio = 0.1
)

// Config bundles the retry/fallback knobs from spec §6's enumerated keys.
type Config struct {
	MaxRetryAttempts        int
	RetryDelayMs            int
	RetryPolicy             Policy
	EnableFallbackProviders bool
}

// DefaultConfig mirrors spec §6's defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetryAttempts: 3,
		RetryDelayMs:     1000,
		RetryPolicy:      PolicyExponentialBackoff,
	}
}

// Backoff returns the delay to wait before the given 0-indexed retry
// attempt, per the configured policy. Exponential growth is capped at 60s
// and jittered by ±10% so concurrent retries don't synchronize.
func Backoff(cfg Config, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := time.Duration(cfg.RetryDelayMs) * time.Millisecond
	if base <= 0 {
		base = 200 * time.Millisecond
	}

	var delay time.Duration
	switch cfg.RetryPolicy {
	case PolicyNone:
		return 0
	case PolicyFixedDelay:
		delay = base
	case PolicyLinearBackoff:
		delay = base * time.Duration(attempt+1)
	case PolicyExponentialBackoff:
		d := float64(base)
		for range attempt {
			d *= 2
		}
		delay = time.Duration(d)
	default:
		delay = base
	}

	if delay > maxBackoff {
		delay = maxBackoff
	}

	jitter := float64(delay) * jitterRatio * (2*rand.Float64() - 1)
	delay += time.Duration(jitter)
	if delay < 0 {
		delay = 0
	}
	return delay
}

// SleepWithContext waits for d or until ctx is done, whichever comes
// first. It reports whether the sleep completed normally.
func SleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
