package resilient

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byerlikaya/smartrag/pkg/provider"
)

type fakeProvider struct {
	kind provider.Kind
	gen  func(ctx context.Context) (string, error)
}

func (f *fakeProvider) Kind() provider.Kind { return f.kind }
func (f *fakeProvider) GenerateText(ctx context.Context, _ string, _ provider.Config) (string, error) {
	return f.gen(ctx)
}
func (f *fakeProvider) EmbedOne(context.Context, string, provider.Config) ([]float32, error) {
	return nil, nil
}
func (f *fakeProvider) EmbedBatch(context.Context, []string, provider.Config) ([][]float32, error) {
	return nil, nil
}

func TestDoRetriesRetryableErrors(t *testing.T) {
	t.Parallel()

	attempts := 0
	cfg := Config{MaxRetryAttempts: 3, RetryDelayMs: 1, RetryPolicy: PolicyFixedDelay}

	err := Do(context.Background(), nil, cfg, func(context.Context) error {
		attempts++
		if attempts < 3 {
			return ragerrHTTP(503)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDoDoesNotRetryNonRetryableErrors(t *testing.T) {
	t.Parallel()

	attempts := 0
	cfg := Config{MaxRetryAttempts: 3, RetryDelayMs: 1, RetryPolicy: PolicyFixedDelay}

	err := Do(context.Background(), nil, cfg, func(context.Context) error {
		attempts++
		return ragerrHTTP(404)
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestCallWithFallbackSticksToFallbackDuringCooldown(t *testing.T) {
	t.Parallel()

	primary := &fakeProvider{kind: provider.OpenAI, gen: func(context.Context) (string, error) {
		return "", ragerrHTTP(401)
	}}
	fallback := &fakeProvider{kind: provider.Anthropic, gen: func(context.Context) (string, error) {
		return "ok", nil
	}}

	caller := NewCaller()
	cfg := Config{MaxRetryAttempts: 1, RetryDelayMs: 1, RetryPolicy: PolicyFixedDelay, EnableFallbackProviders: true}

	res, used, err := CallWithFallback(context.Background(), caller, "generate", []provider.Provider{primary, fallback}, cfg, time.Minute, func(ctx context.Context, p provider.Provider) (string, error) {
		return p.GenerateText(ctx, "hi", provider.Config{})
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", res)
	assert.Equal(t, provider.Anthropic, used.Kind())

	// Primary now would succeed, but cooldown should keep us on the fallback.
	primary.gen = func(context.Context) (string, error) { return "primary-ok", nil }
	res2, used2, err := CallWithFallback(context.Background(), caller, "generate", []provider.Provider{primary, fallback}, cfg, time.Minute, func(ctx context.Context, p provider.Provider) (string, error) {
		return p.GenerateText(ctx, "hi", provider.Config{})
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", res2)
	assert.Equal(t, provider.Anthropic, used2.Kind())
}

func TestGateEnforcesMinimumInterval(t *testing.T) {
	t.Parallel()

	gate := NewGate(50 * time.Millisecond)
	start := time.Now()

	for range 3 {
		release, err := gate.Acquire(context.Background())
		require.NoError(t, err)
		release()
	}

	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func ragerrHTTP(code int) error {
	return fmt.Errorf("provider request failed: %d", code)
}
