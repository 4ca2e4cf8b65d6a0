package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byerlikaya/smartrag/pkg/provider"
)

type fakeProvider struct {
	kind         provider.Kind
	batchErr     error
	perItemErr   map[string]bool
	batchCalls   int
	perItemCalls int
}

func (f *fakeProvider) Kind() provider.Kind { return f.kind }
func (f *fakeProvider) GenerateText(context.Context, string, provider.Config) (string, error) {
	return "", nil
}

func (f *fakeProvider) EmbedOne(_ context.Context, text string, _ provider.Config) ([]float32, error) {
	f.perItemCalls++
	if f.perItemErr[text] {
		return nil, assertErr
	}
	return []float32{1, 2, 3}, nil
}

func (f *fakeProvider) EmbedBatch(_ context.Context, texts []string, _ provider.Config) ([][]float32, error) {
	f.batchCalls++
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i), 1, 1}
	}
	return out, nil
}

var assertErr = assertError{}

type assertError struct{}

func (assertError) Error() string { return "boom" }

func TestEmbedBatchEmptyInput(t *testing.T) {
	t.Parallel()

	e := New(&fakeProvider{}, provider.Config{})
	out, err := e.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestEmbedBatchPreservesPositionalIntegrity(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{}
	e := New(p, provider.Config{}, WithBatchSize(2), WithMaxConcurrency(2))

	texts := []string{"a", "b", "c", "d", "e"}
	out, err := e.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, out, len(texts))
	for i, v := range out {
		require.NotEmpty(t, v, "index %d", i)
	}
}

func TestEmbedBatchDegradesToPerItemOnBatchFailure(t *testing.T) {
	t.Parallel()

	p := &fakeProvider{batchErr: assertErr, perItemErr: map[string]bool{"bad": true}}
	e := New(p, provider.Config{}, WithBatchSize(10))

	out, err := e.EmbedBatch(context.Background(), []string{"good", "bad"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.NotEmpty(t, out[0])
	assert.Empty(t, out[1])
	assert.Positive(t, p.perItemCalls)
}
