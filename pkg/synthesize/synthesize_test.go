package synthesize

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byerlikaya/smartrag/pkg/ragmodel"
)

func sampleChunks() []ragmodel.RetrievalResult {
	return []ragmodel.RetrievalResult{
		{ChunkID: "c1", DocumentID: "d1", FileName: "a.txt", Content: "Refunds take 5 days.", Score: 0.9},
		{ChunkID: "c2", DocumentID: "d2", FileName: "b.txt", Content: "Shipping takes 2 days.", Score: 0.5},
	}
}

func TestSynthesizeResolvesExplicitCitations(t *testing.T) {
	t.Parallel()

	gen := func(context.Context, string, string) (string, error) {
		return "Refunds take 5 days [1].", nil
	}

	resp, err := Synthesize(context.Background(), "how long do refunds take?", sampleChunks(), nil, 0, gen)
	require.NoError(t, err)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, "d1", resp.Sources[0].DocumentID)
	assert.False(t, resp.Sources[0].Inferred)
}

func TestSynthesizeInfersSourcesWhenNoCitation(t *testing.T) {
	t.Parallel()

	gen := func(context.Context, string, string) (string, error) {
		return "Refunds take about a week.", nil
	}

	resp, err := Synthesize(context.Background(), "refund timing?", sampleChunks(), nil, 0, gen)
	require.NoError(t, err)
	require.Len(t, resp.Sources, 2)
	for _, s := range resp.Sources {
		assert.True(t, s.Inferred)
	}
}

func TestSynthesizePropagatesErrorOnZeroContextGenerateFailure(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("all providers failed")
	gen := func(context.Context, string, string) (string, error) {
		return "", wantErr
	}

	resp, err := Synthesize(context.Background(), "how are you?", nil, nil, 0, gen)
	require.Error(t, err)
	assert.ErrorIs(t, err, wantErr)
	assert.Empty(t, resp.Answer)
}

func TestSynthesizeFallsBackToExtractiveOnGenerateFailure(t *testing.T) {
	t.Parallel()

	gen := func(context.Context, string, string) (string, error) {
		return "", errors.New("all providers failed")
	}

	resp, err := Synthesize(context.Background(), "how long do refunds take?", sampleChunks(), nil, 0, gen)
	require.NoError(t, err)
	assert.True(t, resp.Extractive)
	assert.Equal(t, sampleChunks()[0].Content, resp.Answer)
}
