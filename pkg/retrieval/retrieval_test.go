package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byerlikaya/smartrag/pkg/provider"
	"github.com/byerlikaya/smartrag/pkg/ragmodel"
	"github.com/byerlikaya/smartrag/pkg/store"
)

type fakeEmbedProvider struct{}

func (fakeEmbedProvider) Kind() provider.Kind { return provider.OpenAI }
func (fakeEmbedProvider) GenerateText(context.Context, string, provider.Config) (string, error) {
	return "", nil
}
func (fakeEmbedProvider) EmbedOne(context.Context, string, provider.Config) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}
func (fakeEmbedProvider) EmbedBatch(context.Context, []string, provider.Config) ([][]float32, error) {
	return nil, nil
}

func TestRetrieveReturnsMonotonicallyNonIncreasingScores(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryStore(3)
	require.NoError(t, s.UpsertChunks(context.Background(), []ragmodel.DocumentChunk{
		{ID: "c1", DocumentID: "d1", Index: 0, Content: "the quick brown fox jumps", Embedding: []float32{1, 0, 0}},
		{ID: "c2", DocumentID: "d1", Index: 1, Content: "a completely unrelated sentence", Embedding: []float32{0, 1, 0}},
		{ID: "c3", DocumentID: "d2", Index: 0, Content: "quick fox facts", Embedding: []float32{0.9, 0.1, 0}},
	}))

	e := New(s, fakeEmbedProvider{}, provider.Config{})
	results, err := e.Retrieve(context.Background(), "quick fox", 3, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestRetrieveWithFullDocumentReconstructionExpandsContent(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryStore(3)
	require.NoError(t, s.UpsertChunks(context.Background(), []ragmodel.DocumentChunk{
		{ID: "c1", DocumentID: "d1", Index: 0, Content: "the quick brown fox", Embedding: []float32{1, 0, 0}},
		{ID: "c2", DocumentID: "d1", Index: 1, Content: "jumps over the lazy dog", Embedding: []float32{1, 0, 0}},
	}))

	e := New(s, fakeEmbedProvider{}, provider.Config{}, WithFullDocumentReconstruction(true))
	results, err := e.Retrieve(context.Background(), "quick fox", 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "the quick brown fox\njumps over the lazy dog", results[0].Content)
}

func TestAssembleContextLimitsPerDocumentContribution(t *testing.T) {
	t.Parallel()

	results := []ragmodel.RetrievalResult{
		{DocumentID: "d1", ChunkIndex: 0, Content: "one", Score: 0.9},
		{DocumentID: "d1", ChunkIndex: 1, Content: "two", Score: 0.8},
		{DocumentID: "d1", ChunkIndex: 2, Content: "three", Score: 0.7},
		{DocumentID: "d2", ChunkIndex: 0, Content: "four", Score: 0.6},
	}

	out := AssembleContext(results, 0)
	d1Count := 0
	for _, r := range out {
		if r.DocumentID == "d1" {
			d1Count++
		}
	}
	assert.LessOrEqual(t, d1Count, 2) // ceil(4/2) = 2
}

func TestAssembleContextCapsTotalTokens(t *testing.T) {
	t.Parallel()

	results := []ragmodel.RetrievalResult{
		{DocumentID: "d1", ChunkIndex: 0, Content: "0123456789", Score: 0.9},
		{DocumentID: "d2", ChunkIndex: 0, Content: "0123456789", Score: 0.8},
	}

	out := AssembleContext(results, 3) // ~3 tokens, first chunk alone is ~3 tokens
	assert.Len(t, out, 1)
}
