package custom

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byerlikaya/smartrag/pkg/provider"
)

func TestSanitizeAppliesAllRules(t *testing.T) {
	t.Parallel()

	in := "hello\x00world.....  foo\tbar\x01baz"
	out := sanitize(in)
	assert.NotContains(t, out, "\x00")
	assert.NotContains(t, out, "\x01")
	assert.Contains(t, out, "...")
	assert.NotContains(t, out, "....")
}

func TestSanitizeTruncatesTo8000Chars(t *testing.T) {
	t.Parallel()

	out := sanitize(strings.Repeat("a", 9000))
	assert.Len(t, out, maxSanitizedLength)
}

func TestDeriveEmbeddingEndpointFromChatCompletions(t *testing.T) {
	t.Parallel()

	got, err := deriveEmbeddingEndpoint("https://my-host.example.com/v1/chat/completions")
	require.NoError(t, err)
	assert.Equal(t, "https://my-host.example.com/v1/embeddings", got)
}

func TestDeriveEmbeddingEndpointForLoopbackHost(t *testing.T) {
	t.Parallel()

	got, err := deriveEmbeddingEndpoint("http://localhost:8080/api/chat")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/v1/embeddings", got)
}

func TestParseEmbeddingResponseAllThreeShapes(t *testing.T) {
	t.Parallel()

	single, err := parseEmbeddingResponse([]byte(`{"embedding":[0.1,0.2]}`), 1)
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.1, 0.2}}, single)

	batch, err := parseEmbeddingResponse([]byte(`{"embeddings":[[0.1],[0.2]]}`), 2)
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.1}, {0.2}}, batch)

	openAIShape, err := parseEmbeddingResponse([]byte(`{"data":[{"embedding":[0.9],"index":1},{"embedding":[0.1],"index":0}]}`), 2)
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.1}, {0.9}}, openAIShape)
}

func TestGenerateTextRequiresEndpoint(t *testing.T) {
	t.Parallel()

	_, err := New().GenerateText(context.Background(), "hi", provider.Config{})
	require.Error(t, err)
}

func TestEmbedBatchAgainstLiveServer(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		require.Len(t, req.Input, 1)
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{0.5, 0.5}})
	}))
	defer srv.Close()

	out, err := New().EmbedBatch(context.Background(), []string{"hello"}, provider.Config{Endpoint: srv.URL + "/v1/chat/completions", EmbeddingEndpoint: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.5, 0.5}}, out)
}
