package gemini

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byerlikaya/smartrag/pkg/provider"
	"github.com/byerlikaya/smartrag/pkg/ragerr"
)

func TestGenerateTextRequiresAPIKey(t *testing.T) {
	t.Parallel()

	_, err := New().GenerateText(context.Background(), "hi", provider.Config{Model: "gemini-2.5-flash"})
	require.Error(t, err)
	assert.Equal(t, ragerr.ConfigMissing, ragerr.Of(err))
}

func TestEmbedBatchEmptyInputShortCircuits(t *testing.T) {
	t.Parallel()

	out, err := New().EmbedBatch(context.Background(), nil, provider.Config{APIKey: "k"})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestEmbedBatchRequiresAPIKey(t *testing.T) {
	t.Parallel()

	_, err := New().EmbedBatch(context.Background(), []string{"a"}, provider.Config{})
	require.Error(t, err)
	assert.Equal(t, ragerr.ConfigMissing, ragerr.Of(err))
}

func TestMaxBatchSizeMatchesDocumentedCap(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 50, maxBatchSize)
}
