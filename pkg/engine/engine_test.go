package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byerlikaya/smartrag/pkg/config"
)

func testConfig() config.Config {
	return config.Config{
		AIProvider:      config.ProviderCustom,
		StorageProvider: config.StorageInMemory,
		MaxChunkSize:    1000,
		MinChunkSize:    100,
		ChunkOverlap:    200,
	}
}

func TestNewBuildsEngineWithoutOptionalComponents(t *testing.T) {
	t.Parallel()

	eng, err := New(context.Background(), testConfig(), Deps{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	assert.Empty(t, eng.ListDocuments(""))
}

func TestQueryWithSessionControlCommandDoesNotRequireProvider(t *testing.T) {
	t.Parallel()

	eng, err := New(context.Background(), testConfig(), Deps{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	result, err := eng.Query(context.Background(), "/new", "", 0, false)
	require.NoError(t, err)
	assert.Equal(t, "Session reset.", result.Answer)
}

func TestQueryWithNoDocumentsPropagatesProviderFailure(t *testing.T) {
	t.Parallel()

	eng, err := New(context.Background(), testConfig(), Deps{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	_, err = eng.Query(context.Background(), "what is the weather", "", 0, false)
	require.Error(t, err)
}

func TestUploadFailsWhenEmbeddingProviderIsUnconfigured(t *testing.T) {
	t.Parallel()

	eng, err := New(context.Background(), testConfig(), Deps{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	_, err = eng.Upload(context.Background(), "doc.txt", "text/plain", "owner1", []byte("Hello world. This is a test document."), nil)
	require.Error(t, err)
}

func TestDeleteDocumentReportsNotFound(t *testing.T) {
	t.Parallel()

	eng, err := New(context.Background(), testConfig(), Deps{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	err = eng.DeleteDocument(context.Background(), "does-not-exist")
	require.Error(t, err)
}

func TestStatsOnEmptyRegistry(t *testing.T) {
	t.Parallel()

	eng, err := New(context.Background(), testConfig(), Deps{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	stats, err := eng.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.DocumentCount)
}

func TestRegenerateEmbeddingsIsNoOpOnEmptyRegistry(t *testing.T) {
	t.Parallel()

	eng, err := New(context.Background(), testConfig(), Deps{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	n, err := eng.RegenerateEmbeddings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestClearEmbeddingsOnEmptyRegistry(t *testing.T) {
	t.Parallel()

	eng, err := New(context.Background(), testConfig(), Deps{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	require.NoError(t, eng.ClearEmbeddings(context.Background()))
}

func TestClearAllDocumentsRemovesEverything(t *testing.T) {
	t.Parallel()

	eng, err := New(context.Background(), testConfig(), Deps{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	require.NoError(t, eng.ClearAllDocuments(context.Background()))
	assert.Empty(t, eng.ListDocuments(""))
}
