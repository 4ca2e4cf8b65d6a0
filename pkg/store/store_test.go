package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byerlikaya/smartrag/pkg/ragmodel"
)

func testChunks() []ragmodel.DocumentChunk {
	return []ragmodel.DocumentChunk{
		{ID: "d1-0", DocumentID: "d1", Index: 0, Content: "alpha", Embedding: []float32{1, 0, 0}},
		{ID: "d1-1", DocumentID: "d1", Index: 1, Content: "beta", Embedding: []float32{0, 1, 0}},
		{ID: "d2-0", DocumentID: "d2", Index: 0, Content: "gamma", Embedding: []float32{1, 0, 0}},
	}
}

func runStoreContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, s.UpsertChunks(ctx, testChunks()))

	all, err := s.GetAll(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 0, all[0].Index)
	assert.Equal(t, 1, all[1].Index)

	top, err := s.TopK(ctx, []float32{1, 0, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.InDelta(t, 1.0, top[0].Score, 1e-9)
	// tie-break between d1-0 and d2-0 (both score 1.0): documentId ascending
	assert.Equal(t, "d1", top[0].Chunk.DocumentID)

	got, err := s.GetChunks(ctx, []string{"d1-0", "missing"})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	require.NoError(t, s.DeleteByDocument(ctx, "d1"))
	all, err = s.GetAll(ctx, "d1")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func runDocumentContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	doc := ragmodel.Document{ID: "doc-1", FileName: "a.txt", OwnerID: "owner-1", ContentHash: "hash1"}
	require.NoError(t, s.PutDocument(ctx, doc))

	docs, err := s.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "a.txt", docs[0].FileName)

	require.NoError(t, s.RemoveDocument(ctx, "doc-1"))
	docs, err = s.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func runClearEmbeddingsContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, s.UpsertChunks(ctx, testChunks()))
	require.NoError(t, s.ClearEmbeddings(ctx))

	all, err := s.GetAll(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, c := range all {
		assert.Empty(t, c.Embedding)
	}
	assert.Equal(t, 0, s.Dim())
}

func runClearAllContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, s.UpsertChunks(ctx, testChunks()))
	require.NoError(t, s.PutDocument(ctx, ragmodel.Document{ID: "d1", FileName: "a.txt"}))

	require.NoError(t, s.ClearAll(ctx))

	all, err := s.GetAll(ctx, "d1")
	require.NoError(t, err)
	assert.Empty(t, all)

	docs, err := s.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestMemoryStoreContract(t *testing.T) {
	t.Parallel()
	runStoreContract(t, NewMemoryStore(3))
}

func TestMemoryStoreDocumentContract(t *testing.T) {
	t.Parallel()
	runDocumentContract(t, NewMemoryStore(3))
}

func TestMemoryStoreClearEmbeddings(t *testing.T) {
	t.Parallel()
	runClearEmbeddingsContract(t, NewMemoryStore(3))
}

func TestMemoryStoreClearAll(t *testing.T) {
	t.Parallel()
	runClearAllContract(t, NewMemoryStore(3))
}

func TestSQLiteStoreContract(t *testing.T) {
	t.Parallel()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "chunks.db"), 3)
	require.NoError(t, err)
	defer s.Close()
	runStoreContract(t, s)
}

func TestSQLiteStoreDocumentContract(t *testing.T) {
	t.Parallel()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "chunks.db"), 3)
	require.NoError(t, err)
	defer s.Close()
	runDocumentContract(t, s)
}

func TestSQLiteStoreClearEmbeddings(t *testing.T) {
	t.Parallel()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "chunks.db"), 3)
	require.NoError(t, err)
	defer s.Close()
	runClearEmbeddingsContract(t, s)
}

func TestSQLiteStoreClearAll(t *testing.T) {
	t.Parallel()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "chunks.db"), 3)
	require.NoError(t, err)
	defer s.Close()
	runClearAllContract(t, s)
}

func TestFileSystemStoreContract(t *testing.T) {
	t.Parallel()
	s, err := NewFileSystemStore(t.TempDir(), 3)
	require.NoError(t, err)
	defer s.Close()
	runStoreContract(t, s)
}

func TestFileSystemStoreDocumentContract(t *testing.T) {
	t.Parallel()
	s, err := NewFileSystemStore(t.TempDir(), 3)
	require.NoError(t, err)
	defer s.Close()
	runDocumentContract(t, s)
}

func TestFileSystemStoreClearEmbeddings(t *testing.T) {
	t.Parallel()
	s, err := NewFileSystemStore(t.TempDir(), 3)
	require.NoError(t, err)
	defer s.Close()
	runClearEmbeddingsContract(t, s)
}

func TestFileSystemStoreClearAll(t *testing.T) {
	t.Parallel()
	s, err := NewFileSystemStore(t.TempDir(), 3)
	require.NoError(t, err)
	defer s.Close()
	runClearAllContract(t, s)
}

func TestFileSystemStoreDocumentsFileDoesNotCollideWithChunkFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := NewFileSystemStore(dir, 3)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, s.UpsertChunks(ctx, testChunks()))
	require.NoError(t, s.PutDocument(ctx, ragmodel.Document{ID: "d1", FileName: "a.txt"}))
	require.NoError(t, s.Close())

	reopened, err := NewFileSystemStore(dir, 3)
	require.NoError(t, err)
	defer reopened.Close()

	docs, err := reopened.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)

	all, err := reopened.GetAll(ctx, "d1")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestNewRejectsUnwiredBackends(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Backend: BackendRedis})
	require.Error(t, err)

	_, err = New(Config{Backend: BackendQdrant})
	require.Error(t, err)
}
