package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byerlikaya/smartrag/pkg/ragerr"
	"github.com/byerlikaya/smartrag/pkg/ragmodel"
	"github.com/byerlikaya/smartrag/pkg/store"
)

func TestRegisterIsIdempotentByContentHash(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r, err := New(ctx, store.NewMemoryStore(0))
	require.NoError(t, err)
	content := []byte("hello world")

	doc1, created1, err := r.Register(ctx, "a.txt", "text/plain", "owner-1", content, nil)
	require.NoError(t, err)
	assert.True(t, created1)

	doc2, created2, err := r.Register(ctx, "a-renamed.txt", "text/plain", "owner-1", content, nil)
	require.NoError(t, err)
	assert.False(t, created2)
	assert.Equal(t, doc1.ID, doc2.ID)
}

func TestRegisterAllowsSameContentForDifferentOwners(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r, err := New(ctx, store.NewMemoryStore(0))
	require.NoError(t, err)
	content := []byte("shared content")

	doc1, _, err := r.Register(ctx, "a.txt", "text/plain", "owner-1", content, nil)
	require.NoError(t, err)

	doc2, created, err := r.Register(ctx, "a.txt", "text/plain", "owner-2", content, nil)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, doc1.ID, doc2.ID)
}

func TestDeleteCascadesToChunkStore(t *testing.T) {
	t.Parallel()

	chunks := store.NewMemoryStore(0)
	ctx := context.Background()
	r, err := New(ctx, chunks)
	require.NoError(t, err)

	doc, _, err := r.Register(ctx, "a.txt", "text/plain", "owner-1", []byte("data"), nil)
	require.NoError(t, err)
	require.NoError(t, chunks.UpsertChunks(ctx, []ragmodel.DocumentChunk{{ID: doc.ID + "-0", DocumentID: doc.ID, Index: 0, Content: "data"}}))

	require.NoError(t, r.Delete(ctx, doc.ID))

	_, err = r.Get(doc.ID)
	require.Error(t, err)
	assert.Equal(t, ragerr.NotFound, ragerr.Of(err))

	remaining, err := chunks.GetAll(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestNewLoadsPersistedDocuments(t *testing.T) {
	t.Parallel()

	chunks := store.NewMemoryStore(0)
	ctx := context.Background()
	r, err := New(ctx, chunks)
	require.NoError(t, err)

	doc, _, err := r.Register(ctx, "a.txt", "text/plain", "owner-1", []byte("data"), nil)
	require.NoError(t, err)

	reloaded, err := New(ctx, chunks)
	require.NoError(t, err)

	got, err := reloaded.Get(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.FileName, got.FileName)
	assert.Equal(t, doc.OwnerID, got.OwnerID)
}

func TestDeleteAllClearsDocumentsAndChunks(t *testing.T) {
	t.Parallel()

	chunks := store.NewMemoryStore(0)
	ctx := context.Background()
	r, err := New(ctx, chunks)
	require.NoError(t, err)

	doc, _, err := r.Register(ctx, "a.txt", "text/plain", "owner-1", []byte("data"), nil)
	require.NoError(t, err)
	require.NoError(t, chunks.UpsertChunks(ctx, []ragmodel.DocumentChunk{{ID: doc.ID + "-0", DocumentID: doc.ID, Index: 0, Content: "data"}}))

	require.NoError(t, r.DeleteAll(ctx))
	assert.Empty(t, r.List(""))

	remaining, err := chunks.GetAll(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}
