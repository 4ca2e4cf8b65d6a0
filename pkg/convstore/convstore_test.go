package convstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byerlikaya/smartrag/pkg/ragmodel"
)

func runConvStoreContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "sess-1", ragmodel.Message{Role: ragmodel.RoleUser, Text: "hi"}))
	require.NoError(t, s.Append(ctx, "sess-1", ragmodel.Message{Role: ragmodel.RoleAssistant, Text: "hello"}))

	sess, err := s.Get(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, sess.Messages, 2)
	assert.Equal(t, ragmodel.RoleUser, sess.Messages[0].Role)

	newID, err := s.Reset(ctx, "sess-1")
	require.NoError(t, err)
	assert.NotEmpty(t, newID)
	assert.NotEqual(t, "sess-1", newID)

	sess, err = s.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Empty(t, sess.Messages)
}

func TestMemoryStoreContract(t *testing.T) {
	t.Parallel()
	runConvStoreContract(t, NewMemoryStore(DefaultBounds()))
}

func TestSQLiteStoreContract(t *testing.T) {
	t.Parallel()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "conv.db"), DefaultBounds())
	require.NoError(t, err)
	defer s.Close()
	runConvStoreContract(t, s)
}

func TestMemoryStorePrunesOldestFirst(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore(Bounds{MaxMessages: 2})
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "s", ragmodel.Message{Role: ragmodel.RoleUser, Text: "one"}))
	require.NoError(t, s.Append(ctx, "s", ragmodel.Message{Role: ragmodel.RoleUser, Text: "two"}))
	require.NoError(t, s.Append(ctx, "s", ragmodel.Message{Role: ragmodel.RoleUser, Text: "three"}))

	sess, err := s.Get(ctx, "s")
	require.NoError(t, err)
	require.Len(t, sess.Messages, 2)
	assert.Equal(t, "two", sess.Messages[0].Text)
	assert.Equal(t, "three", sess.Messages[1].Text)
}
