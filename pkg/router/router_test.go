package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouteSessionControl(t *testing.T) {
	t.Parallel()

	intent, err := Route(context.Background(), "/new", nil, Sources{HasDocuments: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, IntentSessionControl, intent)
}

func TestRouteChatWhenNothingIndexed(t *testing.T) {
	t.Parallel()

	intent, err := Route(context.Background(), "how are you", nil, Sources{}, nil)
	require.NoError(t, err)
	assert.Equal(t, IntentChat, intent)
}

func TestRouteDatabaseQuery(t *testing.T) {
	t.Parallel()

	intent, err := Route(context.Background(), "show me the orders table", nil,
		Sources{HasDocuments: true, DatabaseTerms: []string{"orders"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, IntentDatabaseQuery, intent)
}

func TestRouteExternalToolWithoutDocumentsIsPlainExternalTool(t *testing.T) {
	t.Parallel()

	intent, err := Route(context.Background(), "what's the weather today", nil,
		Sources{DatabaseTerms: []string{"orders"}, Tools: []ToolDescriptor{{Name: "weather", Keywords: []string{"forecast"}}}}, nil)
	require.NoError(t, err)
	assert.Equal(t, IntentExternalTool, intent)
}

func TestRouteExternalToolWithDocumentsIsAdditiveMixed(t *testing.T) {
	t.Parallel()

	intent, err := Route(context.Background(), "what's the weather today", nil,
		Sources{HasDocuments: true, Tools: []ToolDescriptor{{Name: "weather", Keywords: []string{"forecast"}}}}, nil)
	require.NoError(t, err)
	assert.Equal(t, IntentMixed, intent)
}

func TestRouteDocumentRagDefault(t *testing.T) {
	t.Parallel()

	intent, err := Route(context.Background(), "what does the contract say", nil, Sources{HasDocuments: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, IntentDocumentRag, intent)
}

func TestRouteAmbiguousCallsClassifier(t *testing.T) {
	t.Parallel()

	called := false
	classify := func(context.Context, string) (Intent, error) {
		called = true
		return IntentMixed, nil
	}

	intent, err := Route(context.Background(), "orders and weather", nil,
		Sources{HasDocuments: true, DatabaseTerms: []string{"orders"}, Tools: []ToolDescriptor{{Name: "weather"}}}, classify)
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, IntentMixed, intent)
}

func TestIsContinuation(t *testing.T) {
	t.Parallel()

	assert.True(t, IsContinuation("what about it"))
	assert.True(t, IsContinuation("and how long does that take"))
	assert.False(t, IsContinuation("tell me about refunds"))
}
