package azure

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byerlikaya/smartrag/pkg/provider"
	"github.com/byerlikaya/smartrag/pkg/ragerr"
)

func TestGenerateTextRequiresDeploymentAndAPIVersion(t *testing.T) {
	t.Parallel()

	_, err := New().GenerateText(context.Background(), "hi", provider.Config{APIKey: "k"})
	require.Error(t, err)
	assert.Equal(t, ragerr.ConfigMissing, ragerr.Of(err))

	_, err = New().GenerateText(context.Background(), "hi", provider.Config{APIKey: "k", Endpoint: "https://x.openai.azure.com/openai/deployments/d1"})
	require.Error(t, err)
	assert.Equal(t, ragerr.ConfigMissing, ragerr.Of(err))
}

func TestGateIsSharedPerEndpointNotPerCall(t *testing.T) {
	t.Parallel()

	c := New()
	g1 := c.gateFor("https://a")
	g2 := c.gateFor("https://a")
	g3 := c.gateFor("https://b")

	assert.Same(t, g1, g2)
	assert.NotSame(t, g1, g3)
}

func TestCommodityTierIntervalIsAtLeastThreePerMinute(t *testing.T) {
	t.Parallel()
	assert.LessOrEqual(t, commodityTierMinInterval, 20*time.Second)
}
