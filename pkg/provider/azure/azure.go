// Package azure implements the AzureOpenAI Provider variant (spec §4.1):
// the URL carries a deployment name and api-version query parameter, and
// every call passes through a single-holder resilient.Gate enforcing the
// commodity tier's ≤3 requests/minute. Grounded on the teacher's
// openai/client.go Azure branch (api-version query param via
// option.WithQueryAdd on the same openai-go SDK used for the OpenAI
// variant, since Azure OpenAI is wire-compatible).
package azure

import (
	"context"
	"time"

	sdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/byerlikaya/smartrag/pkg/concurrent"
	"github.com/byerlikaya/smartrag/pkg/httpclient"
	"github.com/byerlikaya/smartrag/pkg/provider"
	"github.com/byerlikaya/smartrag/pkg/ragerr"
	"github.com/byerlikaya/smartrag/pkg/resilient"
)

// commodityTierMinInterval enforces the documented ≤3rpm ceiling on
// Azure's commodity tier (20s between requests).
const commodityTierMinInterval = 20 * time.Second

// Client is the AzureOpenAI Provider variant. Gates are keyed by Endpoint
// so distinct Azure resources don't serialize behind one another.
type Client struct {
	gates *concurrent.Map[string, *resilient.Gate]
}

func New() *Client {
	return &Client{gates: concurrent.NewMap[string, *resilient.Gate]()}
}

func (c *Client) Kind() provider.Kind { return provider.AzureOpenAI }

func (c *Client) gateFor(endpoint string) *resilient.Gate {
	if g, ok := c.gates.Load(endpoint); ok {
		return g
	}
	g, _ := c.gates.LoadOrStore(endpoint, resilient.NewGate(commodityTierMinInterval))
	return g
}

func (c *Client) sdkClient(cfg provider.Config) (sdk.Client, error) {
	if cfg.APIKey == "" {
		return sdk.Client{}, ragerr.New(ragerr.ConfigMissing, "azure: APIKey is required")
	}
	if cfg.Endpoint == "" {
		return sdk.Client{}, ragerr.New(ragerr.ConfigMissing, "azure: Endpoint (with deployment name) is required")
	}
	if cfg.APIVersion == "" {
		return sdk.Client{}, ragerr.New(ragerr.ConfigMissing, "azure: APIVersion is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.Endpoint),
		option.WithQueryAdd("api-version", cfg.APIVersion),
		option.WithHTTPClient(httpclient.New(httpclient.WithProvider("azure"), httpclient.WithModel(cfg.Model))),
	}
	return sdk.NewClient(opts...), nil
}

func (c *Client) GenerateText(ctx context.Context, prompt string, cfg provider.Config) (string, error) {
	client, err := c.sdkClient(cfg)
	if err != nil {
		return "", err
	}

	release, err := c.gateFor(cfg.Endpoint).Acquire(ctx)
	if err != nil {
		return "", ragerr.Wrap(ragerr.Cancelled, "azure: gate acquisition cancelled", err)
	}
	defer release()

	params := sdk.ChatCompletionNewParams{
		Model: cfg.Model,
		Messages: []sdk.ChatCompletionMessageParamUnion{
			sdk.UserMessage(prompt),
		},
	}
	if cfg.SystemMessage != "" {
		params.Messages = append([]sdk.ChatCompletionMessageParamUnion{sdk.SystemMessage(cfg.SystemMessage)}, params.Messages...)
	}
	if cfg.MaxTokens > 0 {
		params.MaxTokens = sdk.Int(int64(cfg.MaxTokens))
	}

	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", ragerr.Wrap(ragerr.ProviderHTTP, "azure request failed", err)
	}
	if len(resp.Choices) == 0 {
		return "", ragerr.New(ragerr.Parse, "azure: empty choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) EmbedOne(ctx context.Context, text string, cfg provider.Config) ([]float32, error) {
	out, err := c.EmbedBatch(ctx, []string{text}, cfg)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch uses the OpenAI-compatible {data:[{embedding}]} shape, per
// spec §4.1's shared "OpenAI / Azure embeddings" contract.
func (c *Client) EmbedBatch(ctx context.Context, texts []string, cfg provider.Config) ([][]float32, error) {
	if out, empty := provider.EmptyBatchGuard(texts); empty {
		return out, nil
	}

	client, err := c.sdkClient(cfg)
	if err != nil {
		return nil, err
	}

	release, err := c.gateFor(cfg.Endpoint).Acquire(ctx)
	if err != nil {
		return nil, ragerr.Wrap(ragerr.Cancelled, "azure: gate acquisition cancelled", err)
	}
	defer release()

	model := cfg.EmbeddingModel
	if model == "" {
		model = cfg.Model
	}

	params := sdk.EmbeddingNewParams{
		Input: sdk.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: model,
	}

	resp, err := client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, ragerr.Wrap(ragerr.ProviderHTTP, "azure embedding request failed", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, ragerr.New(ragerr.Parse, "azure: embedding count mismatch")
	}

	out := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		out[int(d.Index)] = vec
	}
	return out, nil
}

var _ provider.Provider = (*Client)(nil)
