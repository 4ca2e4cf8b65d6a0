// Package openai implements the OpenAI Provider variant (spec §4.1): bearer
// auth, chat-completions for generation, and the {data:[{embedding}]}
// embeddings response shape. Grounded on the teacher's openai/client.go
// construction of openai-go clients and params, trimmed to the
// non-streaming generateText/embedOne/embedBatch contract this engine
// needs (no tool-calling, no Responses API).
package openai

import (
	"context"
	"fmt"

	sdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/byerlikaya/smartrag/pkg/httpclient"
	"github.com/byerlikaya/smartrag/pkg/provider"
	"github.com/byerlikaya/smartrag/pkg/ragerr"
)

// Client is the OpenAI Provider variant.
type Client struct{}

// New returns the OpenAI Provider variant. Construction is stateless: each
// call builds its own SDK client from cfg, since cfg.APIKey/Endpoint may
// vary per call (e.g. fallback chains mixing OpenAI with a compatible
// third party under the same Kind).
func New() *Client { return &Client{} }

func (c *Client) Kind() provider.Kind { return provider.OpenAI }

func (c *Client) sdkClient(cfg provider.Config) (sdk.Client, error) {
	if cfg.APIKey == "" {
		return sdk.Client{}, ragerr.New(ragerr.ConfigMissing, "openai: APIKey is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpclient.New(httpclient.WithProvider("openai"), httpclient.WithModel(cfg.Model))),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(cfg.Endpoint))
	}
	return sdk.NewClient(opts...), nil
}

func (c *Client) GenerateText(ctx context.Context, prompt string, cfg provider.Config) (string, error) {
	client, err := c.sdkClient(cfg)
	if err != nil {
		return "", err
	}

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
	if cfg.Temperature > 0 {
		params.Temperature = sdk.Float(cfg.Temperature)
	}

	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", translateErr(err)
	}
	if len(resp.Choices) == 0 {
		return "", ragerr.New(ragerr.Parse, "openai: empty choices in response")
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

func (c *Client) EmbedBatch(ctx context.Context, texts []string, cfg provider.Config) ([][]float32, error) {
	if out, empty := provider.EmptyBatchGuard(texts); empty {
		return out, nil
	}

	client, err := c.sdkClient(cfg)
	if err != nil {
		return nil, err
	}

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
		return nil, translateErr(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, ragerr.New(ragerr.Parse, fmt.Sprintf("openai: expected %d embeddings, got %d", len(texts), len(resp.Data)))
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

func translateErr(err error) error {
	return ragerr.Wrap(ragerr.ProviderHTTP, "openai request failed", err)
}

var _ provider.Provider = (*Client)(nil)
