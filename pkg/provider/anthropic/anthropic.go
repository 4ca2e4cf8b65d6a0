// Package anthropic implements the Anthropic Provider variant (spec §4.1):
// the Messages API for text generation, with embeddings delegated to a
// distinct embedding service configured by a separate key/endpoint (spec
// §4.1: "When the secondary key is missing, embedBatch fails with
// ConfigMissing"). Grounded on the teacher's anthropic/client.go SDK
// construction and MessageNewParams shape, trimmed to the non-streaming
// generateText contract this engine needs.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/byerlikaya/smartrag/pkg/httpclient"
	"github.com/byerlikaya/smartrag/pkg/provider"
	"github.com/byerlikaya/smartrag/pkg/ragerr"
)

// Client is the Anthropic Provider variant.
type Client struct{}

func New() *Client { return &Client{} }

func (c *Client) Kind() provider.Kind { return provider.Anthropic }

func (c *Client) sdkClient(cfg provider.Config) (sdk.Client, error) {
	if cfg.APIKey == "" {
		return sdk.Client{}, ragerr.New(ragerr.ConfigMissing, "anthropic: APIKey is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpclient.New(httpclient.WithProvider("anthropic"), httpclient.WithModel(cfg.Model))),
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

	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(cfg.Model),
		MaxTokens: maxTokens,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	}
	if cfg.SystemMessage != "" {
		params.System = []sdk.TextBlockParam{{Text: cfg.SystemMessage}}
	}
	if cfg.Temperature > 0 {
		params.Temperature = sdk.Float(cfg.Temperature)
	}

	resp, err := client.Messages.New(ctx, params)
	if err != nil {
		return "", ragerr.Wrap(ragerr.ProviderHTTP, "anthropic request failed", err)
	}

	var out string
	for _, block := range resp.Content {
		if text := block.Text; text != "" {
			out += text
		}
	}
	if out == "" {
		return "", ragerr.New(ragerr.Parse, "anthropic: no text content in response")
	}
	return out, nil
}

// EmbedOne delegates to EmbedBatch, matching every other variant's
// single-item shortcut.
func (c *Client) EmbedOne(ctx context.Context, text string, cfg provider.Config) ([]float32, error) {
	out, err := c.EmbedBatch(ctx, []string{text}, cfg)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch calls the separately configured embedding service (Anthropic
// has no embeddings endpoint of its own) over its OpenAI-compatible
// {data:[{embedding}]} response shape.
func (c *Client) EmbedBatch(ctx context.Context, texts []string, cfg provider.Config) ([][]float32, error) {
	if out, empty := provider.EmptyBatchGuard(texts); empty {
		return out, nil
	}

	if cfg.EmbeddingAPIKey == "" || cfg.EmbeddingEndpoint == "" {
		return nil, ragerr.New(ragerr.ConfigMissing, "anthropic: EmbeddingAPIKey and EmbeddingEndpoint are required for embeddings")
	}

	body, err := json.Marshal(map[string]any{
		"model": cfg.EmbeddingModel,
		"input": texts,
	})
	if err != nil {
		return nil, ragerr.Wrap(ragerr.Parse, "anthropic: marshal embedding request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.EmbeddingEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, ragerr.Wrap(ragerr.Transport, "anthropic: build embedding request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.EmbeddingAPIKey)

	client := httpclient.New(httpclient.WithProvider("anthropic-embeddings"))
	resp, err := client.Do(req)
	if err != nil {
		return nil, ragerr.Wrap(ragerr.Transport, "anthropic: embedding request failed", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, ragerr.HTTPStatus(resp.StatusCode, string(respBody))
	}

	var parsed struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, ragerr.Wrap(ragerr.Parse, "anthropic: parse embedding response", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, ragerr.New(ragerr.Parse, fmt.Sprintf("anthropic: expected %d embeddings, got %d", len(texts), len(parsed.Data)))
	}

	out := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		out[d.Index] = d.Embedding
	}
	return out, nil
}

var _ provider.Provider = (*Client)(nil)
