// Package gemini implements the Gemini Provider variant (spec §4.1):
// x-goog-api-key auth (never bearer), a 50-item embedding batch cap with a
// ≥600ms inter-batch delay to respect documented RPM, and
// genai.GenerateContentResponse text extraction. Grounded on the
// teacher's gemini/client.go genai.Client construction (APIKey +
// BackendGeminiAPI), trimmed to the non-streaming contract this engine
// needs.
package gemini

import (
	"context"
	"time"

	"google.golang.org/genai"

	"github.com/byerlikaya/smartrag/pkg/provider"
	"github.com/byerlikaya/smartrag/pkg/ragerr"
	"github.com/byerlikaya/smartrag/pkg/resilient"
)

const (
	maxBatchSize    = 50
	interBatchDelay = 600 * time.Millisecond
)

// Client is the Gemini Provider variant.
type Client struct{}

func New() *Client { return &Client{} }

func (c *Client) Kind() provider.Kind { return provider.Gemini }

func (c *Client) sdkClient(ctx context.Context, cfg provider.Config) (*genai.Client, error) {
	if cfg.APIKey == "" {
		return nil, ragerr.New(ragerr.ConfigMissing, "gemini: APIKey is required")
	}

	httpOptions := genai.HTTPOptions{}
	if cfg.Endpoint != "" {
		httpOptions.BaseURL = cfg.Endpoint
	}

	return genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: httpOptions,
	})
}

func (c *Client) GenerateText(ctx context.Context, prompt string, cfg provider.Config) (string, error) {
	client, err := c.sdkClient(ctx, cfg)
	if err != nil {
		return "", err
	}

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	var genCfg *genai.GenerateContentConfig
	if cfg.SystemMessage != "" {
		genCfg = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(cfg.SystemMessage, genai.RoleUser),
		}
	}

	resp, err := client.Models.GenerateContent(ctx, cfg.Model, contents, genCfg)
	if err != nil {
		return "", ragerr.Wrap(ragerr.ProviderHTTP, "gemini request failed", err)
	}

	text := resp.Text()
	if text == "" {
		return "", ragerr.New(ragerr.Parse, "gemini: empty text in response")
	}
	return text, nil
}

func (c *Client) EmbedOne(ctx context.Context, text string, cfg provider.Config) ([]float32, error) {
	out, err := c.EmbedBatch(ctx, []string{text}, cfg)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch splits texts into sub-batches of at most maxBatchSize and
// issues one embedContent call per sub-batch, sleeping interBatchDelay
// between calls (spec §4.1: "batch size is capped at 50; inter-batch delay
// ≥600 ms to satisfy documented RPM").
func (c *Client) EmbedBatch(ctx context.Context, texts []string, cfg provider.Config) ([][]float32, error) {
	if out, empty := provider.EmptyBatchGuard(texts); empty {
		return out, nil
	}

	client, err := c.sdkClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	model := cfg.EmbeddingModel
	if model == "" {
		model = cfg.Model
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatchSize {
		end := min(start+maxBatchSize, len(texts))
		sub := texts[start:end]

		contents := make([]*genai.Content, len(sub))
		for i, t := range sub {
			contents[i] = genai.NewContentFromText(t, genai.RoleUser)
		}

		resp, err := client.Models.EmbedContent(ctx, model, contents, nil)
		if err != nil {
			return nil, ragerr.Wrap(ragerr.ProviderHTTP, "gemini embedding request failed", err)
		}
		if len(resp.Embeddings) != len(sub) {
			return nil, ragerr.New(ragerr.Parse, "gemini: embedding count mismatch")
		}
		for _, e := range resp.Embeddings {
			out = append(out, e.Values)
		}

		if end < len(texts) {
			if !resilient.SleepWithContext(ctx, interBatchDelay) {
				return nil, ragerr.New(ragerr.Cancelled, "gemini: cancelled during inter-batch delay")
			}
		}
	}
	return out, nil
}

var _ provider.Provider = (*Client)(nil)
