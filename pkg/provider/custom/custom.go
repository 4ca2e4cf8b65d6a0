// Package custom implements the Custom Provider variant (spec §4.1 / §9):
// an OpenAI-compatible chat endpoint of unknown embedding-response shape.
// The embedding endpoint is auto-derived from the chat endpoint
// (".../chat/completions" → ".../embeddings"; loopback hosts derive
// "/v1/embeddings" per the spec's Open Question decision), input is
// sanitized before sending, and the response parser tries three known
// embedding response shapes in turn. Built directly on net/http rather
// than the openai-go SDK (grounded on httpclient for the transport, as the
// other variants are) because no single fixed response schema can be
// assumed for an arbitrary self-hosted backend.
package custom

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/byerlikaya/smartrag/pkg/httpclient"
	"github.com/byerlikaya/smartrag/pkg/provider"
	"github.com/byerlikaya/smartrag/pkg/ragerr"
)

const maxSanitizedLength = 8000

var (
	dotRunRegexp     = regexp.MustCompile(`\.{3,}`)
	whitespaceRegexp = regexp.MustCompile(`\s+`)
)

// Client is the Custom Provider variant.
type Client struct{}

func New() *Client { return &Client{} }

func (c *Client) Kind() provider.Kind { return provider.Custom }

// sanitize applies spec §4.1's Custom input rules: strip NUL bytes,
// collapse runs of 3+ dots to "...", collapse whitespace, drop control
// characters except \n and \t, then truncate to 8000 characters.
func sanitize(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	s = dotRunRegexp.ReplaceAllString(s, "...")

	var b strings.Builder
	for _, r := range s {
		if r == '\n' || r == '\t' || r >= 0x20 {
			b.WriteRune(r)
		}
	}
	s = whitespaceRegexp.ReplaceAllString(b.String(), " ")
	s = strings.TrimSpace(s)

	if runes := []rune(s); len(runes) > maxSanitizedLength {
		s = string(runes[:maxSanitizedLength])
	}
	return s
}

// isLoopback reports whether host is localhost/127.0.0.1/::1, with or
// without a port.
func isLoopback(host string) bool {
	h := host
	if i := strings.LastIndex(host, ":"); i > 0 && !strings.Contains(host, "]") {
		h = host[:i]
	}
	h = strings.Trim(h, "[]")
	switch h {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}

// deriveEmbeddingEndpoint auto-derives an embeddings URL from a chat
// endpoint: "/chat/completions" suffix is swapped for "/embeddings";
// loopback hosts instead get "/v1/embeddings" appended to the origin.
func deriveEmbeddingEndpoint(chatEndpoint string) (string, error) {
	u, err := url.Parse(chatEndpoint)
	if err != nil {
		return "", ragerr.Wrap(ragerr.ConfigMissing, "custom: invalid endpoint", err)
	}

	if isLoopback(u.Host) {
		return fmt.Sprintf("%s://%s/v1/embeddings", u.Scheme, u.Host), nil
	}

	if strings.HasSuffix(u.Path, "/chat/completions") {
		u.Path = strings.TrimSuffix(u.Path, "/chat/completions") + "/embeddings"
		return u.String(), nil
	}

	return fmt.Sprintf("%s://%s/v1/embeddings", u.Scheme, u.Host), nil
}

func (c *Client) GenerateText(ctx context.Context, prompt string, cfg provider.Config) (string, error) {
	if cfg.Endpoint == "" {
		return "", ragerr.New(ragerr.ConfigMissing, "custom: Endpoint is required")
	}

	messages := []map[string]string{{"role": "user", "content": sanitize(prompt)}}
	if cfg.SystemMessage != "" {
		messages = append([]map[string]string{{"role": "system", "content": sanitize(cfg.SystemMessage)}}, messages...)
	}

	body, _ := json.Marshal(map[string]any{
		"model":    cfg.Model,
		"messages": messages,
	})

	respBody, err := c.post(ctx, cfg, cfg.Endpoint, body)
	if err != nil {
		return "", err
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", ragerr.Wrap(ragerr.Parse, "custom: parse chat response", err)
	}
	if len(parsed.Choices) == 0 {
		return "", ragerr.New(ragerr.Parse, "custom: empty choices in response")
	}
	return parsed.Choices[0].Message.Content, nil
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
	if cfg.Endpoint == "" {
		return nil, ragerr.New(ragerr.ConfigMissing, "custom: Endpoint is required")
	}

	endpoint := cfg.EmbeddingEndpoint
	if endpoint == "" {
		derived, err := deriveEmbeddingEndpoint(cfg.Endpoint)
		if err != nil {
			return nil, err
		}
		endpoint = derived
	}

	sanitized := make([]string, len(texts))
	for i, t := range texts {
		sanitized[i] = sanitize(t)
	}

	model := cfg.EmbeddingModel
	if model == "" {
		model = cfg.Model
	}
	body, _ := json.Marshal(map[string]any{
		"model": model,
		"input": sanitized,
	})

	respBody, err := c.post(ctx, cfg, endpoint, body)
	if err != nil {
		return nil, err
	}

	out, err := parseEmbeddingResponse(respBody, len(texts))
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, cfg provider.Config, endpoint string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, ragerr.Wrap(ragerr.Transport, "custom: build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}

	client := httpclient.New(httpclient.WithProvider("custom"), httpclient.WithModel(cfg.Model))
	resp, err := client.Do(req)
	if err != nil {
		return nil, ragerr.Wrap(ragerr.Transport, "custom: request failed", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, ragerr.HTTPStatus(resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

// parseEmbeddingResponse tries the three response shapes spec §4.1 names,
// in the order a single-item vs. batch vs. OpenAI-compatible shape would
// most plausibly appear.
func parseEmbeddingResponse(body []byte, want int) ([][]float32, error) {
	var single struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.Unmarshal(body, &single); err == nil && len(single.Embedding) > 0 {
		if want != 1 {
			return nil, ragerr.New(ragerr.Parse, "custom: single embedding shape returned for a multi-item batch")
		}
		return [][]float32{single.Embedding}, nil
	}

	var batch struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := json.Unmarshal(body, &batch); err == nil && len(batch.Embeddings) > 0 {
		if len(batch.Embeddings) != want {
			return nil, ragerr.New(ragerr.Parse, fmt.Sprintf("custom: expected %d embeddings, got %d", want, len(batch.Embeddings)))
		}
		return batch.Embeddings, nil
	}

	var openAIShape struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &openAIShape); err == nil && len(openAIShape.Data) > 0 {
		if len(openAIShape.Data) != want {
			return nil, ragerr.New(ragerr.Parse, fmt.Sprintf("custom: expected %d embeddings, got %d", want, len(openAIShape.Data)))
		}
		out := make([][]float32, want)
		for _, d := range openAIShape.Data {
			out[d.Index] = d.Embedding
		}
		return out, nil
	}

	return nil, ragerr.New(ragerr.Parse, "custom: response matched none of the known embedding shapes")
}

var _ provider.Provider = (*Client)(nil)
