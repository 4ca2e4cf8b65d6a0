// Package provider defines the uniform contract over embedding/generation
// backends (C1). Each backend is a sealed variant dispatched by Kind, never
// by type assertion or reflection; see the openai, anthropic, gemini,
// azure, and custom subpackages for the concrete variants.
package provider

import "context"

// Kind is the closed set of backend variants this engine understands.
type Kind string

const (
	OpenAI      Kind = "OpenAI"
	Anthropic   Kind = "Anthropic"
	Gemini      Kind = "Gemini"
	AzureOpenAI Kind = "AzureOpenAI"
	Custom      Kind = "Custom"
)

// Config is ProviderConfig from the data model (spec §3): the recognized
// option set, of which only the subset required by the selected Kind is
// validated at construction time.
type Config struct {
	APIKey                 string
	Endpoint               string
	Model                  string
	EmbeddingModel         string
	EmbeddingAPIKey        string
	EmbeddingEndpoint      string
	MaxTokens              int
	Temperature            float64
	SystemMessage          string
	APIVersion             string
	EmbeddingMinIntervalMs int
}

// Provider is the contract every backend variant implements (spec §4.1).
// embedBatch's output length always equals the input length; an empty
// input yields an empty, non-error output.
type Provider interface {
	Kind() Kind
	GenerateText(ctx context.Context, prompt string, cfg Config) (string, error)
	EmbedOne(ctx context.Context, text string, cfg Config) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string, cfg Config) ([][]float32, error)
}

// EmptyBatchGuard returns (true, [][]float32{}) when texts is empty, so
// every variant's EmbedBatch can short-circuit identically instead of
// each reimplementing the "never error on empty input" rule.
func EmptyBatchGuard(texts []string) ([][]float32, bool) {
	if len(texts) == 0 {
		return [][]float32{}, true
	}
	return nil, false
}
