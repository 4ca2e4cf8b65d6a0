// Package config loads and validates the engine's YAML configuration
// (spec §6's enumerated key set). Grounded on the teacher's config
// parsing (goccy/go-yaml with strict unmarshal so unknown keys surface as
// errors at load time rather than silently vanishing on round-trip).
package config

import (
	"github.com/goccy/go-yaml"

	"github.com/byerlikaya/smartrag/pkg/ragerr"
)

// ProviderName and StorageName mirror provider.Kind/store.Backend as
// strings so configuration decoding has no import-cycle dependency on
// either package; the engine resolves them when it constructs the
// provider and the chunk store.
type ProviderName string

const (
	ProviderOpenAI    ProviderName = "OpenAI"
	ProviderAnthropic ProviderName = "Anthropic"
	ProviderGemini    ProviderName = "Gemini"
	ProviderAzure     ProviderName = "AzureOpenAI"
	ProviderCustom    ProviderName = "Custom"
)

type StorageName string

const (
	StorageInMemory   StorageName = "InMemory"
	StorageSQLite     StorageName = "SQLite"
	StorageRedis      StorageName = "Redis"
	StorageQdrant     StorageName = "Qdrant"
	StorageFileSystem StorageName = "FileSystem"
)

// ProviderOptions is the per-provider sub-section (spec §6: "Provider-
// scoped options ... live under per-provider sub-sections").
type ProviderOptions struct {
	APIKey                 string  `yaml:"apiKey,omitempty"`
	Endpoint               string  `yaml:"endpoint,omitempty"`
	Model                  string  `yaml:"model,omitempty"`
	EmbeddingModel         string  `yaml:"embeddingModel,omitempty"`
	EmbeddingAPIKey        string  `yaml:"embeddingApiKey,omitempty"`
	EmbeddingEndpoint      string  `yaml:"embeddingEndpoint,omitempty"`
	MaxTokens              int     `yaml:"maxTokens,omitempty"`
	Temperature            float64 `yaml:"temperature,omitempty"`
	SystemMessage          string  `yaml:"systemMessage,omitempty"`
	APIVersion             string  `yaml:"apiVersion,omitempty"`
	EmbeddingMinIntervalMs int     `yaml:"embeddingMinIntervalMs,omitempty"`
}

// McpServer describes one external tool server (spec §4.11).
type McpServer struct {
	Name      string            `yaml:"name"`
	Transport string            `yaml:"transport"` // "stdio", "sse", "streamable"
	Command   string            `yaml:"command,omitempty"`
	Args      []string          `yaml:"args,omitempty"`
	Env       []string          `yaml:"env,omitempty"`
	URL       string            `yaml:"url,omitempty"`
	Headers   map[string]string `yaml:"headers,omitempty"`
}

// DatabaseConnection is a relational database the query router's DB path
// may dispatch to (spec §6's DatabaseConnections[], out of this spec's
// core scope beyond configuration surface).
type DatabaseConnection struct {
	Name string `yaml:"name"`
	DSN  string `yaml:"dsn"`
}

// Config is the root configuration object (spec §6's enumerated keys).
// Immutable after Load returns; components that need per-request
// overrides copy the relevant sub-struct rather than mutate this one.
type Config struct {
	AIProvider                  ProviderName               `yaml:"aiProvider"`
	StorageProvider             StorageName                `yaml:"storageProvider"`
	ConversationStorageProvider StorageName                `yaml:"conversationStorageProvider,omitempty"`
	StoragePath                 string                     `yaml:"storagePath,omitempty"`
	ConversationStoragePath     string                     `yaml:"conversationStoragePath,omitempty"`

	MaxChunkSize  int `yaml:"maxChunkSize"`
	MinChunkSize  int `yaml:"minChunkSize"`
	ChunkOverlap  int `yaml:"chunkOverlap"`

	MaxRetryAttempts int    `yaml:"maxRetryAttempts"`
	RetryDelayMs     int    `yaml:"retryDelayMs"`
	RetryPolicy      string `yaml:"retryPolicy"`

	EnableFallbackProviders bool           `yaml:"enableFallbackProviders"`
	FallbackProviders       []ProviderName `yaml:"fallbackProviders,omitempty"`

	EnableFileWatcher bool     `yaml:"enableFileWatcher"`
	WatchedFolders    []string `yaml:"watchedFolders,omitempty"`
	WatcherBaseDir    string   `yaml:"watcherBaseDir,omitempty"`
	WatchedExtensions []string `yaml:"watchedExtensions,omitempty"`

	EnableMcpSearch bool        `yaml:"enableMcpSearch"`
	McpServers      []McpServer `yaml:"mcpServers,omitempty"`

	DatabaseConnections                 []DatabaseConnection `yaml:"databaseConnections,omitempty"`
	EnableAutoSchemaAnalysis            bool                  `yaml:"enableAutoSchemaAnalysis"`
	EnablePeriodicSchemaRefresh         bool                  `yaml:"enablePeriodicSchemaRefresh"`
	DefaultSchemaRefreshIntervalMinutes int                   `yaml:"defaultSchemaRefreshIntervalMinutes,omitempty"`

	SemanticWeight float64 `yaml:"semanticWeight,omitempty"`
	LexicalWeight  float64 `yaml:"lexicalWeight,omitempty"`

	// EnableFullDocumentReconstruction expands a retrieved chunk to its
	// backing document's full text before context-window assembly. Off by
	// default since it changes token-budget accounting.
	EnableFullDocumentReconstruction bool `yaml:"enableFullDocumentReconstruction"`

	Providers map[ProviderName]ProviderOptions `yaml:"providers,omitempty"`
}

// defaults applies spec §6's documented default values to zero fields.
func (c *Config) defaults() {
	if c.MaxChunkSize == 0 {
		c.MaxChunkSize = 1000
	}
	if c.MinChunkSize == 0 {
		c.MinChunkSize = 100
	}
	if c.ChunkOverlap == 0 {
		c.ChunkOverlap = 200
	}
	if c.MaxRetryAttempts == 0 {
		c.MaxRetryAttempts = 3
	}
	if c.RetryDelayMs == 0 {
		c.RetryDelayMs = 1000
	}
	if c.RetryPolicy == "" {
		c.RetryPolicy = "ExponentialBackoff"
	}
	if c.SemanticWeight == 0 && c.LexicalWeight == 0 {
		c.SemanticWeight = 0.8
		c.LexicalWeight = 0.2
	}
}

func (c *Config) validate() error {
	switch c.AIProvider {
	case ProviderOpenAI, ProviderAnthropic, ProviderGemini, ProviderAzure, ProviderCustom:
	default:
		return ragerr.New(ragerr.ConfigMissing, "config: unrecognized AIProvider: "+string(c.AIProvider))
	}

	switch c.StorageProvider {
	case StorageInMemory, StorageSQLite, StorageRedis, StorageQdrant, StorageFileSystem:
	default:
		return ragerr.New(ragerr.ConfigMissing, "config: unrecognized StorageProvider: "+string(c.StorageProvider))
	}

	if c.MinChunkSize >= c.MaxChunkSize {
		return ragerr.New(ragerr.Validation, "config: MinChunkSize must be less than MaxChunkSize")
	}
	return nil
}

// Load parses data as strict YAML (unknown keys are rejected rather than
// silently dropped), applies defaults, and validates the enumerated
// provider/storage keys.
func Load(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.UnmarshalWithOptions(data, &cfg, yaml.Strict()); err != nil {
		return Config{}, ragerr.Wrap(ragerr.Parse, "config: parse failed", err)
	}

	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Marshal round-trips cfg back to YAML, preserving the field set Load
// understands (spec §6: "unknown fields are preserved on read-write
// round-trips" — callers that need literal round-trip of an externally
// authored file should keep the original bytes and only Load for
// validation, since Go structs cannot carry truly unknown fields).
func Marshal(cfg Config) ([]byte, error) {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, ragerr.Wrap(ragerr.Parse, "config: marshal failed", err)
	}
	return out, nil
}
