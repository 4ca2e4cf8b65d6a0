// Package engine wires the individual components (config, provider,
// registry, chunk store, embedding batcher, retrieval, router, synthesizer,
// conversation store, external-tool client, folder watcher) into the
// external operations spec §6 names: Upload, Query, and the document-admin
// surface. Grounded on the teacher's own top-level wiring package
// (pkg/rag/manager.go/builder.go built one concrete strategy at a time from
// a Config); this package does the analogous job for the RAG components
// built across this repo's own packages instead of the teacher's strategy
// set.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/byerlikaya/smartrag/pkg/config"
	"github.com/byerlikaya/smartrag/pkg/provider"
	"github.com/byerlikaya/smartrag/pkg/provider/anthropic"
	"github.com/byerlikaya/smartrag/pkg/provider/azure"
	"github.com/byerlikaya/smartrag/pkg/provider/custom"
	"github.com/byerlikaya/smartrag/pkg/provider/gemini"
	"github.com/byerlikaya/smartrag/pkg/provider/openai"
	"github.com/byerlikaya/smartrag/pkg/rag/chunk"
	"github.com/byerlikaya/smartrag/pkg/rag/embed"
	"github.com/byerlikaya/smartrag/pkg/ragerr"
	"github.com/byerlikaya/smartrag/pkg/ragmodel"
	"github.com/byerlikaya/smartrag/pkg/registry"
	"github.com/byerlikaya/smartrag/pkg/resilient"
	"github.com/byerlikaya/smartrag/pkg/retrieval"
	"github.com/byerlikaya/smartrag/pkg/router"
	"github.com/byerlikaya/smartrag/pkg/store"
	"github.com/byerlikaya/smartrag/pkg/synthesize"
	"github.com/byerlikaya/smartrag/pkg/toolclient"
	"github.com/byerlikaya/smartrag/pkg/watcher"
)

// maxHistoryTokens bounds how much prior conversation synthesize includes
// per turn; separate from convstore.Bounds, which bounds the stored log.
const maxHistoryTokens = 2000

// newProvider resolves a config.ProviderName to its concrete variant. The
// sealed-variant dispatch lives here, at the single place that needs to
// convert configuration into a provider.Provider.
func newProvider(kind config.ProviderName) (provider.Provider, error) {
	switch kind {
	case config.ProviderOpenAI:
		return openai.New(), nil
	case config.ProviderAnthropic:
		return anthropic.New(), nil
	case config.ProviderGemini:
		return gemini.New(), nil
	case config.ProviderAzure:
		return azure.New(), nil
	case config.ProviderCustom:
		return custom.New(), nil
	default:
		return nil, ragerr.New(ragerr.ConfigMissing, "engine: unrecognized provider "+string(kind))
	}
}

func providerConfig(opts config.ProviderOptions) provider.Config {
	return provider.Config{
		APIKey:                 opts.APIKey,
		Endpoint:               opts.Endpoint,
		Model:                  opts.Model,
		EmbeddingModel:         opts.EmbeddingModel,
		EmbeddingAPIKey:        opts.EmbeddingAPIKey,
		EmbeddingEndpoint:      opts.EmbeddingEndpoint,
		MaxTokens:              opts.MaxTokens,
		Temperature:            opts.Temperature,
		SystemMessage:          opts.SystemMessage,
		APIVersion:             opts.APIVersion,
		EmbeddingMinIntervalMs: opts.EmbeddingMinIntervalMs,
	}
}

func resilientConfig(cfg config.Config) resilient.Config {
	return resilient.Config{
		MaxRetryAttempts:        cfg.MaxRetryAttempts,
		RetryDelayMs:            cfg.RetryDelayMs,
		RetryPolicy:             resilient.Policy(cfg.RetryPolicy),
		EnableFallbackProviders: cfg.EnableFallbackProviders,
	}
}

func storeBackend(name config.StorageName) store.Backend {
	switch name {
	case config.StorageSQLite:
		return store.BackendSQLite
	case config.StorageFileSystem:
		return store.BackendFileSystem
	case config.StorageRedis:
		return store.BackendRedis
	case config.StorageQdrant:
		return store.BackendQdrant
	default:
		return store.BackendMemory
	}
}

// Engine is the constructed, ready-to-serve RAG system.
type Engine struct {
	cfg       config.Config
	rcfg      resilient.Config
	primary   provider.Provider
	fallbacks []provider.Provider
	provCfg   provider.Config
	caller    *resilient.Caller

	registry  *registry.Registry
	chunks    store.Store
	retrieval *retrieval.Engine
	convs     convStore
	tools     *toolclient.Client
	watchers  []*watcher.Watcher
}

// convStore is the subset of convstore.Store the engine needs; declared
// here so engine doesn't import convstore's concrete backend types.
type convStore interface {
	Append(ctx context.Context, sessionID string, msg ragmodel.Message) error
	Get(ctx context.Context, sessionID string) (ragmodel.Session, error)
	Reset(ctx context.Context, sessionID string) (string, error)
	Close() error
}

// Deps carries already-constructed components that New cannot build from
// config alone (the conversation store, since its own backend constructor
// needs a DSN shape convstore.New already resolves; and tool servers,
// which the caller dials before wiring them in).
type Deps struct {
	Conversations convStore
	ToolServers   []toolclient.Server
}

// New builds an Engine from a validated config.Config.
func New(ctx context.Context, cfg config.Config, deps Deps) (*Engine, error) {
	primary, err := newProvider(cfg.AIProvider)
	if err != nil {
		return nil, err
	}

	var fallbacks []provider.Provider
	if cfg.EnableFallbackProviders {
		for _, name := range cfg.FallbackProviders {
			p, err := newProvider(name)
			if err != nil {
				return nil, err
			}
			fallbacks = append(fallbacks, p)
		}
	}

	chunkStore, err := store.New(store.Config{Backend: storeBackend(cfg.StorageProvider), Path: cfg.StoragePath})
	if err != nil {
		return nil, err
	}

	reg, err := registry.New(ctx, chunkStore)
	if err != nil {
		return nil, err
	}
	provCfg := providerConfig(cfg.Providers[cfg.AIProvider])

	e := &Engine{
		cfg:       cfg,
		rcfg:      resilientConfig(cfg),
		primary:   primary,
		fallbacks: fallbacks,
		provCfg:   provCfg,
		caller:    resilient.NewCaller(),
		registry:  reg,
		chunks:    chunkStore,
		retrieval: retrieval.New(chunkStore, primary, provCfg, retrievalOptions(cfg)...),
		convs:     deps.Conversations,
	}

	if cfg.EnableMcpSearch && len(deps.ToolServers) > 0 {
		e.tools = toolclient.New(deps.ToolServers)
	}

	if cfg.EnableFileWatcher {
		for _, folder := range cfg.WatchedFolders {
			w, err := watcher.New(watcher.Config{
				BaseDir:    cfg.WatcherBaseDir,
				Paths:      []string{folder},
				Extensions: cfg.WatchedExtensions,
			}, e.ingestWatcherJob)
			if err != nil {
				return nil, err
			}
			e.watchers = append(e.watchers, w)
		}
	}

	return e, nil
}

func retrievalOptions(cfg config.Config) []retrieval.Option {
	opts := []retrieval.Option{retrieval.WithFullDocumentReconstruction(cfg.EnableFullDocumentReconstruction)}
	if cfg.SemanticWeight != 0 || cfg.LexicalWeight != 0 {
		opts = append(opts, retrieval.WithWeights(retrieval.Weights{Semantic: cfg.SemanticWeight, Lexical: cfg.LexicalWeight}))
	}
	return opts
}

func embedderOptions(cfg config.Config) []embed.Option {
	var opts []embed.Option
	if cfg.AIProvider == config.ProviderGemini {
		opts = append(opts, embed.WithBatchSize(50))
	}
	return opts
}

// StartWatchers starts every configured folder watcher. Callers own ctx's
// lifetime; cancelling it stops all watchers.
func (e *Engine) StartWatchers(ctx context.Context) error {
	for _, w := range e.watchers {
		if err := w.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) chain() []provider.Provider {
	return append([]provider.Provider{e.primary}, e.fallbacks...)
}

// Close releases every owned resource.
func (e *Engine) Close() error {
	var firstErr error
	for _, w := range e.watchers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if e.tools != nil {
		if err := e.tools.Close(context.Background()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := e.chunks.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if e.convs != nil {
		if err := e.convs.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Upload ingests a new document: registers it (idempotent by content
// hash), chunks the text, embeds the chunks, and persists both (spec §6's
// Upload operation).
func (e *Engine) Upload(ctx context.Context, fileName, contentType, ownerID string, content []byte, metadata map[string]string) (ragmodel.Document, error) {
	doc, isNew, err := e.registry.Register(ctx, fileName, contentType, ownerID, content, metadata)
	if err != nil {
		return ragmodel.Document{}, err
	}
	if !isNew {
		return doc, nil
	}

	params := chunk.Params{MaxChunkSize: e.cfg.MaxChunkSize, MinChunkSize: e.cfg.MinChunkSize, Overlap: e.cfg.ChunkOverlap}
	pieces := chunk.New().ChunkText(string(content), params)

	texts := make([]string, len(pieces))
	for i, p := range pieces {
		texts[i] = p.Content
	}

	vecs, _, err := resilient.CallWithFallback(ctx, e.caller, "embed:"+doc.ID, e.chain(), e.rcfg, 0,
		func(ctx context.Context, p provider.Provider) ([][]float32, error) {
			return embed.New(p, e.provCfg, embedderOptions(e.cfg)...).EmbedBatch(ctx, texts)
		})
	if err != nil {
		return ragmodel.Document{}, err
	}

	chunks := make([]ragmodel.DocumentChunk, len(pieces))
	chunkIDs := make([]string, len(pieces))
	for i, p := range pieces {
		id := fmt.Sprintf("%s:%d", doc.ID, p.Index)
		chunks[i] = ragmodel.DocumentChunk{ID: id, DocumentID: doc.ID, Index: p.Index, Content: p.Content, Embedding: vecs[i]}
		chunkIDs[i] = id
	}

	if err := e.chunks.UpsertChunks(ctx, chunks); err != nil {
		return ragmodel.Document{}, err
	}
	if err := e.registry.SetChunkIDs(ctx, doc.ID, chunkIDs); err != nil {
		return ragmodel.Document{}, err
	}

	doc, err = e.registry.Get(doc.ID)
	if err != nil {
		return ragmodel.Document{}, err
	}
	return doc, nil
}

// ingestWatcherJob adapts a create or change watcher.Job into an Upload
// call for files dropped into a watched folder outside the Upload API.
// Delete jobs are ignored; no document is removed for them.
func (e *Engine) ingestWatcherJob(ctx context.Context, job watcher.Job) {
	switch job.Kind {
	case watcher.JobDelete:
		return // deletion by path alone can't resolve a document id safely; admin Delete handles explicit removal.
	default:
		content, err := readFile(job.Path)
		if err != nil {
			return
		}
		_, _ = e.Upload(ctx, job.Path, "text/plain", "watcher", content, nil)
	}
}

// QueryResult bundles the answer returned to callers.
type QueryResult struct {
	ragmodel.RagResponse
}

// Query runs the full retrieve-then-synthesize pipeline for one turn,
// including routing, session-control handling, and conversation logging
// (spec §6's Query operation).
func (e *Engine) Query(ctx context.Context, text string, sessionID string, maxResults int, startNew bool) (QueryResult, error) {
	if startNew && e.convs != nil {
		newID, err := e.convs.Reset(ctx, sessionID)
		if err != nil {
			return QueryResult{}, err
		}
		sessionID = newID
	}

	var history []ragmodel.Message
	if e.convs != nil && sessionID != "" {
		sess, err := e.convs.Get(ctx, sessionID)
		if err == nil {
			history = sess.Messages
		}
	}

	intent, err := router.Route(ctx, text, history, e.routerSources(), nil)
	if err != nil {
		return QueryResult{}, err
	}

	if intent == router.IntentSessionControl {
		newID := sessionID
		if e.convs != nil {
			newID, err = e.convs.Reset(ctx, sessionID)
			if err != nil {
				return QueryResult{}, err
			}
		}
		resp := ragmodel.RagResponse{Query: text, Answer: "Session reset.", SessionID: newID}
		return QueryResult{resp}, nil
	}

	if maxResults <= 0 {
		maxResults = 5
	}

	var results []ragmodel.RetrievalResult
	if intent == router.IntentDocumentRag || intent == router.IntentMixed {
		results, err = e.retrieval.Retrieve(ctx, text, maxResults, nil)
		if err != nil {
			return QueryResult{}, err
		}
	}
	if (intent == router.IntentExternalTool || intent == router.IntentMixed) && e.tools != nil {
		toolResults, err := e.tools.Retrieve(ctx, text)
		if err == nil {
			results = append(results, toolResults...)
		}
	}
	results = retrieval.AssembleContext(results, maxHistoryTokens)

	generate := func(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
		out, _, err := resilient.CallWithFallback(ctx, e.caller, "generate", e.chain(), e.rcfg, 0,
			func(ctx context.Context, p provider.Provider) (string, error) {
				cfg := e.provCfg
				cfg.SystemMessage = systemPrompt
				return p.GenerateText(ctx, userPrompt, cfg)
			})
		return out, err
	}

	resp, err := synthesize.Synthesize(ctx, text, results, history, maxHistoryTokens, generate)
	if err != nil {
		return QueryResult{}, err
	}
	resp.SearchedAt = timeNowRFC3339()
	resp.SessionID = sessionID

	if e.convs != nil && sessionID != "" {
		_ = e.convs.Append(ctx, sessionID, ragmodel.Message{Role: ragmodel.RoleUser, Text: text, Timestamp: time.Now().UTC()})
		_ = e.convs.Append(ctx, sessionID, ragmodel.Message{Role: ragmodel.RoleAssistant, Text: resp.Answer, Timestamp: time.Now().UTC()})
	}

	return QueryResult{resp}, nil
}

func (e *Engine) routerSources() router.Sources {
	src := router.Sources{HasDocuments: len(e.registry.List("")) > 0}
	if e.tools != nil {
		// Tool descriptors for routing purposes are derived on demand by
		// Retrieve's own keyword scoring; the router only needs to know
		// whether any tool server is configured at all.
		src.Tools = []router.ToolDescriptor{{Name: "external-tool"}}
	}
	return src
}

// ListDocuments, GetDocument, DeleteDocument, Stats implement the
// document-admin surface (spec §6).
func (e *Engine) ListDocuments(ownerID string) []ragmodel.Document {
	return e.registry.List(ownerID)
}

func (e *Engine) GetDocument(documentID string) (ragmodel.Document, error) {
	return e.registry.Get(documentID)
}

func (e *Engine) DeleteDocument(ctx context.Context, documentID string) error {
	return e.registry.Delete(ctx, documentID)
}

func (e *Engine) Stats(ctx context.Context) (ragmodel.StorageStats, error) {
	return e.registry.Stats(ctx)
}

// RegenerateEmbeddings re-embeds every chunk whose vector is missing or was
// produced at a different dimension than the store's current one, leaving
// chunks with a valid current-dimension vector untouched — a no-op when
// every chunk is already current (spec §6's regenerateEmbeddings
// idempotence requirement).
func (e *Engine) RegenerateEmbeddings(ctx context.Context) (int, error) {
	docs := e.registry.List("")
	dim := e.chunks.Dim()

	var regenerated int
	for _, doc := range docs {
		chunks, err := e.chunks.GetAll(ctx, doc.ID)
		if err != nil {
			return regenerated, err
		}

		var stale []ragmodel.DocumentChunk
		for _, c := range chunks {
			// ValidEmbedding treats a missing (len-0) vector as "valid" for
			// TopK's filtering purposes; regeneration needs the opposite: a
			// missing vector is exactly the case that needs embedding.
			if len(c.Embedding) == 0 || len(c.Embedding) != dim {
				stale = append(stale, c)
			}
		}
		if len(stale) == 0 {
			continue
		}

		texts := make([]string, len(stale))
		for i, c := range stale {
			texts[i] = c.Content
		}

		vecs, _, err := resilient.CallWithFallback(ctx, e.caller, "embed:regenerate:"+doc.ID, e.chain(), e.rcfg, 0,
			func(ctx context.Context, p provider.Provider) ([][]float32, error) {
				return embed.New(p, e.provCfg, embedderOptions(e.cfg)...).EmbedBatch(ctx, texts)
			})
		if err != nil {
			return regenerated, err
		}

		for i := range stale {
			stale[i].Embedding = vecs[i]
		}
		if err := e.chunks.UpsertChunks(ctx, stale); err != nil {
			return regenerated, err
		}
		regenerated += len(stale)
	}

	return regenerated, nil
}

// ClearEmbeddings drops every chunk's vector without deleting the chunks or
// documents themselves, so a subsequent RegenerateEmbeddings re-embeds the
// whole corpus (spec §6's "clear all embeddings").
func (e *Engine) ClearEmbeddings(ctx context.Context) error {
	return e.chunks.ClearEmbeddings(ctx)
}

// ClearAllDocuments removes every document, chunk, and vector the engine
// knows about (spec §6's "clear all documents").
func (e *Engine) ClearAllDocuments(ctx context.Context) error {
	return e.registry.DeleteAll(ctx)
}
