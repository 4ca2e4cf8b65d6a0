// Package embed is the Embedding Batcher (C4): it buffers chunk text,
// issues batched embedding calls bounded by a concurrency cap, and
// degrades to per-item embedding when a batch call fails.
package embed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/byerlikaya/smartrag/pkg/provider"
	"github.com/byerlikaya/smartrag/pkg/ragerr"
	"github.com/byerlikaya/smartrag/pkg/resilient"
)

// Stats reports {total, successful, elapsed} for one batch embedding job,
// matching the observability requirement for the embedding batcher.
type Stats struct {
	Total      int
	Successful int
	Elapsed    time.Duration
}

// Embedder wraps a provider.Provider (already wrapped by the caller in a
// resilient.Caller fallback chain if configured) with batching policy.
type Embedder struct {
	prov           provider.Provider
	cfg            provider.Config
	batchSize      int
	maxConcurrency int
	itemDelay      time.Duration
	usageHandler   func(tokens int64, cost float64)
	statsHandler   func(Stats)
}

type Option func(*Embedder)

// WithBatchSize sets the per-request batch size. Providers with a hard
// cap (Gemini: 50) should pass that cap explicitly.
func WithBatchSize(size int) Option {
	return func(e *Embedder) {
		if size > 0 {
			e.batchSize = size
		}
	}
}

// WithMaxConcurrency bounds how many batches run concurrently.
func WithMaxConcurrency(n int) Option {
	return func(e *Embedder) {
		if n > 0 {
			e.maxConcurrency = n
		}
	}
}

// WithItemDelay sets the delay between sequential per-item calls when a
// batch degrades to per-item embedding (e.g. to respect a provider's
// minimum inter-request interval even outside the Gate).
func WithItemDelay(d time.Duration) Option {
	return func(e *Embedder) { e.itemDelay = d }
}

// WithUsageHandler stores a token/cost usage callback on the Embedder.
// The Embedder does not call it: no token or cost accounting is computed.
func WithUsageHandler(h func(tokens int64, cost float64)) Option {
	return func(e *Embedder) { e.usageHandler = h }
}

func WithStatsHandler(h func(Stats)) Option {
	return func(e *Embedder) { e.statsHandler = h }
}

// New builds an Embedder around a provider and the ProviderConfig used for
// every embedding call it issues.
func New(p provider.Provider, cfg provider.Config, opts ...Option) *Embedder {
	e := &Embedder{
		prov:           p,
		cfg:            cfg,
		batchSize:      200,
		maxConcurrency: 3,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EmbedBatch vectorizes texts, preserving positional integrity: the
// returned slice always has len(texts) entries, with an empty vector at
// any index the provider could not embed (batch or per-item).
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if empty, ok := provider.EmptyBatchGuard(texts); ok {
		return empty, nil
	}

	start := time.Now()
	total := len(texts)
	results := make([][]float32, total)
	successful := make([]bool, total)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxConcurrency)

	for batchStart := 0; batchStart < total; batchStart += e.batchSize {
		batchStart := batchStart
		batchEnd := min(batchStart+e.batchSize, total)

		g.Go(func() error {
			batchTexts := texts[batchStart:batchEnd]

			vecs, err := e.prov.EmbedBatch(gctx, batchTexts, e.cfg)
			if err != nil {
				slog.Warn("embed: batch call failed, degrading to per-item", "start", batchStart, "size", len(batchTexts), "error", err)
				vecs = e.embedPerItem(gctx, batchTexts, batchStart)
			}

			mu.Lock()
			for i, v := range vecs {
				idx := batchStart + i
				if idx >= total {
					break
				}
				results[idx] = v
				successful[idx] = len(v) > 0
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, ragerr.Wrap(ragerr.Transport, "embedding batch failed", err)
	}

	ok := 0
	for _, s := range successful {
		if s {
			ok++
		}
	}
	stats := Stats{Total: total, Successful: ok, Elapsed: time.Since(start)}
	slog.Debug("embed: batch job complete", "total", stats.Total, "successful", stats.Successful, "elapsed", stats.Elapsed)
	if e.statsHandler != nil {
		e.statsHandler(stats)
	}

	return results, nil
}

// embedPerItem falls back to embedding items one at a time after a batch
// call fails. Items that still fail get an empty vector and are logged;
// positional integrity is preserved by always returning len(texts) items.
func (e *Embedder) embedPerItem(ctx context.Context, texts []string, offset int) [][]float32 {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if i > 0 && e.itemDelay > 0 {
			resilient.SleepWithContext(ctx, e.itemDelay)
		}
		v, err := e.prov.EmbedOne(ctx, text, e.cfg)
		if err != nil {
			slog.Warn("embed: per-item fallback failed, using empty vector", "index", offset+i, "error", err)
			out[i] = []float32{}
			continue
		}
		out[i] = v
	}
	return out
}

// EmbedOne embeds a single piece of text, used for query-time embedding
// where batching doesn't apply.
func (e *Embedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	v, err := e.prov.EmbedOne(ctx, text, e.cfg)
	if err != nil {
		return nil, ragerr.Wrap(ragerr.Transport, "embed one failed", err)
	}
	return v, nil
}
