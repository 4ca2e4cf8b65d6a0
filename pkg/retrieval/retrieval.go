// Package retrieval is the Retrieval Engine (C7): a two-stage hybrid
// scorer (semantic cosine similarity, then lexical IDF-over-pool) fused
// into a single ranked result set, followed by context-window assembly.
// Grounded on the teacher's fusion package (weighted combination of named
// strategy score sets) and the bm25 strategy's IDF calculation, adapted
// to score a single retrieved pool instead of an entire corpus.
package retrieval

import (
	"cmp"
	"context"
	"math"
	"slices"
	"strings"

	"github.com/byerlikaya/smartrag/pkg/provider"
	"github.com/byerlikaya/smartrag/pkg/ragerr"
	"github.com/byerlikaya/smartrag/pkg/ragmodel"
	"github.com/byerlikaya/smartrag/pkg/store"
)

// reconstructCache avoids re-fetching and re-joining the same document's
// chunks twice within one Retrieve call, when multiple of its chunks land
// in the same result set.
type reconstructCache map[string]string

// Weights controls the semantic/lexical fusion (spec §4.7 default 0.8/0.2).
type Weights struct {
	Semantic float64
	Lexical  float64
}

func DefaultWeights() Weights { return Weights{Semantic: 0.8, Lexical: 0.2} }

// Engine wires an embedding provider and a Chunk Store into the hybrid
// scorer.
type Engine struct {
	chunks         store.Store
	prov           provider.Provider
	provCfg        provider.Config
	weights        Weights
	reconstructDoc bool
}

type Option func(*Engine)

func WithWeights(w Weights) Option {
	return func(e *Engine) { e.weights = w }
}

// WithFullDocumentReconstruction expands each result's content to its
// backing document's full text (all chunks, in index order, joined) before
// context-window assembly, when the document is still resolvable through
// the Chunk Store. Off by default since it changes token-budget accounting.
func WithFullDocumentReconstruction(enabled bool) Option {
	return func(e *Engine) { e.reconstructDoc = enabled }
}

func New(chunks store.Store, prov provider.Provider, cfg provider.Config, opts ...Option) *Engine {
	e := &Engine{chunks: chunks, prov: prov, provCfg: cfg, weights: DefaultWeights()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Retrieve runs the full two-stage pipeline and returns the top-K fused
// results, monotonically non-increasing by score.
func (e *Engine) Retrieve(ctx context.Context, query string, k int, filter store.Filter) ([]ragmodel.RetrievalResult, error) {
	if k <= 0 {
		k = 5
	}

	queryVec, err := e.prov.EmbedOne(ctx, query, e.provCfg)
	if err != nil {
		return nil, ragerr.Wrap(ragerr.Transport, "query embedding failed", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, ragerr.Wrap(ragerr.Cancelled, "cancelled before stage A", err)
	}

	kPrime := max(k, 50)
	candidates, err := e.chunks.TopK(ctx, queryVec, kPrime, filter)
	if err != nil {
		return nil, ragerr.Wrap(ragerr.Transport, "stage A semantic search failed", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, ragerr.Wrap(ragerr.Cancelled, "cancelled after stage A", err)
	}

	lexicalScores := lexicalScore(query, candidates)

	results := make([]ragmodel.RetrievalResult, 0, len(candidates))
	semMax, lexMax := maxScore(candidates), maxOf(lexicalScores)

	for i, c := range candidates {
		sem := normalize(c.Score, semMax)
		lex := normalize(lexicalScores[i], lexMax)
		fused := e.weights.Semantic*sem + e.weights.Lexical*lex

		results = append(results, ragmodel.RetrievalResult{
			ChunkID:    c.Chunk.ID,
			DocumentID: c.Chunk.DocumentID,
			ChunkIndex: c.Chunk.Index,
			Content:    c.Chunk.Content,
			Score:      fused,
			Components: ragmodel.ScoreComponents{Semantic: sem, Lexical: lex},
			SourceType: ragmodel.SourceDocument,
		})
	}

	slices.SortFunc(results, func(a, b ragmodel.RetrievalResult) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		if c := cmp.Compare(a.DocumentID, b.DocumentID); c != 0 {
			return c
		}
		return cmp.Compare(a.ChunkIndex, b.ChunkIndex)
	})

	if err := ctx.Err(); err != nil {
		return nil, ragerr.Wrap(ragerr.Cancelled, "cancelled during fusion", err)
	}

	if len(results) > k {
		results = results[:k]
	}

	if e.reconstructDoc {
		e.reconstruct(ctx, results)
	}

	return results, nil
}

// reconstruct replaces each result's chunk-only Content with its backing
// document's full text, built from whichever of that document's chunks the
// Chunk Store returns (completeness is not checked). A document whose
// chunks can't be fetched is left as-is rather than failing the whole
// retrieval.
func (e *Engine) reconstruct(ctx context.Context, results []ragmodel.RetrievalResult) {
	cache := make(reconstructCache)
	for i, r := range results {
		full, ok := cache[r.DocumentID]
		if !ok {
			chunks, err := e.chunks.GetAll(ctx, r.DocumentID)
			if err != nil || len(chunks) == 0 {
				continue
			}
			slices.SortFunc(chunks, func(a, b ragmodel.DocumentChunk) int { return cmp.Compare(a.Index, b.Index) })

			var b strings.Builder
			for j, c := range chunks {
				if j > 0 {
					b.WriteString("\n")
				}
				b.WriteString(c.Content)
			}
			full = b.String()
			cache[r.DocumentID] = full
		}
		results[i].Content = full
	}
}

// lexicalScore computes, for each candidate, a case-folded token-overlap
// score weighted by inverse document frequency approximated over the
// retrieved pool (not the full corpus), plus a contiguous-phrase bonus
// for multi-word queries.
func lexicalScore(query string, candidates []store.ScoredChunk) []float64 {
	queryTerms := tokenize(query)
	scores := make([]float64, len(candidates))
	if len(queryTerms) == 0 {
		return scores
	}

	docFreq := make(map[string]int)
	docTerms := make([][]string, len(candidates))
	for i, c := range candidates {
		terms := tokenize(c.Chunk.Content)
		docTerms[i] = terms
		seen := make(map[string]bool)
		for _, t := range terms {
			seen[t] = true
		}
		for t := range seen {
			docFreq[t]++
		}
	}

	n := float64(len(candidates))
	phrase := strings.ToLower(strings.Join(queryTerms, " "))

	for i, terms := range docTerms {
		termFreq := make(map[string]int)
		for _, t := range terms {
			termFreq[t]++
		}

		var score float64
		for _, qt := range queryTerms {
			tf := float64(termFreq[qt])
			if tf == 0 {
				continue
			}
			df := float64(docFreq[qt])
			idf := math.Log((n-df+0.5)/(df+0.5) + 1.0)
			score += tf * idf
		}

		if len(queryTerms) > 1 && strings.Contains(strings.ToLower(candidates[i].Chunk.Content), phrase) {
			score *= 1.5
		}

		scores[i] = score
	}

	return scores
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"but": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "of": true, "as": true, "by": true, "is": true,
	"was": true, "are": true, "were": true, "be": true, "been": true,
}

func tokenize(text string) []string {
	text = strings.ToLower(text)
	replacer := strings.NewReplacer(
		".", " ", ",", " ", "!", " ", "?", " ",
		";", " ", ":", " ", "(", " ", ")", " ",
		"[", " ", "]", " ", "{", " ", "}", " ",
		"\"", " ", "'", " ", "\n", " ", "\t", " ",
	)
	text = replacer.Replace(text)

	fields := strings.Fields(text)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) > 2 && !stopwords[f] {
			out = append(out, f)
		}
	}
	return out
}

func maxScore(candidates []store.ScoredChunk) float64 {
	var m float64
	for _, c := range candidates {
		if c.Score > m {
			m = c.Score
		}
	}
	return m
}

func maxOf(vals []float64) float64 {
	var m float64
	for _, v := range vals {
		if v > m {
			m = v
		}
	}
	return m
}

func normalize(v, max float64) float64 {
	if max <= 0 {
		return 0
	}
	return v / max
}
