// Package store is the Chunk Store (C5): it persists chunks and their
// vectors and answers top-K cosine-similarity queries. Backends are
// pluggable (spec §4.5); this package defines the common contract, a
// cosine-similarity helper shared by every backend, and the backend
// factory.
package store

import (
	"cmp"
	"context"
	"math"
	"slices"

	"github.com/byerlikaya/smartrag/pkg/ragerr"
	"github.com/byerlikaya/smartrag/pkg/ragmodel"
)

// ScoredChunk pairs a chunk with its similarity score for a topK result.
type ScoredChunk struct {
	Chunk ragmodel.DocumentChunk
	Score float64
}

// Filter narrows a topK query, e.g. to chunks owned by a given document or
// owner scope. A nil filter matches everything.
type Filter func(ragmodel.DocumentChunk) bool

// Store is the Chunk Store contract (spec §4.5). It also carries the
// persisted side of the Document Registry (spec §6's "Documents and
// chunks are stored as JSON-serializable records keyed by id"): each
// backend keeps document metadata alongside its chunks so both survive a
// restart together, rather than splitting the persisted-state layout
// across two backends that could drift out of sync.
type Store interface {
	UpsertChunks(ctx context.Context, chunks []ragmodel.DocumentChunk) error
	DeleteByDocument(ctx context.Context, documentID string) error
	TopK(ctx context.Context, queryVec []float32, k int, filter Filter) ([]ScoredChunk, error)
	GetChunks(ctx context.Context, ids []string) ([]ragmodel.DocumentChunk, error)
	GetAll(ctx context.Context, documentID string) ([]ragmodel.DocumentChunk, error)

	// Dim reports the vector dimension chunks are currently stored at (0
	// until the first embedding is upserted), used to decide which chunks
	// need re-embedding.
	Dim() int
	// ClearEmbeddings blanks every chunk's vector while keeping its
	// content, metadata, and document record intact (spec §6's "clear all
	// embeddings"), so a subsequent regenerate starts from a clean slate.
	ClearEmbeddings(ctx context.Context) error
	// ClearAll removes every chunk and document record (spec §6's "clear
	// all documents").
	ClearAll(ctx context.Context) error

	// PutDocument persists (or updates) one document's metadata record.
	PutDocument(ctx context.Context, doc ragmodel.Document) error
	// ListDocuments returns every persisted document record, for loading
	// the Document Registry's in-memory index at startup.
	ListDocuments(ctx context.Context) ([]ragmodel.Document, error)
	// RemoveDocument deletes one document's persisted metadata record.
	RemoveDocument(ctx context.Context, documentID string) error

	Close() error
}

// Backend selects a Chunk Store implementation.
type Backend string

const (
	BackendMemory     Backend = "memory"
	BackendSQLite     Backend = "sqlite"
	BackendFileSystem Backend = "filesystem"
	BackendRedis      Backend = "redis"
	BackendQdrant     Backend = "qdrant"
)

// Config selects and configures a Store backend.
type Config struct {
	Backend   Backend
	Path      string // file path for sqlite/filesystem backends
	VectorDim int    // 0 means "accept the first embedding's dimension"
}

// New constructs the configured Store. Redis and Qdrant are accepted as
// valid enum values (matching the pluggable-backend contract) but return
// ConfigMissing: no client library for either lives anywhere in the
// dependency corpus this module draws on, and fabricating one would
// violate the no-vendored-fakes rule.
func New(cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendMemory, "":
		return NewMemoryStore(cfg.VectorDim), nil
	case BackendSQLite:
		return NewSQLiteStore(cfg.Path, cfg.VectorDim)
	case BackendFileSystem:
		return NewFileSystemStore(cfg.Path, cfg.VectorDim)
	case BackendRedis:
		return nil, ragerr.New(ragerr.ConfigMissing, "redis chunk store backend has no client library wired in this build")
	case BackendQdrant:
		return nil, ragerr.New(ragerr.ConfigMissing, "qdrant chunk store backend has no client library wired in this build")
	default:
		return nil, ragerr.New(ragerr.ConfigMissing, "unknown chunk store backend: "+string(cfg.Backend))
	}
}

// cosineSimilarity computes cosine similarity between two equal-length
// vectors. Returns 0 for mismatched or zero-norm vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// sortAndTrim sorts scored chunks by descending score, breaking ties by
// (documentId, chunkIndex) ascending for determinism, then trims to k.
func sortAndTrim(results []ScoredChunk, k int) []ScoredChunk {
	slices.SortFunc(results, func(x, y ScoredChunk) int {
		if c := cmp.Compare(y.Score, x.Score); c != 0 {
			return c
		}
		if c := cmp.Compare(x.Chunk.DocumentID, y.Chunk.DocumentID); c != 0 {
			return c
		}
		return cmp.Compare(x.Chunk.Index, y.Chunk.Index)
	})
	if k >= 0 && len(results) > k {
		results = results[:k]
	}
	return results
}
