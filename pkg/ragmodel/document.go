// Package ragmodel holds the data model shared across the ingestion and
// retrieval pipelines: documents, chunks, sessions, and retrieval results.
// Types here carry no behavior beyond small invariant-preserving helpers;
// the packages that own a type's lifecycle (registry, store, convstore)
// are the only ones that mutate it.
package ragmodel

import "time"

// Document is the unit of ingestion identity. It owns its chunks; chunks
// reference it back only by id (see DocumentChunk), so the Document
// Registry is the single resolver that breaks the cycle.
type Document struct {
	ID          string            `json:"id"`
	FileName    string            `json:"fileName"`
	ContentType string            `json:"contentType"`
	OwnerID     string            `json:"ownerId"`
	UploadedAt  time.Time         `json:"uploadedAt"`
	ContentHash string            `json:"contentHash"`
	RawContent  string            `json:"rawContent,omitempty"`
	ChunkIDs    []string          `json:"chunkIds"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// DocumentChunk is a bounded textual segment with its embedding. Index is
// unique and contiguous within the owning document.
type DocumentChunk struct {
	ID         string            `json:"id"`
	DocumentID string            `json:"documentId"`
	Index      int               `json:"index"`
	Content    string            `json:"content"`
	Embedding  []float32         `json:"embedding,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// ValidEmbedding reports whether the chunk's embedding is either absent
// (len 0, "missing") or matches the store's current vector dimension.
// A mismatched, non-empty embedding must be treated as missing by callers.
func (c *DocumentChunk) ValidEmbedding(storeDim int) bool {
	return len(c.Embedding) == 0 || len(c.Embedding) == storeDim
}

// FileMetadata tracks the indexing state of a source path for incremental
// re-indexing (folder watcher, registry de-duplication).
type FileMetadata struct {
	SourcePath   string    `json:"sourcePath"`
	ContentHash  string    `json:"contentHash"`
	LastIndexed  time.Time `json:"lastIndexed"`
	ChunkCount   int       `json:"chunkCount"`
	DocumentID   string    `json:"documentId"`
}

// StorageStats is the document-admin surface's aggregate view (spec §6).
type StorageStats struct {
	DocumentCount        int     `json:"documentCount"`
	ChunkCount           int     `json:"chunkCount"`
	EmbeddingCoveragePct float64 `json:"embeddingCoveragePercent"`
}
