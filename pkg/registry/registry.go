// Package registry is the Document Registry (C6): it assigns document
// ids, rejects duplicate uploads by content hash within an owner scope,
// tracks metadata, and cascades delete to the Chunk Store.
package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/byerlikaya/smartrag/pkg/ragerr"
	"github.com/byerlikaya/smartrag/pkg/ragmodel"
	"github.com/byerlikaya/smartrag/pkg/store"
)

// Registry is the in-memory document index backed by a Chunk Store for
// cascading deletes. Metadata and identity live here; chunk bodies and
// vectors live in the Chunk Store.
type Registry struct {
	mu        sync.RWMutex
	documents map[string]ragmodel.Document
	byOwner   map[string]map[string]string // ownerID -> contentHash -> documentID
	chunks    store.Store
}

// New constructs a Registry backed by chunkStore, loading any documents
// persisted by a prior run (spec §6's persisted-state layout) into the
// in-memory index before returning.
func New(ctx context.Context, chunkStore store.Store) (*Registry, error) {
	r := &Registry{
		documents: make(map[string]ragmodel.Document),
		byOwner:   make(map[string]map[string]string),
		chunks:    chunkStore,
	}

	docs, err := chunkStore.ListDocuments(ctx)
	if err != nil {
		return nil, ragerr.Wrap(ragerr.Transport, "registry: loading persisted documents failed", err)
	}
	for _, doc := range docs {
		r.documents[doc.ID] = doc
		if r.byOwner[doc.OwnerID] == nil {
			r.byOwner[doc.OwnerID] = make(map[string]string)
		}
		r.byOwner[doc.OwnerID][doc.ContentHash] = doc.ID
	}

	return r, nil
}

// ContentHash hashes raw document bytes for de-duplication.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Register assigns an id to a new document and records it, unless a
// document with the same content hash already exists for ownerID, in
// which case the existing document is returned unchanged (idempotent
// upload, per the "no additional chunks" invariant).
func (r *Registry) Register(ctx context.Context, fileName, contentType, ownerID string, content []byte, metadata map[string]string) (ragmodel.Document, bool, error) {
	hash := ContentHash(content)

	r.mu.Lock()
	if owned, ok := r.byOwner[ownerID]; ok {
		if existingID, ok := owned[hash]; ok {
			existing := r.documents[existingID]
			r.mu.Unlock()
			return existing, false, nil
		}
	}

	doc := ragmodel.Document{
		ID:          uuid.NewString(),
		FileName:    fileName,
		ContentType: contentType,
		OwnerID:     ownerID,
		UploadedAt:  time.Now().UTC(),
		ContentHash: hash,
		Metadata:    metadata,
	}

	r.documents[doc.ID] = doc
	if r.byOwner[ownerID] == nil {
		r.byOwner[ownerID] = make(map[string]string)
	}
	r.byOwner[ownerID][hash] = doc.ID
	r.mu.Unlock()

	if err := r.chunks.PutDocument(ctx, doc); err != nil {
		return ragmodel.Document{}, false, ragerr.Wrap(ragerr.Transport, "registry: persisting document record failed", err)
	}
	return doc, true, nil
}

// SetChunkIDs records the owned chunk ids after ingestion assigns them.
func (r *Registry) SetChunkIDs(ctx context.Context, documentID string, chunkIDs []string) error {
	r.mu.Lock()
	doc, ok := r.documents[documentID]
	if !ok {
		r.mu.Unlock()
		return ragerr.New(ragerr.NotFound, fmt.Sprintf("document %s not found", documentID))
	}
	doc.ChunkIDs = chunkIDs
	r.documents[documentID] = doc
	r.mu.Unlock()

	if err := r.chunks.PutDocument(ctx, doc); err != nil {
		return ragerr.Wrap(ragerr.Transport, "registry: persisting document record failed", err)
	}
	return nil
}

func (r *Registry) Get(documentID string) (ragmodel.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, ok := r.documents[documentID]
	if !ok {
		return ragmodel.Document{}, ragerr.New(ragerr.NotFound, fmt.Sprintf("document %s not found", documentID))
	}
	return doc, nil
}

// List returns every document owned by ownerID. Pass "" to list across
// all owners (administrative use).
func (r *Registry) List(ownerID string) []ragmodel.Document {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ragmodel.Document, 0, len(r.documents))
	for _, d := range r.documents {
		if ownerID == "" || d.OwnerID == ownerID {
			out = append(out, d)
		}
	}
	return out
}

// Delete removes a document's metadata and cascades to the Chunk Store,
// invalidating any retrieval result derived from its chunks.
func (r *Registry) Delete(ctx context.Context, documentID string) error {
	r.mu.Lock()
	doc, ok := r.documents[documentID]
	if !ok {
		r.mu.Unlock()
		return ragerr.New(ragerr.NotFound, fmt.Sprintf("document %s not found", documentID))
	}
	delete(r.documents, documentID)
	if owned := r.byOwner[doc.OwnerID]; owned != nil {
		delete(owned, doc.ContentHash)
	}
	r.mu.Unlock()

	if err := r.chunks.DeleteByDocument(ctx, documentID); err != nil {
		return ragerr.Wrap(ragerr.Transport, "cascade delete to chunk store failed", err)
	}
	if err := r.chunks.RemoveDocument(ctx, documentID); err != nil {
		return ragerr.Wrap(ragerr.Transport, "removing persisted document record failed", err)
	}
	return nil
}

// DeleteAll removes every document and chunk the registry knows about
// (spec §6's "clear all documents").
func (r *Registry) DeleteAll(ctx context.Context) error {
	r.mu.Lock()
	r.documents = make(map[string]ragmodel.Document)
	r.byOwner = make(map[string]map[string]string)
	r.mu.Unlock()

	if err := r.chunks.ClearAll(ctx); err != nil {
		return ragerr.Wrap(ragerr.Transport, "clearing all documents failed", err)
	}
	return nil
}

// Stats computes the document-admin aggregate view (spec §6).
func (r *Registry) Stats(ctx context.Context) (ragmodel.StorageStats, error) {
	r.mu.RLock()
	docs := make([]ragmodel.Document, 0, len(r.documents))
	for _, d := range r.documents {
		docs = append(docs, d)
	}
	r.mu.RUnlock()

	stats := ragmodel.StorageStats{DocumentCount: len(docs)}
	var withEmbedding, total int
	for _, d := range docs {
		chunks, err := r.chunks.GetAll(ctx, d.ID)
		if err != nil {
			return stats, err
		}
		stats.ChunkCount += len(chunks)
		for _, c := range chunks {
			total++
			if len(c.Embedding) > 0 {
				withEmbedding++
			}
		}
	}
	if total > 0 {
		stats.EmbeddingCoveragePct = 100 * float64(withEmbedding) / float64(total)
	}
	return stats, nil
}
