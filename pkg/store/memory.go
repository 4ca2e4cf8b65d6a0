package store

import (
	"context"
	"sync"

	"github.com/byerlikaya/smartrag/pkg/ragmodel"
)

// MemoryStore is the in-memory Chunk Store backend: a map keyed by chunk
// id, with a secondary per-document index (chunk ids in insertion order)
// for GetAll/DeleteByDocument. Consistency is provided by one RWMutex per
// store; readers see either the pre- or post-upsert state atomically.
type MemoryStore struct {
	mu        sync.RWMutex
	chunks    map[string]ragmodel.DocumentChunk
	byDoc     map[string][]string // documentID -> chunk ids, insertion order
	vectorDim int
	documents map[string]ragmodel.Document
}

func NewMemoryStore(vectorDim int) *MemoryStore {
	return &MemoryStore{
		chunks:    make(map[string]ragmodel.DocumentChunk),
		byDoc:     make(map[string][]string),
		vectorDim: vectorDim,
		documents: make(map[string]ragmodel.Document),
	}
}

func (m *MemoryStore) UpsertChunks(_ context.Context, chunks []ragmodel.DocumentChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range chunks {
		if m.vectorDim == 0 && len(c.Embedding) > 0 {
			m.vectorDim = len(c.Embedding)
		}
		if _, exists := m.chunks[c.ID]; !exists {
			m.byDoc[c.DocumentID] = append(m.byDoc[c.DocumentID], c.ID)
		}
		m.chunks[c.ID] = c
	}
	return nil
}

func (m *MemoryStore) DeleteByDocument(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range m.byDoc[documentID] {
		delete(m.chunks, id)
	}
	delete(m.byDoc, documentID)
	return nil
}

func (m *MemoryStore) TopK(_ context.Context, queryVec []float32, k int, filter Filter) ([]ScoredChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]ScoredChunk, 0, len(m.chunks))
	for _, c := range m.chunks {
		if filter != nil && !filter(c) {
			continue
		}
		if !c.ValidEmbedding(m.vectorDim) || len(c.Embedding) == 0 {
			continue
		}
		results = append(results, ScoredChunk{Chunk: c, Score: cosineSimilarity(queryVec, c.Embedding)})
	}

	return sortAndTrim(results, k), nil
}

func (m *MemoryStore) GetChunks(_ context.Context, ids []string) ([]ragmodel.DocumentChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ragmodel.DocumentChunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := m.chunks[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MemoryStore) GetAll(_ context.Context, documentID string) ([]ragmodel.DocumentChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.byDoc[documentID]
	out := make([]ragmodel.DocumentChunk, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.chunks[id])
	}
	// byDoc preserves insertion order, not necessarily Index order; the
	// registry always upserts chunks index-ascending, but sort defensively.
	sortByIndex(out)
	return out, nil
}

func (m *MemoryStore) Dim() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.vectorDim
}

func (m *MemoryStore) ClearEmbeddings(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, c := range m.chunks {
		c.Embedding = nil
		m.chunks[id] = c
	}
	m.vectorDim = 0
	return nil
}

func (m *MemoryStore) ClearAll(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.chunks = make(map[string]ragmodel.DocumentChunk)
	m.byDoc = make(map[string][]string)
	m.documents = make(map[string]ragmodel.Document)
	m.vectorDim = 0
	return nil
}

func (m *MemoryStore) PutDocument(_ context.Context, doc ragmodel.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.documents[doc.ID] = doc
	return nil
}

func (m *MemoryStore) ListDocuments(_ context.Context) ([]ragmodel.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ragmodel.Document, 0, len(m.documents))
	for _, d := range m.documents {
		out = append(out, d)
	}
	return out, nil
}

func (m *MemoryStore) RemoveDocument(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.documents, documentID)
	return nil
}

func (m *MemoryStore) Close() error { return nil }

func sortByIndex(chunks []ragmodel.DocumentChunk) {
	for i := 1; i < len(chunks); i++ {
		for j := i; j > 0 && chunks[j].Index < chunks[j-1].Index; j-- {
			chunks[j], chunks[j-1] = chunks[j-1], chunks[j]
		}
	}
}
