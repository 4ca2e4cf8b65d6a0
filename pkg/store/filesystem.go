package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/natefinch/atomic"

	"github.com/byerlikaya/smartrag/pkg/ragmodel"
)

// FileSystemStore is the debuggability-optimized Chunk Store backend
// (spec §4.5): one JSON file per document under dir, named
// <documentID>.json, written atomically via natefinch/atomic so a reader
// never observes a half-written file. Not optimized for query
// performance: TopK scans every loaded chunk in memory.
type FileSystemStore struct {
	mu        sync.RWMutex
	dir       string
	vectorDim int
	chunks    map[string]ragmodel.DocumentChunk
	byDoc     map[string][]string
	documents map[string]ragmodel.Document
}

// documentsFileName holds every document's metadata record in one file,
// separate from the per-document chunk files, so document admin
// operations (list, clear) don't need to open every chunk file.
const documentsFileName = "documents.json"

type fileDocument struct {
	DocumentID string                    `json:"documentId"`
	Chunks     []ragmodel.DocumentChunk `json:"chunks"`
}

func NewFileSystemStore(dir string, vectorDim int) (*FileSystemStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("chunk store: create dir %q: %w", dir, err)
	}

	s := &FileSystemStore{
		dir:       dir,
		vectorDim: vectorDim,
		chunks:    make(map[string]ragmodel.DocumentChunk),
		byDoc:     make(map[string][]string),
		documents: make(map[string]ragmodel.Document),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	if err := s.loadDocuments(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileSystemStore) documentsPath() string {
	return filepath.Join(s.dir, documentsFileName)
}

func (s *FileSystemStore) loadDocuments() error {
	data, err := os.ReadFile(s.documentsPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("chunk store: read %s: %w", documentsFileName, err)
	}

	var docs map[string]ragmodel.Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return fmt.Errorf("chunk store: parse %s: %w", documentsFileName, err)
	}
	s.documents = docs
	return nil
}

// writeDocuments persists the full document-record set atomically. Must
// be called with s.mu held.
func (s *FileSystemStore) writeDocuments() error {
	data, err := json.MarshalIndent(s.documents, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal documents: %w", err)
	}
	return atomic.WriteFile(s.documentsPath(), bytes.NewReader(data))
}

func (s *FileSystemStore) load() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("chunk store: read dir: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" || e.Name() == documentsFileName {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			return fmt.Errorf("chunk store: read %s: %w", e.Name(), err)
		}
		var doc fileDocument
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("chunk store: parse %s: %w", e.Name(), err)
		}
		for _, c := range doc.Chunks {
			s.chunks[c.ID] = c
			s.byDoc[doc.DocumentID] = append(s.byDoc[doc.DocumentID], c.ID)
			if s.vectorDim == 0 && len(c.Embedding) > 0 {
				s.vectorDim = len(c.Embedding)
			}
		}
	}
	return nil
}

func (s *FileSystemStore) path(documentID string) string {
	return filepath.Join(s.dir, documentID+".json")
}

// writeDocument persists the full chunk set for one document atomically.
// Must be called with s.mu held.
func (s *FileSystemStore) writeDocument(documentID string) error {
	ids := s.byDoc[documentID]
	chunks := make([]ragmodel.DocumentChunk, 0, len(ids))
	for _, id := range ids {
		chunks = append(chunks, s.chunks[id])
	}

	data, err := json.MarshalIndent(fileDocument{DocumentID: documentID, Chunks: chunks}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal document %s: %w", documentID, err)
	}

	return atomic.WriteFile(s.path(documentID), bytes.NewReader(data))
}

func (s *FileSystemStore) UpsertChunks(_ context.Context, chunks []ragmodel.DocumentChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	touched := make(map[string]bool)
	for _, c := range chunks {
		if s.vectorDim == 0 && len(c.Embedding) > 0 {
			s.vectorDim = len(c.Embedding)
		}
		if _, exists := s.chunks[c.ID]; !exists {
			s.byDoc[c.DocumentID] = append(s.byDoc[c.DocumentID], c.ID)
		}
		s.chunks[c.ID] = c
		touched[c.DocumentID] = true
	}

	for docID := range touched {
		if err := s.writeDocument(docID); err != nil {
			return err
		}
	}
	return nil
}

func (s *FileSystemStore) DeleteByDocument(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.byDoc[documentID] {
		delete(s.chunks, id)
	}
	delete(s.byDoc, documentID)

	if err := os.Remove(s.path(documentID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("chunk store: remove %s: %w", documentID, err)
	}
	return nil
}

func (s *FileSystemStore) TopK(_ context.Context, queryVec []float32, k int, filter Filter) ([]ScoredChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]ScoredChunk, 0, len(s.chunks))
	for _, c := range s.chunks {
		if filter != nil && !filter(c) {
			continue
		}
		if !c.ValidEmbedding(s.vectorDim) || len(c.Embedding) == 0 {
			continue
		}
		results = append(results, ScoredChunk{Chunk: c, Score: cosineSimilarity(queryVec, c.Embedding)})
	}
	return sortAndTrim(results, k), nil
}

func (s *FileSystemStore) GetChunks(_ context.Context, ids []string) ([]ragmodel.DocumentChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ragmodel.DocumentChunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := s.chunks[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *FileSystemStore) GetAll(_ context.Context, documentID string) ([]ragmodel.DocumentChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byDoc[documentID]
	out := make([]ragmodel.DocumentChunk, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.chunks[id])
	}
	sortByIndex(out)
	return out, nil
}

func (s *FileSystemStore) Dim() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vectorDim
}

func (s *FileSystemStore) ClearEmbeddings(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	touched := make(map[string]bool)
	for id, c := range s.chunks {
		c.Embedding = nil
		s.chunks[id] = c
		touched[c.DocumentID] = true
	}
	s.vectorDim = 0

	for docID := range touched {
		if err := s.writeDocument(docID); err != nil {
			return err
		}
	}
	return nil
}

func (s *FileSystemStore) ClearAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for docID := range s.byDoc {
		if err := os.Remove(s.path(docID)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("chunk store: remove %s: %w", docID, err)
		}
	}

	s.chunks = make(map[string]ragmodel.DocumentChunk)
	s.byDoc = make(map[string][]string)
	s.documents = make(map[string]ragmodel.Document)
	s.vectorDim = 0

	return s.writeDocuments()
}

func (s *FileSystemStore) PutDocument(_ context.Context, doc ragmodel.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.documents[doc.ID] = doc
	return s.writeDocuments()
}

func (s *FileSystemStore) ListDocuments(_ context.Context) ([]ragmodel.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ragmodel.Document, 0, len(s.documents))
	for _, d := range s.documents {
		out = append(out, d)
	}
	return out, nil
}

func (s *FileSystemStore) RemoveDocument(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.documents, documentID)
	return s.writeDocuments()
}

func (s *FileSystemStore) Close() error { return nil }
