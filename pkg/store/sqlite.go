package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/byerlikaya/smartrag/pkg/ragmodel"
	"github.com/byerlikaya/smartrag/pkg/sqliteutil"
)

// SQLiteStore is the single-file Chunk Store backend, grounded on the
// chunked-embeddings vector database: one chunks table keyed by chunk id
// and indexed by document_id, embeddings serialized as JSON in a BLOB
// column. modernc.org/sqlite's pure-Go driver keeps the module
// cgo-free; sqliteutil.OpenDB configures WAL + a single-writer pool.
type SQLiteStore struct {
	db        *sql.DB
	vectorDim int
}

func NewSQLiteStore(path string, vectorDim int) (*SQLiteStore, error) {
	db, err := sqliteutil.OpenDB(path)
	if err != nil {
		return nil, fmt.Errorf("chunk store: open sqlite: %w", err)
	}

	s := &SQLiteStore{db: db, vectorDim: vectorDim}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("chunk store: create schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		content TEXT NOT NULL,
		embedding BLOB,
		metadata TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_document_id ON chunks(document_id);
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		record TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) UpsertChunks(ctx context.Context, chunks []ragmodel.DocumentChunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, c := range chunks {
		if s.vectorDim == 0 && len(c.Embedding) > 0 {
			s.vectorDim = len(c.Embedding)
		}

		embJSON, err := json.Marshal(c.Embedding)
		if err != nil {
			return fmt.Errorf("marshal embedding: %w", err)
		}
		metaJSON, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO chunks (id, document_id, chunk_index, content, embedding, metadata)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				document_id = excluded.document_id,
				chunk_index = excluded.chunk_index,
				content = excluded.content,
				embedding = excluded.embedding,
				metadata = excluded.metadata`,
			c.ID, c.DocumentID, c.Index, c.Content, embJSON, metaJSON)
		if err != nil {
			return fmt.Errorf("upsert chunk %s: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID)
	return err
}

func (s *SQLiteStore) TopK(ctx context.Context, queryVec []float32, k int, filter Filter) ([]ScoredChunk, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, document_id, chunk_index, content, embedding, metadata FROM chunks`)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var results []ScoredChunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		if filter != nil && !filter(c) {
			continue
		}
		if !c.ValidEmbedding(s.vectorDim) || len(c.Embedding) == 0 {
			continue
		}
		results = append(results, ScoredChunk{Chunk: c, Score: cosineSimilarity(queryVec, c.Embedding)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sortAndTrim(results, k), nil
}

func (s *SQLiteStore) GetChunks(ctx context.Context, ids []string) ([]ragmodel.DocumentChunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	out := make([]ragmodel.DocumentChunk, 0, len(ids))
	for _, id := range ids {
		row := s.db.QueryRowContext(ctx, `SELECT id, document_id, chunk_index, content, embedding, metadata FROM chunks WHERE id = ?`, id)
		c, err := scanChunkRow(row)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *SQLiteStore) GetAll(ctx context.Context, documentID string) ([]ragmodel.DocumentChunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, chunk_index, content, embedding, metadata FROM chunks WHERE document_id = ? ORDER BY chunk_index ASC`,
		documentID)
	if err != nil {
		return nil, fmt.Errorf("query document chunks: %w", err)
	}
	defer rows.Close()

	var out []ragmodel.DocumentChunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Dim() int { return s.vectorDim }

func (s *SQLiteStore) ClearEmbeddings(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE chunks SET embedding = NULL`); err != nil {
		return fmt.Errorf("clear embeddings: %w", err)
	}
	s.vectorDim = 0
	return nil
}

func (s *SQLiteStore) ClearAll(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents`); err != nil {
		return fmt.Errorf("clear documents: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.vectorDim = 0
	return nil
}

func (s *SQLiteStore) PutDocument(ctx context.Context, doc ragmodel.Document) error {
	record, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document %s: %w", doc.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (id, record) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET record = excluded.record`,
		doc.ID, record)
	if err != nil {
		return fmt.Errorf("upsert document %s: %w", doc.ID, err)
	}
	return nil
}

func (s *SQLiteStore) ListDocuments(ctx context.Context) ([]ragmodel.Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT record FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var out []ragmodel.Document
	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			return nil, err
		}
		var doc ragmodel.Document
		if err := json.Unmarshal(record, &doc); err != nil {
			return nil, fmt.Errorf("unmarshal document: %w", err)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) RemoveDocument(ctx context.Context, documentID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, documentID)
	return err
}

func (s *SQLiteStore) Close() error {
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		slog.Warn("chunk store: failed to checkpoint WAL before close", "error", err)
	}
	return s.db.Close()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanChunk(rows *sql.Rows) (ragmodel.DocumentChunk, error) {
	return scanChunkRow(rows)
}

func scanChunkRow(row scannable) (ragmodel.DocumentChunk, error) {
	var c ragmodel.DocumentChunk
	var embJSON, metaJSON []byte

	if err := row.Scan(&c.ID, &c.DocumentID, &c.Index, &c.Content, &embJSON, &metaJSON); err != nil {
		return c, err
	}
	if len(embJSON) > 0 {
		if err := json.Unmarshal(embJSON, &c.Embedding); err != nil {
			return c, fmt.Errorf("unmarshal embedding: %w", err)
		}
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &c.Metadata); err != nil {
			return c, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return c, nil
}
