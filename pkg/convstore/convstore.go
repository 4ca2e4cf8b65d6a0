// Package convstore is the Conversation Store (C10): a per-session
// append-only message log, bounded by turn count and token budget,
// pruned oldest-first. Session-control commands reset the log and
// return a fresh session id. Grounded on the teacher's session store
// contract (Store interface, in-memory/SQLite backend split) adapted
// from agent sessions to RAG query/answer turns.
package convstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/byerlikaya/smartrag/pkg/ragerr"
	"github.com/byerlikaya/smartrag/pkg/ragmodel"
	"github.com/byerlikaya/smartrag/pkg/sqliteutil"
)

// Bounds configures pruning: MaxMessages caps the number of retained
// messages (each Message counts once, whatever its role); MaxTokens caps
// the aggregate text size of the retained log.
type Bounds struct {
	MaxMessages int
	MaxTokens   int
}

func DefaultBounds() Bounds { return Bounds{MaxMessages: 200, MaxTokens: 8000} }

// Store is the Conversation Store contract.
type Store interface {
	// Append adds a message to sessionID, creating the session implicitly
	// on its first message, and prunes oldest-first if bounds are exceeded.
	Append(ctx context.Context, sessionID string, msg ragmodel.Message) error
	Get(ctx context.Context, sessionID string) (ragmodel.Session, error)
	// Reset implements /new, /reset, /clear: it discards sessionID's log
	// and returns a fresh session id.
	Reset(ctx context.Context, sessionID string) (string, error)
	Close() error
}

// per-session lock ordering: a dedicated mutex for each session id
// guarantees single-writer-per-session without serializing unrelated
// sessions behind a single store-wide lock.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sync.Mutex)}
}

func (s *sessionLocks) get(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func estimateTokens(s string) int {
	n := len(strings.TrimSpace(s))
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}

// prune drops oldest messages until both bounds are satisfied.
func prune(messages []ragmodel.Message, bounds Bounds) []ragmodel.Message {
	if bounds.MaxMessages > 0 && len(messages) > bounds.MaxMessages {
		messages = messages[len(messages)-bounds.MaxMessages:]
	}
	if bounds.MaxTokens <= 0 {
		return messages
	}

	var total int
	for _, m := range messages {
		total += estimateTokens(m.Text)
	}
	start := 0
	for total > bounds.MaxTokens && start < len(messages)-1 {
		total -= estimateTokens(messages[start].Text)
		start++
	}
	return messages[start:]
}

// MemoryStore is the in-memory Conversation Store backend.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]ragmodel.Session
	bounds   Bounds
	locks    *sessionLocks
}

func NewMemoryStore(bounds Bounds) *MemoryStore {
	return &MemoryStore{sessions: make(map[string]ragmodel.Session), bounds: bounds, locks: newSessionLocks()}
}

func (m *MemoryStore) Append(_ context.Context, sessionID string, msg ragmodel.Message) error {
	lock := m.locks.get(sessionID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[sessionID]
	if !ok {
		sess = ragmodel.Session{ID: sessionID, CreatedAt: time.Now().UTC()}
	}
	sess.Messages = append(sess.Messages, msg)
	sess.Messages = prune(sess.Messages, m.bounds)
	m.sessions[sessionID] = sess
	return nil
}

func (m *MemoryStore) Get(_ context.Context, sessionID string) (ragmodel.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, ok := m.sessions[sessionID]
	if !ok {
		return ragmodel.Session{ID: sessionID}, nil
	}
	return sess, nil
}

func (m *MemoryStore) Reset(_ context.Context, sessionID string) (string, error) {
	lock := m.locks.get(sessionID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)

	return uuid.NewString(), nil
}

func (m *MemoryStore) Close() error { return nil }

// SQLiteStore persists the conversation log in a single SQLite file, one
// row per message ordered by an auto-increment sequence column.
type SQLiteStore struct {
	db     *sql.DB
	bounds Bounds
	locks  *sessionLocks
}

func NewSQLiteStore(path string, bounds Bounds) (*SQLiteStore, error) {
	db, err := sqliteutil.OpenDB(path)
	if err != nil {
		return nil, fmt.Errorf("convstore: open sqlite: %w", err)
	}

	const schema = `
	CREATE TABLE IF NOT EXISTS conversation_messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		text TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conv_session ON conversation_messages(session_id, seq);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("convstore: create schema: %w", err)
	}

	return &SQLiteStore{db: db, bounds: bounds, locks: newSessionLocks()}, nil
}

func (s *SQLiteStore) Append(ctx context.Context, sessionID string, msg ragmodel.Message) error {
	lock := s.locks.get(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO conversation_messages (session_id, role, text, created_at) VALUES (?, ?, ?, ?)`,
		sessionID, msg.Role, msg.Text, msg.Timestamp); err != nil {
		return fmt.Errorf("convstore: append: %w", err)
	}

	return s.pruneLocked(ctx, sessionID)
}

func (s *SQLiteStore) pruneLocked(ctx context.Context, sessionID string) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, text FROM conversation_messages WHERE session_id = ? ORDER BY seq ASC`, sessionID)
	if err != nil {
		return err
	}
	var seqs []int64
	var texts []string
	for rows.Next() {
		var seq int64
		var text string
		if err := rows.Scan(&seq, &text); err != nil {
			rows.Close()
			return err
		}
		seqs = append(seqs, seq)
		texts = append(texts, text)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	dropCount := 0
	if s.bounds.MaxMessages > 0 && len(seqs) > s.bounds.MaxMessages {
		dropCount = len(seqs) - s.bounds.MaxMessages
	}
	if s.bounds.MaxTokens > 0 {
		var total int
		for _, t := range texts {
			total += estimateTokens(t)
		}
		i := dropCount
		for total > s.bounds.MaxTokens && i < len(texts)-1 {
			total -= estimateTokens(texts[i])
			i++
		}
		dropCount = i
	}
	if dropCount == 0 {
		return nil
	}

	cutoff := seqs[dropCount-1]
	_, err = s.db.ExecContext(ctx,
		`DELETE FROM conversation_messages WHERE session_id = ? AND seq <= ?`, sessionID, cutoff)
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, sessionID string) (ragmodel.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, text, created_at FROM conversation_messages WHERE session_id = ? ORDER BY seq ASC`, sessionID)
	if err != nil {
		return ragmodel.Session{}, fmt.Errorf("convstore: get: %w", err)
	}
	defer rows.Close()

	sess := ragmodel.Session{ID: sessionID}
	for rows.Next() {
		var msg ragmodel.Message
		if err := rows.Scan(&msg.Role, &msg.Text, &msg.Timestamp); err != nil {
			return ragmodel.Session{}, err
		}
		sess.Messages = append(sess.Messages, msg)
	}
	return sess, rows.Err()
}

func (s *SQLiteStore) Reset(ctx context.Context, sessionID string) (string, error) {
	lock := s.locks.get(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversation_messages WHERE session_id = ?`, sessionID); err != nil {
		return "", fmt.Errorf("convstore: reset: %w", err)
	}
	return uuid.NewString(), nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// New dispatches to the configured backend, mirroring the Chunk Store's
// Backend enum (spec §4.10: "Storage backends mirror the Chunk Store options").
func New(backend string, path string, bounds Bounds) (Store, error) {
	switch backend {
	case "", "memory":
		return NewMemoryStore(bounds), nil
	case "sqlite":
		return NewSQLiteStore(path, bounds)
	case "filesystem":
		return nil, ragerr.New(ragerr.ConfigMissing, "filesystem conversation store backend is not implemented; use memory or sqlite")
	default:
		return nil, ragerr.New(ragerr.ConfigMissing, "unknown conversation store backend: "+backend)
	}
}
