// Package history persists conversation transcripts and summaries in SQLite.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"llamachat/internal/common/fsutil"
)

// Message is one persisted turn.
type Message struct {
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Text           string    `json:"text"`
	Stopped        bool      `json:"stopped,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Store wraps a SQLite database holding messages and summaries.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens (and initializes) the database at path. ":memory:" keeps the
// store in memory.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("history path is empty")
	}
	dsn := "file::memory:?_pragma=busy_timeout(5000)"
	if path != ":memory:" {
		if err := fsutil.EnsureParentDir(path); err != nil {
			return nil, err
		}
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}
	// one connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)
	if err := bootstrap(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func bootstrap(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT NOT NULL,
			role TEXT NOT NULL,
			text TEXT NOT NULL,
			stopped INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS messages_conv ON messages (conversation_id, id);
		CREATE TABLE IF NOT EXISTS summaries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT NOT NULL,
			text TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS summaries_conv ON summaries (conversation_id, id);
	`); err != nil {
		return fmt.Errorf("create history tables: %w", err)
	}
	return nil
}

// SaveMessage appends m to conversation convID.
func (s *Store) SaveMessage(convID string, m Message) error {
	if convID == "" || m.Role == "" {
		return errors.New("conversation id and role are required")
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return errors.New("history store is closed")
	}
	_, err := s.db.Exec(
		`INSERT INTO messages (conversation_id, role, text, stopped, created_at) VALUES (?, ?, ?, ?, ?)`,
		convID, m.Role, m.Text, m.Stopped, m.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

// SaveSummary stores text as the newest summary of convID.
func (s *Store) SaveSummary(convID, text string) error {
	if convID == "" {
		return errors.New("conversation id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return errors.New("history store is closed")
	}
	if _, err := s.db.Exec(
		`INSERT INTO summaries (conversation_id, text, created_at) VALUES (?, ?, ?)`,
		convID, text, time.Now().UnixMilli(),
	); err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	return nil
}

// Messages returns the latest limit messages of convID in chronological
// order. A non-positive limit returns all of them.
func (s *Store) Messages(convID string, limit int) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, errors.New("history store is closed")
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`
		SELECT role, text, stopped, created_at FROM (
			SELECT id, role, text, stopped, created_at FROM messages
			WHERE conversation_id = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, convID, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var (
			m  Message
			ts int64
		)
		if err := rows.Scan(&m.Role, &m.Text, &m.Stopped, &ts); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.ConversationID = convID
		m.CreatedAt = time.UnixMilli(ts)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}

// LatestSummary returns the newest summary of convID; ok is false when none exists.
func (s *Store) LatestSummary(convID string) (text string, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return "", false, errors.New("history store is closed")
	}
	err = s.db.QueryRow(
		`SELECT text FROM summaries WHERE conversation_id = ? ORDER BY id DESC LIMIT 1`, convID,
	).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query summary: %w", err)
	}
	return text, true, nil
}

// Close closes the database. Further calls fail.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Recorder binds the store to one conversation. It implements
// conversation.Recorder.
type Recorder struct {
	store *Store
	id    string
}

// Recorder returns a Recorder writing to conversation convID.
func (s *Store) Recorder(convID string) *Recorder { return &Recorder{store: s, id: convID} }

// RecordMessage saves one finished turn.
func (r *Recorder) RecordMessage(role, text string, stopped bool) error {
	return r.store.SaveMessage(r.id, Message{Role: role, Text: text, Stopped: stopped})
}

// RecordSummary saves a new summary.
func (r *Recorder) RecordSummary(text string) error {
	return r.store.SaveSummary(r.id, text)
}
