// Package store persists agent state in SQLite: per-author reply records,
// the bounded reply-history log, and background queue progress.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"xagent/internal/config"
	"xagent/internal/logging"
)

// HistoryLimit bounds the reply-history log; the oldest entry is evicted
// when an insert would exceed it.
const HistoryLimit = 500

// HistoryEntry is one row of the reply-history log.
type HistoryEntry struct {
	ID        int64
	Timestamp int64 // epoch millis
	Author    string
	Tone      string
}

// AuthorReply is the persisted last-reply record for one author.
type AuthorReply struct {
	Handle      string
	LastReplyMS int64
}

// Store wraps the SQLite database. A single connection is shared; the mutex
// serializes multi-statement writes.
type Store struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// Open opens (creating if needed) the database at path and applies the
// schema.
func Open(path string) (*Store, error) {
	log := logging.Get(logging.CategoryLedger)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			log.Debugf("pragma failed: %s: %v", pragma, err)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	log.Debugw("store opened", "path", path)
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS author_replies (
		handle        TEXT PRIMARY KEY,
		last_reply_ms INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS reply_history (
		id     INTEGER PRIMARY KEY AUTOINCREMENT,
		ts_ms  INTEGER NOT NULL,
		author TEXT NOT NULL,
		tone   TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS queues (
		name   TEXT PRIMARY KEY,
		items  TEXT NOT NULL,
		cursor INTEGER NOT NULL
	);`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// UpsertAuthorReply records a reply to handle at tsMS, replacing any earlier
// record for the same normalized handle.
func (s *Store) UpsertAuthorReply(handle string, tsMS int64) error {
	handle = config.NormalizeHandle(handle)
	_, err := s.db.Exec(`
		INSERT INTO author_replies (handle, last_reply_ms) VALUES (?, ?)
		ON CONFLICT(handle) DO UPDATE SET last_reply_ms = excluded.last_reply_ms`,
		handle, tsMS)
	if err != nil {
		return fmt.Errorf("upsert author reply: %w", err)
	}
	return nil
}

// LastReply returns the last-reply timestamp for handle, with found=false
// when no record exists.
func (s *Store) LastReply(handle string) (tsMS int64, found bool, err error) {
	row := s.db.QueryRow(`SELECT last_reply_ms FROM author_replies WHERE handle = ?`,
		config.NormalizeHandle(handle))
	switch err = row.Scan(&tsMS); err {
	case nil:
		return tsMS, true, nil
	case sql.ErrNoRows:
		return 0, false, nil
	default:
		return 0, false, fmt.Errorf("query author reply: %w", err)
	}
}

// AuthorReplies returns every persisted author record.
func (s *Store) AuthorReplies() ([]AuthorReply, error) {
	rows, err := s.db.Query(`SELECT handle, last_reply_ms FROM author_replies ORDER BY handle`)
	if err != nil {
		return nil, fmt.Errorf("query author replies: %w", err)
	}
	defer rows.Close()

	var out []AuthorReply
	for rows.Next() {
		var r AuthorReply
		if err := rows.Scan(&r.Handle, &r.LastReplyMS); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// AppendHistory appends one history entry, evicting the oldest rows beyond
// HistoryLimit.
func (s *Store) AppendHistory(tsMS int64, author, tone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT INTO reply_history (ts_ms, author, tone) VALUES (?, ?, ?)`,
		tsMS, author, tone); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	if _, err := tx.Exec(`
		DELETE FROM reply_history WHERE id NOT IN (
			SELECT id FROM reply_history ORDER BY id DESC LIMIT ?)`, HistoryLimit); err != nil {
		return fmt.Errorf("trim history: %w", err)
	}
	return tx.Commit()
}

// History returns up to limit entries, newest first. limit <= 0 means all.
func (s *Store) History(limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = HistoryLimit
	}
	rows, err := s.db.Query(`
		SELECT id, ts_ms, author, tone FROM reply_history ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Author, &e.Tone); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// HistoryCount returns the number of retained history entries.
func (s *Store) HistoryCount() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM reply_history`).Scan(&n)
	return n, err
}

// ReplyCount returns the number of authors ever replied to.
func (s *Store) ReplyCount() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM author_replies`).Scan(&n)
	return n, err
}

// ClearHistory removes all author records and history entries.
func (s *Store) ClearHistory() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM author_replies`); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM reply_history`); err != nil {
		return err
	}
	return tx.Commit()
}

// QueueState is the persisted progress of one background queue.
type QueueState struct {
	Items  []string
	Cursor int
}

// SaveQueue persists a queue's items and cursor under name.
func (s *Store) SaveQueue(name string, state QueueState) error {
	items, err := json.Marshal(state.Items)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO queues (name, items, cursor) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET items = excluded.items, cursor = excluded.cursor`,
		name, string(items), state.Cursor)
	if err != nil {
		return fmt.Errorf("save queue %s: %w", name, err)
	}
	return nil
}

// LoadQueue loads a queue's persisted state; a missing queue comes back
// empty with cursor 0.
func (s *Store) LoadQueue(name string) (QueueState, error) {
	var itemsJSON string
	var state QueueState
	row := s.db.QueryRow(`SELECT items, cursor FROM queues WHERE name = ?`, name)
	switch err := row.Scan(&itemsJSON, &state.Cursor); err {
	case nil:
	case sql.ErrNoRows:
		return QueueState{}, nil
	default:
		return QueueState{}, fmt.Errorf("load queue %s: %w", name, err)
	}
	if err := json.Unmarshal([]byte(itemsJSON), &state.Items); err != nil {
		return QueueState{}, fmt.Errorf("decode queue %s: %w", name, err)
	}
	return state, nil
}
