package store

import (
	"encoding/json"
	"fmt"
	"os"

	"xagent/internal/config"
	"xagent/internal/logging"
)

// legacyRecord accepts both shapes found in old state files: a bare handle
// string, or an object with username and timestamp.
type legacyRecord struct {
	Username  string `json:"username"`
	Timestamp int64  `json:"timestamp"`
}

func (r *legacyRecord) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		// Bare handle string: no timestamp was ever recorded.
		r.Timestamp = 0
		return json.Unmarshal(data, &r.Username)
	}
	type plain legacyRecord
	return json.Unmarshal(data, (*plain)(r))
}

// ImportLegacy upgrades an old JSON state file into author_replies. Bare
// handle strings become records with timestamp 0 (always stale, never
// fresh). Existing newer records win, so repeated imports are harmless. A
// missing file is not an error.
func (s *Store) ImportLegacy(path string) (int, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read legacy state: %w", err)
	}

	var records []legacyRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return 0, fmt.Errorf("decode legacy state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	imported := 0
	for _, r := range records {
		handle := config.NormalizeHandle(r.Username)
		if handle == "" {
			continue
		}
		res, err := tx.Exec(`
			INSERT INTO author_replies (handle, last_reply_ms) VALUES (?, ?)
			ON CONFLICT(handle) DO UPDATE SET last_reply_ms = excluded.last_reply_ms
			WHERE excluded.last_reply_ms > author_replies.last_reply_ms`,
			handle, r.Timestamp)
		if err != nil {
			return 0, fmt.Errorf("import %s: %w", handle, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			imported++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	logging.Get(logging.CategoryLedger).Infow("legacy state imported",
		"path", path, "records", len(records), "applied", imported)
	return imported, nil
}
