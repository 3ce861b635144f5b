// Package prefs is the client's local key-value store: search history,
// display preferences and the persisted session token.
package prefs

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Well-known keys.
const (
	KeySearchHistory = "searchHistory"
	KeyDisplay       = "display"
	KeySession       = "session"
)

// MaxSearchHistory bounds the recent-search list.
const MaxSearchHistory = 10

// Store is a SQLite-backed key-value table. Values are JSON.
// Thread-safety: all methods are safe for concurrent use.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Display holds presentation preferences.
type Display struct {
	Theme string `json:"theme"` // "dark" | "light"
	Font  string `json:"font"`  // "normal" | "large"
}

// DefaultDisplay is used until the user stores something else.
func DefaultDisplay() Display {
	return Display{Theme: "dark", Font: "normal"}
}

// Open creates or opens the store at dbPath (":memory:" for tests).
func Open(dbPath string) (*Store, error) {
	connStr := dbPath
	if dbPath == ":memory:" {
		connStr = "file:prefs-" + uuid.NewString() + "?mode=memory&cache=shared"
	}
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open prefs: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping prefs: %w", err)
	}
	_, err = db.Exec(`
	CREATE TABLE IF NOT EXISTS prefs (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create prefs table: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Get decodes the value at key into v. It reports false when the key is unset.
func (s *Store) Get(key string, v any) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var raw string
	err := s.db.QueryRow(`SELECT value FROM prefs WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// Set stores v at key.
func (s *Store) Set(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(`
		INSERT INTO prefs (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(raw), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Missing keys are not an error.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(`DELETE FROM prefs WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// SearchHistory returns recent queries, most recent first.
func (s *Store) SearchHistory() ([]string, error) {
	var h []string
	if _, err := s.Get(KeySearchHistory, &h); err != nil {
		return nil, err
	}
	return h, nil
}

// AddSearch records q at the front of the history, removing an earlier copy
// and trimming to MaxSearchHistory. Blank queries are ignored. The updated
// history is returned.
func (s *Store) AddSearch(q string) ([]string, error) {
	q = strings.TrimSpace(q)
	h, err := s.SearchHistory()
	if err != nil {
		return nil, err
	}
	if q == "" {
		return h, nil
	}
	h = PushHistory(h, q)
	if err := s.Set(KeySearchHistory, h); err != nil {
		return nil, err
	}
	return h, nil
}

// ClearSearchHistory forgets every recent query.
func (s *Store) ClearSearchHistory() error {
	return s.Delete(KeySearchHistory)
}

// PushHistory is the pure list update behind AddSearch.
func PushHistory(h []string, q string) []string {
	out := make([]string, 0, MaxSearchHistory)
	out = append(out, q)
	for _, old := range h {
		if old == q {
			continue
		}
		if len(out) == MaxSearchHistory {
			break
		}
		out = append(out, old)
	}
	return out
}

// Display returns stored display preferences over the defaults.
func (s *Store) Display() (Display, error) {
	d := DefaultDisplay()
	if _, err := s.Get(KeyDisplay, &d); err != nil {
		return DefaultDisplay(), err
	}
	return d, nil
}

// SetDisplay stores display preferences.
func (s *Store) SetDisplay(d Display) error {
	return s.Set(KeyDisplay, d)
}

// SessionToken returns the persisted session token, or "".
func (s *Store) SessionToken() (string, error) {
	var tok string
	_, err := s.Get(KeySession, &tok)
	return tok, err
}

// SetSessionToken persists tok; "" clears it.
func (s *Store) SetSessionToken(tok string) error {
	if tok == "" {
		return s.Delete(KeySession)
	}
	return s.Set(KeySession, tok)
}
