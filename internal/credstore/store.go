// Package credstore keeps the classification API key in a small SQLite
// database and tells listeners when it changes, including changes written
// by another slopwatch process.
package credstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const schema = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;
PRAGMA busy_timeout = 5000;

CREATE TABLE IF NOT EXISTS settings (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at TEXT NOT NULL DEFAULT ''
);
`

const apiKeyName = "openai_api_key"

// KeyPrefix is the expected prefix of an API key.
const KeyPrefix = "sk-"

var (
	ErrEmptyKey  = errors.New("api key is empty")
	ErrKeyFormat = errors.New("api key must start with " + KeyPrefix)
)

// ValidateKey checks the key the way the settings surface does. The watcher
// does not depend on it.
func ValidateKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrEmptyKey
	}
	if !strings.HasPrefix(key, KeyPrefix) {
		return ErrKeyFormat
	}
	return nil
}

// Mask shows the first 7 and last 4 characters of key.
func Mask(key string) string {
	if len(key) <= 11 {
		return strings.Repeat("*", len(key))
	}
	return key[:7] + "..." + key[len(key)-4:]
}

type Store struct {
	db   *sql.DB
	path string
	log  *zap.Logger

	mu        sync.Mutex
	listeners []func(string)
	last      string
}

func Open(dbPath string, log *zap.Logger) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}

	s := &Store{db: db, path: dbPath, log: log}
	s.last, _, _ = s.Get()
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Path() string {
	return s.path
}

// Get returns the stored key and whether one is set.
func (s *Store) Get() (string, bool, error) {
	var v string
	err := s.db.QueryRow("SELECT value FROM settings WHERE key = ?", apiKeyName).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, v != "", nil
}

// Set stores key and notifies listeners.
func (s *Store) Set(key string) error {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO settings (key, value, updated_at) VALUES (?, ?, ?)",
		apiKeyName, key, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("save key: %w", err)
	}
	s.changed(key)
	return nil
}

// Clear removes the key and notifies listeners with an empty value.
func (s *Store) Clear() error {
	if _, err := s.db.Exec("DELETE FROM settings WHERE key = ?", apiKeyName); err != nil {
		return fmt.Errorf("clear key: %w", err)
	}
	s.changed("")
	return nil
}

// OnChange registers fn to run with the new value whenever the key changes.
func (s *Store) OnChange(fn func(string)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

func (s *Store) changed(v string) {
	s.mu.Lock()
	if v == s.last {
		s.mu.Unlock()
		return
	}
	s.last = v
	listeners := append([]func(string){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(v)
	}
}

// reload re-reads the key and notifies listeners if another writer changed it.
func (s *Store) reload() {
	v, _, err := s.Get()
	if err != nil {
		s.log.Warn("reload credential", zap.Error(err))
		return
	}
	s.changed(v)
}

// Watch picks up changes written by other processes until ctx is done.
// Filesystem events on the database files trigger a reload; poll is a
// fallback interval for filesystems without notification support.
func (s *Store) Watch(ctx context.Context, poll time.Duration) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	dir := filepath.Dir(s.path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	if poll <= 0 {
		poll = 5 * time.Second
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	base := filepath.Base(s.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			// db, db-wal and db-shm
			if !strings.HasPrefix(filepath.Base(ev.Name), base) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				s.reload()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.log.Warn("credential watcher", zap.Error(err))
		case <-ticker.C:
			s.reload()
		}
	}
}
