package settings

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned by a Medium for a key with no record.
var ErrNotFound = errors.New("settings record not found")

// Medium stores records by key. Write must be atomic: a reader sees either
// the old record or the new one.
type Medium interface {
	Read(key string) ([]byte, error)
	Write(key string, data []byte) error
	Delete(key string) error
	Keys() ([]string, error)
}

const fileExt = ".json"

// FileMedium stores one JSON file per key in a directory.
type FileMedium struct {
	dir string
}

var _ Medium = (*FileMedium)(nil)

// NewFileMedium creates a medium rooted at dir. The directory is created on
// first write.
func NewFileMedium(dir string) *FileMedium {
	return &FileMedium{dir: dir}
}

func (m *FileMedium) path(key string) string {
	return filepath.Join(m.dir, key+fileExt)
}

// Read returns the record for key.
func (m *FileMedium) Read(key string) ([]byte, error) {
	data, err := os.ReadFile(m.path(key))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	return data, err
}

// Write replaces the record for key through a temporary file and rename.
func (m *FileMedium) Write(key string, data []byte) error {
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(m.dir, "."+key+"-*.tmp")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, m.path(key)); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}

// Delete removes the record for key. Missing records are not an error.
func (m *FileMedium) Delete(key string) error {
	err := os.Remove(m.path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Keys lists stored keys in lexical order.
func (m *FileMedium) Keys() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fileExt) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, fileExt))
	}
	sort.Strings(keys)
	return keys, nil
}

// SQLiteMedium stores records in a SQLite table.
type SQLiteMedium struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ Medium = (*SQLiteMedium)(nil)

// NewSQLiteMedium opens the database at path. Use ":memory:" for an
// in-memory database.
func NewSQLiteMedium(path string) (*SQLiteMedium, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS device_settings (
			key TEXT PRIMARY KEY,
			data BLOB NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &SQLiteMedium{db: db}, nil
}

// Close closes the database.
func (m *SQLiteMedium) Close() error {
	return m.db.Close()
}

// Read returns the record for key.
func (m *SQLiteMedium) Read(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var data []byte
	err := m.db.QueryRow(`SELECT data FROM device_settings WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return data, err
}

// Write upserts the record for key in a transaction.
func (m *SQLiteMedium) Write(key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	_, err = tx.Exec(`
		INSERT INTO device_settings (key, data, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, key, data)
	if err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Delete removes the record for key.
func (m *SQLiteMedium) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.db.Exec(`DELETE FROM device_settings WHERE key = ?`, key)
	return err
}

// Keys lists stored keys in lexical order.
func (m *SQLiteMedium) Keys() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows, err := m.db.Query(`SELECT key FROM device_settings ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
