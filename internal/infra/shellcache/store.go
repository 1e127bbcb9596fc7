// Package shellcache keeps the app shell (index page, script, stylesheet,
// web manifest, icons) in SQLite so it can be served while the upstream
// static server or disk is unavailable.
package shellcache

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/rs/zerolog/log"
)

const (
	// CurrentSchemaVersion is the current database schema version.
	CurrentSchemaVersion = "1"

	// DefaultDBPath is the default path for the cache database.
	DefaultDBPath = "data/shell.db"
)

// ErrNotOpen is returned when the database is used before Open.
var ErrNotOpen = errors.New("database not open")

// Entry is one cached response.
type Entry struct {
	Path        string
	Status      int
	ContentType string
	Body        []byte
	StoredAt    time.Time
}

// Stats summarizes the store.
type Stats struct {
	SchemaVersion string
	Caches        map[string]int
	Entries       int
	Bytes         int64
}

// DB is the SQLite store behind the shell cache.
type DB struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
}

// NewDB creates a new store instance.
func NewDB(path string) *DB {
	if path == "" {
		path = DefaultDBPath
	}
	return &DB{
		path: path,
	}
}

// Open opens the database and initializes the schema.
func (d *DB) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	dir := filepath.Dir(d.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite3", d.path+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("failed to open cache database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	d.db = db

	if err := d.initSchema(); err != nil {
		d.db.Close()
		d.db = nil
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Info().Str("path", d.path).Msg("Shell cache database opened")
	return nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db != nil {
		err := d.db.Close()
		d.db = nil
		return err
	}
	return nil
}

func (d *DB) initSchema() error {
	currentVersion := d.getMeta("schema_version")

	if currentVersion == "" {
		if err := d.createSchema(); err != nil {
			return err
		}
		return d.setMeta("schema_version", CurrentSchemaVersion)
	}

	if currentVersion != CurrentSchemaVersion {
		log.Info().
			Str("current", currentVersion).
			Str("target", CurrentSchemaVersion).
			Msg("Migrating shell cache schema")
		return d.setMeta("schema_version", CurrentSchemaVersion)
	}

	return nil
}

func (d *DB) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		cache_name TEXT NOT NULL,
		path TEXT NOT NULL,
		status INTEGER NOT NULL,
		content_type TEXT,
		body BLOB,
		stored_at TEXT NOT NULL,
		PRIMARY KEY (cache_name, path)
	);

	CREATE TABLE IF NOT EXISTS cache_meta (
		key TEXT PRIMARY KEY,
		value TEXT,
		updated_at TEXT DEFAULT CURRENT_TIMESTAMP
	);
	`

	if _, err := d.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	log.Info().Msg("Shell cache schema created")
	return nil
}

// getMeta returns "" when the key or the table is missing.
func (d *DB) getMeta(key string) string {
	var value string
	if err := d.db.QueryRow("SELECT value FROM cache_meta WHERE key = ?", key).Scan(&value); err != nil {
		return ""
	}
	return value
}

func (d *DB) setMeta(key, value string) error {
	now := time.Now().Format(time.RFC3339)
	_, err := d.db.Exec(`
		INSERT INTO cache_meta (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = ?, updated_at = ?
	`, key, value, now, value, now)
	return err
}

// Get returns the entry for path in cacheName.
func (d *DB) Get(cacheName, path string) (*Entry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.db == nil {
		return nil, ErrNotOpen
	}

	e := &Entry{Path: path}
	var contentType sql.NullString
	var storedAt string
	err := d.db.QueryRow(
		"SELECT status, content_type, body, stored_at FROM entries WHERE cache_name = ? AND path = ?",
		cacheName, path,
	).Scan(&e.Status, &contentType, &e.Body, &storedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.ContentType = contentType.String
	e.StoredAt, _ = time.Parse(time.RFC3339, storedAt)
	return e, nil
}

// Put stores entries in cacheName atomically.
func (d *DB) Put(cacheName string, entries ...Entry) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return ErrNotOpen
	}

	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().Format(time.RFC3339)
	for _, e := range entries {
		if e.Status == 0 {
			e.Status = http.StatusOK
		}
		if _, err := tx.Exec(`
			INSERT INTO entries (cache_name, path, status, content_type, body, stored_at) VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(cache_name, path) DO UPDATE SET status = excluded.status, content_type = excluded.content_type,
				body = excluded.body, stored_at = excluded.stored_at
		`, cacheName, e.Path, e.Status, e.ContentType, e.Body, now); err != nil {
			return fmt.Errorf("failed to store %s: %w", e.Path, err)
		}
	}

	return tx.Commit()
}

// CacheNames returns every cache name present in the store.
func (d *DB) CacheNames() ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.db == nil {
		return nil, ErrNotOpen
	}

	rows, err := d.db.Query("SELECT DISTINCT cache_name FROM entries ORDER BY cache_name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// DeleteCaches removes every entry of the named caches.
func (d *DB) DeleteCaches(names ...string) error {
	if len(names) == 0 {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return ErrNotOpen
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(names)), ",")
	args := make([]any, len(names))
	for i, n := range names {
		args[i] = n
	}
	if _, err := d.db.Exec("DELETE FROM entries WHERE cache_name IN ("+placeholders+")", args...); err != nil {
		return fmt.Errorf("failed to delete caches: %w", err)
	}
	return d.setMeta("last_purge", time.Now().Format(time.RFC3339))
}

// GetStats returns store statistics.
func (d *DB) GetStats() (*Stats, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.db == nil {
		return nil, ErrNotOpen
	}

	stats := &Stats{
		SchemaVersion: d.getMeta("schema_version"),
		Caches:        make(map[string]int),
	}

	rows, err := d.db.Query("SELECT cache_name, COUNT(*), COALESCE(SUM(LENGTH(body)), 0) FROM entries GROUP BY cache_name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var count int
		var size int64
		if err := rows.Scan(&name, &count, &size); err != nil {
			return nil, err
		}
		stats.Caches[name] = count
		stats.Entries += count
		stats.Bytes += size
	}
	return stats, rows.Err()
}
