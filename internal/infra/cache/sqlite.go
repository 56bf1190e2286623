package cache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/rs/zerolog/log"
)

// DefaultDBPath is the default path for the record database.
const DefaultDBPath = "data/records.db"

// DB is the SQLite-backed Store. Keys are stored in a single ordered table;
// the schema is deliberately a plain map so record formats can evolve
// without migrations.
type DB struct {
	db   *sql.DB
	path string
}

// Open opens (creating if necessary) the database at path and initializes
// the schema.
func Open(path string) (*DB, error) {
	if path == "" {
		path = DefaultDBPath
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	log.Info().Str("path", path).Msg("Record database opened")
	return &DB{db: db, path: path}, nil
}

// Get implements Store.
func (d *DB) Get(key string) (string, error) {
	var value string
	err := d.db.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get %q: %w", key, err)
	}
	return value, nil
}

// Put implements Store.
func (d *DB) Put(key, value string) error {
	_, err := d.db.Exec(`
		INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}
	return nil
}

// Delete implements Store.
func (d *DB) Delete(key string) error {
	if _, err := d.db.Exec("DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// Scan implements Store. Iteration is in key order.
func (d *DB) Scan(fn func(key, value string) bool) error {
	rows, err := d.db.Query("SELECT key, value FROM kv ORDER BY key")
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
		if !fn(key, value) {
			break
		}
	}
	return rows.Err()
}

// BatchDelete implements Store.
func (d *DB) BatchDelete(keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("batch delete begin: %w", err)
	}

	stmt, err := tx.Prepare("DELETE FROM kv WHERE key = ?")
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("batch delete prepare: %w", err)
	}
	defer stmt.Close()

	for _, key := range keys {
		if _, err := stmt.Exec(key); err != nil {
			tx.Rollback()
			return fmt.Errorf("batch delete %q: %w", key, err)
		}
	}

	return tx.Commit()
}

// Close implements Store.
func (d *DB) Close() error {
	return d.db.Close()
}
