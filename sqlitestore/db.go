// Package sqlitestore archives scheduler snapshots in a SQLite database.
//
// Each snapshot is the document written by [ebb.Scheduler.SaveState], stored
// with a uuid, its creation time and the topic and event counts it holds.
// Restoring goes through [ebb.Scheduler.LoadState], so a snapshot is loaded
// atomically or not at all.
package sqlitestore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// MemoryPath is the Path of a database opened with OpenMemory.
const MemoryPath = ":memory:"

// DB wraps a sql.DB connection to a snapshot database.
type DB struct {
	*sql.DB
	Path string

	log zerolog.Logger
	now func() time.Time
}

// Open opens (or creates) the SQLite database at the given path,
// configures pragmas, and runs migrations.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return setup(sqlDB, path)
}

// OpenMemory opens an in-memory SQLite database, mainly for tests.
func OpenMemory() (*DB, error) {
	sqlDB, err := sql.Open("sqlite", MemoryPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	// Every connection to :memory: is a separate database.
	sqlDB.SetMaxOpenConns(1)
	return setup(sqlDB, MemoryPath)
}

func setup(sqlDB *sql.DB, path string) (*DB, error) {
	db := &DB{DB: sqlDB, Path: path, log: zerolog.Nop(), now: time.Now}
	if err := db.configurePragmas(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// SetLogger sets the logger used for snapshot events. The default discards
// everything.
func (db *DB) SetLogger(l zerolog.Logger) {
	db.log = l.With().Str("component", "sqlitestore").Str("path", db.Path).Logger()
}

func (db *DB) configurePragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	return nil
}
