// Package store persists library tags and play history in a single SQLite
// file. It is the only coordination point between the foreground picker,
// the track-start callback and the background scanner: writers serialize
// through SQLite's write lock, readers stay concurrent through WAL.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

const (
	// CurrentSchemaVersion is the current database schema version.
	CurrentSchemaVersion = "1"

	// busyTimeout is how long SQLite waits on a contended write lock
	// before surfacing SQLITE_BUSY.
	busyTimeout = 2500 * time.Millisecond
)

var (
	// ErrUnavailable means the database file cannot be opened or migrated.
	ErrUnavailable = errors.New("store unavailable")

	// ErrBusy means a write lost the lock race even after the busy
	// timeout. Callers skip the optional write; a pick never fails on it.
	ErrBusy = errors.New("store busy")

	// ErrLockHeld means another scanner owns the scan lock.
	ErrLockHeld = errors.New("scan lock held")
)

// Store is the SQLite-backed persistence layer.
type Store struct {
	db   *sql.DB
	path string

	historyKeep      int
	historyKeepPaths int
}

// New creates a store handle for the database at path. historyKeep caps the
// history ring and the artist/title play tables; historyKeepPaths caps the
// per-path play table.
func New(path string, historyKeep, historyKeepPaths int) *Store {
	if historyKeep <= 0 {
		historyKeep = 10000
	}
	if historyKeepPaths <= 0 {
		historyKeepPaths = 20000
	}
	return &Store{
		path:             path,
		historyKeep:      historyKeep,
		historyKeepPaths: historyKeepPaths,
	}
}

// Open opens the database, creating it and applying migrations if needed.
// WAL keeps readers off the single writer's back; the busy timeout bounds
// every blocking point inside one invocation.
func (s *Store) Open() error {
	dir := filepath.Dir(s.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("%w: create db directory: %v", ErrUnavailable, err)
		}
	}

	dsn := fmt.Sprintf("%s?_journal=WAL&_busy_timeout=%d&_txlock=immediate", s.path, busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return fmt.Errorf("%w: open: %v", ErrUnavailable, err)
	}

	// SQLite supports one writer; a second pooled connection only buys
	// lock contention with ourselves.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s.db = db
	if err := s.migrate(); err != nil {
		db.Close()
		s.db = nil
		return fmt.Errorf("%w: migrate: %v", ErrUnavailable, err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

const schema = `
CREATE TABLE IF NOT EXISTS files (
	path TEXT PRIMARY KEY,
	artist_raw TEXT NOT NULL DEFAULT '',
	title_raw TEXT NOT NULL DEFAULT '',
	artist_norm TEXT NOT NULL DEFAULT '',
	title_norm TEXT NOT NULL DEFAULT '',
	ext TEXT NOT NULL DEFAULT '',
	mtime INTEGER NOT NULL DEFAULT 0,
	last_scanned INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_files_artist_norm ON files(artist_norm);
CREATE INDEX IF NOT EXISTS idx_files_title_norm ON files(title_norm);

CREATE TABLE IF NOT EXISTS artist_plays (
	artist_norm TEXT PRIMARY KEY,
	ts INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS title_plays (
	title_norm TEXT PRIMARY KEY,
	ts INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS path_plays (
	path TEXT PRIMARY KEY,
	ts INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ts INTEGER NOT NULL,
	path TEXT NOT NULL,
	artist_raw TEXT NOT NULL DEFAULT '',
	title_raw TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_history_ts ON history(ts);

CREATE TABLE IF NOT EXISTS meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS locks (
	name TEXT PRIMARY KEY,
	pid INTEGER NOT NULL,
	token TEXT NOT NULL,
	ts INTEGER NOT NULL
);
`

// migrate creates the schema on a fresh database and brings older schema
// versions up to date.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	version, err := s.GetMeta("schema_version")
	if err != nil {
		return err
	}
	switch version {
	case "":
		return s.SetMeta("schema_version", CurrentSchemaVersion)
	case CurrentSchemaVersion:
		return nil
	default:
		log.Info().
			Str("current", version).
			Str("target", CurrentSchemaVersion).
			Msg("Migrating store schema")
		return s.SetMeta("schema_version", CurrentSchemaVersion)
	}
}

// SetMeta sets a key in the meta table.
func (s *Store) SetMeta(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return classify(err)
}

// GetMeta returns the value for key, or "" if the key is absent.
func (s *Store) GetMeta(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, classify(err)
}

// Vacuum compacts the database file.
func (s *Store) Vacuum() error {
	_, err := s.db.Exec("VACUUM")
	return classify(err)
}

// Tx is a write transaction over the store. All play-state reads and the
// provisional play write of one pick run inside a single Tx so concurrent
// pickers serialize on the separation state they act on.
type Tx struct {
	tx *sql.Tx
	s  *Store
}

// WithImmediateTx runs fn inside a write transaction (BEGIN IMMEDIATE via
// the _txlock DSN option), committing on nil and rolling back otherwise.
// SQLITE_BUSY maps to ErrBusy.
func (s *Store) WithImmediateTx(fn func(*Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return classify(err)
	}
	if err := fn(&Tx{tx: tx, s: s}); err != nil {
		tx.Rollback()
		return err
	}
	return classify(tx.Commit())
}

// classify maps driver-level lock errors onto ErrBusy and passes everything
// else through.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var serr sqlite3.Error
	if errors.As(err, &serr) && (serr.Code == sqlite3.ErrBusy || serr.Code == sqlite3.ErrLocked) {
		return fmt.Errorf("%w: %v", ErrBusy, err)
	}
	return err
}
