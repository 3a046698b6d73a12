// Package store provides the SQLite-backed record store for the four diary
// record types.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// id columns carry no UNIQUE constraint: append-mode imports insert whatever
// the bundle holds, including records already present.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS restaurants (
	id               TEXT NOT NULL,
	title            TEXT NOT NULL DEFAULT '',
	cuisine          TEXT NOT NULL DEFAULT '',
	location         TEXT NOT NULL DEFAULT '',
	price_per_person REAL NOT NULL DEFAULT 0,
	rating           INTEGER NOT NULL DEFAULT 0,
	occurred_at      DATETIME NOT NULL,
	notes            TEXT NOT NULL DEFAULT '',
	photos           TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS beverages (
	id          TEXT NOT NULL,
	title       TEXT NOT NULL DEFAULT '',
	shop        TEXT NOT NULL DEFAULT '',
	flavor      TEXT NOT NULL DEFAULT '',
	sugar_level TEXT NOT NULL DEFAULT '',
	ice_level   TEXT NOT NULL DEFAULT '',
	rating      INTEGER NOT NULL DEFAULT 0,
	occurred_at DATETIME NOT NULL,
	notes       TEXT NOT NULL DEFAULT '',
	photos      TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS travels (
	id          TEXT NOT NULL,
	title       TEXT NOT NULL DEFAULT '',
	destination TEXT NOT NULL DEFAULT '',
	companions  TEXT NOT NULL DEFAULT '',
	start_date  TEXT NOT NULL DEFAULT '',
	end_date    TEXT NOT NULL DEFAULT '',
	rating      INTEGER NOT NULL DEFAULT 0,
	occurred_at DATETIME NOT NULL,
	notes       TEXT NOT NULL DEFAULT '',
	photos      TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS recreations (
	id               TEXT NOT NULL,
	title            TEXT NOT NULL DEFAULT '',
	kind             TEXT NOT NULL DEFAULT 'other',
	venue            TEXT NOT NULL DEFAULT '',
	duration_minutes INTEGER NOT NULL DEFAULT 0,
	rating           INTEGER NOT NULL DEFAULT 0,
	occurred_at      DATETIME NOT NULL,
	notes            TEXT NOT NULL DEFAULT '',
	photos           TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_restaurants_occurred ON restaurants(occurred_at, id);
CREATE INDEX IF NOT EXISTS idx_beverages_occurred   ON beverages(occurred_at, id);
CREATE INDEX IF NOT EXISTS idx_travels_occurred     ON travels(occurred_at, id);
CREATE INDEX IF NOT EXISTS idx_recreations_occurred ON recreations(occurred_at, id);
`

// DB wraps a sql.DB with record-store operations.
type DB struct {
	conn *sql.DB
	path string
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &DB{conn: conn, path: path}, nil
}

// Path returns the database file path the store was opened with.
func (db *DB) Path() string {
	return db.path
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
