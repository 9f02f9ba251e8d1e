// Package sqlite is the leaderboard archive: snapshots of sorted sets taken
// right before an administrative reset, so past periods stay readable after
// their live keys are gone.
//
// modernc.org/sqlite is a pure-Go driver (no cgo), registered under the
// name "sqlite". ":memory:" gives each test a throwaway database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps the connection pool. It implements repository.SnapshotRepository.
type DB struct {
	conn *sql.DB
}

// New opens (creating if needed) the archive at dbPath and runs migrations.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// an in-memory database exists per connection
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database file is still usable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// migrate is idempotent: every statement uses IF NOT EXISTS.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS snapshots (
			id          TEXT PRIMARY KEY,
			entity      TEXT NOT NULL,
			scope       TEXT NOT NULL,
			period      TEXT NOT NULL,
			archived_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_snapshots_board
			ON snapshots(entity, scope, period, archived_at);
	`)
	if err != nil {
		return fmt.Errorf("creating snapshots table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS snapshot_entries (
			snapshot_id TEXT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
			rank        INTEGER NOT NULL,
			member      TEXT NOT NULL,
			score       REAL NOT NULL,
			PRIMARY KEY (snapshot_id, rank)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating snapshot_entries table: %w", err)
	}

	return nil
}
