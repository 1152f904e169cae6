package sqlite

import (
	"database/sql"
	"fmt"

	// Import the SQLite driver.
	_ "github.com/mattn/go-sqlite3"
)

// InMemory keeps the history for exactly as long as the process runs.
const InMemory = ":memory:"

// InitDB opens the database and creates the operations table if it doesn't
// exist. An in-memory database is pinned to a single connection, since every
// new connection would see an empty database.
func InitDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dsn == InMemory {
		db.SetMaxOpenConns(1)
		db.SetConnMaxLifetime(0)
		db.SetConnMaxIdleTime(0)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS operations (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		source TEXT NOT NULL,
		format TEXT,
		resolution TEXT,
		destination TEXT,
		playlist INTEGER NOT NULL DEFAULT 0,
		state TEXT NOT NULL,
		message TEXT,
		artifact_path TEXT,
		artifact_count INTEGER NOT NULL DEFAULT 0,
		started_at INTEGER NOT NULL,
		ended_at INTEGER
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create operations table: %w", err)
	}

	return db, nil
}
