package sqlite

import (
	"database/sql"

	// Import the SQLite driver.
	_ "github.com/mattn/go-sqlite3"
)

// InitDB opens the SQLite database at path and creates the updates table if
// it doesn't exist.
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS updates (
		id INTEGER PRIMARY KEY,
		task_id TEXT UNIQUE,
		artifact TEXT,
		version TEXT,
		source_url TEXT,
		checksum TEXT,
		file_path TEXT,
		status TEXT DEFAULT 'pending',
		attempts INTEGER DEFAULT 0,
		last_error TEXT,
		started_at DATETIME,
		finished_at DATETIME,
		locked_by TEXT,
		UNIQUE(artifact, version)
	)`)

	if err != nil {
		return nil, err
	}

	return db, nil
}
