package checkpoint

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/feedops/listingsync/treetypes"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	payload    TEXT NOT NULL,
	updated_at TEXT NOT NULL
);`

// SQLiteStore persists checkpoints in a single-row SQLite table. The
// payload is stored as JSON, so schema migrations are limited to the
// checkpoint type itself.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path and
// ensures the schema exists. Close releases the handle.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database %q: %w", path, err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply checkpoint schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Load implements treetypes.CheckpointStore.
func (s *SQLiteStore) Load() (*treetypes.Checkpoint, error) {
	var payload string
	err := s.db.QueryRow(`SELECT payload FROM checkpoints WHERE id = 1`).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query checkpoint: %w", err)
	}
	var cp treetypes.Checkpoint
	if err := json.Unmarshal([]byte(payload), &cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint payload: %w", err)
	}
	return &cp, nil
}

// Save implements treetypes.CheckpointStore.
func (s *SQLiteStore) Save(cp *treetypes.Checkpoint) error {
	payload, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO checkpoints (id, payload, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		string(payload), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert checkpoint: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
