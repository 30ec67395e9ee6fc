package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/Shahrukh072/ai-backend/core"
)

const createCheckpointsTable = `
CREATE TABLE IF NOT EXISTS thread_checkpoints (
	thread_id  TEXT PRIMARY KEY,
	state      TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

// LibSQLStore persists checkpoints in a libsql database, one JSON encoded
// snapshot per thread.
type LibSQLStore struct {
	db *sql.DB
}

var _ core.CheckpointStore = (*LibSQLStore)(nil)

// OpenLibSQL opens (creating if needed) a local libsql database file and
// returns a store backed by it.
func OpenLibSQL(path string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("open libsql database: %w", err)
	}
	store, err := NewLibSQLStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewLibSQLStore wraps an existing database handle and ensures the
// checkpoint table exists.
func NewLibSQLStore(db *sql.DB) (*LibSQLStore, error) {
	if _, err := db.Exec(createCheckpointsTable); err != nil {
		return nil, fmt.Errorf("create checkpoint table: %w", err)
	}
	return &LibSQLStore{db: db}, nil
}

// Load reads and decodes the checkpoint for threadID, or returns (nil, nil)
// when none exists.
func (s *LibSQLStore) Load(ctx context.Context, threadID string) (*core.ConversationState, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM thread_checkpoints WHERE thread_id = ?`, threadID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", threadID, err)
	}

	var state core.ConversationState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", threadID, err)
	}
	return &state, nil
}

// Save encodes the state and upserts it under its thread ID.
func (s *LibSQLStore) Save(ctx context.Context, state *core.ConversationState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode checkpoint %s: %w", state.ThreadID, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO thread_checkpoints (thread_id, state, updated_at) VALUES (?, ?, ?)`,
		state.ThreadID, string(raw), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", state.ThreadID, err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *LibSQLStore) Close() error {
	return s.db.Close()
}
