// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides context/conversation/voice persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite primary result codes for lock contention
const (
	sqliteBusy   = 5
	sqliteLocked = 6
)

// wrapWriteErr wraps a write-path failure, classifying lock contention as
// ErrUnavailable so callers surface the store taxonomy rather than a raw
// driver code. The driver's error type carries the result code; extended
// codes keep the primary code in the low byte.
func wrapWriteErr(op string, err error) error {
	var coded interface{ Code() int }
	if errors.As(err, &coded) {
		switch coded.Code() & 0xff {
		case sqliteBusy, sqliteLocked:
			return fmt.Errorf("%s: %w", op, ErrUnavailable)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite permits one writer at a time. database/sql opens a connection
	// per concurrent caller, and extra connections surface SQLITE_BUSY
	// instead of queueing. A single pooled connection serializes all
	// access so concurrent writers wait rather than fail.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Wait out any residual lock contention (external processes on the
	// same file) before giving up
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS agents (
			name          TEXT PRIMARY KEY,
			address       TEXT NOT NULL DEFAULT '',
			kind          TEXT NOT NULL DEFAULT '',
			voice_id      TEXT NOT NULL DEFAULT '',
			voice_enabled INTEGER NOT NULL DEFAULT 0,
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS context_log (
			id           TEXT PRIMARY KEY,
			user_id      TEXT NOT NULL,
			agent_id     TEXT NOT NULL,
			query        TEXT NOT NULL,
			response     TEXT NOT NULL,
			payload_json TEXT,
			created_at   TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_context_pair
			ON context_log(user_id, agent_id, created_at);

		CREATE TABLE IF NOT EXISTS voice_profiles (
			agent_id    TEXT PRIMARY KEY,
			voice_id    TEXT NOT NULL,
			params_json TEXT,
			updated_at  TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS user_preferences (
			user_id         TEXT PRIMARY KEY,
			voice_enabled   INTEGER NOT NULL DEFAULT 0,
			preferred_agent TEXT NOT NULL DEFAULT '',
			session_json    TEXT,
			updated_at      TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS conversations (
			id                TEXT PRIMARY KEY,
			initiator         TEXT NOT NULL,
			participants_json TEXT NOT NULL,
			private           INTEGER NOT NULL DEFAULT 0,
			active            INTEGER NOT NULL DEFAULT 1,
			created_at        TEXT NOT NULL,
			last_activity     TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_active
			ON conversations(active, last_activity DESC);

		CREATE TABLE IF NOT EXISTS messages (
			seq             INTEGER PRIMARY KEY AUTOINCREMENT,
			id              TEXT NOT NULL UNIQUE,
			conversation_id TEXT NOT NULL,
			sender          TEXT NOT NULL,
			content         TEXT NOT NULL,
			type            TEXT NOT NULL DEFAULT 'text',
			created_at      TEXT NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation
			ON messages(conversation_id, seq);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies schema migrations for existing databases.
// These are idempotent - safe to run multiple times.
func (s *SQLiteStore) runMigrations() error {
	// SQLite doesn't support ADD COLUMN IF NOT EXISTS, so we check first
	migrations := []struct {
		check  string // Query to check if migration is needed
		apply  string // Query to apply the migration
		column string // Column name for logging
		table  string
	}{
		{
			check:  `SELECT 1 FROM pragma_table_info('agents') WHERE name = 'voice_id'`,
			apply:  `ALTER TABLE agents ADD COLUMN voice_id TEXT NOT NULL DEFAULT ''`,
			column: "voice_id",
			table:  "agents",
		},
		{
			check:  `SELECT 1 FROM pragma_table_info('agents') WHERE name = 'voice_enabled'`,
			apply:  `ALTER TABLE agents ADD COLUMN voice_enabled INTEGER NOT NULL DEFAULT 0`,
			column: "voice_enabled",
			table:  "agents",
		},
		{
			check:  `SELECT 1 FROM pragma_table_info('messages') WHERE name = 'type'`,
			apply:  `ALTER TABLE messages ADD COLUMN type TEXT NOT NULL DEFAULT 'text'`,
			column: "type",
			table:  "messages",
		},
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRow(m.check).Scan(&exists)
		if err == nil {
			// Column already exists, skip
			continue
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column to %s: %w", m.column, m.table, err)
		}
		s.logger.Info("applied migration", "column", m.column, "table", m.table)
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// encodeJSON marshals a string map to a nullable JSON column value.
// Empty or nil maps are stored as NULL.
func encodeJSON(m map[string]string) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding json column: %w", err)
	}
	return string(data), nil
}

// decodeJSON unmarshals a nullable JSON column into a string map.
func decodeJSON(raw sql.NullString) (map[string]string, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(raw.String), &m); err != nil {
		return nil, fmt.Errorf("decoding json column: %w", err)
	}
	return m, nil
}

// encodeParticipants marshals the participant list for storage.
func encodeParticipants(participants []string) (string, error) {
	data, err := json.Marshal(participants)
	if err != nil {
		return "", fmt.Errorf("encoding participants: %w", err)
	}
	return string(data), nil
}

// decodeParticipants unmarshals a stored participant list.
func decodeParticipants(raw string) ([]string, error) {
	var participants []string
	if err := json.Unmarshal([]byte(raw), &participants); err != nil {
		return nil, fmt.Errorf("decoding participants: %w", err)
	}
	return participants, nil
}

// formatTime converts a time to the canonical stored representation.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime converts a stored timestamp back to a time.Time.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// UpsertAgent creates or updates a roster record for an agent.
// Voice fields are preserved on update; SetVoiceProfile owns them.
func (s *SQLiteStore) UpsertAgent(ctx context.Context, agent *AgentRecord) error {
	query := `
		INSERT INTO agents (name, address, kind, voice_id, voice_enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			address = excluded.address,
			kind = excluded.kind,
			updated_at = excluded.updated_at
	`

	voiceEnabled := 0
	if agent.VoiceEnabled {
		voiceEnabled = 1
	}

	_, err := s.db.ExecContext(ctx, query,
		agent.Name,
		agent.Address,
		agent.Kind,
		agent.VoiceID,
		voiceEnabled,
		formatTime(agent.CreatedAt),
		formatTime(agent.UpdatedAt),
	)
	if err != nil {
		return wrapWriteErr("upserting agent", err)
	}

	s.logger.Debug("upserted agent", "name", agent.Name, "kind", agent.Kind)
	return nil
}

// GetAgent retrieves a roster record by agent name.
// Returns ErrNotFound if the agent is not on the roster.
func (s *SQLiteStore) GetAgent(ctx context.Context, name string) (*AgentRecord, error) {
	query := `
		SELECT name, address, kind, voice_id, voice_enabled, created_at, updated_at
		FROM agents
		WHERE name = ?
	`

	return s.scanAgent(s.db.QueryRowContext(ctx, query, name))
}

func (s *SQLiteStore) scanAgent(row *sql.Row) (*AgentRecord, error) {
	var agent AgentRecord
	var voiceEnabled int
	var createdAtStr, updatedAtStr string

	err := row.Scan(
		&agent.Name,
		&agent.Address,
		&agent.Kind,
		&agent.VoiceID,
		&voiceEnabled,
		&createdAtStr,
		&updatedAtStr,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying agent: %w", err)
	}

	agent.VoiceEnabled = voiceEnabled != 0
	agent.CreatedAt, err = parseTime(createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	agent.UpdatedAt, err = parseTime(updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &agent, nil
}

// ListAgents returns all roster records ordered by name.
func (s *SQLiteStore) ListAgents(ctx context.Context) ([]*AgentRecord, error) {
	query := `
		SELECT name, address, kind, voice_id, voice_enabled, created_at, updated_at
		FROM agents
		ORDER BY name
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying agents: %w", err)
	}
	defer rows.Close()

	var agents []*AgentRecord
	for rows.Next() {
		var agent AgentRecord
		var voiceEnabled int
		var createdAtStr, updatedAtStr string

		if err := rows.Scan(
			&agent.Name,
			&agent.Address,
			&agent.Kind,
			&agent.VoiceID,
			&voiceEnabled,
			&createdAtStr,
			&updatedAtStr,
		); err != nil {
			return nil, fmt.Errorf("scanning agent row: %w", err)
		}

		agent.VoiceEnabled = voiceEnabled != 0
		agent.CreatedAt, err = parseTime(createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		agent.UpdatedAt, err = parseTime(updatedAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}

		agents = append(agents, &agent)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating agent rows: %w", err)
	}

	return agents, nil
}

// Ensure SQLiteStore implements Store interface
var _ Store = (*SQLiteStore)(nil)
