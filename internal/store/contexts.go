// ABOUTME: Context log persistence for per-(user, agent) query/response history
// ABOUTME: Append-only writes with bounded most-recent retrieval in chronological order

package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Retrieval bounds for RecentContext
const (
	DefaultContextLimit = 5
	maxContextLimit     = 50
)

// AppendContext persists a context entry. Entries are never updated or
// deleted; the log is the durable history for a (user, agent) pair.
func (s *SQLiteStore) AppendContext(ctx context.Context, entry *ContextEntry) error {
	payload, err := encodeJSON(entry.Payload)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO context_log (id, user_id, agent_id, query, response, payload_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		entry.ID,
		entry.UserID,
		entry.AgentID,
		entry.Query,
		entry.Response,
		payload,
		formatTime(entry.CreatedAt),
	)
	if err != nil {
		return wrapWriteErr("inserting context entry", err)
	}

	s.logger.Debug("appended context entry",
		"id", entry.ID,
		"user_id", entry.UserID,
		"agent_id", entry.AgentID,
	)
	return nil
}

// RecentContext retrieves the most recent context entries for a (user, agent)
// pair, returned in chronological order (oldest first). A DESC subquery picks
// the N most recent rows, then re-orders ASC so callers receive exchanges in
// conversation order. Seq ties on equal timestamps are broken by insertion
// order via rowid.
func (s *SQLiteStore) RecentContext(ctx context.Context, userID, agentID string, limit int) ([]*ContextEntry, error) {
	if limit <= 0 {
		limit = DefaultContextLimit
	}
	if limit > maxContextLimit {
		limit = maxContextLimit
	}

	query := `
		SELECT id, user_id, agent_id, query, response, payload_json, created_at
		FROM (
			SELECT rowid, id, user_id, agent_id, query, response, payload_json, created_at
			FROM context_log
			WHERE user_id = ? AND agent_id = ?
			ORDER BY created_at DESC, rowid DESC
			LIMIT ?
		)
		ORDER BY created_at ASC, rowid ASC
	`

	rows, err := s.db.QueryContext(ctx, query, userID, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying context entries: %w", err)
	}
	defer rows.Close()

	var entries []*ContextEntry
	for rows.Next() {
		entry, err := scanContextEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating context rows: %w", err)
	}

	return entries, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanContextEntry(row rowScanner) (*ContextEntry, error) {
	var entry ContextEntry
	var payload sql.NullString
	var createdAtStr string

	if err := row.Scan(
		&entry.ID,
		&entry.UserID,
		&entry.AgentID,
		&entry.Query,
		&entry.Response,
		&payload,
		&createdAtStr,
	); err != nil {
		return nil, fmt.Errorf("scanning context row: %w", err)
	}

	var err error
	entry.Payload, err = decodeJSON(payload)
	if err != nil {
		return nil, err
	}
	entry.CreatedAt, err = parseTime(createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &entry, nil
}
