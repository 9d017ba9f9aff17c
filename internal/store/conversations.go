// ABOUTME: Conversation lifecycle and message log persistence
// ABOUTME: Message appends and ends share a conditional write so races resolve to one serialization order

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreateConversation persists a new conversation in the active state.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	participants, err := encodeParticipants(conv.Participants)
	if err != nil {
		return err
	}

	private := 0
	if conv.Private {
		private = 1
	}
	active := 0
	if conv.Active {
		active = 1
	}

	query := `
		INSERT INTO conversations (id, initiator, participants_json, private, active, created_at, last_activity)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		conv.ID,
		conv.Initiator,
		participants,
		private,
		active,
		formatTime(conv.CreatedAt),
		formatTime(conv.LastActivity),
	)
	if err != nil {
		return wrapWriteErr("inserting conversation", err)
	}

	s.logger.Debug("created conversation",
		"id", conv.ID,
		"initiator", conv.Initiator,
		"participants", len(conv.Participants),
		"private", conv.Private,
	)
	return nil
}

// GetConversation retrieves a conversation by ID.
// Returns ErrNotFound if it does not exist.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	query := `
		SELECT id, initiator, participants_json, private, active, created_at, last_activity
		FROM conversations
		WHERE id = ?
	`

	var conv Conversation
	var participantsRaw string
	var private, active int
	var createdAtStr, lastActivityStr string

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&conv.ID,
		&conv.Initiator,
		&participantsRaw,
		&private,
		&active,
		&createdAtStr,
		&lastActivityStr,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}

	conv.Participants, err = decodeParticipants(participantsRaw)
	if err != nil {
		return nil, err
	}
	conv.Private = private != 0
	conv.Active = active != 0
	conv.CreatedAt, err = parseTime(createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	conv.LastActivity, err = parseTime(lastActivityStr)
	if err != nil {
		return nil, fmt.Errorf("parsing last_activity: %w", err)
	}

	return &conv, nil
}

// EndConversation marks a conversation inactive. Ending is terminal.
// Returns ErrNotFound for an unknown ID and ErrAlreadyEnded when the
// conversation was already inactive. The conditional UPDATE means a
// concurrent end resolves to exactly one winner.
func (s *SQLiteStore) EndConversation(ctx context.Context, id string, endedAt time.Time) error {
	query := `
		UPDATE conversations
		SET active = 0, last_activity = ?
		WHERE id = ? AND active = 1
	`

	result, err := s.db.ExecContext(ctx, query, formatTime(endedAt), id)
	if err != nil {
		return wrapWriteErr("ending conversation", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}

	if rowsAffected == 0 {
		// Distinguish unknown conversation from terminal state
		var active int
		err := s.db.QueryRowContext(ctx, `SELECT active FROM conversations WHERE id = ?`, id).Scan(&active)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("checking conversation state: %w", err)
		}
		return ErrAlreadyEnded
	}

	s.logger.Debug("ended conversation", "id", id)
	return nil
}

// ListActiveConversations returns summaries of all active conversations,
// ordered by most recent activity first.
func (s *SQLiteStore) ListActiveConversations(ctx context.Context) ([]*ConversationSummary, error) {
	query := `
		SELECT c.id, c.initiator, c.participants_json, c.private, c.active, c.created_at, c.last_activity,
		       COUNT(m.seq)
		FROM conversations c
		LEFT JOIN messages m ON m.conversation_id = c.id
		WHERE c.active = 1
		GROUP BY c.id
		ORDER BY c.last_activity DESC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying active conversations: %w", err)
	}
	defer rows.Close()

	var summaries []*ConversationSummary
	for rows.Next() {
		var summary ConversationSummary
		var participantsRaw string
		var private, active int
		var createdAtStr, lastActivityStr string

		if err := rows.Scan(
			&summary.ID,
			&summary.Initiator,
			&participantsRaw,
			&private,
			&active,
			&createdAtStr,
			&lastActivityStr,
			&summary.MessageCount,
		); err != nil {
			return nil, fmt.Errorf("scanning conversation row: %w", err)
		}

		summary.Participants, err = decodeParticipants(participantsRaw)
		if err != nil {
			return nil, err
		}
		summary.Private = private != 0
		summary.Active = active != 0
		summary.CreatedAt, err = parseTime(createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		summary.LastActivity, err = parseTime(lastActivityStr)
		if err != nil {
			return nil, fmt.Errorf("parsing last_activity: %w", err)
		}

		summaries = append(summaries, &summary)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversation rows: %w", err)
	}

	return summaries, nil
}

// AppendMessage persists a message and bumps its conversation's last_activity
// in one transaction. The conditional UPDATE doubles as the liveness check:
// zero rows affected means the conversation is missing or already ended, and
// the append fails with ErrConversationNotActive. An append racing a
// concurrent end therefore either commits before the end or is rejected,
// never both. Seq is assigned by the message table's AUTOINCREMENT key.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *Message) error {
	msgType := msg.Type
	if msgType == "" {
		msgType = MessageTypeText
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapWriteErr("beginning append transaction", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE conversations
		SET last_activity = ?
		WHERE id = ? AND active = 1
	`, formatTime(msg.CreatedAt), msg.ConversationID)
	if err != nil {
		return wrapWriteErr("bumping conversation activity", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrConversationNotActive
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender, content, type, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		msg.ID,
		msg.ConversationID,
		msg.Sender,
		msg.Content,
		msgType,
		formatTime(msg.CreatedAt),
	)
	if err != nil {
		return wrapWriteErr("inserting message", err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading message seq: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return wrapWriteErr("committing append", err)
	}

	msg.Seq = seq
	msg.Type = msgType

	s.logger.Debug("appended message",
		"id", msg.ID,
		"conversation_id", msg.ConversationID,
		"sender", msg.Sender,
		"seq", seq,
	)
	return nil
}

// ListMessages retrieves all messages for a conversation in append order.
// Returns ErrNotFound if the conversation does not exist; an existing
// conversation with no messages yields an empty slice.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string) ([]*Message, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM conversations WHERE id = ?`, conversationID).Scan(&exists)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("checking conversation: %w", err)
	}

	query := `
		SELECT seq, id, conversation_id, sender, content, type, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY seq ASC
	`

	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var msg Message
		var createdAtStr string

		if err := rows.Scan(
			&msg.Seq,
			&msg.ID,
			&msg.ConversationID,
			&msg.Sender,
			&msg.Content,
			&msg.Type,
			&createdAtStr,
		); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}

		msg.CreatedAt, err = parseTime(createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing message created_at: %w", err)
		}

		messages = append(messages, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}

	return messages, nil
}
