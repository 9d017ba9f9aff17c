// ABOUTME: Context Store service - per-(user, agent) query/response history
// ABOUTME: Retrieval degrades to an empty context on store failure, never aborts a query

package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jimpames/MOTHER/internal/store"
)

// ErrMissingIdentity is returned when an append lacks a user or agent identity
var ErrMissingIdentity = errors.New("user and agent identities are required")

// ContextStore defines what the service needs from storage
type ContextStore interface {
	AppendContext(ctx context.Context, entry *store.ContextEntry) error
	RecentContext(ctx context.Context, userID, agentID string, limit int) ([]*store.ContextEntry, error)
}

// Service owns the dialogue context log.
type Service struct {
	store  ContextStore
	logger *slog.Logger
}

// New creates a memory Service. Pass nil logger for default.
func New(st ContextStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  st,
		logger: logger.With("component", "memory"),
	}
}

// Append records a query/response exchange for a (user, agent) pair and
// returns the new entry id. Query and response may be empty strings; only
// the identities are validated.
func (s *Service) Append(ctx context.Context, userID, agentID, query, response string, payload map[string]string) (string, error) {
	if userID == "" || agentID == "" {
		return "", ErrMissingIdentity
	}

	entry := &store.ContextEntry{
		ID:        uuid.New().String(),
		UserID:    userID,
		AgentID:   agentID,
		Query:     query,
		Response:  response,
		Payload:   payload,
		CreatedAt: time.Now(),
	}

	if err := s.store.AppendContext(ctx, entry); err != nil {
		return "", fmt.Errorf("appending context: %w", err)
	}

	return entry.ID, nil
}

// Recent returns up to limit entries for a (user, agent) pair in
// chronological order. A limit of zero or less uses the default. Store
// failures are surfaced; the caller decides whether to degrade.
func (s *Service) Recent(ctx context.Context, userID, agentID string, limit int) ([]*store.ContextEntry, error) {
	return s.store.RecentContext(ctx, userID, agentID, limit)
}

// PromptContext renders the recent exchanges for a (user, agent) pair as a
// prompt preamble and returns the enhanced prompt. A limit of zero or less
// uses the default. When the store is unavailable the original prompt is
// returned unchanged with a warning log: a query proceeds without context
// rather than failing.
func (s *Service) PromptContext(ctx context.Context, userID, agentID, prompt string, limit int) string {
	entries, err := s.store.RecentContext(ctx, userID, agentID, limit)
	if err != nil {
		s.logger.Warn("context retrieval failed, proceeding without context",
			"user_id", userID,
			"agent_id", agentID,
			"error", err,
		)
		return prompt
	}
	if len(entries) == 0 {
		return prompt
	}

	return FormatPrompt(entries, prompt)
}

// FormatPrompt builds the context-enhanced prompt from prior exchanges.
func FormatPrompt(entries []*store.ContextEntry, prompt string) string {
	var b strings.Builder
	b.WriteString("The following conversation history provides context for the current query:\n\n")
	for _, entry := range entries {
		fmt.Fprintf(&b, "User: %s\nAssistant: %s\n\n", entry.Query, entry.Response)
	}
	fmt.Fprintf(&b, "Current query: %s", prompt)
	return b.String()
}
