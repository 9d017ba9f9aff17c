// ABOUTME: Conversation Manager - lifecycle, membership, and the message log
// ABOUTME: All multi-party agent traffic flows through here before fan-out

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jimpames/MOTHER/internal/store"
)

// ErrInvalidParticipants is returned when a conversation is created with
// fewer than two distinct participants
var ErrInvalidParticipants = errors.New("conversation requires at least two distinct participants")

// ConversationStore defines what the service needs from storage
type ConversationStore interface {
	CreateConversation(ctx context.Context, conv *store.Conversation) error
	GetConversation(ctx context.Context, id string) (*store.Conversation, error)
	EndConversation(ctx context.Context, id string, endedAt time.Time) error
	ListActiveConversations(ctx context.Context) ([]*store.ConversationSummary, error)
	AppendMessage(ctx context.Context, msg *store.Message) error
	ListMessages(ctx context.Context, conversationID string) ([]*store.Message, error)
}

// Service owns conversation lifecycle and message ordering.
type Service struct {
	store  ConversationStore
	logger *slog.Logger
}

// New creates a conversation Service. Pass nil logger for default.
func New(st ConversationStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  st,
		logger: logger.With("component", "conversation"),
	}
}

// Create starts a new conversation among the given participants. Participants
// are deduplicated preserving first-seen order; fewer than two distinct
// identities is rejected with ErrInvalidParticipants. Each call creates a new
// conversation - identical arguments do not dedupe to an existing one.
func (s *Service) Create(ctx context.Context, initiator string, participants []string, private bool) (*store.Conversation, error) {
	distinct := dedupe(participants)
	if len(distinct) < 2 {
		return nil, ErrInvalidParticipants
	}

	now := time.Now()
	conv := &store.Conversation{
		ID:           uuid.New().String(),
		Initiator:    initiator,
		Participants: distinct,
		Private:      private,
		Active:       true,
		CreatedAt:    now,
		LastActivity: now,
	}

	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}

	s.logger.Info("conversation created",
		"conversation_id", conv.ID,
		"initiator", initiator,
		"participants", distinct,
		"private", private,
	)
	return conv, nil
}

// End terminates a conversation. Returns store.ErrNotFound for an unknown id
// and store.ErrAlreadyEnded for a duplicate end. Ending is terminal: no
// message may be appended afterwards, and a new conversation must be created
// to resume.
func (s *Service) End(ctx context.Context, conversationID string) error {
	if err := s.store.EndConversation(ctx, conversationID, time.Now()); err != nil {
		return err
	}

	s.logger.Info("conversation ended", "conversation_id", conversationID)
	return nil
}

// Get returns conversation metadata by id.
func (s *Service) Get(ctx context.Context, conversationID string) (*store.Conversation, error) {
	return s.store.GetConversation(ctx, conversationID)
}

// ListActive returns summaries of active conversations, most recent
// activity first.
func (s *Service) ListActive(ctx context.Context) ([]*store.ConversationSummary, error) {
	return s.store.ListActiveConversations(ctx)
}

// Append records a message in a conversation. The sender may be a user or an
// agent identity. The append and the parent conversation's last-activity bump
// commit together; an append that loses a race against End fails with
// store.ErrConversationNotActive. Returns the new message.
func (s *Service) Append(ctx context.Context, conversationID, sender, content, messageType string) (*store.Message, error) {
	if messageType == "" {
		messageType = store.MessageTypeText
	}

	msg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Sender:         sender,
		Content:        content,
		Type:           messageType,
		CreatedAt:      time.Now(),
	}

	if err := s.store.AppendMessage(ctx, msg); err != nil {
		return nil, err
	}

	s.logger.Debug("message appended",
		"conversation_id", conversationID,
		"message_id", msg.ID,
		"sender", sender,
	)
	return msg, nil
}

// History returns a conversation's messages in append order. Repeated calls
// between appends return a prefix-stable, strictly growing sequence. Returns
// store.ErrNotFound for an unknown conversation.
func (s *Service) History(ctx context.Context, conversationID string) ([]*store.Message, error) {
	return s.store.ListMessages(ctx, conversationID)
}

// dedupe removes duplicate identities preserving first-seen order.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	var out []string
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
