// ABOUTME: Store interface and data types for MOTHER persistence
// ABOUTME: Defines ContextEntry, Conversation, Message, VoiceProfile and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrConversationNotActive is returned when a message append targets a
// conversation that is missing or has been ended
var ErrConversationNotActive = errors.New("conversation not active")

// ErrAlreadyEnded is returned when ending a conversation that is already inactive
var ErrAlreadyEnded = errors.New("conversation already ended")

// ErrUnavailable is returned when the underlying database cannot be reached
var ErrUnavailable = errors.New("store unavailable")

// ContextEntry is one query/response exchange between a user and an agent.
// Entries are immutable once written; the context log is append-only per
// (user, agent) pair.
type ContextEntry struct {
	ID        string
	UserID    string
	AgentID   string
	Query     string
	Response  string
	Payload   map[string]string
	CreatedAt time.Time
}

// MessageType constants for conversation messages
const (
	MessageTypeText   = "text"   // Regular chat message
	MessageTypeSystem = "system" // Lifecycle/system notice
)

// Conversation is a multi-party session among agents (and optionally a user).
// The participant set is fixed at creation. Active is false once ended;
// ending is terminal.
type Conversation struct {
	ID           string
	Initiator    string
	Participants []string
	Private      bool
	Active       bool
	CreatedAt    time.Time
	LastActivity time.Time
}

// ConversationSummary is a Conversation plus its message count, as returned
// by ListActiveConversations.
type ConversationSummary struct {
	Conversation
	MessageCount int
}

// Message is a single entry in a conversation's append-only log. Seq is the
// persisted insertion order and is strictly monotonic per store.
type Message struct {
	ID             string
	ConversationID string
	Sender         string
	Content        string
	Type           string // defaults to "text"
	Seq            int64
	CreatedAt      time.Time
}

// VoiceProfile maps an agent to its voice identity. Exactly one profile per
// agent; SetVoiceProfile replaces any prior profile wholesale.
type VoiceProfile struct {
	AgentID   string
	VoiceID   string
	Params    map[string]string
	UpdatedAt time.Time
}

// UserPreference holds per-user session settings. At most one row per user.
type UserPreference struct {
	UserID         string
	VoiceEnabled   bool
	PreferredAgent string
	Session        map[string]string
	UpdatedAt      time.Time
}

// AgentRecord is a roster entry for a known agent. VoiceID and VoiceEnabled
// mirror the agent's voice profile and are updated in the same transaction
// as SetVoiceProfile.
type AgentRecord struct {
	Name         string
	Address      string
	Kind         string
	VoiceID      string
	VoiceEnabled bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Store defines the persistence interface consumed by the service layer
type Store interface {
	// Context log
	AppendContext(ctx context.Context, entry *ContextEntry) error
	RecentContext(ctx context.Context, userID, agentID string, limit int) ([]*ContextEntry, error)

	// Conversations and messages
	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	EndConversation(ctx context.Context, id string, endedAt time.Time) error
	ListActiveConversations(ctx context.Context) ([]*ConversationSummary, error)
	AppendMessage(ctx context.Context, msg *Message) error
	ListMessages(ctx context.Context, conversationID string) ([]*Message, error)

	// Voice profiles and preferences
	SetVoiceProfile(ctx context.Context, profile *VoiceProfile) (mirrored bool, err error)
	GetVoiceProfile(ctx context.Context, agentID string) (*VoiceProfile, error)
	SetPreference(ctx context.Context, pref *UserPreference) error
	GetPreference(ctx context.Context, userID string) (*UserPreference, error)

	// Agent roster
	UpsertAgent(ctx context.Context, agent *AgentRecord) error
	GetAgent(ctx context.Context, name string) (*AgentRecord, error)
	ListAgents(ctx context.Context) ([]*AgentRecord, error)

	// Close releases any resources held by the store
	Close() error
}
