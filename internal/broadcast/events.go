// ABOUTME: Event record pushed to observer clients, tagged with an event kind
// ABOUTME: One flat struct with omitempty payload fields per kind, like the transport expects

package broadcast

import "time"

// Kind tags the category of a state-change event
type Kind string

const (
	KindRosterUpdate       Kind = "roster_update"
	KindVoiceUpdate        Kind = "voice_update"
	KindConversationUpdate Kind = "conversation_update"
	KindDebugMessage       Kind = "debug_message"
)

// Conversation lifecycle statuses carried by conversation_update events
const (
	StatusCreated = "created"
	StatusEnded   = "ended"
)

// RosterAgent is one roster entry as rendered to observers.
type RosterAgent struct {
	Name         string `json:"name"`
	Kind         string `json:"kind,omitempty"`
	VoiceID      string `json:"voice_id,omitempty"`
	VoiceEnabled bool   `json:"voice_enabled"`
}

// Event is a single state transition pushed to all observers. Fields beyond
// Type and Timestamp are populated per kind; unused ones are omitted on the
// wire. Private agent-to-agent traffic (debug_message events from private
// conversations) is delivered to every subscriber - hiding it is the
// observer's responsibility.
type Event struct {
	Type      Kind      `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// conversation_update
	Status         string   `json:"status,omitempty"`
	ConversationID string   `json:"conversation_id,omitempty"`
	Participants   []string `json:"participants,omitempty"`
	IsPrivate      bool     `json:"is_private,omitempty"`

	// voice_update
	Agent    string `json:"agent,omitempty"`
	VoiceID  string `json:"voice_id,omitempty"`
	Success  *bool  `json:"success,omitempty"`
	Mirrored *bool  `json:"mirrored,omitempty"`

	// debug_message
	Sender      string `json:"sender,omitempty"`
	Recipient   string `json:"recipient,omitempty"`
	Content     string `json:"content,omitempty"`
	MessageType string `json:"message_type,omitempty"`

	// roster_update
	Agents []RosterAgent `json:"agents,omitempty"`
}

// Critical reports whether the event must survive queue pressure. An ended
// conversation is a terminal fact observers cannot reconstruct from later
// traffic, so it outranks chat-style events when a queue overflows.
func (e *Event) Critical() bool {
	return e.Type == KindConversationUpdate && e.Status == StatusEnded
}

// ConversationCreated builds the event announcing a new conversation.
func ConversationCreated(conversationID string, participants []string, private bool) *Event {
	return &Event{
		Type:           KindConversationUpdate,
		Timestamp:      time.Now(),
		Status:         StatusCreated,
		ConversationID: conversationID,
		Participants:   participants,
		IsPrivate:      private,
	}
}

// ConversationEnded builds the event announcing a terminated conversation.
func ConversationEnded(conversationID string) *Event {
	return &Event{
		Type:           KindConversationUpdate,
		Timestamp:      time.Now(),
		Status:         StatusEnded,
		ConversationID: conversationID,
	}
}

// VoiceUpdate builds the event announcing a voice assignment outcome.
// Failures broadcast too, so observers can surface the error without a
// separate round trip.
func VoiceUpdate(agent, voiceID string, success, mirrored bool) *Event {
	return &Event{
		Type:      KindVoiceUpdate,
		Timestamp: time.Now(),
		Agent:     agent,
		VoiceID:   voiceID,
		Success:   &success,
		Mirrored:  &mirrored,
	}
}

// DebugMessage builds the event carrying conversation traffic. Recipient is
// the conversation id; delivery is a broadcast scoped only by the observer's
// own debug-mode filter.
func DebugMessage(sender, conversationID, content, messageType string) *Event {
	return &Event{
		Type:        KindDebugMessage,
		Timestamp:   time.Now(),
		Sender:      sender,
		Recipient:   conversationID,
		Content:     content,
		MessageType: messageType,
	}
}

// RosterUpdate builds the event carrying the full agent roster.
func RosterUpdate(agents []RosterAgent) *Event {
	return &Event{
		Type:      KindRosterUpdate,
		Timestamp: time.Now(),
		Agents:    agents,
	}
}
