// ABOUTME: Observer-side projection of gateway state rebuilt from pushed events
// ABOUTME: Each observer owns its State; debug filtering happens here, not on the server

package client

import (
	"sort"
	"sync"
	"time"

	"github.com/jimpames/MOTHER/internal/broadcast"
)

// ConversationView is one conversation as the observer knows it.
type ConversationView struct {
	ID           string
	Participants []string
	Private      bool
	Active       bool
}

// MessageView is one message as seen on the wire.
type MessageView struct {
	Sender    string
	Content   string
	Type      string
	Timestamp time.Time
}

// State is an observer's local projection of gateway state, rebuilt entirely
// from pushed events. Every observer owns its own State; nothing here is
// shared between connections.
//
// The server broadcasts all conversation traffic, including private
// conversations. Visible applies the debug-mode boundary: with debug mode
// off, messages from private conversations (and from conversations whose
// privacy is unknown) are hidden.
type State struct {
	mu            sync.RWMutex
	agents        map[string]broadcast.RosterAgent
	conversations map[string]*ConversationView
	messages      map[string][]MessageView
}

// NewState creates an empty projection.
func NewState() *State {
	return &State{
		agents:        make(map[string]broadcast.RosterAgent),
		conversations: make(map[string]*ConversationView),
		messages:      make(map[string][]MessageView),
	}
}

// Apply folds one pushed event into the projection. Unknown event kinds are
// ignored so older observers tolerate newer gateways.
func (s *State) Apply(event *broadcast.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch event.Type {
	case broadcast.KindRosterUpdate:
		s.agents = make(map[string]broadcast.RosterAgent, len(event.Agents))
		for _, a := range event.Agents {
			s.agents[a.Name] = a
		}

	case broadcast.KindVoiceUpdate:
		if event.Success == nil || !*event.Success {
			return
		}
		a, ok := s.agents[event.Agent]
		if !ok {
			a = broadcast.RosterAgent{Name: event.Agent}
		}
		a.VoiceID = event.VoiceID
		if event.Mirrored != nil && *event.Mirrored {
			a.VoiceEnabled = true
		}
		s.agents[event.Agent] = a

	case broadcast.KindConversationUpdate:
		switch event.Status {
		case broadcast.StatusCreated:
			s.conversations[event.ConversationID] = &ConversationView{
				ID:           event.ConversationID,
				Participants: event.Participants,
				Private:      event.IsPrivate,
				Active:       true,
			}
		case broadcast.StatusEnded:
			if conv, ok := s.conversations[event.ConversationID]; ok {
				conv.Active = false
			}
		}

	case broadcast.KindDebugMessage:
		s.messages[event.Recipient] = append(s.messages[event.Recipient], MessageView{
			Sender:    event.Sender,
			Content:   event.Content,
			Type:      event.MessageType,
			Timestamp: event.Timestamp,
		})
	}
}

// Agents returns the roster sorted by name.
func (s *State) Agents() []broadcast.RosterAgent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]broadcast.RosterAgent, 0, len(s.agents))
	for _, a := range s.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Conversations returns all known conversations, active and ended.
func (s *State) Conversations() []ConversationView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ConversationView, 0, len(s.conversations))
	for _, c := range s.conversations {
		view := *c
		view.Participants = append([]string(nil), c.Participants...)
		out = append(out, view)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Visible returns the messages the observer may display, keyed by
// conversation id. With debugMode on, everything is returned. With it off,
// messages from private conversations are withheld, as are messages whose
// conversation the observer has not seen announced (privacy unknown is
// treated as private).
func (s *State) Visible(debugMode bool) map[string][]MessageView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]MessageView)
	for convID, msgs := range s.messages {
		if !debugMode {
			conv, ok := s.conversations[convID]
			if !ok || conv.Private {
				continue
			}
		}
		out[convID] = append([]MessageView(nil), msgs...)
	}
	return out
}
