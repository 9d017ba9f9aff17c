// ABOUTME: Inbound command decoding and dispatch for observer connections
// ABOUTME: Maps service errors to wire error codes; broadcasts accepted state changes

package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/jimpames/MOTHER/internal/broadcast"
	"github.com/jimpames/MOTHER/internal/conversation"
	"github.com/jimpames/MOTHER/internal/memory"
	"github.com/jimpames/MOTHER/internal/store"
	"github.com/jimpames/MOTHER/internal/voice"
)

// Command types accepted on the websocket
const (
	CmdCreateConversation = "create_conversation"
	CmdEndConversation    = "end_conversation"
	CmdSetVoice           = "set_voice"
	CmdSendMessage        = "send_message"
	CmdSubmitQuery        = "submit_query"
)

// Error codes carried in error replies
const (
	CodeInvalidCommand        = "invalid_command"
	CodeInvalidParticipants   = "invalid_participants"
	CodeNotFound              = "not_found"
	CodeConversationNotActive = "conversation_not_active"
	CodeAlreadyEnded          = "already_ended"
	CodeStoreUnavailable      = "store_unavailable"
	CodeInternal              = "internal"
)

// Command is the JSON envelope for every inbound websocket message. Type
// selects the operation; the remaining fields are populated per type.
type Command struct {
	Type string `json:"type"`

	// create_conversation
	Initiator    string   `json:"initiator,omitempty"`
	Participants []string `json:"participants,omitempty"`
	IsPrivate    bool     `json:"is_private,omitempty"`

	// end_conversation, send_message
	ConversationID string `json:"conversation_id,omitempty"`
	Sender         string `json:"sender,omitempty"`
	Content        string `json:"content,omitempty"`
	MessageType    string `json:"message_type,omitempty"`

	// set_voice
	Agent   string            `json:"agent,omitempty"`
	VoiceID string            `json:"voice_id,omitempty"`
	Params  map[string]string `json:"params,omitempty"`

	// submit_query
	User   string `json:"user,omitempty"`
	Prompt string `json:"prompt,omitempty"`
}

// ErrorReply is the direct reply sent to the issuing connection when a
// command fails. Other connections never see command failures except for
// voice_update events, which carry success=false.
type ErrorReply struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// QueryResult is the direct reply to a submit_query command. Prompt is the
// context-enhanced prompt; VoiceID and VoiceEnabled describe how the
// response should be spoken.
type QueryResult struct {
	Type         string `json:"type"`
	User         string `json:"user"`
	Agent        string `json:"agent"`
	Prompt       string `json:"prompt"`
	VoiceID      string `json:"voice_id"`
	VoiceEnabled bool   `json:"voice_enabled"`
}

// errorCode maps a service error to its wire code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, conversation.ErrInvalidParticipants):
		return CodeInvalidParticipants
	case errors.Is(err, store.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, store.ErrConversationNotActive):
		return CodeConversationNotActive
	case errors.Is(err, store.ErrAlreadyEnded):
		return CodeAlreadyEnded
	case errors.Is(err, store.ErrUnavailable):
		return CodeStoreUnavailable
	case errors.Is(err, voice.ErrMissingVoice),
		errors.Is(err, memory.ErrMissingIdentity),
		errors.Is(err, errUnknownCommand):
		return CodeInvalidCommand
	default:
		return CodeInternal
	}
}

// errorReply builds the direct error reply for a failed command.
func errorReply(err error) *ErrorReply {
	return &ErrorReply{
		Type:    "error",
		Code:    errorCode(err),
		Message: err.Error(),
	}
}

// dispatch runs one command and returns an optional direct reply for the
// issuing connection. Accepted state changes are published to every
// subscriber; failures return an error the caller converts to an error
// reply.
func (g *Gateway) dispatch(ctx context.Context, cmd *Command) (any, error) {
	switch cmd.Type {
	case CmdCreateConversation:
		return nil, g.createConversation(ctx, cmd)
	case CmdEndConversation:
		return nil, g.endConversation(ctx, cmd)
	case CmdSetVoice:
		return nil, g.setVoice(ctx, cmd)
	case CmdSendMessage:
		return nil, g.sendMessage(ctx, cmd)
	case CmdSubmitQuery:
		return g.submitQuery(ctx, cmd)
	default:
		return nil, fmt.Errorf("%w: unknown command type %q", errUnknownCommand, cmd.Type)
	}
}

var errUnknownCommand = errors.New("unknown command")

func (g *Gateway) createConversation(ctx context.Context, cmd *Command) error {
	conv, err := g.conversations.Create(ctx, cmd.Initiator, cmd.Participants, cmd.IsPrivate)
	if err != nil {
		return err
	}

	g.broadcaster.Publish(broadcast.ConversationCreated(conv.ID, conv.Participants, conv.Private), "")
	return nil
}

func (g *Gateway) endConversation(ctx context.Context, cmd *Command) error {
	if err := g.conversations.End(ctx, cmd.ConversationID); err != nil {
		return err
	}

	g.broadcaster.Publish(broadcast.ConversationEnded(cmd.ConversationID), "")
	return nil
}

func (g *Gateway) setVoice(ctx context.Context, cmd *Command) error {
	result, err := g.voices.Set(ctx, cmd.Agent, cmd.VoiceID, cmd.Params)
	if err != nil {
		// Validation failures stay between the issuer and the gateway.
		// A failed attempted assignment is still announced to observers.
		if !errors.Is(err, voice.ErrMissingVoice) {
			g.broadcaster.Publish(broadcast.VoiceUpdate(cmd.Agent, cmd.VoiceID, false, false), "")
		}
		return err
	}

	g.broadcaster.Publish(broadcast.VoiceUpdate(result.AgentID, result.VoiceID, true, result.Mirrored), "")

	if result.Mirrored {
		g.publishRoster(ctx)
	}
	return nil
}

func (g *Gateway) sendMessage(ctx context.Context, cmd *Command) error {
	msg, err := g.conversations.Append(ctx, cmd.ConversationID, cmd.Sender, cmd.Content, cmd.MessageType)
	if err != nil {
		return err
	}

	g.broadcaster.Publish(broadcast.DebugMessage(msg.Sender, msg.ConversationID, msg.Content, msg.Type), "")
	return nil
}

func (g *Gateway) submitQuery(ctx context.Context, cmd *Command) (*QueryResult, error) {
	if cmd.User == "" || cmd.Agent == "" {
		return nil, memory.ErrMissingIdentity
	}

	enhanced := g.memory.PromptContext(ctx, cmd.User, cmd.Agent, cmd.Prompt, g.contextLimit)

	// The exchange is recorded before the agent answers; the response slot
	// stays empty until a later append fills the next entry.
	if _, err := g.memory.Append(ctx, cmd.User, cmd.Agent, cmd.Prompt, "", nil); err != nil {
		g.logger.Warn("failed to record query in context log", "user", cmd.User, "agent", cmd.Agent, "error", err)
	}

	return &QueryResult{
		Type:         "query_result",
		User:         cmd.User,
		Agent:        cmd.Agent,
		Prompt:       enhanced,
		VoiceID:      g.voices.Resolve(ctx, cmd.Agent),
		VoiceEnabled: g.voices.VoiceOutputEnabled(ctx, cmd.User),
	}, nil
}

// rosterSnapshot renders the current agent roster for a roster_update event.
func (g *Gateway) rosterSnapshot(ctx context.Context) ([]broadcast.RosterAgent, error) {
	agents, err := g.store.ListAgents(ctx)
	if err != nil {
		return nil, err
	}

	snapshot := make([]broadcast.RosterAgent, 0, len(agents))
	for _, a := range agents {
		snapshot = append(snapshot, broadcast.RosterAgent{
			Name:         a.Name,
			Kind:         a.Kind,
			VoiceID:      a.VoiceID,
			VoiceEnabled: a.VoiceEnabled,
		})
	}
	return snapshot, nil
}

// publishRoster broadcasts the full roster. Failures are logged, not
// surfaced; the triggering command already succeeded.
func (g *Gateway) publishRoster(ctx context.Context) {
	snapshot, err := g.rosterSnapshot(ctx)
	if err != nil {
		g.logger.Error("failed to build roster snapshot", "error", err)
		return
	}
	g.broadcaster.Publish(broadcast.RosterUpdate(snapshot), "")
}
