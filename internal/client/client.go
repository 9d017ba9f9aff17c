// ABOUTME: Websocket client for the MOTHER gateway observer protocol
// ABOUTME: Sends commands, feeds pushed events into a local State projection

package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/coder/websocket"

	"github.com/jimpames/MOTHER/internal/broadcast"
)

// channelBuffer bounds the events and replies channels. A consumer that
// stalls longer than this loses frames with a warning rather than wedging
// the read loop.
const channelBuffer = 64

// Reply is a direct response frame from the gateway (error or query_result).
type Reply struct {
	Type         string `json:"type"`
	Code         string `json:"code,omitempty"`
	Message      string `json:"message,omitempty"`
	User         string `json:"user,omitempty"`
	Agent        string `json:"agent,omitempty"`
	Prompt       string `json:"prompt,omitempty"`
	VoiceID      string `json:"voice_id,omitempty"`
	VoiceEnabled bool   `json:"voice_enabled,omitempty"`
}

// Client is a connection to the gateway's observer websocket. Pushed events
// are folded into State and forwarded on Events; direct replies (errors,
// query results) arrive on Replies.
type Client struct {
	conn    *websocket.Conn
	state   *State
	logger  *slog.Logger
	events  chan *broadcast.Event
	replies chan *Reply

	writeMu sync.Mutex
}

// Dial connects to the gateway's /ws endpoint. url is the full websocket
// URL, e.g. "ws://localhost:8080/ws". Pass nil logger for default.
func Dial(ctx context.Context, url string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing gateway: %w", err)
	}

	return &Client{
		conn:    conn,
		state:   NewState(),
		logger:  logger.With("component", "observer-client"),
		events:  make(chan *broadcast.Event, channelBuffer),
		replies: make(chan *Reply, channelBuffer),
	}, nil
}

// State returns the client's projection. Safe for concurrent use with Run.
func (c *Client) State() *State { return c.state }

// Events delivers pushed events after they have been applied to State.
func (c *Client) Events() <-chan *broadcast.Event { return c.events }

// Replies delivers direct response frames (error, query_result).
func (c *Client) Replies() <-chan *Reply { return c.replies }

// Run reads frames until the connection drops or ctx is canceled. Events
// and Replies are closed on return.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.events)
	defer close(c.replies)

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil || isNormalClose(err) {
				return nil
			}
			return fmt.Errorf("reading frame: %w", err)
		}

		if err := c.handleFrame(data); err != nil {
			c.logger.Warn("dropping unparseable frame", "error", err)
		}
	}
}

// handleFrame routes one inbound frame to the event or reply path.
func (c *Client) handleFrame(data []byte) error {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}

	switch broadcast.Kind(probe.Type) {
	case broadcast.KindRosterUpdate, broadcast.KindVoiceUpdate,
		broadcast.KindConversationUpdate, broadcast.KindDebugMessage:
		var event broadcast.Event
		if err := json.Unmarshal(data, &event); err != nil {
			return err
		}
		c.state.Apply(&event)
		select {
		case c.events <- &event:
		default:
			c.logger.Warn("event channel full, dropping event", "kind", event.Type)
		}
		return nil

	default:
		var reply Reply
		if err := json.Unmarshal(data, &reply); err != nil {
			return err
		}
		select {
		case c.replies <- &reply:
		default:
			c.logger.Warn("reply channel full, dropping reply", "type", reply.Type)
		}
		return nil
	}
}

// send marshals and writes one command frame.
func (c *Client) send(ctx context.Context, cmd any) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.Write(ctx, websocket.MessageText, data)
}

// CreateConversation asks the gateway to start a conversation. The result
// arrives as a conversation_update event (or an error reply).
func (c *Client) CreateConversation(ctx context.Context, initiator string, participants []string, private bool) error {
	return c.send(ctx, map[string]any{
		"type":         "create_conversation",
		"initiator":    initiator,
		"participants": participants,
		"is_private":   private,
	})
}

// EndConversation asks the gateway to terminate a conversation.
func (c *Client) EndConversation(ctx context.Context, conversationID string) error {
	return c.send(ctx, map[string]any{
		"type":            "end_conversation",
		"conversation_id": conversationID,
	})
}

// SetVoice assigns a voice identity to an agent.
func (c *Client) SetVoice(ctx context.Context, agent, voiceID string, params map[string]string) error {
	cmd := map[string]any{
		"type":     "set_voice",
		"agent":    agent,
		"voice_id": voiceID,
	}
	if len(params) > 0 {
		cmd["params"] = params
	}
	return c.send(ctx, cmd)
}

// SendMessage appends a message to a conversation.
func (c *Client) SendMessage(ctx context.Context, conversationID, sender, content, messageType string) error {
	cmd := map[string]any{
		"type":            "send_message",
		"conversation_id": conversationID,
		"sender":          sender,
		"content":         content,
	}
	if messageType != "" {
		cmd["message_type"] = messageType
	}
	return c.send(ctx, cmd)
}

// SubmitQuery submits a user query for context enhancement. The
// query_result arrives on Replies.
func (c *Client) SubmitQuery(ctx context.Context, user, agent, prompt string) error {
	return c.send(ctx, map[string]any{
		"type":   "submit_query",
		"user":   user,
		"agent":  agent,
		"prompt": prompt,
	})
}

// Close shuts the connection down cleanly.
func (c *Client) Close() error {
	err := c.conn.Close(websocket.StatusNormalClosure, "client closed")
	if err != nil && !errors.As(err, new(websocket.CloseError)) {
		return err
	}
	return nil
}

// isNormalClose reports whether a read error is an orderly shutdown.
func isNormalClose(err error) bool {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return false
}
