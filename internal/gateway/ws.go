// ABOUTME: Observer websocket endpoint: upgrade, event writer, command read loop
// ABOUTME: Each connection owns one broadcast subscription; replies never race event writes

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/jimpames/MOTHER/internal/broadcast"
)

// wsConn serializes writes to a websocket connection. Direct command replies
// and broadcast events share one connection; only one write may be in
// flight at a time.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) writeJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Write(ctx, websocket.MessageText, data)
}

// handleWS upgrades the connection, registers a broadcast subscription, and
// runs the command read loop until the client disconnects. The first frame
// sent is a roster_update snapshot so the observer can rebuild its
// projection from pushes alone.
func (g *Gateway) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		g.logger.Error("failed to accept websocket", "error", err, "remote", r.RemoteAddr)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn := &wsConn{conn: ws}
	sub := g.broadcaster.Subscribe(ctx)
	defer g.broadcaster.Unsubscribe(sub.ID)

	g.logger.Info("observer connected", "sub_id", sub.ID, "remote", r.RemoteAddr)
	defer func() {
		_ = ws.Close(websocket.StatusNormalClosure, "session ended")
		g.logger.Info("observer disconnected", "sub_id", sub.ID)
	}()

	if err := g.sendRosterSnapshot(ctx, conn); err != nil {
		g.logger.Warn("failed to send roster snapshot", "sub_id", sub.ID, "error", err)
		return
	}

	// Writer: drain the subscription into the socket. A write failure tears
	// down the whole connection via cancel.
	go func() {
		defer cancel()
		for {
			event, ok := sub.Next(ctx)
			if !ok {
				return
			}
			if err := conn.writeJSON(ctx, event); err != nil {
				g.logger.Debug("event write failed", "sub_id", sub.ID, "error", err)
				return
			}
		}
	}()

	g.readLoop(ctx, conn, ws, sub.ID)
}

// sendRosterSnapshot pushes the initial roster_update frame.
func (g *Gateway) sendRosterSnapshot(ctx context.Context, conn *wsConn) error {
	snapshot, err := g.rosterSnapshot(ctx)
	if err != nil {
		return err
	}
	return conn.writeJSON(ctx, broadcast.RosterUpdate(snapshot))
}

// readLoop decodes and dispatches commands until the connection drops.
// Command failures reply on this connection only and never end the loop.
func (g *Gateway) readLoop(ctx context.Context, conn *wsConn, ws *websocket.Conn, subID string) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if !isExpectedClose(err) {
				g.logger.Debug("websocket read failed", "sub_id", subID, "error", err)
			}
			return
		}

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			reply := &ErrorReply{Type: "error", Code: CodeInvalidCommand, Message: "malformed command: " + err.Error()}
			if err := conn.writeJSON(ctx, reply); err != nil {
				return
			}
			continue
		}

		reply, err := g.dispatch(ctx, &cmd)
		if err != nil {
			g.logger.Debug("command failed", "sub_id", subID, "command", cmd.Type, "error", err)
			if err := conn.writeJSON(ctx, errorReply(err)); err != nil {
				return
			}
			continue
		}
		if reply != nil {
			if err := conn.writeJSON(ctx, reply); err != nil {
				return
			}
		}
	}
}

// isExpectedClose reports whether a read error is a normal disconnect.
func isExpectedClose(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
		return true
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return false
}
