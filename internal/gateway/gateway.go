// ABOUTME: Gateway orchestrator wiring the store, services, and broadcaster
// ABOUTME: Serves the HTTP surface and manages graceful shutdown

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jimpames/MOTHER/internal/broadcast"
	"github.com/jimpames/MOTHER/internal/config"
	"github.com/jimpames/MOTHER/internal/conversation"
	"github.com/jimpames/MOTHER/internal/memory"
	"github.com/jimpames/MOTHER/internal/store"
	"github.com/jimpames/MOTHER/internal/voice"
)

// Gateway coordinates the MOTHER server components: the SQLite store, the
// conversation, memory, and voice services, the event broadcaster, and the
// HTTP server carrying the observer websocket endpoint.
type Gateway struct {
	config        *config.Config
	store         store.Store
	conversations *conversation.Service
	memory        *memory.Service
	voices        *voice.Service
	broadcaster   *broadcast.Broadcaster
	httpServer    *http.Server
	logger        *slog.Logger

	contextLimit int
}

// New creates a Gateway from configuration. It opens the store, seeds the
// agent roster from config, and wires the services and HTTP routes.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}

	g := &Gateway{
		config:        cfg,
		store:         s,
		conversations: conversation.New(s, logger.With("component", "conversation")),
		memory:        memory.New(s, logger.With("component", "memory")),
		voices:        voice.New(s, logger.With("component", "voice")),
		broadcaster:   broadcast.New(cfg.Broadcast.QueueSize, logger),
		logger:        logger.With("component", "gateway"),
		contextLimit:  cfg.Memory.ContextLimit,
	}

	if err := g.seedRoster(context.Background(), cfg.Agents); err != nil {
		_ = s.Close()
		return nil, err
	}

	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           g.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return g, nil
}

// seedRoster upserts configured agents so observers see a roster before any
// agent has spoken. Existing voice assignments survive re-seeding.
func (g *Gateway) seedRoster(ctx context.Context, agents []config.AgentConfig) error {
	now := time.Now()
	for _, a := range agents {
		record := &store.AgentRecord{
			Name:      a.Name,
			Address:   a.Address,
			Kind:      a.Kind,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := g.store.UpsertAgent(ctx, record); err != nil {
			return fmt.Errorf("seeding agent %q: %w", a.Name, err)
		}
	}
	return nil
}

// routes builds the HTTP router.
func (g *Gateway) routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", g.handleHealthz)
	r.Get("/api/conversations", g.handleListConversations)
	r.Get("/ws", g.handleWS)
	return r
}

// Run starts the HTTP server and blocks until the context is canceled or
// the server fails. Returns nil on graceful shutdown.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is
// already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown stops the HTTP server, closes the broadcaster, and closes the
// store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	var firstErr error
	if g.httpServer != nil {
		if err := g.httpServer.Shutdown(ctx); err != nil {
			firstErr = fmt.Errorf("shutting down HTTP server: %w", err)
		}
	}

	g.broadcaster.Close()

	if err := g.store.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing store: %w", err)
	}

	g.logger.Info("gateway shutdown complete")
	return firstErr
}

// handleHealthz reports basic liveness.
func (g *Gateway) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// ConversationResponse is one entry in the GET /api/conversations reply.
type ConversationResponse struct {
	ID           string   `json:"id"`
	Initiator    string   `json:"initiator"`
	Participants []string `json:"participants"`
	IsPrivate    bool     `json:"is_private"`
	MessageCount int      `json:"message_count"`
	CreatedAt    string   `json:"created_at"`
	LastActivity string   `json:"last_activity"`
}

// handleListConversations returns the active conversations as JSON, most
// recently active first.
func (g *Gateway) handleListConversations(w http.ResponseWriter, r *http.Request) {
	summaries, err := g.conversations.ListActive(r.Context())
	if err != nil {
		g.logger.Error("failed to list conversations", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	response := make([]ConversationResponse, 0, len(summaries))
	for _, c := range summaries {
		response = append(response, ConversationResponse{
			ID:           c.ID,
			Initiator:    c.Initiator,
			Participants: c.Participants,
			IsPrivate:    c.Private,
			MessageCount: c.MessageCount,
			CreatedAt:    c.CreatedAt.UTC().Format(time.RFC3339Nano),
			LastActivity: c.LastActivity.UTC().Format(time.RFC3339Nano),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

// sendJSONError writes a JSON error response with the given status code.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
