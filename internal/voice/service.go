// ABOUTME: Voice Registry service - assigns and resolves per-agent voice identities
// ABOUTME: Upserts replace the prior profile wholesale and mirror into the roster record

package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jimpames/MOTHER/internal/store"
)

// DefaultVoiceID is the speaker used for agents without an assigned voice.
const DefaultVoiceID = "v2/en_speaker_6"

// ErrMissingVoice is returned when a set operation lacks an agent or voice id
var ErrMissingVoice = errors.New("agent and voice id are required")

// VoiceStore defines what the service needs from storage
type VoiceStore interface {
	SetVoiceProfile(ctx context.Context, profile *store.VoiceProfile) (mirrored bool, err error)
	GetVoiceProfile(ctx context.Context, agentID string) (*store.VoiceProfile, error)
	SetPreference(ctx context.Context, pref *store.UserPreference) error
	GetPreference(ctx context.Context, userID string) (*store.UserPreference, error)
}

// SetResult reports the outcome of a voice assignment. Mirrored is false when
// the agent has no roster record; the profile itself still committed, and
// observers can render "voice set but roster not updated".
type SetResult struct {
	AgentID  string
	VoiceID  string
	Mirrored bool
}

// Service owns voice identities and user voice preferences.
type Service struct {
	store  VoiceStore
	logger *slog.Logger
}

// New creates a voice Service. Pass nil logger for default.
func New(st VoiceStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  st,
		logger: logger.With("component", "voice"),
	}
}

// Set assigns a voice to an agent, replacing any prior profile wholesale (no
// param merging). The profile write and the roster mirror commit together.
func (s *Service) Set(ctx context.Context, agentID, voiceID string, params map[string]string) (*SetResult, error) {
	if agentID == "" || voiceID == "" {
		return nil, ErrMissingVoice
	}

	mirrored, err := s.store.SetVoiceProfile(ctx, &store.VoiceProfile{
		AgentID:   agentID,
		VoiceID:   voiceID,
		Params:    params,
		UpdatedAt: time.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("setting voice: %w", err)
	}

	s.logger.Info("voice set",
		"agent_id", agentID,
		"voice_id", voiceID,
		"mirrored", mirrored,
	)
	return &SetResult{AgentID: agentID, VoiceID: voiceID, Mirrored: mirrored}, nil
}

// Get returns the voice profile for an agent. Unknown agents yield ok=false
// with no error.
func (s *Service) Get(ctx context.Context, agentID string) (*store.VoiceProfile, bool, error) {
	profile, err := s.store.GetVoiceProfile(ctx, agentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("getting voice: %w", err)
	}
	return profile, true, nil
}

// Resolve returns the agent's assigned voice id, or DefaultVoiceID when the
// agent has none. Store failures also fall back to the default so speech
// synthesis can proceed.
func (s *Service) Resolve(ctx context.Context, agentID string) string {
	profile, ok, err := s.Get(ctx, agentID)
	if err != nil {
		s.logger.Warn("voice lookup failed, using default",
			"agent_id", agentID,
			"error", err,
		)
		return DefaultVoiceID
	}
	if !ok {
		return DefaultVoiceID
	}
	return profile.VoiceID
}

// SetPreference stores a user's voice/session preferences.
func (s *Service) SetPreference(ctx context.Context, userID string, voiceEnabled bool, preferredAgent string, session map[string]string) error {
	if userID == "" {
		return errors.New("user id is required")
	}
	return s.store.SetPreference(ctx, &store.UserPreference{
		UserID:         userID,
		VoiceEnabled:   voiceEnabled,
		PreferredAgent: preferredAgent,
		Session:        session,
		UpdatedAt:      time.Now(),
	})
}

// VoiceOutputEnabled reports whether speech output should be used for a user.
// Users without a stored preference default to text-only.
func (s *Service) VoiceOutputEnabled(ctx context.Context, userID string) bool {
	pref, err := s.store.GetPreference(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return false
	}
	if err != nil {
		s.logger.Warn("preference lookup failed", "user_id", userID, "error", err)
		return false
	}
	return pref.VoiceEnabled
}
