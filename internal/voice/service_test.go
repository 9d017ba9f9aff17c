// ABOUTME: Tests for the voice Service
// ABOUTME: Covers round-trip, replace semantics, default resolution, and preferences

package voice

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jimpames/MOTHER/internal/store"
)

func createTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")
	s, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestService_SetThenGet(t *testing.T) {
	svc := New(createTestStore(t), nil)
	ctx := context.Background()

	result, err := svc.Set(ctx, "agentA", "v2/en_speaker_4", nil)
	require.NoError(t, err)
	assert.Equal(t, "v2/en_speaker_4", result.VoiceID)
	assert.False(t, result.Mirrored) // no roster record yet

	profile, ok, err := svc.Get(ctx, "agentA")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v2/en_speaker_4", profile.VoiceID)
	assert.Empty(t, profile.Params)
}

func TestService_Set_RequiresAgentAndVoice(t *testing.T) {
	svc := New(createTestStore(t), nil)
	ctx := context.Background()

	_, err := svc.Set(ctx, "", "v2/en_speaker_4", nil)
	assert.ErrorIs(t, err, ErrMissingVoice)

	_, err = svc.Set(ctx, "agentA", "", nil)
	assert.ErrorIs(t, err, ErrMissingVoice)
}

func TestService_Set_ReplacesWithoutMerging(t *testing.T) {
	svc := New(createTestStore(t), nil)
	ctx := context.Background()

	_, err := svc.Set(ctx, "agentA", "v2/en_speaker_4", map[string]string{"text_temp": "0.7"})
	require.NoError(t, err)

	_, err = svc.Set(ctx, "agentA", "v2/en_speaker_9", nil)
	require.NoError(t, err)

	profile, ok, err := svc.Get(ctx, "agentA")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v2/en_speaker_9", profile.VoiceID)
	assert.Empty(t, profile.Params)
}

func TestService_Set_MirrorsWhenRosterExists(t *testing.T) {
	st := createTestStore(t)
	svc := New(st, nil)
	ctx := context.Background()

	require.NoError(t, st.UpsertAgent(ctx, &store.AgentRecord{Name: "agentA"}))

	result, err := svc.Set(ctx, "agentA", "v2/en_speaker_4", nil)
	require.NoError(t, err)
	assert.True(t, result.Mirrored)

	agent, err := st.GetAgent(ctx, "agentA")
	require.NoError(t, err)
	assert.Equal(t, "v2/en_speaker_4", agent.VoiceID)
	assert.True(t, agent.VoiceEnabled)
}

func TestService_Get_UnknownAgent(t *testing.T) {
	svc := New(createTestStore(t), nil)

	profile, ok, err := svc.Get(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, profile)
}

func TestService_Resolve_DefaultsForUnknownAgent(t *testing.T) {
	svc := New(createTestStore(t), nil)

	voiceID := svc.Resolve(context.Background(), "ghost")
	assert.Equal(t, DefaultVoiceID, voiceID)
}

func TestService_Resolve_UsesAssignedVoice(t *testing.T) {
	svc := New(createTestStore(t), nil)
	ctx := context.Background()

	_, err := svc.Set(ctx, "agentA", "v2/en_speaker_4", nil)
	require.NoError(t, err)

	assert.Equal(t, "v2/en_speaker_4", svc.Resolve(ctx, "agentA"))
}

func TestService_Preferences(t *testing.T) {
	svc := New(createTestStore(t), nil)
	ctx := context.Background()

	// Default: no preference means voice off
	assert.False(t, svc.VoiceOutputEnabled(ctx, "user-1"))

	require.NoError(t, svc.SetPreference(ctx, "user-1", true, "agentA", nil))
	assert.True(t, svc.VoiceOutputEnabled(ctx, "user-1"))

	require.NoError(t, svc.SetPreference(ctx, "user-1", false, "agentA", nil))
	assert.False(t, svc.VoiceOutputEnabled(ctx, "user-1"))
}
