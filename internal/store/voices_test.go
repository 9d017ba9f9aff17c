// ABOUTME: Tests for voice profile upsert, roster mirroring, and user preferences
// ABOUTME: Covers replace-no-merge semantics and the mirrored/unmirrored result

package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SetVoiceProfile_RoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.SetVoiceProfile(ctx, &VoiceProfile{
		AgentID:   "agentA",
		VoiceID:   "v2/en_speaker_4",
		Params:    map[string]string{"text_temp": "0.7"},
		UpdatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	profile, err := store.GetVoiceProfile(ctx, "agentA")
	require.NoError(t, err)
	assert.Equal(t, "v2/en_speaker_4", profile.VoiceID)
	assert.Equal(t, "0.7", profile.Params["text_temp"])
}

func TestStore_SetVoiceProfile_ReplacesWholesale(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.SetVoiceProfile(ctx, &VoiceProfile{
		AgentID:   "agentA",
		VoiceID:   "v2/en_speaker_4",
		Params:    map[string]string{"text_temp": "0.7", "waveform_temp": "0.7"},
		UpdatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	// Second set without params must not merge the old ones
	_, err = store.SetVoiceProfile(ctx, &VoiceProfile{
		AgentID:   "agentA",
		VoiceID:   "v2/en_speaker_9",
		UpdatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	profile, err := store.GetVoiceProfile(ctx, "agentA")
	require.NoError(t, err)
	assert.Equal(t, "v2/en_speaker_9", profile.VoiceID)
	assert.Empty(t, profile.Params)
}

func TestStore_SetVoiceProfile_MirrorsRoster(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, store.UpsertAgent(ctx, &AgentRecord{
		Name: "agentA", Kind: "llm", CreatedAt: now, UpdatedAt: now,
	}))

	mirrored, err := store.SetVoiceProfile(ctx, &VoiceProfile{
		AgentID:   "agentA",
		VoiceID:   "v2/en_speaker_4",
		UpdatedAt: now,
	})
	require.NoError(t, err)
	assert.True(t, mirrored)

	agent, err := store.GetAgent(ctx, "agentA")
	require.NoError(t, err)
	assert.Equal(t, "v2/en_speaker_4", agent.VoiceID)
	assert.True(t, agent.VoiceEnabled)
}

func TestStore_SetVoiceProfile_NoRosterRecord(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	mirrored, err := store.SetVoiceProfile(ctx, &VoiceProfile{
		AgentID:   "unregistered",
		VoiceID:   "v2/en_speaker_1",
		UpdatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.False(t, mirrored)

	// Profile committed despite missing roster row
	profile, err := store.GetVoiceProfile(ctx, "unregistered")
	require.NoError(t, err)
	assert.Equal(t, "v2/en_speaker_1", profile.VoiceID)
}

func TestStore_GetVoiceProfile_NotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetVoiceProfile(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_SetVoiceProfile_ConcurrentSameAgent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, store.UpsertAgent(ctx, &AgentRecord{
		Name: "agentA", CreatedAt: now, UpdatedAt: now,
	}))

	const writers = 8
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func(i int) {
			defer wg.Done()
			_, err := store.SetVoiceProfile(ctx, &VoiceProfile{
				AgentID:   "agentA",
				VoiceID:   fmt.Sprintf("v2/en_speaker_%d", i),
				Params:    map[string]string{"writer": fmt.Sprintf("%d", i)},
				UpdatedAt: time.Now().UTC(),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	// Whichever write won, profile and mirror must agree
	profile, err := store.GetVoiceProfile(ctx, "agentA")
	require.NoError(t, err)
	agent, err := store.GetAgent(ctx, "agentA")
	require.NoError(t, err)
	assert.Equal(t, profile.VoiceID, agent.VoiceID)
	assert.True(t, agent.VoiceEnabled)
}

func TestStore_SetPreference_RoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetPreference(ctx, &UserPreference{
		UserID:         "user-1",
		VoiceEnabled:   true,
		PreferredAgent: "agentA",
		Session:        map[string]string{"theme": "dark"},
		UpdatedAt:      time.Now().UTC(),
	}))

	pref, err := store.GetPreference(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, pref.VoiceEnabled)
	assert.Equal(t, "agentA", pref.PreferredAgent)
	assert.Equal(t, "dark", pref.Session["theme"])
}

func TestStore_SetPreference_Upsert(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetPreference(ctx, &UserPreference{
		UserID: "user-1", VoiceEnabled: true, UpdatedAt: time.Now().UTC(),
	}))
	require.NoError(t, store.SetPreference(ctx, &UserPreference{
		UserID: "user-1", VoiceEnabled: false, PreferredAgent: "agentB",
		UpdatedAt: time.Now().UTC(),
	}))

	pref, err := store.GetPreference(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, pref.VoiceEnabled)
	assert.Equal(t, "agentB", pref.PreferredAgent)
}

func TestStore_GetPreference_NotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetPreference(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}
