// ABOUTME: Tests for conversation lifecycle and message log persistence
// ABOUTME: Covers end/append races, terminal state, ordering, and summaries

package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestConversation(t *testing.T, s *SQLiteStore, participants ...string) *Conversation {
	t.Helper()
	now := time.Now().UTC()
	conv := &Conversation{
		ID:           uuid.New().String(),
		Initiator:    "user-1",
		Participants: participants,
		Private:      true,
		Active:       true,
		CreatedAt:    now,
		LastActivity: now,
	}
	require.NoError(t, s.CreateConversation(context.Background(), conv))
	return conv
}

func TestStore_CreateAndGetConversation(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	conv := createTestConversation(t, store, "agentA", "agentB")

	retrieved, err := store.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, retrieved.ID)
	assert.Equal(t, "user-1", retrieved.Initiator)
	assert.Equal(t, []string{"agentA", "agentB"}, retrieved.Participants)
	assert.True(t, retrieved.Private)
	assert.True(t, retrieved.Active)
}

func TestStore_GetConversation_NotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetConversation(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_EndConversation(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	conv := createTestConversation(t, store, "agentA", "agentB")

	err := store.EndConversation(ctx, conv.ID, time.Now().UTC())
	require.NoError(t, err)

	retrieved, err := store.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.False(t, retrieved.Active)
}

func TestStore_EndConversation_NotFound(t *testing.T) {
	store := setupTestStore(t)

	err := store.EndConversation(context.Background(), "missing", time.Now().UTC())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_EndConversation_AlreadyEnded(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	conv := createTestConversation(t, store, "agentA", "agentB")
	require.NoError(t, store.EndConversation(ctx, conv.ID, time.Now().UTC()))

	err := store.EndConversation(ctx, conv.ID, time.Now().UTC())
	assert.ErrorIs(t, err, ErrAlreadyEnded)
}

func TestStore_AppendMessage(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	conv := createTestConversation(t, store, "agentA", "agentB")

	msg := &Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Sender:         "agentA",
		Content:        "hello",
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, store.AppendMessage(ctx, msg))
	assert.Positive(t, msg.Seq)
	assert.Equal(t, MessageTypeText, msg.Type)

	messages, err := store.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "agentA", messages[0].Sender)
	assert.Equal(t, "hello", messages[0].Content)
}

func TestStore_AppendMessage_BumpsLastActivity(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	conv := createTestConversation(t, store, "agentA", "agentB")

	later := conv.LastActivity.Add(time.Minute)
	require.NoError(t, store.AppendMessage(ctx, &Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Sender:         "agentA",
		Content:        "hello",
		CreatedAt:      later,
	}))

	retrieved, err := store.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.True(t, retrieved.LastActivity.After(conv.LastActivity))
}

func TestStore_AppendMessage_RejectedAfterEnd(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	conv := createTestConversation(t, store, "agentA", "agentB")
	require.NoError(t, store.EndConversation(ctx, conv.ID, time.Now().UTC()))

	err := store.AppendMessage(ctx, &Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Sender:         "agentA",
		Content:        "too late",
		CreatedAt:      time.Now().UTC(),
	})
	assert.ErrorIs(t, err, ErrConversationNotActive)

	// No message leaked into the log
	messages, err := store.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestStore_AppendMessage_UnknownConversation(t *testing.T) {
	store := setupTestStore(t)

	err := store.AppendMessage(context.Background(), &Message{
		ID:             uuid.New().String(),
		ConversationID: "missing",
		Sender:         "agentA",
		Content:        "hello",
		CreatedAt:      time.Now().UTC(),
	})
	assert.ErrorIs(t, err, ErrConversationNotActive)
}

func TestStore_ListMessages_AppendOrder(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	conv := createTestConversation(t, store, "agentA", "agentB")

	// Identical timestamps; seq must still preserve append order
	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		require.NoError(t, store.AppendMessage(ctx, &Message{
			ID:             uuid.New().String(),
			ConversationID: conv.ID,
			Sender:         "agentA",
			Content:        fmt.Sprintf("msg-%d", i),
			CreatedAt:      now,
		}))
	}

	messages, err := store.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, messages, 5)
	for i, msg := range messages {
		assert.Equal(t, fmt.Sprintf("msg-%d", i), msg.Content)
	}
}

func TestStore_ListMessages_PrefixStable(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	conv := createTestConversation(t, store, "agentA", "agentB")

	var previous []*Message
	for i := 0; i < 4; i++ {
		require.NoError(t, store.AppendMessage(ctx, &Message{
			ID:             uuid.New().String(),
			ConversationID: conv.ID,
			Sender:         "agentB",
			Content:        fmt.Sprintf("msg-%d", i),
			CreatedAt:      time.Now().UTC(),
		}))

		current, err := store.ListMessages(ctx, conv.ID)
		require.NoError(t, err)
		require.Len(t, current, i+1)

		// Already-returned messages never reorder
		for j, prev := range previous {
			assert.Equal(t, prev.ID, current[j].ID)
		}
		previous = current
	}
}

func TestStore_ListMessages_UnknownConversation(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.ListMessages(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ListMessages_EmptyConversation(t *testing.T) {
	store := setupTestStore(t)
	conv := createTestConversation(t, store, "agentA", "agentB")

	messages, err := store.ListMessages(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestStore_ListActiveConversations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	first := createTestConversation(t, store, "agentA", "agentB")
	second := createTestConversation(t, store, "agentB", "agentC")
	ended := createTestConversation(t, store, "agentA", "agentC")
	require.NoError(t, store.EndConversation(ctx, ended.ID, time.Now().UTC()))

	// Activity on first makes it most recent
	require.NoError(t, store.AppendMessage(ctx, &Message{
		ID:             uuid.New().String(),
		ConversationID: first.ID,
		Sender:         "agentA",
		Content:        "bump",
		CreatedAt:      time.Now().UTC().Add(time.Minute),
	}))

	summaries, err := store.ListActiveConversations(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, first.ID, summaries[0].ID)
	assert.Equal(t, 1, summaries[0].MessageCount)
	assert.Equal(t, second.ID, summaries[1].ID)
	assert.Equal(t, 0, summaries[1].MessageCount)
}

func TestStore_AppendRacingEnd_ManyConversations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	const conversations = 10
	const appenders = 16

	var wg sync.WaitGroup
	for c := 0; c < conversations; c++ {
		conv := createTestConversation(t, store, "agentA", "agentB")

		wg.Add(appenders + 1)
		for i := 0; i < appenders; i++ {
			go func(i int) {
				defer wg.Done()
				err := store.AppendMessage(ctx, &Message{
					ID:             uuid.New().String(),
					ConversationID: conv.ID,
					Sender:         "agentA",
					Content:        fmt.Sprintf("racer-%d", i),
					CreatedAt:      time.Now().UTC(),
				})
				// Rejections carry the taxonomy, never a raw driver code
				if err != nil {
					assert.ErrorIs(t, err, ErrConversationNotActive)
				}
			}(i)
		}
		go func(id string) {
			defer wg.Done()
			err := store.EndConversation(ctx, id, time.Now().UTC())
			assert.NoError(t, err)
		}(conv.ID)
	}
	wg.Wait()

	// All ends won their race exactly once
	active, err := store.ListActiveConversations(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestStore_AppendRacingEnd_ExactlyOneSerialization(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	conv := createTestConversation(t, store, "agentA", "agentB")

	const appenders = 8
	var wg sync.WaitGroup
	results := make([]error, appenders)

	wg.Add(appenders + 1)
	for i := 0; i < appenders; i++ {
		go func(i int) {
			defer wg.Done()
			results[i] = store.AppendMessage(ctx, &Message{
				ID:             uuid.New().String(),
				ConversationID: conv.ID,
				Sender:         "agentA",
				Content:        fmt.Sprintf("racer-%d", i),
				CreatedAt:      time.Now().UTC(),
			})
		}(i)
	}
	go func() {
		defer wg.Done()
		_ = store.EndConversation(ctx, conv.ID, time.Now().UTC())
	}()
	wg.Wait()

	// Every append either committed or was rejected as not active
	committed := 0
	for _, err := range results {
		if err == nil {
			committed++
		} else {
			assert.ErrorIs(t, err, ErrConversationNotActive)
		}
	}

	// The log holds exactly the committed appends, and the conversation ended
	messages, err := store.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Len(t, messages, committed)

	retrieved, err := store.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.False(t, retrieved.Active)

	// Nothing may append after the end is visible
	err = store.AppendMessage(ctx, &Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Sender:         "agentB",
		Content:        "postmortem",
		CreatedAt:      time.Now().UTC(),
	})
	assert.ErrorIs(t, err, ErrConversationNotActive)
}
