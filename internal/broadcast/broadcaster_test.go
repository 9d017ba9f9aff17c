// ABOUTME: Tests for the fan-out Broadcaster and per-subscriber priority queues
// ABOUTME: Covers delivery, overflow eviction policy, unsubscribe, and concurrency

package broadcast

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nextWithTimeout(t *testing.T, sub *Subscriber) *Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	event, ok := sub.Next(ctx)
	require.True(t, ok, "timed out waiting for event")
	return event
}

func TestBroadcaster_SingleSubscriberReceivesEvent(t *testing.T) {
	b := New(0, nil)
	defer b.Close()

	sub := b.Subscribe(t.Context())

	b.Publish(DebugMessage("agentA", "conv-1", "hello", "text"), "")

	event := nextWithTimeout(t, sub)
	assert.Equal(t, KindDebugMessage, event.Type)
	assert.Equal(t, "agentA", event.Sender)
	assert.Equal(t, "conv-1", event.Recipient)
}

func TestBroadcaster_AllSubscribersReceiveSameEvent(t *testing.T) {
	b := New(0, nil)
	defer b.Close()

	subs := []*Subscriber{
		b.Subscribe(t.Context()),
		b.Subscribe(t.Context()),
		b.Subscribe(t.Context()),
	}

	b.Publish(ConversationCreated("conv-1", []string{"agentA", "agentB"}, true), "")

	for i, sub := range subs {
		event := nextWithTimeout(t, sub)
		assert.Equal(t, "conv-1", event.ConversationID, "subscriber %d", i)
		assert.Equal(t, StatusCreated, event.Status, "subscriber %d", i)
	}
}

func TestBroadcaster_DebugTrafficReachesEveryoneUnfiltered(t *testing.T) {
	b := New(0, nil)
	defer b.Close()

	// Private conversation traffic still fans out to all observers;
	// filtering is client-side.
	sub := b.Subscribe(t.Context())

	b.Publish(DebugMessage("agentA", "private-conv", "secret plan", "text"), "")

	event := nextWithTimeout(t, sub)
	assert.Equal(t, "secret plan", event.Content)
}

func TestBroadcaster_ExcludedSubscriberSkipped(t *testing.T) {
	b := New(0, nil)
	defer b.Close()

	issuer := b.Subscribe(t.Context())
	other := b.Subscribe(t.Context())

	b.Publish(DebugMessage("agentA", "conv-1", "hello", "text"), issuer.ID)

	event := nextWithTimeout(t, other)
	assert.Equal(t, "hello", event.Content)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, ok := issuer.Next(ctx)
	assert.False(t, ok, "excluded subscriber should not receive the event")
}

func TestBroadcaster_UnsubscribeStopsDelivery(t *testing.T) {
	b := New(0, nil)
	defer b.Close()

	sub := b.Subscribe(t.Context())
	b.Unsubscribe(sub.ID)
	assert.Equal(t, 0, b.SubscriberCount())

	b.Publish(DebugMessage("agentA", "conv-1", "hello", "text"), "")

	_, ok := sub.Next(context.Background())
	assert.False(t, ok)
}

func TestBroadcaster_ContextCancellationCleansUp(t *testing.T) {
	b := New(0, nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	b.Subscribe(ctx)
	require.Equal(t, 1, b.SubscriberCount())

	cancel()
	require.Eventually(t, func() bool {
		return b.SubscriberCount() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestSubscriber_OverflowDropsOldestDebugFirst(t *testing.T) {
	b := New(2, nil)
	defer b.Close()

	sub := b.Subscribe(t.Context())

	b.Publish(DebugMessage("agentA", "conv-1", "first", "text"), "")
	b.Publish(DebugMessage("agentA", "conv-1", "second", "text"), "")
	// Queue full; the critical ended event must evict the oldest debug message
	b.Publish(ConversationEnded("conv-1"), "")

	event := nextWithTimeout(t, sub)
	assert.Equal(t, "second", event.Content)

	event = nextWithTimeout(t, sub)
	assert.Equal(t, KindConversationUpdate, event.Type)
	assert.Equal(t, StatusEnded, event.Status)
}

func TestSubscriber_OverflowDropsIncomingDebugWhenOnlyCriticalQueued(t *testing.T) {
	b := New(2, nil)
	defer b.Close()

	sub := b.Subscribe(t.Context())

	b.Publish(ConversationEnded("conv-1"), "")
	b.Publish(ConversationEnded("conv-2"), "")
	// Queue is all critical; incoming chat traffic is the one to drop
	b.Publish(DebugMessage("agentA", "conv-3", "chatter", "text"), "")

	first := nextWithTimeout(t, sub)
	assert.Equal(t, "conv-1", first.ConversationID)
	second := nextWithTimeout(t, sub)
	assert.Equal(t, "conv-2", second.ConversationID)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, ok := sub.Next(ctx)
	assert.False(t, ok, "dropped debug message should not arrive")
}

func TestBroadcaster_SlowSubscriberNeverBlocksPublish(t *testing.T) {
	b := New(4, nil)
	defer b.Close()

	b.Subscribe(t.Context()) // never consumed

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			b.Publish(DebugMessage("agentA", "conv-1", fmt.Sprintf("msg-%d", i), "text"), "")
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestBroadcaster_ConcurrentPublishAndSubscribe(t *testing.T) {
	b := New(0, nil)
	defer b.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithCancel(context.Background())
			sub := b.Subscribe(ctx)
			_ = sub
			cancel()
		}()
		go func(i int) {
			defer wg.Done()
			b.Publish(DebugMessage("agentA", "conv-1", fmt.Sprintf("msg-%d", i), "text"), "")
		}(i)
	}
	wg.Wait()
}

func TestEvent_CriticalClassification(t *testing.T) {
	assert.True(t, ConversationEnded("c").Critical())
	assert.False(t, ConversationCreated("c", nil, false).Critical())
	assert.False(t, DebugMessage("a", "c", "x", "text").Critical())
	assert.False(t, VoiceUpdate("a", "v", true, true).Critical())
	assert.False(t, RosterUpdate(nil).Critical())
}
