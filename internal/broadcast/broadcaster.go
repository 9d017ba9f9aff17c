// ABOUTME: In-memory fan-out broadcaster pushing state transitions to observer clients
// ABOUTME: Bounded per-subscriber queues drop oldest chat traffic first, never lifecycle endings

package broadcast

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const (
	// DefaultQueueSize is the per-subscriber outbound queue capacity.
	DefaultQueueSize = 64
)

// Broadcaster provides in-memory pub/sub for state-change events. Observer
// clients subscribe once per connection and receive every accepted state
// change; visibility filtering of debug traffic happens client-side.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	queueSize   int
	logger      *slog.Logger
}

// New creates a broadcaster. queueSize <= 0 uses DefaultQueueSize.
// Pass nil logger for default.
func New(queueSize int, logger *slog.Logger) *Broadcaster {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]*Subscriber),
		queueSize:   queueSize,
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a new observer. The subscription is automatically
// cleaned up when ctx is cancelled.
func (b *Broadcaster) Subscribe(ctx context.Context) *Subscriber {
	sub := &Subscriber{
		ID:     uuid.New().String(),
		limit:  b.queueSize,
		notify: make(chan struct{}, 1),
	}

	b.mu.Lock()
	b.subscribers[sub.ID] = sub
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "sub_id", sub.ID)

	// Auto-cleanup on context cancellation
	go func() {
		<-ctx.Done()
		b.Unsubscribe(sub.ID)
	}()

	return sub
}

// Publish delivers an event to every subscriber. Fire-and-forget: a slow
// subscriber has old chat-style events evicted from its queue rather than
// blocking the publisher. If excludeSubID is non-empty that subscriber is
// skipped (used to avoid echoing command results to the issuing client when
// a direct reply was already sent).
func (b *Broadcaster) Publish(event *Event, excludeSubID string) {
	b.mu.RLock()
	targets := make([]*Subscriber, 0, len(b.subscribers))
	for id, sub := range b.subscribers {
		if excludeSubID != "" && id == excludeSubID {
			continue
		}
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		if dropped := sub.push(event); dropped != nil {
			b.logger.Debug("dropped event for slow subscriber",
				"sub_id", sub.ID,
				"dropped_kind", dropped.Type,
			)
		}
	}
}

// Unsubscribe removes a subscription and wakes its consumer.
func (b *Broadcaster) Unsubscribe(subID string) {
	b.mu.Lock()
	sub, ok := b.subscribers[subID]
	if ok {
		delete(b.subscribers, subID)
	}
	b.mu.Unlock()

	if !ok {
		return
	}

	sub.close()
	b.logger.Debug("subscriber removed", "sub_id", subID)
}

// SubscriberCount returns the number of connected observers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close shuts down the broadcaster and wakes all subscribers.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	subs := b.subscribers
	b.subscribers = make(map[string]*Subscriber)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}

	b.logger.Debug("broadcaster closed")
}

// Subscriber is one observer's bounded outbound queue. Events are consumed
// with Next; when the queue overflows, the oldest non-critical event is
// evicted first so conversation endings survive bursts of debug chatter.
type Subscriber struct {
	ID string

	mu     sync.Mutex
	queue  []*Event
	limit  int
	closed bool
	notify chan struct{}
}

// push enqueues an event, returning the event that was evicted (or the
// incoming one) when the queue was full, nil otherwise.
func (s *Subscriber) push(event *Event) *Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return event
	}

	var dropped *Event
	if len(s.queue) >= s.limit {
		dropped = s.evictLocked(event)
		if dropped == event {
			return dropped
		}
	}

	s.queue = append(s.queue, event)
	select {
	case s.notify <- struct{}{}:
	default:
	}
	return dropped
}

// evictLocked makes room for an incoming event on a full queue. The oldest
// non-critical event goes first. A non-critical incoming event is dropped
// outright when only critical events remain queued; a critical incoming
// event evicts the oldest critical one so the newest state always lands.
func (s *Subscriber) evictLocked(incoming *Event) *Event {
	for i, queued := range s.queue {
		if !queued.Critical() {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return queued
		}
	}
	if !incoming.Critical() {
		return incoming
	}
	oldest := s.queue[0]
	s.queue = s.queue[1:]
	return oldest
}

// Next blocks until an event is available, the subscriber is closed, or ctx
// is cancelled. Returns ok=false when no further events will arrive.
func (s *Subscriber) Next(ctx context.Context) (*Event, bool) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			event := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return event, true
		}
		closed := s.closed
		s.mu.Unlock()

		if closed {
			return nil, false
		}

		select {
		case <-ctx.Done():
			return nil, false
		case <-s.notify:
		}
	}
}

func (s *Subscriber) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}
