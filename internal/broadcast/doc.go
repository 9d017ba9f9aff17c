// Package broadcast provides in-memory fan-out of state-change events to
// connected observers.
//
// Each subscriber owns a bounded queue. Publish never blocks: when a queue
// is full, the oldest non-critical event is evicted to make room, and a
// non-critical incoming event is dropped outright if only critical events
// remain queued. conversation_update events with status "ended" are the
// critical class; an observer may miss chat traffic under pressure but never
// a conversation ending.
//
// Events are delivered to every subscriber, including debug_message traffic
// from private conversations. Visibility filtering is the observer's
// responsibility.
package broadcast
