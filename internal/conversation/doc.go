// Package conversation provides the multi-party conversation manager.
//
// # Overview
//
// The conversation package sits between the gateway's command handlers and
// the store, owning conversation lifecycle, membership, and message ordering.
//
// # Service
//
// The Service coordinates conversation operations:
//
//	svc := conversation.New(store, logger)
//
// Key operations:
//
//   - Create(ctx, initiator, participants, private): Start a conversation
//   - End(ctx, id): Terminate a conversation (terminal, irreversible)
//   - Append(ctx, id, sender, content, type): Record a message
//   - History(ctx, id): Messages in append order
//   - ListActive(ctx): Active conversation summaries
//
// # Lifecycle
//
// A conversation has exactly two states: active and ended. It is created
// active, every appended message bumps its last-activity timestamp, and an
// explicit End flips it to ended forever. Double-End returns ErrAlreadyEnded;
// appending to an ended or unknown conversation returns
// ErrConversationNotActive. The participant set is fixed at creation - there
// is no late join or leave.
//
// # Ordering
//
// Message order is the persisted append order (a monotonic sequence assigned
// by the store), so History is prefix-stable: messages already returned never
// reorder as new ones arrive.
//
// # Privacy
//
// A conversation created with private=true carries agent-to-agent traffic
// that observers only render in debug mode. The server fans the traffic out
// to every subscriber regardless; visibility is a client-side concern.
package conversation
