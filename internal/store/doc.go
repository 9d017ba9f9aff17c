// Package store provides persistent storage for MOTHER using SQLite.
//
// # Data Models
//
//   - ContextEntry: One query/response exchange in the per-(user, agent)
//     context log. Append-only and immutable.
//   - Conversation: Multi-party agent session with a fixed participant set,
//     a private flag, and an active flag that flips exactly once.
//   - Message: Ordered entry in a conversation's log. Seq is the persisted
//     append order.
//   - VoiceProfile: One voice identity per agent, replaced wholesale on
//     upsert and mirrored into the agent roster record.
//   - UserPreference: Per-user session settings (voice output, preferred
//     agent).
//   - AgentRecord: Roster entry carrying the mirrored voice fields.
//
// # Transaction Boundaries
//
// Two operations combine reads and writes atomically:
//
//   - AppendMessage bumps the parent conversation's last_activity with a
//     conditional UPDATE (active = 1) and inserts the message in the same
//     transaction. An append racing a concurrent EndConversation either
//     commits before the end or fails with ErrConversationNotActive.
//   - SetVoiceProfile upserts the profile and mirrors voice_id/voice_enabled
//     into the agents table in the same transaction, so the two
//     representations never diverge.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound: Requested entity does not exist
//   - ErrConversationNotActive: Append against a missing or ended conversation
//   - ErrAlreadyEnded: Duplicate end of a conversation
//
// All methods accept context.Context for cancellation support.
//
// # Migrations
//
// The schema is created on initialization; column additions for existing
// databases run as idempotent pragma-checked migrations.
package store
