// Package gateway orchestrates the MOTHER server components.
//
// # Overview
//
// The gateway package is the central coordinator of the MOTHER server. It
// owns the SQLite store, the conversation, memory, and voice services, the
// event broadcaster, and the HTTP server.
//
// # HTTP Surface
//
//   - GET /ws - observer websocket (commands in, events out)
//   - GET /api/conversations - active conversations as JSON
//   - GET /healthz - liveness check
//
// # Websocket Protocol
//
// Every inbound frame is a JSON Command selected by its "type" field:
// create_conversation, end_conversation, set_voice, send_message, and
// submit_query. Accepted state changes are broadcast to every connected
// observer as events (roster_update, voice_update, conversation_update,
// debug_message). A failed command replies only to the issuing connection:
//
//	{"type": "error", "code": "not_found", "message": "..."}
//
// submit_query replies directly with a query_result frame carrying the
// context-enhanced prompt and the agent's voice resolution.
//
// The first frame sent on a new connection is a roster_update snapshot so
// observers rebuild their projections from pushes alone.
//
// # Privacy
//
// The server broadcasts message traffic from private conversations like any
// other event; hiding it from non-participants is the observer's job. The
// wire carries is_private on conversation_update so clients can filter.
package gateway
