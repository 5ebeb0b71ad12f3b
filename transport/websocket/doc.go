// Package websocket provides the real-time synchronization hub for a watch party.
//
// The websocket package implements:
//   - Connection admission and per-connection lifecycle (session manager)
//   - Participant registration against the shared roster
//   - Fan-out of roster and player-state events to every open connection
//   - Heartbeats, slow-consumer eviction, and graceful shutdown
//
// Architecture:
//
// Every connection gets two goroutines: readPump decodes inbound events and
// acts on them, writePump drains a buffered send queue onto the socket. There
// is no central event loop; the roster registry and the set of open
// connections are each guarded by their own lock.
//
// Message Protocol:
//
// Frames are UTF-8 JSON envelopes:
//
//	{"event": "register-participant", "payload": {"id": "u1", "name": "Ana"}}
//	{"event": "player-state-changed", "payload": {"playableReference": "...", "eventKind": "play"}}
//
// The hub answers with "roster-updated" (payload: array of participants) and
// "player-state-broadcast" (payload: the player state exactly as received).
// A player state is echoed to its sender as well.
//
// Connection Lifecycle:
//
// 1. Open: the HTTP upgrade succeeded
// 2. Registered: a valid register-participant was received
// 3. Closed: read failure, missed pong, eviction, or hub shutdown
//
// Leaving Registered always removes the participant and sends the updated
// roster to everyone left. Cleanup runs exactly once per connection.
//
// Ordering:
//
// Events from one sender reach every recipient in the order they were sent.
// Events from different senders may interleave differently per recipient.
// Roster updates are serialized so recipients see them in mutation order.
//
// Malformed input is logged and dropped; the connection stays open.
package websocket
