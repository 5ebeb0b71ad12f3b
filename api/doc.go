// Package api provides the HTTP surface of the watch party hub.
//
// The api package implements:
//   - The websocket endpoint clients hold open
//   - Read-only views of the roster and hub status
//   - A server-side entry point for pushing a player state to everyone
//   - Health and Prometheus endpoints
//
// Endpoints:
//
//   - GET  /healthz          - Liveness
//   - GET  /ws               - WebSocket upgrade (see transport/websocket)
//   - GET  /api/participants - Current roster
//   - GET  /api/status       - Connection counts and hub settings
//   - POST /api/player-state - Relay a player state to every connection
//   - GET  /metrics          - Prometheus metrics
//
// Request/Response Format:
//
// All /api endpoints return JSON. POST /api/player-state takes the same
// object clients send on the socket:
//
//	{
//	  "sourceReference": "https://youtu.be/abc",
//	  "playableReference": "https://www.youtube.com/embed/abc",
//	  "eventKind": "play"
//	}
//
// Error Handling:
//
// Errors are returned as JSON with an appropriate HTTP status code:
//
//	{
//	  "error": "error message"
//	}
//
// CORS:
//
// Browser origins are restricted to the configured allow list.
package api
