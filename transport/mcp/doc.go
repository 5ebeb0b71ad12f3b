// Package mcp provides a Model Context Protocol server for the watch party hub.
//
// The mcp package implements:
//   - MCP server for AI agent and operator integration
//   - Tool definitions that proxy to the hub's REST API
//   - Stdio and HTTP transport modes
//
// MCP Tools:
//   - list_participants: Current roster in join order
//   - hub_status: Connection counts, uptime and relay settings
//   - broadcast_player_state: Relay a player state to every viewer
//   - protocol_help: Websocket protocol reference
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:8080")
//	server.ServeStdio(client.GetMCPServer())
package mcp
