// Package mcp exposes the live room state as Model Context Protocol tools.
//
// The client is thin: every tool calls the REST API and formats the answer
// as text for an agent or operator.
//
// MCP Tools:
//   - list_rooms: every room with its state and members
//   - get_room: members, scores and the current board of one room
//   - room_scores: win counts of one room
//   - server_health: connection and room counts
//
// Transport Modes:
//   - Stdio: server.ServeStdio(client.GetMCPServer())
//   - HTTP: client.Handler() mounted at /mcp, one JSON-RPC message per POST
package mcp
