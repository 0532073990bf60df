// Package api serves the HTTP surface of the morpion server.
//
// Endpoints:
//
// Live rooms (read through the room coordinator):
//   - GET /api/health - Coordinator stats
//   - GET /api/rooms - Every room with members, scores and board
//   - GET /api/rooms/{code} - One room
//   - GET /api/rooms/{code}/scores - Win counts for one room
//
// Accounts:
//   - POST /api/register - Create an unverified account
//   - GET /api/verify-email?email= - Mark the account verified
//   - POST /api/login - Exchange email and password for a bearer token
//   - POST /api/logout - Revoke the caller's token
//   - GET /api/users, GET /api/users/{id}
//
// Game records (bearer token required):
//   - POST /api/games - Create a pending game owned by the caller
//   - GET /api/games - All games
//   - GET /api/user/games - Games created by the caller
//   - PATCH /api/games/{action}/{gameId} - join, start or finish a game
//
// Realtime play happens over GET /ws; /mcp accepts MCP JSON-RPC messages.
//
// Errors are returned as JSON with an appropriate status code:
//
//	{"error": "error message"}
package api
