// Package board holds the tic-tac-toe board types shared by the coordinator
// and the transports.
//
// The coordinator does not play the game. Clients compute wins and turn order;
// the server only keeps an advisory snapshot of the last relayed board so that
// reset broadcasts carry a well-formed starting position.
//
// Wire Format:
//
// A board is a JSON array of exactly nine cells. Each cell is null (empty),
// "X" or "O":
//
//	[null, "X", null, null, "O", null, null, null, null]
//
// A snapshot wraps the board with the player to move and an optional winner:
//
//	{"board": [...], "currentPlayer": "X", "winner": null}
package board
