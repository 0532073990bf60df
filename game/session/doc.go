// Package session implements the room session coordinator for morpion.
//
// The Coordinator is an actor: a single goroutine started with Run owns the
// connection Registry, the score Ledger and one advisory game Snapshot per
// room. Transports hand it inbound events through Submit and Disconnect,
// which only enqueue onto an ordered mailbox. Nothing outside that goroutine
// touches the shared maps, so cross-map steps such as "ensure the player's
// score, then check whether the room is ready" always see a consistent view.
//
// Events:
//
// Inbound (client to server):
//   - joinRoom {username, roomCode}, acknowledged
//   - makeMove {board, nextPlayer, roomCode}
//   - gameWon {winner, winningCells, roomCode}
//   - resetGame {roomCode, lastWinner}
//   - disconnect, signalled by the transport
//
// Outbound (server to clients):
//   - gameReady {firstPlayer, secondPlayer, scores}, whole room
//   - opponentMove {board, nextPlayer}, room except the mover
//   - scoreUpdate {name: score, ...}, whole room
//   - gameWon {winner, winningCells}, whole room
//   - gameReset {currentGame, lastWinner, scores}, whole room
//   - playerDisconnected {}, whole room
//
// Capacity:
//
// A room seats two players. A joinRoom from a connection that is not already
// seated in a full room is refused with {success: false, error: "room is full"}
// and leaves the room untouched.
//
// Delivery:
//
// Outbound events go through the Gateway, which resolves room members from the
// Registry and hands each message to a Sender. Senders must not block; the
// WebSocket hub queues per connection and drops connections whose queue is
// full. For a single win, scoreUpdate is always sent before gameWon.
//
// Result Sinks:
//
// Wins and resets are also reported to optional ResultSinks (logging, NATS).
// Sinks run on their own goroutine and can never stall event handling.
package session
