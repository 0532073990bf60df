package session

import (
	"encoding/json"
	"time"

	"github.com/wricardo/morpion/game/board"
	"github.com/wricardo/morpion/game/room"
)

// Inbound event names.
const (
	EventJoinRoom  = "joinRoom"
	EventMakeMove  = "makeMove"
	EventGameWon   = "gameWon"
	EventResetGame = "resetGame"
)

// Outbound event names. gameWon is shared with the inbound name.
const (
	EventGameReady          = "gameReady"
	EventOpponentMove       = "opponentMove"
	EventScoreUpdate        = "scoreUpdate"
	EventGameReset          = "gameReset"
	EventPlayerDisconnected = "playerDisconnected"
)

// RoomCapacity is the number of players a room seats.
const RoomCapacity = 2

// Inbound is one decoded frame from a connection. Ack is set when the client
// asked for an acknowledgement.
type Inbound struct {
	ConnID string
	Event  string
	Ack    *int64
	Data   json.RawMessage
}

// JoinRequest is the joinRoom payload.
type JoinRequest struct {
	Username string `json:"username"`
	RoomCode string `json:"roomCode"`
}

// MoveRequest is the makeMove payload.
type MoveRequest struct {
	Board      []board.Mark `json:"board"`
	NextPlayer string       `json:"nextPlayer"`
	RoomCode   string       `json:"roomCode"`
}

// WinRequest is the inbound gameWon payload.
type WinRequest struct {
	Winner       string `json:"winner"`
	WinningCells []int  `json:"winningCells"`
	RoomCode     string `json:"roomCode"`
}

// ResetRequest is the resetGame payload.
type ResetRequest struct {
	RoomCode   string  `json:"roomCode"`
	LastWinner *string `json:"lastWinner"`
}

// JoinAck is the direct reply to joinRoom.
type JoinAck struct {
	Success     bool        `json:"success"`
	GameReady   bool        `json:"gameReady"`
	FirstPlayer string      `json:"firstPlayer,omitempty"`
	Scores      room.Scores `json:"scores,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// GameReady announces that a room has two players.
type GameReady struct {
	FirstPlayer  string      `json:"firstPlayer"`
	SecondPlayer string      `json:"secondPlayer"`
	Scores       room.Scores `json:"scores"`
}

// OpponentMove relays a move to the other player.
type OpponentMove struct {
	Board      board.Board `json:"board"`
	NextPlayer board.Mark  `json:"nextPlayer"`
}

// GameWon announces a reported win.
type GameWon struct {
	Winner       string `json:"winner"`
	WinningCells []int  `json:"winningCells"`
}

// GameReset carries the fresh board after a reset.
type GameReset struct {
	CurrentGame board.Snapshot `json:"currentGame"`
	LastWinner  *string        `json:"lastWinner"`
	Scores      room.Scores    `json:"scores"`
}

// PlayerDisconnected is sent when a room drops below two players.
type PlayerDisconnected struct{}

// Result kinds reported to sinks.
const (
	ResultWon   = "won"
	ResultReset = "reset"
)

// Result describes a finished or reset game for ResultSinks.
type Result struct {
	Kind         string      `json:"kind"`
	RoomCode     string      `json:"roomCode"`
	Winner       string      `json:"winner,omitempty"`
	WinningCells []int       `json:"winningCells,omitempty"`
	LastWinner   *string     `json:"lastWinner,omitempty"`
	Scores       room.Scores `json:"scores"`
	At           time.Time   `json:"at"`
}

// Room lifecycle states derived from membership.
const (
	StateEmpty   = "empty"
	StateWaiting = "waiting"
	StateReady   = "ready"
)

// PlayerInfo is a seated player as seen by inspection calls.
type PlayerInfo struct {
	Name   string `json:"name"`
	ConnID string `json:"connectionId"`
}

// RoomInfo is a read-only copy of one room's state.
type RoomInfo struct {
	Code        string         `json:"code"`
	State       string         `json:"state"`
	Players     []PlayerInfo   `json:"players"`
	Scores      room.Scores    `json:"scores"`
	CurrentGame board.Snapshot `json:"currentGame"`
}

// Stats summarizes the coordinator.
type Stats struct {
	Connections int `json:"connections"`
	Rooms       int `json:"rooms"`
	ReadyRooms  int `json:"readyRooms"`
}

func stateFor(members int) string {
	switch {
	case members == 0:
		return StateEmpty
	case members < RoomCapacity:
		return StateWaiting
	default:
		return StateReady
	}
}
