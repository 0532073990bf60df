package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"

	"github.com/wricardo/morpion/game/board"
	"github.com/wricardo/morpion/game/session"
	"github.com/wricardo/morpion/transport/websocket"
)

const joinAckID int64 = 1

var (
	ErrJoinRefused  = errors.New("join refused")
	ErrOpponentLeft = errors.New("opponent disconnected")
)

// frame is one outgoing envelope.
type frame struct {
	Event string `json:"event"`
	Ack   *int64 `json:"ack,omitempty"`
	Data  any    `json:"data"`
}

// Player plays one seat of a room. It is not safe for concurrent use; the
// read loop owns it.
type Player struct {
	name     string
	room     string
	maxGames int
	rng      *rand.Rand

	mark   board.Mark
	board  board.Board
	turn   board.Mark
	played int
	done   bool
}

func NewPlayer(name, room string, maxGames int, seed int64) *Player {
	return &Player{
		name:     name,
		room:     room,
		maxGames: maxGames,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// Done reports whether the player has finished its games.
func (p *Player) Done() bool { return p.done }

// Played returns the number of finished games.
func (p *Player) Played() int { return p.played }

// Join returns the joinRoom request.
func (p *Player) Join() frame {
	ack := joinAckID
	return frame{
		Event: session.EventJoinRoom,
		Ack:   &ack,
		Data:  session.JoinRequest{Username: p.name, RoomCode: p.room},
	}
}

// Handle reacts to one server envelope and returns what to send back.
func (p *Player) Handle(env websocket.Envelope) ([]frame, error) {
	switch env.Event {
	case websocket.AckEvent:
		var ack session.JoinAck
		if err := json.Unmarshal(env.Data, &ack); err != nil {
			return nil, fmt.Errorf("decode join ack: %w", err)
		}
		if !ack.Success {
			return nil, fmt.Errorf("%w: %s", ErrJoinRefused, ack.Error)
		}
		if ack.GameReady {
			return p.start(ack.FirstPlayer), nil
		}
		return nil, nil

	case session.EventGameReady:
		var ready session.GameReady
		if err := json.Unmarshal(env.Data, &ready); err != nil {
			return nil, fmt.Errorf("decode gameReady: %w", err)
		}
		return p.start(ready.FirstPlayer), nil

	case session.EventOpponentMove:
		var move struct {
			Board      []board.Mark `json:"board"`
			NextPlayer string       `json:"nextPlayer"`
		}
		if err := json.Unmarshal(env.Data, &move); err != nil {
			return nil, fmt.Errorf("decode opponentMove: %w", err)
		}
		b, err := board.FromCells(move.Board)
		if err != nil {
			return nil, err
		}
		next, err := board.ParsePlayer(move.NextPlayer)
		if err != nil {
			return nil, err
		}
		p.board = b
		p.turn = next
		return p.maybeMove(), nil

	case session.EventGameReset:
		var reset struct {
			CurrentGame struct {
				Board         []board.Mark `json:"board"`
				CurrentPlayer string       `json:"currentPlayer"`
			} `json:"currentGame"`
		}
		if err := json.Unmarshal(env.Data, &reset); err != nil {
			return nil, fmt.Errorf("decode gameReset: %w", err)
		}
		p.played++
		if p.maxGames > 0 && p.played >= p.maxGames {
			p.done = true
			return nil, nil
		}
		p.board = board.Board{}
		p.turn = board.StartingPlayer
		if next, err := board.ParsePlayer(reset.CurrentGame.CurrentPlayer); err == nil {
			p.turn = next
		}
		return p.maybeMove(), nil

	case session.EventPlayerDisconnected:
		p.done = true
		return nil, ErrOpponentLeft
	}

	// scoreUpdate, gameWon: nothing to answer
	return nil, nil
}

// start seats the player once both names are known. The first player is X.
func (p *Player) start(firstPlayer string) []frame {
	if p.mark != board.Empty {
		return nil
	}
	p.mark = board.O
	if firstPlayer == p.name {
		p.mark = board.X
	}
	p.board = board.Board{}
	p.turn = board.StartingPlayer
	return p.maybeMove()
}

func (p *Player) maybeMove() []frame {
	if p.mark == board.Empty || p.turn != p.mark || p.done {
		return nil
	}
	if w, _ := p.board.Winner(); w != board.Empty || p.board.Full() {
		return nil
	}

	cell := p.choose()
	p.board[cell] = p.mark
	p.turn = p.mark.Opponent()

	out := []frame{{
		Event: session.EventMakeMove,
		Data: map[string]any{
			"board":      p.board,
			"nextPlayer": p.turn,
			"roomCode":   p.room,
		},
	}}

	if winner, cells := p.board.Winner(); winner == p.mark {
		name := p.name
		out = append(out,
			frame{Event: session.EventGameWon, Data: session.WinRequest{Winner: name, WinningCells: cells, RoomCode: p.room}},
			frame{Event: session.EventResetGame, Data: session.ResetRequest{RoomCode: p.room, LastWinner: &name}},
		)
	} else if p.board.Full() {
		out = append(out, frame{Event: session.EventResetGame, Data: session.ResetRequest{RoomCode: p.room}})
	}
	return out
}

// choose wins if it can, blocks if it must, otherwise picks a random free cell.
func (p *Player) choose() int {
	if i, ok := p.completing(p.mark); ok {
		return i
	}
	if i, ok := p.completing(p.mark.Opponent()); ok {
		return i
	}

	free := make([]int, 0, board.Size)
	for i, c := range p.board {
		if c == board.Empty {
			free = append(free, i)
		}
	}
	return free[p.rng.Intn(len(free))]
}

func (p *Player) completing(m board.Mark) (int, bool) {
	for i, c := range p.board {
		if c != board.Empty {
			continue
		}
		trial := p.board
		trial[i] = m
		if w, _ := trial.Winner(); w == m {
			return i, true
		}
	}
	return 0, false
}
