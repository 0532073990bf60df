package board

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Mark is the content of a single cell, or the player whose turn it is.
type Mark string

const (
	Empty Mark = ""
	X     Mark = "X"
	O     Mark = "O"

	// Size is the number of cells on the board.
	Size = 9

	// StartingPlayer moves first on a fresh board.
	StartingPlayer = X
)

var (
	ErrInvalidBoard  = errors.New("invalid board")
	ErrInvalidPlayer = errors.New("invalid player")
)

// MarshalJSON encodes an empty cell as null.
func (m Mark) MarshalJSON() ([]byte, error) {
	if m == Empty {
		return []byte("null"), nil
	}
	return json.Marshal(string(m))
}

// IsPlayer reports whether m is X or O.
func (m Mark) IsPlayer() bool {
	return m == X || m == O
}

// Board is the 3x3 grid in row-major order.
type Board [Size]Mark

// FromCells builds a Board from a decoded cell list, rejecting lists of the
// wrong length or cells that are neither empty, X nor O.
func FromCells(cells []Mark) (Board, error) {
	var b Board
	if len(cells) != Size {
		return b, fmt.Errorf("%w: expected %d cells, got %d", ErrInvalidBoard, Size, len(cells))
	}
	for i, c := range cells {
		if c != Empty && !c.IsPlayer() {
			return b, fmt.Errorf("%w: cell %d has %q", ErrInvalidBoard, i, string(c))
		}
		b[i] = c
	}
	return b, nil
}

// ParsePlayer validates a player mark received from a client.
func ParsePlayer(s string) (Mark, error) {
	m := Mark(s)
	if !m.IsPlayer() {
		return Empty, fmt.Errorf("%w: %q", ErrInvalidPlayer, s)
	}
	return m, nil
}

// Snapshot is the advisory state of a room's current game.
type Snapshot struct {
	Board         Board   `json:"board"`
	CurrentPlayer Mark    `json:"currentPlayer"`
	Winner        *string `json:"winner"`
}

// NewSnapshot returns an empty board with the starting player to move.
func NewSnapshot() Snapshot {
	return Snapshot{CurrentPlayer: StartingPlayer}
}

// Apply records a relayed move.
func (s *Snapshot) Apply(b Board, next Mark) {
	s.Board = b
	s.CurrentPlayer = next
}

// SetWinner records the display name of the reported winner.
func (s *Snapshot) SetWinner(name string) {
	s.Winner = &name
}

// Clone returns a deep copy so callers outside the coordinator cannot alias
// the winner pointer.
func (s Snapshot) Clone() Snapshot {
	if s.Winner != nil {
		w := *s.Winner
		s.Winner = &w
	}
	return s
}

var lines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

// Winner returns the mark holding a full line and that line's cells, or Empty.
// Clients use it; the coordinator trusts what they report.
func (b Board) Winner() (Mark, []int) {
	for _, l := range lines {
		m := b[l[0]]
		if m.IsPlayer() && b[l[1]] == m && b[l[2]] == m {
			return m, []int{l[0], l[1], l[2]}
		}
	}
	return Empty, nil
}

// Full reports whether no empty cell remains.
func (b Board) Full() bool {
	for _, c := range b {
		if c == Empty {
			return false
		}
	}
	return true
}

// Opponent returns the other player mark.
func (m Mark) Opponent() Mark {
	switch m {
	case X:
		return O
	case O:
		return X
	}
	return Empty
}
